// Package txconfirm tracks a submitted transaction until it is mined and
// reports its confirmation count on every new block.
package txconfirm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/infra/chain"
	"github.com/vietddude/chainsub/internal/subscription"
)

const (
	kind = "transaction"

	// DefaultTimeout applies when no timeout is configured
	DefaultTimeout = 120 * time.Second

	sinkSize = 16
)

// Options configures a Tracker.
type Options struct {
	// Timeout bounds how long a confirmation listener waits before an error
	Timeout time.Duration

	// CancelTimeoutOnConfirm stops pending timeout timers once a receipt is
	// observed. When false the timer always fires.
	CancelTimeoutOnConfirm bool

	Logger    *slog.Logger
	Publisher subscription.Publisher
}

// Tracker is the subscription handed out for a submitted transaction.
type Tracker struct {
	base      *subscription.Base
	ctx       context.Context
	tx        domain.PendingTx
	transport chain.Transport

	cancelOnConfirm bool
	confirmed       atomic.Bool

	hashMu sync.Mutex
	hash   *common.Hash

	mu      sync.Mutex
	timeout time.Duration
	timers  []*time.Timer
}

var _ subscription.Subscription = (*Tracker)(nil)

// New creates a tracker for tx. ctx scopes every receipt lookup made by
// handlers; detaching a listener does not cancel a lookup in flight.
func New(ctx context.Context, tx domain.PendingTx, transport chain.Transport, opts Options) *Tracker {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		base: subscription.NewBase(kind, subscription.Options{
			Logger:    opts.Logger,
			Publisher: opts.Publisher,
		}),
		ctx:             ctx,
		tx:              tx,
		transport:       transport,
		cancelOnConfirm: opts.CancelTimeoutOnConfirm,
		timeout:         timeout,
	}
}

// ID returns the subscription identifier.
func (t *Tracker) ID() string {
	return t.base.ID()
}

// On registers a persistent listener for "confirmation" or "error".
func (t *Tracker) On(name domain.EventName, listener subscription.Listener) error {
	return t.register(name, listener, false)
}

// Once registers a one-shot "confirmation" listener.
func (t *Tracker) Once(name domain.EventName, listener subscription.Listener) error {
	return t.register(name, listener, true)
}

func (t *Tracker) Off(name domain.EventName) {
	t.base.Off(name)
}

func (t *Tracker) Unsubscribe() {
	t.base.Unsubscribe()
}

func (t *Tracker) SubscribedEventNames() []domain.EventName {
	return t.base.SubscribedEventNames()
}

func (t *Tracker) EmitErrorEvent(err error, name domain.EventName) {
	t.base.EmitErrorEvent(err, name)
}

// EventsTimeout returns the timeout armed by future registrations.
func (t *Tracker) EventsTimeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

// SetEventsTimeout changes the timeout for future registrations only.
func (t *Tracker) SetEventsTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

// Confirmed reports whether a receipt has ever been observed.
func (t *Tracker) Confirmed() bool {
	return t.confirmed.Load()
}

func (t *Tracker) register(name domain.EventName, listener subscription.Listener, once bool) error {
	trigger, ok := ParseTrigger(name)
	if !ok {
		return fmt.Errorf("%w: %q is not a transaction event", subscription.ErrInvalidTrigger, name)
	}

	if trigger == TriggerError {
		if once {
			return fmt.Errorf("%w: error listeners cannot be one-shot", subscription.ErrInvalidTrigger)
		}
		t.base.AddErrorListener(listener)
		return nil
	}

	if err := t.base.AddEventListener(name, transportNames[trigger], once, listener, t.attach); err != nil {
		return err
	}
	t.armTimeout()
	return nil
}

// attach starts the consumer goroutine of one registration.
func (t *Tracker) attach(rec *subscription.Record) (func(), error) {
	sink := make(chan uint64, sinkSize)
	sub := t.transport.SubscribeNewBlocks(sink)
	quit := make(chan struct{})

	go t.consume(rec, sink, sub, quit)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			sub.Unsubscribe()
		})
	}, nil
}

func (t *Tracker) consume(rec *subscription.Record, sink <-chan uint64, sub event.Subscription, quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case err, ok := <-sub.Err():
			if ok && err != nil {
				t.base.EmitErrorEvent(fmt.Errorf("block subscription: %w", err), rec.Name)
			}
			return
		case block := <-sink:
			select {
			case <-quit:
				return
			default:
			}
			t.handleBlock(rec, block)
			if rec.Once {
				return
			}
		}
	}
}

// handleBlock runs the confirmation check for one block notification.
func (t *Tracker) handleBlock(rec *subscription.Record, block uint64) {
	// One-shot listeners detach before any lookup so a second block
	// arriving meanwhile cannot deliver twice.
	if rec.Once && !t.base.Detach(rec) {
		return
	}

	if err := t.check(rec); err != nil {
		t.base.Logger().Debug("Confirmation check failed", "block", block, "error", err)
		t.base.EmitErrorEvent(&subscription.ListenerError{EventName: rec.Name, Err: err}, rec.Name)
	}
}

func (t *Tracker) check(rec *subscription.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("confirmation handler panicked: %v", r)
		}
	}()

	hash, err := t.resolveHash(t.ctx)
	if err != nil {
		return fmt.Errorf("resolve transaction hash: %w", err)
	}

	receipt, err := t.transport.TransactionReceipt(t.ctx, hash)
	if err != nil {
		return fmt.Errorf("fetch receipt %s: %w", hash.Hex(), err)
	}

	if receipt == nil {
		if t.confirmed.Load() {
			t.base.EmitErrorEvent(
				fmt.Errorf("%w: %s", subscription.ErrTransactionDisplaced, hash.Hex()),
				rec.Name,
			)
		}
		return nil
	}

	if t.confirmed.CompareAndSwap(false, true) && t.cancelOnConfirm {
		t.stopTimers()
	}
	t.base.Deliver(rec, domain.ConfirmationMessage(receipt))
	return nil
}

// resolveHash waits for the pending transaction once and caches its hash.
func (t *Tracker) resolveHash(ctx context.Context) (common.Hash, error) {
	t.hashMu.Lock()
	defer t.hashMu.Unlock()

	if t.hash != nil {
		return *t.hash, nil
	}
	h, err := t.tx.Hash(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	t.hash = &h
	return h, nil
}

func (t *Tracker) armTimeout() {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.timeout
	timer := time.AfterFunc(d, func() {
		if t.cancelOnConfirm && t.confirmed.Load() {
			return
		}
		t.base.EmitErrorEvent(
			fmt.Errorf("%w after %s", subscription.ErrTimeout, d),
			domain.EventConfirmation,
		)
	})
	t.timers = append(t.timers, timer)
}

func (t *Tracker) stopTimers() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, timer := range t.timers {
		timer.Stop()
	}
	t.timers = nil
}

// WaitForNonceToUpdate blocks until the transaction is mined. It only
// serializes rapid submissions from one account; it does not manage nonces.
func (t *Tracker) WaitForNonceToUpdate(ctx context.Context) error {
	hash, err := t.resolveHash(ctx)
	if err != nil {
		return fmt.Errorf("resolve transaction hash: %w", err)
	}
	if _, err := t.transport.WaitForTransaction(ctx, hash); err != nil {
		return fmt.Errorf("wait for %s: %w", hash.Hex(), err)
	}
	return nil
}

// WaitConfirmations blocks until the transaction has at least n
// confirmations and returns the receipt seen at that point.
func (t *Tracker) WaitConfirmations(ctx context.Context, n uint64) (*domain.Receipt, error) {
	hash, err := t.resolveHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve transaction hash: %w", err)
	}

	sink := make(chan uint64, sinkSize)
	sub := t.transport.SubscribeNewBlocks(sink)
	defer sub.Unsubscribe()

	seen := false
	check := func() (*domain.Receipt, error) {
		receipt, err := t.transport.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("fetch receipt %s: %w", hash.Hex(), err)
		}
		if receipt == nil {
			if seen {
				return nil, fmt.Errorf("%w: %s", subscription.ErrTransactionDisplaced, hash.Hex())
			}
			return nil, nil
		}
		seen = true
		if receipt.Confirmations >= n {
			return receipt, nil
		}
		return nil, nil
	}

	if r, err := check(); r != nil || err != nil {
		return r, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = fmt.Errorf("block subscription closed")
			}
			return nil, err
		case <-sink:
			if r, err := check(); r != nil || err != nil {
				return r, err
			}
		}
	}
}
