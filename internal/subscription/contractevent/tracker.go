// Package contractevent delivers decoded contract events to listeners.
package contractevent

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/infra/chain"
	"github.com/vietddude/chainsub/internal/subscription"
)

const (
	kind     = "contract"
	sinkSize = 64
)

// Options configures a Tracker.
type Options struct {
	Logger    *slog.Logger
	Publisher subscription.Publisher
}

// Tracker is the subscription handed out for a deployed contract.
type Tracker struct {
	base     *subscription.Base
	contract chain.ContractHandle
	events   []string
}

var _ subscription.Subscription = (*Tracker)(nil)

// New creates a tracker over contract's declared events.
func New(contract chain.ContractHandle, opts Options) *Tracker {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		base: subscription.NewBase(kind, subscription.Options{
			Logger:    log.With("contract", contract.Address().Hex()),
			Publisher: opts.Publisher,
		}),
		contract: contract,
		events:   contract.EventNames(),
	}
}

// ID returns the subscription identifier.
func (t *Tracker) ID() string {
	return t.base.ID()
}

// On registers a persistent listener for a declared event or "error".
func (t *Tracker) On(name domain.EventName, listener subscription.Listener) error {
	return t.register(name, listener, false)
}

// Once registers a listener detached after the first matching log.
// Error listeners are always persistent.
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

// Events lists the event names declared by the contract.
func (t *Tracker) Events() []string {
	return slices.Clone(t.events)
}

// Declares reports whether name is valid for this contract.
func (t *Tracker) Declares(name domain.EventName) bool {
	return name == domain.EventError || slices.Contains(t.events, string(name))
}

func (t *Tracker) register(name domain.EventName, listener subscription.Listener, once bool) error {
	if !t.Declares(name) {
		return fmt.Errorf("%w: %q is not declared by %s", subscription.ErrUnknownEvent, name, t.contract.Address().Hex())
	}

	if name == domain.EventError {
		t.base.AddErrorListener(listener)
		return nil
	}

	topic, _ := t.contract.EventTopic(string(name))
	return t.base.AddEventListener(name, topic, once, listener, t.attach)
}

func (t *Tracker) attach(rec *subscription.Record) (func(), error) {
	sink := make(chan *domain.ContractLog, sinkSize)
	sub, err := t.contract.WatchEvent(string(rec.Name), sink)
	if err != nil {
		return nil, err
	}
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

func (t *Tracker) consume(
	rec *subscription.Record,
	sink <-chan *domain.ContractLog,
	sub event.Subscription,
	quit <-chan struct{},
) {
	for {
		select {
		case <-quit:
			return
		case err, ok := <-sub.Err():
			if ok && err != nil {
				t.base.EmitErrorEvent(fmt.Errorf("watch %s: %w", rec.Name, err), rec.Name)
			}
			return
		case l := <-sink:
			select {
			case <-quit:
				return
			default:
			}
			if l.Log.Removed {
				t.base.Logger().Debug("Skipping removed log", "event", rec.Name, "tx", l.Log.TxHash.Hex())
				continue
			}
			t.handleLog(rec, l)
			if rec.Once {
				return
			}
		}
	}
}

// handleLog delivers one decoded log. One-shot listeners detach first.
func (t *Tracker) handleLog(rec *subscription.Record, l *domain.ContractLog) {
	if rec.Once && !t.base.Detach(rec) {
		return
	}
	log := l.Log
	t.base.Deliver(rec, domain.EventMessage(rec.Name, l.Args, &log))
}
