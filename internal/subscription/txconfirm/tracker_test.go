package txconfirm

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/subscription"
)

var testHash = common.HexToHash("0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060")

// MockTransport publishes blocks through a feed and serves receipts from a map
type MockTransport struct {
	feed event.Feed

	mu       sync.Mutex
	receipts map[common.Hash]*domain.Receipt
	err      error
}

func NewMockTransport() *MockTransport {
	return &MockTransport{receipts: make(map[common.Hash]*domain.Receipt)}
}

func (m *MockTransport) SubscribeNewBlocks(sink chan<- uint64) event.Subscription {
	return m.feed.Subscribe(sink)
}

func (m *MockTransport) TransactionReceipt(ctx context.Context, hash common.Hash) (*domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.receipts[hash]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MockTransport) WaitForTransaction(ctx context.Context, hash common.Hash) (*domain.Receipt, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if r, err := m.TransactionReceipt(ctx, hash); r != nil || err != nil {
			return r, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *MockTransport) SetReceipt(hash common.Hash, confirmations uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[hash] = &domain.Receipt{
		TxHash:        hash,
		BlockNumber:   100,
		Status:        domain.TxStatusSuccess,
		Confirmations: confirmations,
	}
}

func (m *MockTransport) DropReceipt(hash common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.receipts, hash)
}

func (m *MockTransport) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockTransport) Block(n uint64) int {
	return m.feed.Send(n)
}

func newTracker(transport *MockTransport, opts Options) *Tracker {
	return New(context.Background(), domain.KnownTx(testHash), transport, opts)
}

func recvMessage(t *testing.T, ch <-chan domain.Message) domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return domain.Message{}
	}
}

func expectNone(t *testing.T, ch <-chan domain.Message, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(wait):
	}
}

func collect(ch chan domain.Message) subscription.Listener {
	return func(msg domain.Message) error {
		ch <- msg
		return nil
	}
}

func TestTracker_InvalidTriggers(t *testing.T) {
	tracker := newTracker(NewMockTransport(), Options{})

	if err := tracker.On("Transfer", collect(make(chan domain.Message, 1))); !errors.Is(err, subscription.ErrInvalidTrigger) {
		t.Errorf("expected ErrInvalidTrigger for unknown name, got %v", err)
	}
	if err := tracker.Once(domain.EventError, collect(make(chan domain.Message, 1))); !errors.Is(err, subscription.ErrInvalidTrigger) {
		t.Errorf("expected ErrInvalidTrigger for once(error), got %v", err)
	}
	if err := tracker.On(domain.EventError, collect(make(chan domain.Message, 1))); err != nil {
		t.Errorf("on(error) should succeed, got %v", err)
	}
}

func TestTracker_DuplicateConfirmation(t *testing.T) {
	tracker := newTracker(NewMockTransport(), Options{})
	defer tracker.Unsubscribe()

	if err := tracker.On(domain.EventConfirmation, collect(make(chan domain.Message, 1))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := tracker.Once(domain.EventConfirmation, collect(make(chan domain.Message, 1)))
	if !errors.Is(err, subscription.ErrDuplicateListener) {
		t.Errorf("expected ErrDuplicateListener, got %v", err)
	}
}

func TestTracker_OnceConfirmation(t *testing.T) {
	transport := NewMockTransport()
	transport.SetReceipt(testHash, 1)
	tracker := newTracker(transport, Options{})

	msgs := make(chan domain.Message, 4)
	if err := tracker.Once(domain.EventConfirmation, collect(msgs)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	transport.Block(101)
	msg := recvMessage(t, msgs)
	if msg.Data.Confirmations != 1 {
		t.Errorf("expected 1 confirmation, got %d", msg.Data.Confirmations)
	}
	if msg.Data.Receipt == nil || msg.Data.Receipt.TxHash != testHash {
		t.Errorf("expected receipt for %s, got %+v", testHash.Hex(), msg.Data.Receipt)
	}

	if slices.Contains(tracker.SubscribedEventNames(), domain.EventConfirmation) {
		t.Error("one-shot listener should be detached after firing")
	}
	if n := transport.Block(102); n != 0 {
		t.Errorf("expected no block subscribers after one-shot, got %d", n)
	}
	expectNone(t, msgs, 50*time.Millisecond)
}

func TestTracker_OnConfirmationCounts(t *testing.T) {
	transport := NewMockTransport()
	tracker := newTracker(transport, Options{})
	defer tracker.Unsubscribe()

	msgs := make(chan domain.Message, 4)
	if err := tracker.On(domain.EventConfirmation, collect(msgs)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Not mined yet: no delivery, no error
	transport.Block(100)
	expectNone(t, msgs, 50*time.Millisecond)

	transport.SetReceipt(testHash, 1)
	transport.Block(101)
	if got := recvMessage(t, msgs).Data.Confirmations; got != 1 {
		t.Errorf("expected 1 confirmation, got %d", got)
	}

	transport.SetReceipt(testHash, 2)
	transport.Block(102)
	if got := recvMessage(t, msgs).Data.Confirmations; got != 2 {
		t.Errorf("expected 2 confirmations, got %d", got)
	}
}

func TestTracker_Displacement(t *testing.T) {
	transport := NewMockTransport()
	transport.SetReceipt(testHash, 1)
	tracker := newTracker(transport, Options{})
	defer tracker.Unsubscribe()

	confirmations := make(chan domain.Message, 4)
	errs := make(chan domain.Message, 4)
	_ = tracker.On(domain.EventError, collect(errs))
	_ = tracker.On(domain.EventConfirmation, collect(confirmations))

	transport.Block(101)
	recvMessage(t, confirmations)
	if !tracker.Confirmed() {
		t.Fatal("expected tracker to be confirmed")
	}

	transport.DropReceipt(testHash)
	transport.Block(102)

	msg := recvMessage(t, errs)
	if !errors.Is(msg.Error, subscription.ErrTransactionDisplaced) {
		t.Errorf("expected displacement error, got %v", msg.Error)
	}
	if errors.Is(msg.Error, subscription.ErrTimeout) {
		t.Error("displacement must not be reported as timeout")
	}
	if msg.EventName != domain.EventConfirmation {
		t.Errorf("expected error tagged confirmation, got %s", msg.EventName)
	}
	if !tracker.Confirmed() {
		t.Error("confirmed flag must stay set")
	}
}

func TestTracker_Timeout(t *testing.T) {
	transport := NewMockTransport()
	tracker := newTracker(transport, Options{})
	defer tracker.Unsubscribe()

	tracker.SetEventsTimeout(50 * time.Millisecond)

	errs := make(chan domain.Message, 4)
	_ = tracker.On(domain.EventError, collect(errs))
	_ = tracker.On(domain.EventConfirmation, collect(make(chan domain.Message, 4)))

	start := time.Now()
	msg := recvMessage(t, errs)
	if !errors.Is(msg.Error, subscription.ErrTimeout) {
		t.Errorf("expected timeout error, got %v", msg.Error)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("timeout fired too early: %s", elapsed)
	}
}

func TestTracker_TimeoutFiresAfterConfirmation(t *testing.T) {
	transport := NewMockTransport()
	transport.SetReceipt(testHash, 1)
	tracker := newTracker(transport, Options{Timeout: 100 * time.Millisecond})
	defer tracker.Unsubscribe()

	confirmations := make(chan domain.Message, 4)
	errs := make(chan domain.Message, 4)
	_ = tracker.On(domain.EventError, collect(errs))
	_ = tracker.Once(domain.EventConfirmation, collect(confirmations))

	transport.Block(101)
	recvMessage(t, confirmations)

	msg := recvMessage(t, errs)
	if !errors.Is(msg.Error, subscription.ErrTimeout) {
		t.Errorf("expected timeout even after confirmation, got %v", msg.Error)
	}
}

func TestTracker_CancelTimeoutOnConfirm(t *testing.T) {
	transport := NewMockTransport()
	transport.SetReceipt(testHash, 1)
	tracker := newTracker(transport, Options{
		Timeout:                100 * time.Millisecond,
		CancelTimeoutOnConfirm: true,
	})
	defer tracker.Unsubscribe()

	confirmations := make(chan domain.Message, 4)
	errs := make(chan domain.Message, 4)
	_ = tracker.On(domain.EventError, collect(errs))
	_ = tracker.Once(domain.EventConfirmation, collect(confirmations))

	transport.Block(101)
	recvMessage(t, confirmations)

	expectNone(t, errs, 250*time.Millisecond)
}

func TestTracker_CancelTimeoutOnConfirm_StillTimesOutUnmined(t *testing.T) {
	transport := NewMockTransport()
	tracker := newTracker(transport, Options{
		Timeout:                50 * time.Millisecond,
		CancelTimeoutOnConfirm: true,
	})
	defer tracker.Unsubscribe()

	errs := make(chan domain.Message, 4)
	_ = tracker.On(domain.EventError, collect(errs))
	_ = tracker.On(domain.EventConfirmation, collect(make(chan domain.Message, 4)))

	msg := recvMessage(t, errs)
	if !errors.Is(msg.Error, subscription.ErrTimeout) {
		t.Errorf("expected timeout error, got %v", msg.Error)
	}
}

func TestTracker_EventsTimeoutPerInstance(t *testing.T) {
	transport := NewMockTransport()
	a := newTracker(transport, Options{})
	b := newTracker(transport, Options{Timeout: time.Second})

	if a.EventsTimeout() != DefaultTimeout {
		t.Errorf("expected default timeout %s, got %s", DefaultTimeout, a.EventsTimeout())
	}

	a.SetEventsTimeout(500 * time.Millisecond)
	if got := a.EventsTimeout(); got != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", got)
	}
	if got := b.EventsTimeout(); got != time.Second {
		t.Errorf("expected other instance to keep 1s, got %s", got)
	}
}

func TestTracker_ListenerError(t *testing.T) {
	transport := NewMockTransport()
	transport.SetReceipt(testHash, 1)
	tracker := newTracker(transport, Options{})
	defer tracker.Unsubscribe()

	errs := make(chan domain.Message, 4)
	_ = tracker.On(domain.EventError, collect(errs))
	_ = tracker.On(domain.EventConfirmation, func(domain.Message) error {
		return errors.New("listener failed")
	})

	transport.Block(101)
	msg := recvMessage(t, errs)
	if !errors.Is(msg.Error, subscription.ErrListenerExecution) {
		t.Errorf("expected ErrListenerExecution, got %v", msg.Error)
	}
}

func TestTracker_ReceiptLookupError(t *testing.T) {
	transport := NewMockTransport()
	transport.SetError(errors.New("connection refused"))
	tracker := newTracker(transport, Options{})
	defer tracker.Unsubscribe()

	errs := make(chan domain.Message, 4)
	_ = tracker.On(domain.EventError, collect(errs))
	_ = tracker.On(domain.EventConfirmation, collect(make(chan domain.Message, 4)))

	transport.Block(101)
	msg := recvMessage(t, errs)
	if !errors.Is(msg.Error, subscription.ErrListenerExecution) {
		t.Errorf("expected ErrListenerExecution, got %v", msg.Error)
	}
}

func TestTracker_HashResolvedOnce(t *testing.T) {
	transport := NewMockTransport()
	var calls atomic.Int32
	tx := domain.PendingTxFunc(func(context.Context) (common.Hash, error) {
		calls.Add(1)
		return testHash, nil
	})
	tracker := New(context.Background(), tx, transport, Options{})
	defer tracker.Unsubscribe()

	msgs := make(chan domain.Message, 4)
	_ = tracker.On(domain.EventConfirmation, collect(msgs))

	transport.SetReceipt(testHash, 1)
	transport.Block(101)
	recvMessage(t, msgs)
	transport.Block(102)
	recvMessage(t, msgs)

	if n := calls.Load(); n != 1 {
		t.Errorf("expected hash resolved once, got %d calls", n)
	}
}

func TestTracker_OffStopsDelivery(t *testing.T) {
	transport := NewMockTransport()
	transport.SetReceipt(testHash, 1)
	tracker := newTracker(transport, Options{})

	msgs := make(chan domain.Message, 4)
	_ = tracker.On(domain.EventConfirmation, collect(msgs))
	tracker.Off(domain.EventConfirmation)

	if n := transport.Block(101); n != 0 {
		t.Errorf("expected no subscribers after Off, got %d", n)
	}
	expectNone(t, msgs, 50*time.Millisecond)

	// Off on an absent name only warns
	tracker.Off(domain.EventConfirmation)
}

func TestTracker_Unsubscribe(t *testing.T) {
	tracker := newTracker(NewMockTransport(), Options{})

	_ = tracker.On(domain.EventError, collect(make(chan domain.Message, 1)))
	_ = tracker.On(domain.EventConfirmation, collect(make(chan domain.Message, 1)))

	tracker.Unsubscribe()
	if names := tracker.SubscribedEventNames(); len(names) != 0 {
		t.Errorf("expected no names after Unsubscribe, got %v", names)
	}
}

func TestTracker_WaitForNonceToUpdate(t *testing.T) {
	transport := NewMockTransport()
	tracker := newTracker(transport, Options{})

	done := make(chan error, 1)
	go func() {
		done <- tracker.WaitForNonceToUpdate(context.Background())
	}()

	select {
	case err := <-done:
		t.Fatalf("returned before the transaction was mined: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	transport.SetReceipt(testHash, 1)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForNonceToUpdate did not return")
	}
}

func TestTracker_WaitConfirmations(t *testing.T) {
	transport := NewMockTransport()
	tracker := newTracker(transport, Options{})

	type result struct {
		receipt *domain.Receipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		r, err := tracker.WaitConfirmations(context.Background(), 3)
		done <- result{r, err}
	}()

	for conf := uint64(1); conf <= 3; conf++ {
		transport.SetReceipt(testHash, conf)
		// Retry until the waiter has subscribed
		for i := 0; i < 200 && transport.Block(100+conf) == 0; i++ {
			time.Sleep(time.Millisecond)
		}
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
		if res.receipt.Confirmations < 3 {
			t.Errorf("expected at least 3 confirmations, got %d", res.receipt.Confirmations)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitConfirmations did not return")
	}
}

func TestTracker_WaitConfirmations_Cancelled(t *testing.T) {
	tracker := newTracker(NewMockTransport(), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := tracker.WaitConfirmations(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
