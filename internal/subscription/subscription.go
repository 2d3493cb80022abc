// Package subscription holds the listener bookkeeping shared by transaction
// and contract-event subscriptions.
//
// A subscription keeps at most one listener per event name. Every listener
// except the error listener is attached to a transport notification stream;
// detaching stops future notifications but never interrupts a handler that is
// already running. Failures discovered while handling notifications are
// routed to the error listener and never returned to the transport.
package subscription

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/metrics"
	"github.com/vietddude/chainsub/internal/subscription/registry"
)

// Listener receives messages. A returned error is reported on the error channel.
type Listener func(msg domain.Message) error

// Subscription is the caller-facing handle.
type Subscription interface {
	// On registers a persistent listener
	On(name domain.EventName, listener Listener) error

	// Once registers a listener detached after its first notification
	Once(name domain.EventName, listener Listener) error

	// Off detaches and removes the listener for name
	Off(name domain.EventName)

	// Unsubscribe removes every listener
	Unsubscribe()

	// SubscribedEventNames lists registered names in registration order
	SubscribedEventNames() []domain.EventName

	// EmitErrorEvent routes err to the error listener
	EmitErrorEvent(err error, name domain.EventName)
}

// Publisher receives an outcome for every delivered message and emitted error.
type Publisher interface {
	Publish(o *domain.Outcome)
}

// Options configures a Base.
type Options struct {
	Logger    *slog.Logger
	Publisher Publisher
}

// Record is the registry entry of one listener.
type Record struct {
	Name      domain.EventName
	Transport string
	Once      bool

	listener Listener

	mu       sync.Mutex
	detach   func()
	detached bool
}

// SetDetach stores the transport detach function. If the record was already
// removed, d runs immediately.
func (r *Record) SetDetach(d func()) {
	r.mu.Lock()
	if r.detached {
		r.mu.Unlock()
		d()
		return
	}
	r.detach = d
	r.mu.Unlock()
}

func (r *Record) runDetach() {
	r.mu.Lock()
	r.detached = true
	d := r.detach
	r.detach = nil
	r.mu.Unlock()
	if d != nil {
		d()
	}
}

// AttachFunc connects rec to the transport and returns its detach function.
type AttachFunc func(rec *Record) (detach func(), err error)

// Base implements the registry side of Subscription. Concrete subscriptions
// embed it and add On/Once with their own validation.
type Base struct {
	id   string
	kind string
	log  *slog.Logger
	pub  Publisher

	mu       sync.Mutex
	registry *registry.Registry[domain.EventName, *Record]
}

// NewBase creates the shared state for a subscription of the given kind.
func NewBase(kind string, opts Options) *Base {
	id := uuid.NewString()
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("subscription", id, "kind", kind)

	return &Base{
		id:       id,
		kind:     kind,
		log:      log,
		pub:      opts.Publisher,
		registry: registry.New[domain.EventName, *Record](log),
	}
}

// ID returns the subscription identifier used in logs and the journal.
func (b *Base) ID() string {
	return b.id
}

// Logger returns the subscription scoped logger.
func (b *Base) Logger() *slog.Logger {
	return b.log
}

// AddErrorListener stores the error listener, replacing any previous one.
func (b *Base) AddErrorListener(listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registry.Has(domain.EventError) {
		b.registry.Remove(domain.EventError)
	} else {
		metrics.ActiveListeners.WithLabelValues(b.kind).Inc()
	}
	_ = b.registry.Register(domain.EventError, &Record{
		Name:     domain.EventError,
		listener: listener,
	})
}

// AddEventListener registers listener under name and attaches it to the
// transport under the transport-level name.
func (b *Base) AddEventListener(
	name domain.EventName,
	transport string,
	once bool,
	listener Listener,
	attach AttachFunc,
) error {
	if name == domain.EventError {
		return fmt.Errorf("%w: %q must be registered as the error listener", ErrReservedName, name)
	}

	rec := &Record{
		Name:      name,
		Transport: transport,
		Once:      once,
		listener:  listener,
	}

	b.mu.Lock()
	if err := b.registry.Register(name, rec); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateListener, name)
	}
	b.mu.Unlock()

	detach, err := attach(rec)
	if err != nil {
		b.mu.Lock()
		if cur, ok := b.registry.Get(name); ok && cur == rec {
			b.registry.Remove(name)
		}
		b.mu.Unlock()
		return fmt.Errorf("attach %s listener: %w", name, err)
	}
	rec.SetDetach(detach)

	metrics.ActiveListeners.WithLabelValues(b.kind).Inc()
	b.log.Debug("Listener attached", "event", name, "transport", transport, "once", once)
	return nil
}

// Off detaches the listener for name. An absent name is logged, not returned.
func (b *Base) Off(name domain.EventName) {
	b.mu.Lock()
	rec, ok := b.registry.Remove(name)
	b.mu.Unlock()
	if !ok {
		return
	}
	b.detached(rec)
}

// Detach removes rec if it is still the registered record for its name.
// Handlers use it so a late notification never removes a newer listener.
func (b *Base) Detach(rec *Record) bool {
	b.mu.Lock()
	cur, ok := b.registry.Get(rec.Name)
	if !ok || cur != rec {
		b.mu.Unlock()
		return false
	}
	b.registry.Remove(rec.Name)
	b.mu.Unlock()

	b.detached(rec)
	return true
}

func (b *Base) detached(rec *Record) {
	metrics.ActiveListeners.WithLabelValues(b.kind).Dec()
	rec.runDetach()
	b.log.Debug("Listener detached", "event", rec.Name)
}

// Unsubscribe removes all listeners. The transport itself is left running.
func (b *Base) Unsubscribe() {
	for _, name := range b.SubscribedEventNames() {
		b.Off(name)
	}
}

// SubscribedEventNames returns the registered names in registration order.
func (b *Base) SubscribedEventNames() []domain.EventName {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Names()
}

// EmitErrorEvent hands err to the error listener. Without one the error is
// dropped with a warning; it is never returned or panicked.
func (b *Base) EmitErrorEvent(err error, name domain.EventName) {
	b.mu.Lock()
	rec, ok := b.registry.Get(domain.EventError)
	b.mu.Unlock()

	msg := domain.ErrorMessage(err, name)
	metrics.ErrorsEmitted.WithLabelValues(b.kind, errorType(err)).Inc()
	b.publish(msg)

	if !ok {
		metrics.ErrorsDropped.WithLabelValues(b.kind).Inc()
		b.log.Warn("No error listener registered, dropping error", "event", name, "error", err)
		return
	}

	if lerr := invoke(rec.listener, msg); lerr != nil {
		b.log.Error("Error listener failed", "event", name, "error", lerr)
	}
}

// Deliver invokes rec's listener with msg and routes its failure to the
// error channel.
func (b *Base) Deliver(rec *Record, msg domain.Message) {
	metrics.MessagesDelivered.WithLabelValues(b.kind, string(rec.Name)).Inc()
	b.publish(msg)

	if err := invoke(rec.listener, msg); err != nil {
		b.EmitErrorEvent(&ListenerError{EventName: rec.Name, Err: err}, rec.Name)
	}
}

func (b *Base) publish(msg domain.Message) {
	if b.pub == nil {
		return
	}
	b.pub.Publish(domain.NewOutcome(b.id, msg))
}

func invoke(listener Listener, msg domain.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return listener(msg)
}
