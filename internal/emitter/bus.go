// Package emitter fans subscription outcomes out to journal sinks.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/metrics"
)

const (
	topicOutcome = "subscription:outcome"

	// DefaultQueueSize bounds the outcomes buffered per handler
	DefaultQueueSize = 1024
)

// Sink persists outcomes.
type Sink interface {
	Save(ctx context.Context, o *domain.Outcome) error
}

// Bus hands every published outcome to each attached handler. Publish only
// enqueues: each handler drains its own queue on one goroutine, in publish
// order. When a queue is full the outcome is dropped for that handler and
// counted.
type Bus struct {
	bus          evbus.Bus
	log          *slog.Logger
	writeTimeout time.Duration
	queueSize    int

	mu      sync.RWMutex
	workers []*worker
	closed  bool
}

// New creates an empty bus.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		bus:          evbus.New(),
		log:          log.With("component", "outcome-bus"),
		writeTimeout: 5 * time.Second,
		queueSize:    DefaultQueueSize,
	}
}

type job struct {
	outcome *domain.Outcome
	flushed chan struct{}
}

// worker owns the queue of one handler.
type worker struct {
	name  string
	fn    func(o *domain.Outcome)
	queue chan job
	done  chan struct{}
	log   *slog.Logger
}

func (w *worker) run() {
	defer close(w.done)
	for j := range w.queue {
		if j.flushed != nil {
			close(j.flushed)
			continue
		}
		w.fn(j.outcome)
	}
}

// enqueue is the bus callback. It never blocks.
func (w *worker) enqueue(o *domain.Outcome) {
	select {
	case w.queue <- job{outcome: o}:
	default:
		metrics.OutcomesDropped.WithLabelValues(w.name).Inc()
		w.log.Warn("Outcome queue full, dropping outcome",
			"handler", w.name,
			"subscription", o.SubscriptionID,
			"kind", o.Kind,
		)
	}
}

// flush returns once every outcome queued before the call was handled.
func (w *worker) flush() {
	ack := make(chan struct{})
	w.queue <- job{flushed: ack}
	<-ack
}

// Attach persists every published outcome to sink. Failures are logged and
// counted, never returned to publishers.
func (b *Bus) Attach(backend string, sink Sink) error {
	return b.subscribe(backend, func(o *domain.Outcome) {
		ctx, cancel := context.WithTimeout(context.Background(), b.writeTimeout)
		defer cancel()
		if err := sink.Save(ctx, o); err != nil {
			metrics.JournalWriteErrors.WithLabelValues(backend).Inc()
			b.log.Error("Journal write failed",
				"backend", backend,
				"subscription", o.SubscriptionID,
				"kind", o.Kind,
				"error", err,
			)
		}
	})
}

// Subscribe calls fn for every published outcome, in publish order.
func (b *Bus) Subscribe(name string, fn func(o *domain.Outcome)) error {
	return b.subscribe(name, fn)
}

func (b *Bus) subscribe(name string, fn func(o *domain.Outcome)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("outcome bus closed")
	}

	w := &worker{
		name:  name,
		fn:    fn,
		queue: make(chan job, b.queueSize),
		done:  make(chan struct{}),
		log:   b.log,
	}
	if err := b.bus.Subscribe(topicOutcome, w.enqueue); err != nil {
		return fmt.Errorf("subscribe outcome handler: %w", err)
	}
	go w.run()
	b.workers = append(b.workers, w)
	return nil
}

// Publish implements subscription.Publisher.
func (b *Bus) Publish(o *domain.Outcome) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed || !b.bus.HasCallback(topicOutcome) {
		return
	}
	b.bus.Publish(topicOutcome, o)
}

// Flush waits until outcomes published so far reached every handler.
func (b *Bus) Flush() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, w := range b.workers {
		w.flush()
	}
}

// Close drains pending outcomes and detaches all handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	workers := b.workers
	b.workers = nil
	for _, w := range workers {
		_ = b.bus.Unsubscribe(topicOutcome, w.enqueue)
	}
	b.mu.Unlock()

	for _, w := range workers {
		close(w.queue)
		<-w.done
	}
}
