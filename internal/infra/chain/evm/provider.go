// Package evm is the go-ethereum backed transport: a polling block feed,
// receipt lookups with confirmation counts and ABI-decoded contract events.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/chainsub/internal/infra/chain"
	"github.com/vietddude/chainsub/internal/infra/rpc"
	"github.com/vietddude/chainsub/internal/metrics"
)

// ErrClosed is returned by waits interrupted by Close.
var ErrClosed = errors.New("provider closed")

// Config tunes the block poller.
type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	// MaxCatchup bounds how many blocks one poll announces after a gap
	MaxCatchup uint64
}

// DefaultConfig matches a 12s block time chain.
var DefaultConfig = Config{
	PollInterval:   4 * time.Second,
	RequestTimeout: 10 * time.Second,
	MaxCatchup:     64,
}

// Provider polls a node and publishes new blocks to subscribers.
type Provider struct {
	client rpc.Backend
	cfg    Config
	log    *slog.Logger
	head   *HeadCache

	blockFeed event.Feed
	scope     event.SubscriptionScope

	mu        sync.Mutex
	lastBlock uint64
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ chain.Transport = (*Provider)(nil)

// NewProvider creates a provider. Call Start to begin polling.
func NewProvider(client rpc.Backend, cfg Config, log *slog.Logger) *Provider {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig.PollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig.RequestTimeout
	}
	if cfg.MaxCatchup == 0 {
		cfg.MaxCatchup = DefaultConfig.MaxCatchup
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		client: client,
		cfg:    cfg,
		log:    log.With("component", "evm-provider"),
		head:   NewHeadCache(client.BlockNumber, cfg.PollInterval),
	}
}

// Start records the current head and polls until ctx is done or Close is called.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return errors.New("provider already started")
	}
	p.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	head, err := p.client.BlockNumber(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch chain head: %w", err)
	}
	p.head.Set(head)
	metrics.ChainLatestBlock.Set(float64(head))

	pctx, pcancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.lastBlock = head
	p.cancel = pcancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	p.log.Info("Block poller started", "head", head, "interval", p.cfg.PollInterval)
	go p.run(pctx)
	return nil
}

// Close stops polling and ends every subscription handed out.
func (p *Provider) Close() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.scope.Close()
	if done != nil {
		<-done
	}
}

// SubscribeNewBlocks delivers new block numbers on sink. A subscriber that
// falls behind never holds up the poller or other subscribers: once sink is
// full, undelivered numbers collapse into the latest one.
func (p *Provider) SubscribeNewBlocks(sink chan<- uint64) event.Subscription {
	relay := make(chan uint64, 1)
	fsub := p.blockFeed.Subscribe(relay)
	sub := event.NewSubscription(func(quit <-chan struct{}) error {
		defer fsub.Unsubscribe()
		return forwardLatest(relay, sink, fsub.Err(), quit)
	})

	tracked := p.scope.Track(sub)
	if tracked == nil {
		sub.Unsubscribe()
		return event.NewSubscription(func(<-chan struct{}) error { return ErrClosed })
	}
	return tracked
}

// forwardLatest copies block numbers from in to out in order. It always
// accepts from in; while out is full only the newest number is kept.
func forwardLatest(in <-chan uint64, out chan<- uint64, errc <-chan error, quit <-chan struct{}) error {
	var (
		pending uint64
		has     bool
	)
	for {
		var send chan<- uint64
		if has {
			send = out
		}
		select {
		case n := <-in:
			if has {
				select {
				case out <- pending:
				default:
				}
			}
			select {
			case out <- n:
				has = false
			default:
				pending, has = n, true
			}
		case send <- pending:
			has = false
		case err := <-errc:
			return err
		case <-quit:
			return nil
		}
	}
}

func (p *Provider) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Block poller stopped")
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil && ctx.Err() == nil {
				p.log.Warn("Block poll failed", "error", err)
			}
		}
	}
}

// poll fetches the head and announces every block after the last one seen.
func (p *Provider) poll(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	head, err := p.client.BlockNumber(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("eth_blockNumber: %w", err)
	}
	p.head.Set(head)
	metrics.ChainLatestBlock.Set(float64(head))

	p.mu.Lock()
	last := p.lastBlock
	p.mu.Unlock()

	if head <= last {
		return nil
	}

	from := last + 1
	if head-last > p.cfg.MaxCatchup {
		from = head - p.cfg.MaxCatchup + 1
		p.log.Warn("Block gap exceeds catch-up window",
			"last", last,
			"head", head,
			"skipped", from-last-1,
		)
	}

	for n := from; n <= head; n++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.blockFeed.Send(n)
		p.mu.Lock()
		p.lastBlock = n
		p.mu.Unlock()
	}
	return nil
}

// LastBlock returns the last block announced to subscribers.
func (p *Provider) LastBlock() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastBlock
}
