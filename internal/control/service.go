// Package control wires configuration into a running subscription service.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/chainsub/internal/core/config"
	"github.com/vietddude/chainsub/internal/core/worker"
	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/emitter"
	"github.com/vietddude/chainsub/internal/health"
	"github.com/vietddude/chainsub/internal/infra/chain/evm"
	"github.com/vietddude/chainsub/internal/infra/rpc"
	"github.com/vietddude/chainsub/internal/infra/storage"
	"github.com/vietddude/chainsub/internal/subscription/contractevent"
	"github.com/vietddude/chainsub/internal/subscription/txconfirm"
)

// Options overrides how the service reaches the node.
type Options struct {
	// Backend replaces dialing network.rpc_url
	Backend rpc.Backend
	Logger  *slog.Logger
}

// Service owns the node connection, the block poller and the outcome journal
// shared by every subscription it hands out.
type Service struct {
	cfg      config.AppConfig
	client   *rpc.Client
	provider *evm.Provider
	bus      *emitter.Bus
	journal  *Journal

	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
}

// NewService connects every configured component. Nothing runs until Start.
func NewService(ctx context.Context, cfg *config.AppConfig, opts Options) (*Service, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg: *cfg,
		bus: emitter.New(log),
		log: log,
	}

	// 1. Node connection
	if opts.Backend != nil {
		s.client = rpc.NewClient(opts.Backend, rpc.DefaultRetryConfig)
	} else {
		client, err := rpc.Dial(ctx, cfg.Network.RPCURL, rpc.DefaultRetryConfig)
		if err != nil {
			return nil, err
		}
		s.client = client
	}
	if err := s.verifyChain(ctx); err != nil {
		s.client.Close()
		return nil, err
	}

	// 2. Outcome journal
	if err := s.initJournal(ctx); err != nil {
		s.closeStores()
		s.client.Close()
		return nil, err
	}

	// 3. Block poller
	s.provider = evm.NewProvider(s.client, evm.Config{
		PollInterval:   cfg.Network.PollInterval,
		RequestTimeout: cfg.Network.RequestTimeout,
		MaxCatchup:     cfg.Network.MaxCatchup,
	}, log)

	// 4. Health
	s.initHealth()

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *Service) verifyChain(ctx context.Context) error {
	want := s.cfg.Network.ChainID
	if want == 0 {
		return nil
	}
	got, err := s.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetch chain id: %w", err)
	}
	if got.Uint64() != uint64(want) {
		return fmt.Errorf("chain id mismatch: configured %d, node reports %s", want, got)
	}
	return nil
}

func (s *Service) initJournal(ctx context.Context) error {
	journal, err := OpenJournal(ctx, &s.cfg)
	if errors.Is(err, ErrJournalDisabled) {
		s.log.Info("Outcome journal disabled")
		return nil
	}
	if err != nil {
		return err
	}
	s.journal = journal

	if err := s.bus.Attach(journal.Backend, journal); err != nil {
		return err
	}
	s.log.Info("Outcome journal enabled", "backend", journal.Backend)
	return nil
}

func (s *Service) initHealth() {
	s.healthMon = health.NewMonitor(s.cfg.Network.RequestTimeout)
	s.healthMon.Register(health.Check{
		Name:     "rpc",
		Critical: true,
		Probe: func(ctx context.Context) error {
			_, err := s.client.BlockNumber(ctx)
			return err
		},
	})
	if s.journal != nil {
		s.healthMon.Register(health.Check{Name: "journal", Probe: s.journal.Ping})
	}
	if s.cfg.Server.Port > 0 {
		s.healthServer = health.NewServer(s.healthMon, s.cfg.Server.Port)
	}
}

// Start begins block polling and serves health endpoints. Polling runs
// until Stop, independent of ctx.
func (s *Service) Start(ctx context.Context) error {
	if err := s.provider.Start(s.ctx); err != nil {
		return err
	}

	if s.journal != nil && s.cfg.Journal.Retention > 0 {
		pruner := worker.NewPruner(s.cfg.Journal.Retention, s.journal, s.log)
		go pruner.Start(s.ctx)
		s.log.Info("Outcome pruning enabled", "retention", s.cfg.Journal.Retention, "interval", pruner.Interval())
	}

	if s.healthServer != nil {
		go func() {
			if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("Health server failed", "error", err)
			}
		}()
		s.log.Info("Health server listening", "port", s.cfg.Server.Port)
	}
	return nil
}

// Stop ends polling, flushes the journal and closes connections.
// Subscriptions handed out stop receiving notifications.
func (s *Service) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.log.Info("Stopping service...")
		s.cancel()
		s.provider.Close()
		s.bus.Close()

		if s.healthServer != nil {
			err = s.healthServer.Stop(ctx)
		}
		s.closeStores()
		s.client.Close()
	})
	return err
}

func (s *Service) closeStores() {
	if s.journal == nil {
		return
	}
	if err := s.journal.Close(); err != nil {
		s.log.Warn("Failed to close journal", "backend", s.journal.Backend, "error", err)
	}
}

// TrackTransaction returns a confirmation subscription for tx.
func (s *Service) TrackTransaction(tx domain.PendingTx) *txconfirm.Tracker {
	return txconfirm.New(s.ctx, tx, s.provider, txconfirm.Options{
		Timeout:                s.cfg.Subscription.Timeout(),
		CancelTimeoutOnConfirm: s.cfg.Subscription.CancelTimeoutOnConfirm,
		Logger:                 s.log,
		Publisher:              s.bus,
	})
}

// SubscribeContract returns an event subscription for the contract at address.
func (s *Service) SubscribeContract(address common.Address, abiJSON string) (*contractevent.Tracker, error) {
	contract, err := s.provider.Contract(address, abiJSON)
	if err != nil {
		return nil, err
	}
	return contractevent.New(contract, contractevent.Options{
		Logger:    s.log,
		Publisher: s.bus,
	}), nil
}

// Journal returns the outcome repository, or nil when journaling is disabled.
func (s *Service) Journal() storage.OutcomeRepository {
	if s.journal == nil {
		return nil
	}
	return s.journal
}

// Outcomes returns the bus every subscription publishes to.
func (s *Service) Outcomes() *emitter.Bus {
	return s.bus
}

// Health runs all health checks.
func (s *Service) Health(ctx context.Context) health.HealthReport {
	return s.healthMon.CheckHealth(ctx)
}
