// Package client tracks transaction confirmations and contract events on an
// EVM chain.
//
// # Quick Start
//
//	cfg, _ := client.LoadConfig("config.yaml")
//	c, err := client.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer c.Close(ctx)
//
//	tx := c.TrackTransaction(client.KnownTx(hash))
//	tx.On(client.EventConfirmation, func(msg client.Message) error {
//	    log.Printf("%d confirmations", msg.Data.Confirmations)
//	    return nil
//	})
//	tx.On(client.EventError, func(msg client.Message) error {
//	    log.Printf("%s failed: %v", msg.EventName, msg.Error)
//	    return nil
//	})
//
// Contract events are subscribed by name once the ABI is bound:
//
//	token, err := c.SubscribeContract(address, erc20ABI)
//	token.On("Transfer", func(msg client.Message) error {
//	    from, to, value := msg.Data.Args[0], msg.Data.Args[1], msg.Data.Args[2]
//	    ...
//	})
//
// Each event name holds at most one listener. Register with On or Once,
// remove with Off, and tear everything down with Unsubscribe.
package client

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/chainsub/internal/control"
	"github.com/vietddude/chainsub/internal/core/config"
	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/infra/rpc"
	"github.com/vietddude/chainsub/internal/subscription"
	"github.com/vietddude/chainsub/internal/subscription/contractevent"
	"github.com/vietddude/chainsub/internal/subscription/txconfirm"
)

// =============================================================================
// Re-exported types
// =============================================================================

type (
	Config        = config.AppConfig
	Backend       = rpc.Backend
	EventName     = domain.EventName
	Message       = domain.Message
	Data          = domain.Data
	Receipt       = domain.Receipt
	PendingTx     = domain.PendingTx
	KnownTx       = domain.KnownTx
	PendingTxFunc = domain.PendingTxFunc
	Outcome       = domain.Outcome
	Listener      = subscription.Listener
	Subscription  = subscription.Subscription
	ListenerError = subscription.ListenerError

	// TransactionTracker reports confirmations of one transaction.
	TransactionTracker = txconfirm.Tracker
	// ContractTracker reports decoded events of one contract.
	ContractTracker = contractevent.Tracker
)

const (
	EventConfirmation = domain.EventConfirmation
	EventError        = domain.EventError
)

var (
	ErrReservedName         = subscription.ErrReservedName
	ErrDuplicateListener    = subscription.ErrDuplicateListener
	ErrInvalidTrigger       = subscription.ErrInvalidTrigger
	ErrUnknownEvent         = subscription.ErrUnknownEvent
	ErrListenerExecution    = subscription.ErrListenerExecution
	ErrTransactionDisplaced = subscription.ErrTransactionDisplaced
	ErrTimeout              = subscription.ErrTimeout
)

// LoadConfig reads a YAML config file, expanding environment variables.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// =============================================================================
// Client
// =============================================================================

// Option customizes New.
type Option func(*control.Options)

// WithBackend uses backend instead of dialing network.rpc_url.
func WithBackend(backend Backend) Option {
	return func(o *control.Options) {
		o.Backend = backend
	}
}

// WithLogger sets the logger used by the client and its subscriptions.
func WithLogger(log *slog.Logger) Option {
	return func(o *control.Options) {
		o.Logger = log
	}
}

// Client hands out subscriptions sharing one node connection and block poller.
type Client struct {
	svc *control.Service
}

// New connects to the node and starts block polling.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o control.Options
	for _, opt := range opts {
		opt(&o)
	}

	svc, err := control.NewService(ctx, cfg, o)
	if err != nil {
		return nil, err
	}
	if err := svc.Start(ctx); err != nil {
		_ = svc.Stop(ctx)
		return nil, err
	}
	return &Client{svc: svc}, nil
}

// TrackTransaction subscribes to confirmations of tx.
func (c *Client) TrackTransaction(tx PendingTx) *TransactionTracker {
	return c.svc.TrackTransaction(tx)
}

// SubscribeContract binds abiJSON to the contract at address.
func (c *Client) SubscribeContract(address common.Address, abiJSON string) (*ContractTracker, error) {
	return c.svc.SubscribeContract(address, abiJSON)
}

// Outcomes lists journaled outcomes of a subscription, oldest first.
// It returns nil when no journal is configured.
func (c *Client) Outcomes(ctx context.Context, subscriptionID string, limit int) ([]*Outcome, error) {
	journal := c.svc.Journal()
	if journal == nil {
		return nil, nil
	}
	c.svc.Outcomes().Flush()
	return journal.ListBySubscription(ctx, subscriptionID, limit)
}

// Close stops polling. Subscriptions stop receiving notifications.
func (c *Client) Close(ctx context.Context) error {
	return c.svc.Stop(ctx)
}
