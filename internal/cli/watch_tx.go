package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/vietddude/chainsub/internal/core/domain"
	"github.com/vietddude/chainsub/internal/subscription"
)

var (
	txConfirmations uint64
	txTimeout       time.Duration
)

var watchTxCmd = &cobra.Command{
	Use:   "watch-tx <tx-hash>",
	Short: "Report confirmations of a transaction until it reaches the wanted depth",
	Args:  cobra.ExactArgs(1),
	Run:   runWatchTx,
}

func init() {
	watchTxCmd.Flags().Uint64Var(&txConfirmations, "confirmations", 1, "confirmations to wait for")
	watchTxCmd.Flags().DurationVar(&txTimeout, "timeout", 0, "override subscription.timeout")
	rootCmd.AddCommand(watchTxCmd)
}

func parseTxHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid tx hash %q: %w", s, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid tx hash %q: want %d bytes, got %d", s, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func runWatchTx(cmd *cobra.Command, args []string) {
	hash, err := parseTxHash(args[0])
	if err != nil {
		slog.Error("Bad argument", "error", err)
		os.Exit(1)
	}
	if txConfirmations == 0 {
		txConfirmations = 1
	}

	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := notifySignals()
	app := startService(ctx, cfg)
	defer stopService(app)

	tracker := app.TrackTransaction(domain.KnownTx(hash))
	if txTimeout > 0 {
		tracker.SetEventsTimeout(txTimeout)
	}

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	if err := tracker.On(domain.EventError, func(msg domain.Message) error {
		slog.Error("Subscription error", "tx", hash.Hex(), "event", msg.EventName, "error", msg.Error)
		if errors.Is(msg.Error, subscription.ErrTimeout) || errors.Is(msg.Error, subscription.ErrTransactionDisplaced) {
			finish(msg.Error)
		}
		return nil
	}); err != nil {
		slog.Error("Failed to subscribe", "event", domain.EventError, "error", err)
		tracker.Unsubscribe()
		stopService(app)
		os.Exit(1)
	}

	if err := tracker.On(domain.EventConfirmation, func(msg domain.Message) error {
		r := msg.Data.Receipt
		slog.Info("Confirmation",
			"tx", hash.Hex(),
			"block", r.BlockNumber,
			"status", r.Status,
			"confirmations", msg.Data.Confirmations,
			"target", txConfirmations,
		)
		if msg.Data.Confirmations >= txConfirmations {
			finish(nil)
		}
		return nil
	}); err != nil {
		slog.Error("Failed to subscribe", "event", domain.EventConfirmation, "error", err)
		tracker.Unsubscribe()
		stopService(app)
		os.Exit(1)
	}

	slog.Info("Watching transaction", "tx", hash.Hex(), "subscription", tracker.ID(), "timeout", tracker.EventsTimeout())

	var result error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	case result = <-done:
	}
	tracker.Unsubscribe()

	if result != nil {
		stopService(app)
		os.Exit(2)
	}
}
