package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/vietddude/chainsub/internal/core/domain"
)

var (
	contractAddress string
	abiPath         string
	eventNames      []string
)

var watchEventsCmd = &cobra.Command{
	Use:   "watch-events",
	Short: "Stream decoded events emitted by a contract",
	Run:   runWatchEvents,
}

func init() {
	watchEventsCmd.Flags().StringVar(&contractAddress, "address", "", "contract address")
	watchEventsCmd.Flags().StringVar(&abiPath, "abi", "", "path to the contract ABI JSON")
	watchEventsCmd.Flags().StringSliceVar(&eventNames, "event", nil, "events to watch (default all declared)")
	_ = watchEventsCmd.MarkFlagRequired("address")
	_ = watchEventsCmd.MarkFlagRequired("abi")
	rootCmd.AddCommand(watchEventsCmd)
}

func runWatchEvents(cmd *cobra.Command, args []string) {
	if !common.IsHexAddress(contractAddress) {
		slog.Error("Bad argument", "address", contractAddress)
		os.Exit(1)
	}
	abiJSON, err := os.ReadFile(abiPath)
	if err != nil {
		slog.Error("Failed to read ABI", "path", abiPath, "error", err)
		os.Exit(1)
	}

	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := notifySignals()
	app := startService(ctx, cfg)
	defer stopService(app)

	tracker, err := app.SubscribeContract(common.HexToAddress(contractAddress), string(abiJSON))
	if err != nil {
		slog.Error("Failed to load contract", "error", err)
		return
	}
	defer tracker.Unsubscribe()

	if len(eventNames) == 0 {
		eventNames = tracker.Events()
	}

	if err := tracker.On(domain.EventError, func(msg domain.Message) error {
		slog.Error("Subscription error", "event", msg.EventName, "error", msg.Error)
		return nil
	}); err != nil {
		slog.Error("Failed to subscribe", "event", domain.EventError, "error", err)
		return
	}

	for _, name := range eventNames {
		if err := tracker.On(domain.EventName(name), logEvent); err != nil {
			slog.Error("Failed to subscribe", "event", name, "error", err)
			return
		}
	}

	slog.Info("Watching contract", "address", contractAddress, "events", eventNames, "subscription", tracker.ID())

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
}

func logEvent(msg domain.Message) error {
	l := msg.Data.Log
	slog.Info("Event",
		"event", msg.EventName,
		"block", l.BlockNumber,
		"tx", l.TxHash.Hex(),
		"index", l.Index,
		"args", msg.Data.Args,
	)
	return nil
}
