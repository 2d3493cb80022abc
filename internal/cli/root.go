package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/chainsub/internal/control"
	"github.com/vietddude/chainsub/internal/core/config"
)

const shutdownTimeout = 15 * time.Second

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "chainsub",
	Short: "Chain subscription service",
	Long: `Chainsub tracks transaction confirmations and contract events on an EVM chain,
serving health and metrics endpoints while it runs.`,
	Run: runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads the config file and installs the process logger.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)
	return cfg
}

func setupLogging(cfg config.LoggingConfig) {
	slogLevel := slog.LevelInfo
	if isDebug {
		slogLevel = slog.LevelDebug
	} else if err := slogLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
		slogLevel = slog.LevelInfo
	}

	if cfg.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

// startService connects and starts the service, exiting the process on failure.
func startService(ctx context.Context, cfg *config.AppConfig) *control.Service {
	app, err := control.NewService(ctx, cfg, control.Options{})
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start service", "error", err)
		os.Exit(1)
	}
	return app
}

func stopService(app *control.Service) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}

func notifySignals() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := notifySignals()
	app := startService(ctx, cfg)

	slog.Info("Service started", "config", cfgPath, "network", cfg.Network.Name)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	stopService(app)
}
