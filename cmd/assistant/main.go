package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"voice-bridge/config"
	"voice-bridge/internal/infra/homeassistant"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "assistant",
		Short:         "Voice command bridge for Home Assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant and its command source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}

	askCmd := &cobra.Command{
		Use:   "ask <utterance>",
		Short: "Resolve one utterance and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ask(cmd.Context(), configPath, strings.Join(args, " "))
		},
	}

	rootCmd.AddCommand(serveCmd, askCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("assistant failed", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Log)

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	startInventory(ctx, cfg, app.directory)

	source := createSource(cfg, app.assistant, logger)

	logger.Info("starting voice bridge",
		"source", cfg.Audio.Source,
		"llm_provider", cfg.LLM.Provider,
		"catalog", cfg.LLM.Catalog,
	)

	if err := app.assistant.Run(ctx, source, app.stt); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running assistant: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

// startInventory kicks off the inventory warmup and periodic sync without
// waiting on the hub; requests that arrive first fetch on demand.
func startInventory(ctx context.Context, cfg *config.Config, dir *homeassistant.Directory) {
	if cfg.WarmupEnabled() {
		go dir.Warmup(ctx)
	}
	if cfg.HomeAssistant.SyncInterval > 0 {
		dir.StartPeriodicRefresh(ctx, cfg.HomeAssistant.SyncInterval)
	}
}

func ask(ctx context.Context, configPath, utterance string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Log)

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Println(app.assistant.Reply(ctx, utterance))
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
