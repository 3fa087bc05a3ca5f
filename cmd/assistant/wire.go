package main

import (
	"context"
	"fmt"
	"log/slog"

	"voice-bridge/config"
	"voice-bridge/internal/application"
	"voice-bridge/internal/infra/anthropic"
	"voice-bridge/internal/infra/audio"
	"voice-bridge/internal/infra/gemini"
	"voice-bridge/internal/infra/homeassistant"
	"voice-bridge/internal/infra/openai"
	"voice-bridge/internal/infra/plancache"
	"voice-bridge/internal/infra/pushover"
)

type app struct {
	assistant *application.Assistant
	directory *homeassistant.Directory
	stt       application.SpeechToText
	closers   []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	client := homeassistant.NewClient(cfg.HomeAssistant.BaseURL, cfg.HomeAssistant.Token, cfg.HomeAssistant.RequestTimeout, logger.With("component", "homeassistant"))
	a.directory = homeassistant.NewDirectory(client, homeassistant.DirectoryConfig{
		TTL:            cfg.HomeAssistant.InventoryTTL,
		RequestTimeout: cfg.HomeAssistant.RequestTimeout,
	}, logger.With("component", "directory"))

	plans, err := buildPlanStore(ctx, cfg.PlanCache, logger, a)
	if err != nil {
		return nil, err
	}

	rules := application.DefaultThresholdRules()
	if cfg.FastPath.Rules != nil {
		rules = make([]application.ThresholdRule, 0, len(cfg.FastPath.Rules))
		for _, r := range cfg.FastPath.Rules {
			rules = append(rules, application.ThresholdRule{When: r.When, MinScore: r.MinScore})
		}
	}
	thresholds, err := application.NewThresholds(cfg.FastPath.DefaultMinScore, rules, logger)
	if err != nil {
		return nil, fmt.Errorf("compiling fast path rules: %w", err)
	}
	matcher := application.NewMatcher(a.directory, thresholds, logger.With("component", "fastpath"))

	orchestrator, err := buildOrchestrator(ctx, cfg.LLM, a.directory, plans, logger)
	if err != nil {
		return nil, err
	}

	var notifier application.Notifier = &application.LogNotifier{Logger: logger}
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(pushover.Config{
			Token:   cfg.Pushover.Token,
			UserKey: cfg.Pushover.UserKey,
			Device:  cfg.Pushover.Device,
		})
	}

	a.stt = application.TextOnly{}
	if cfg.OpenAI.APIKey != "" {
		a.stt = openai.NewWhisperClient(cfg.OpenAI.APIKey, cfg.OpenAI.Language)
	}

	a.assistant = application.NewAssistant(a.directory, plans, matcher, orchestrator, notifier, logger)
	return a, nil
}

func buildPlanStore(ctx context.Context, cfg config.PlanCacheConfig, logger *slog.Logger, a *app) (application.PlanStore, error) {
	mem, err := plancache.NewLRU(cfg.MaxSize, cfg.TTL)
	if err != nil {
		return nil, err
	}
	if cfg.RedisURL == "" {
		return mem, nil
	}

	rdb, err := plancache.Dial(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis plan cache unavailable, using memory only", "error", err)
		return mem, nil
	}
	a.closers = append(a.closers, rdb.Close)

	remote := plancache.NewRedis(rdb, cfg.TTL, logger.With("component", "plancache"))
	return plancache.NewTiered(mem, remote), nil
}

func buildOrchestrator(ctx context.Context, cfg config.LLMConfig, hub application.Hub, plans application.PlanStore, logger *slog.Logger) (*application.Orchestrator, error) {
	var model application.ChatModel
	switch cfg.Provider {
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("llm.anthropic.api_key is required for provider anthropic")
		}
		if cfg.Anthropic.BaseURL != "" {
			model = anthropic.NewClaudeClientWithURL(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.BaseURL)
		} else {
			model = anthropic.NewClaudeClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
		}
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.BaseURL)
		if err != nil {
			return nil, err
		}
		model = client
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	catalog, err := application.CatalogByName(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	executor := application.NewExecutor(hub)
	return application.NewOrchestrator(model, catalog, executor, plans, cfg.MaxRounds, logger.With("component", "orchestrator")), nil
}

func createSource(cfg *config.Config, handler audio.CommandHandler, logger *slog.Logger) application.CommandSource {
	switch cfg.Audio.Source {
	case "file":
		return audio.NewFileSource(cfg.Audio.FileDir, logger)
	case "microphone":
		format := application.DefaultAudioFormat()
		format.SampleRate = cfg.Audio.SampleRate
		return audio.NewMicrophoneSource(format, logger)
	default:
		return audio.NewHTTPSource(audio.HTTPConfig{
			Addr:      cfg.Server.HTTPAddr,
			AuthToken: cfg.Server.AuthToken,
			RateLimit: cfg.Server.RateLimit,
		}, handler, logger)
	}
}
