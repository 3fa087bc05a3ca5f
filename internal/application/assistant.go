package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"voice-bridge/internal/domain"
)

// FallbackResponse is spoken when every tier failed.
const FallbackResponse = "Sorry, something went wrong. Please try again."

type Assistant struct {
	hub          Hub
	plans        PlanStore
	executor     *Executor
	matcher      *Matcher
	orchestrator *Orchestrator
	notifier     Notifier
	logger       *slog.Logger
}

func NewAssistant(
	hub Hub,
	plans PlanStore,
	matcher *Matcher,
	orchestrator *Orchestrator,
	notifier Notifier,
	logger *slog.Logger,
) *Assistant {
	if notifier == nil {
		notifier = &NoopNotifier{}
	}
	return &Assistant{
		hub:          hub,
		plans:        plans,
		executor:     NewExecutor(hub),
		matcher:      matcher,
		orchestrator: orchestrator,
		notifier:     notifier,
		logger:       logger,
	}
}

// Handle resolves one utterance and returns the spoken confirmation. Tiers
// are tried in order: plan cache, fast path, model. A failing cache hit or
// fast-path plan falls through to the next tier; only a model failure is
// returned to the caller.
func (a *Assistant) Handle(ctx context.Context, text string) (string, error) {
	key := Normalize(text)
	if key == "" {
		return "", domain.NewValidationError("text", "empty utterance")
	}

	logger := a.logger.With("request_id", uuid.NewString(), "utterance", key)

	if plan, ok := a.plans.Get(ctx, key); ok {
		results, err := a.executor.Execute(ctx, plan)
		if err == nil {
			logger.Info("answered from plan cache", "actions", len(plan.Actions))
			return Render(results, a.hub), nil
		}
		logger.Warn("cached plan failed, discarding", "error", err)
		a.plans.Delete(ctx, key)
	}

	if a.matcher != nil {
		if plan, ok := a.matcher.Match(ctx, key); ok {
			results, err := a.executor.Execute(ctx, plan)
			if err == nil {
				if plan.Cacheable() {
					a.plans.Put(ctx, key, plan)
				}
				logger.Info("answered by fast path", "action", plan.Actions[0].Name, "entity_id", plan.Actions[0].Input.EntityID)
				return Render(results, a.hub), nil
			}
			logger.Warn("fast path plan failed", "error", err)
		}
	}

	if a.orchestrator == nil {
		return "", fmt.Errorf("no model configured for %q", key)
	}

	reply, err := a.orchestrator.Resolve(ctx, key, key)
	if err != nil {
		logger.Error("model resolution failed", "error", err)
		return "", fmt.Errorf("resolving with model: %w", err)
	}
	logger.Info("answered by model")
	return reply, nil
}

// Reply is Handle with failures mapped to FallbackResponse, for surfaces
// that must always say something.
func (a *Assistant) Reply(ctx context.Context, text string) string {
	reply, err := a.Handle(ctx, text)
	if err != nil {
		a.logger.Error("handling command", "text", text, "error", err)
		return FallbackResponse
	}
	return reply
}

// Run consumes commands from source until ctx is cancelled, sending every
// reply through the notifier.
func (a *Assistant) Run(ctx context.Context, source CommandSource, stt SpeechToText) error {
	a.logger.Info("starting command source", "source", source.Name())
	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("starting source: %w", err)
	}
	defer source.Stop()

	a.logger.Info("assistant ready, listening for commands")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := a.processOneCommand(ctx, source, stt); err != nil {
				a.logger.Error("processing command", "error", err)
			}
		}
	}
}

func (a *Assistant) processOneCommand(ctx context.Context, source CommandSource, stt SpeechToText) error {
	data, err := source.NextCommand(ctx)
	if err != nil {
		return fmt.Errorf("getting command: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var text string

	if directText, isText := isTextCommand(data); isText {
		a.logger.Info("received text command directly", "text", directText)
		text = directText
	} else {
		a.logger.Info("received audio", "bytes", len(data))

		text, err = stt.Transcribe(ctx, data)
		if err != nil {
			return fmt.Errorf("transcribing: %w", err)
		}

		a.logger.Info("transcribed", "text", text)
	}

	reply := a.Reply(ctx, text)
	if err := a.notifier.Notify(ctx, reply); err != nil {
		a.logger.Error("notifying reply", "error", err)
	}

	return nil
}

func isTextCommand(data []byte) (string, bool) {
	if len(data) > len(domain.TextCommandPrefix) && string(data[:len(domain.TextCommandPrefix)]) == domain.TextCommandPrefix {
		return string(data[len(domain.TextCommandPrefix):]), true
	}
	return "", false
}
