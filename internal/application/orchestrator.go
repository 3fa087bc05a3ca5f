package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"voice-bridge/internal/domain"
)

const DefaultMaxRounds = 8

// Orchestrator drives the tool-use conversation with the model until it
// produces a final answer.
type Orchestrator struct {
	model     ChatModel
	catalog   *Catalog
	executor  *Executor
	plans     PlanStore
	maxRounds int
	logger    *slog.Logger
}

func NewOrchestrator(model ChatModel, catalog *Catalog, executor *Executor, plans PlanStore, maxRounds int, logger *slog.Logger) *Orchestrator {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Orchestrator{
		model:     model,
		catalog:   catalog,
		executor:  executor,
		plans:     plans,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// Resolve answers utterance through the model. Concrete cacheable actions
// the model performed along the way are stored as a plan under key.
func (o *Orchestrator) Resolve(ctx context.Context, utterance, key string) (string, error) {
	messages := []ChatMessage{{Role: RoleUser, Text: utterance}}
	var performed []domain.Action

	for round := 1; round <= o.maxRounds; round++ {
		o.logger.Debug("calling model", "round", round, "messages", len(messages), "catalog", o.catalog.Name)

		resp, err := o.model.Next(ctx, ChatRequest{
			System:   o.catalog.System,
			Tools:    o.catalog.Specs(),
			Messages: messages,
		})
		if err != nil {
			return "", fmt.Errorf("model round %d: %w", round, err)
		}

		if len(resp.ToolCalls) == 0 {
			o.remember(ctx, key, performed)
			if resp.Text == "" {
				return renderDone, nil
			}
			return resp.Text, nil
		}

		results := make([]ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			result, action, err := o.invoke(ctx, call)
			if err != nil {
				o.logger.Warn("tool call failed", "tool", call.Name, "error", err)
				results = append(results, ToolResult{CallID: call.ID, Name: call.Name, Content: err.Error(), IsError: true})
				continue
			}
			performed = append(performed, action)
			results = append(results, ToolResult{CallID: call.ID, Name: call.Name, Content: result})
		}

		messages = append(messages,
			ChatMessage{Role: RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls},
			ChatMessage{Role: RoleUser, ToolResults: results},
		)
	}

	return "", fmt.Errorf("after %d rounds: %w", o.maxRounds, domain.ErrTooManyRounds)
}

func (o *Orchestrator) invoke(ctx context.Context, call ToolCall) (string, domain.Action, error) {
	action, err := o.catalog.Decode(call)
	if err != nil {
		return "", domain.Action{}, err
	}

	o.logger.Info("executing tool", "tool", call.Name, "action", action.Name, "entity_id", action.Input.EntityID)

	res, err := o.executor.Run(ctx, action)
	if err != nil {
		return "", action, err
	}

	out, err := json.Marshal(res)
	if err != nil {
		return "", action, fmt.Errorf("encoding tool result: %w", err)
	}
	return string(out), action, nil
}

func (o *Orchestrator) remember(ctx context.Context, key string, performed []domain.Action) {
	if o.plans == nil || key == "" {
		return
	}
	var cacheable []domain.Action
	for _, a := range performed {
		if a.Cacheable() {
			cacheable = append(cacheable, a)
		}
	}
	if len(cacheable) == 0 {
		return
	}
	o.plans.Put(ctx, key, domain.NewPlan(cacheable...))
	o.logger.Debug("cached model plan", "key", key, "actions", len(cacheable))
}
