package application

import (
	"context"

	"voice-bridge/internal/domain"
)

// ActionRunner executes concrete actions against the hub.
type ActionRunner interface {
	GetState(ctx context.Context, entityID string) (*domain.Entity, error)
	CallService(ctx context.Context, category, operation string, target domain.Target, data map[string]any) (*domain.ServiceResult, error)
	FindEntities(ctx context.Context, category, search string) ([]domain.EntityView, error)
}

// EntityResolver fuzzily maps a phrase to an entity id. An empty id with a
// nil error means nothing scored at least minScore.
type EntityResolver interface {
	ResolveEntityID(ctx context.Context, categories []string, search string, minScore int) (string, error)
}

// SummaryLookup is a pure cache lookup; it never contacts the hub.
type SummaryLookup interface {
	GetSummary(entityID string) *domain.EntitySummary
}

type Hub interface {
	ActionRunner
	EntityResolver
	SummaryLookup
}

// PlanStore memoizes resolved plans keyed by normalized utterance.
type PlanStore interface {
	Get(ctx context.Context, key string) (*domain.Plan, bool)
	Put(ctx context.Context, key string, plan *domain.Plan)
	Delete(ctx context.Context, key string)
}
