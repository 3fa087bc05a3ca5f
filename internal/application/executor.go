package application

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"voice-bridge/internal/domain"
)

const renderDone = "Done."

// StepResult pairs an executed action with what the hub returned for it:
// *domain.Entity for reads, *domain.ServiceResult for service calls and
// []domain.EntityView for discovery.
type StepResult struct {
	Action domain.Action
	Result any
}

type Executor struct {
	runner ActionRunner
}

func NewExecutor(runner ActionRunner) *Executor {
	return &Executor{runner: runner}
}

// Execute runs non-read actions one by one in plan order, then all reads
// concurrently. Results hold the non-reads followed by the reads, each group
// in plan order. The first failure aborts the whole plan.
func (e *Executor) Execute(ctx context.Context, plan *domain.Plan) ([]StepResult, error) {
	if plan == nil || len(plan.Actions) == 0 {
		return nil, domain.NewValidationError("plan", "no actions")
	}

	var writes, reads []domain.Action
	for _, a := range plan.Actions {
		if a.IsRead() {
			reads = append(reads, a)
		} else {
			writes = append(writes, a)
		}
	}

	results := make([]StepResult, len(writes)+len(reads))
	for i, a := range writes {
		res, err := e.Run(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("executing %s: %w", a.Name, err)
		}
		results[i] = StepResult{Action: a, Result: res}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range reads {
		slot := len(writes) + i
		g.Go(func() error {
			res, err := e.Run(gctx, a)
			if err != nil {
				return fmt.Errorf("executing %s: %w", a.Name, err)
			}
			results[slot] = StepResult{Action: a, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// Run executes a single action.
func (e *Executor) Run(ctx context.Context, a domain.Action) (any, error) {
	in := a.Input
	switch a.Name {
	case domain.ActionReadState:
		if in.EntityID == "" {
			return nil, domain.NewValidationError("entity_id", "required")
		}
		return e.runner.GetState(ctx, in.EntityID)
	case domain.ActionCallService:
		if in.Category == "" || in.Operation == "" {
			return nil, domain.NewValidationError("service", "category and operation are required")
		}
		target := domain.Target{EntityID: in.EntityID, AreaID: in.AreaID}
		return e.runner.CallService(ctx, in.Category, in.Operation, target, in.Data)
	case domain.ActionFindEntities:
		if in.Category == "" {
			return nil, domain.NewValidationError("category", "required")
		}
		return e.runner.FindEntities(ctx, in.Category, in.Search)
	default:
		return nil, domain.NewValidationError("action", fmt.Sprintf("unsupported action %q", a.Name))
	}
}

// Render produces the spoken confirmation from the last result only.
func Render(results []StepResult, summaries SummaryLookup) string {
	if len(results) == 0 {
		return renderDone
	}
	last := results[len(results)-1]

	switch last.Action.Name {
	case domain.ActionCallService:
		in := last.Action.Input
		if in.EntityID == "" || !last.Action.Cacheable() {
			return renderDone
		}
		var verb string
		switch in.Operation {
		case domain.OperationTurnOn:
			verb = "on"
		case domain.OperationTurnOff:
			verb = "off"
		default:
			return renderDone
		}
		if summaries == nil {
			return renderDone
		}
		summary := summaries.GetSummary(in.EntityID)
		if summary == nil {
			return renderDone
		}
		name := summary.DisplayName
		if name == "" {
			name = summary.ID
		}
		return fmt.Sprintf("Turned %s %s.", verb, name)

	case domain.ActionReadState:
		entity, ok := last.Result.(*domain.Entity)
		if !ok || entity == nil {
			return renderDone
		}
		return fmt.Sprintf("%s is %s%s.", entity.Name(), entity.State, entity.Unit())
	}

	return renderDone
}
