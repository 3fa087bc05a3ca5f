package domain

import "strings"

// TextCommandPrefix is the marker used to indicate text commands (vs audio)
const TextCommandPrefix = "__TEXT__:"

type ActionName string

const (
	ActionReadState    ActionName = "read_state"
	ActionCallService  ActionName = "call_service"
	ActionFindEntities ActionName = "find_entities"
)

const (
	OperationTurnOn  = "turn_on"
	OperationTurnOff = "turn_off"
	OperationToggle  = "toggle"
)

// PlanVersion tags persisted plans. Bump it whenever Action or ActionInput
// change shape so that stale cached plans are ignored.
const PlanVersion = 1

// ActionInput carries the payload of an Action. Which fields are meaningful
// depends on the action name:
//   - read_state: EntityID
//   - call_service: Category, Operation, optional EntityID/AreaID, optional Data
//   - find_entities: Category, optional Search
type ActionInput struct {
	EntityID  string         `json:"entity_id,omitempty"`
	Category  string         `json:"category,omitempty"`
	Operation string         `json:"operation,omitempty"`
	AreaID    string         `json:"area_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Search    string         `json:"search,omitempty"`
}

type Action struct {
	Name  ActionName  `json:"name"`
	Input ActionInput `json:"input"`
}

// Cacheable reports whether replaying the action verbatim is safe and
// deterministic.
func (a Action) Cacheable() bool {
	switch a.Name {
	case ActionReadState:
		return isSingleEntityID(a.Input.EntityID)
	case ActionCallService:
		if a.Input.Operation == "" || a.Input.Operation == OperationToggle {
			return false
		}
		if a.Input.AreaID != "" {
			return false
		}
		return isSingleEntityID(a.Input.EntityID)
	default:
		return false
	}
}

// IsRead reports whether the action only reads hub state.
func (a Action) IsRead() bool {
	return a.Name == ActionReadState
}

type Plan struct {
	Version int      `json:"version"`
	Actions []Action `json:"actions"`
}

func NewPlan(actions ...Action) *Plan {
	return &Plan{Version: PlanVersion, Actions: actions}
}

// Clone returns a deep copy of p that shares no slices or maps with it.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := &Plan{Version: p.Version}
	if p.Actions != nil {
		out.Actions = make([]Action, len(p.Actions))
		for i, a := range p.Actions {
			a.Input.Data = cloneMap(a.Input.Data)
			out.Actions[i] = a
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Cacheable reports whether every action of a non-empty plan is cacheable.
func (p *Plan) Cacheable() bool {
	if p == nil || len(p.Actions) == 0 {
		return false
	}
	for _, a := range p.Actions {
		if !a.Cacheable() {
			return false
		}
	}
	return true
}

func isSingleEntityID(id string) bool {
	if id == "" || strings.ContainsAny(id, ", \t") {
		return false
	}
	category, name, ok := strings.Cut(id, ".")
	return ok && category != "" && name != ""
}
