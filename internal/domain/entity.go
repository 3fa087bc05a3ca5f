package domain

import "strings"

// Sentinel states reported by the hub for entities it cannot currently read.
const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

// Entity is a single controllable or observable device known to the hub.
type Entity struct {
	ID          string         `json:"entity_id"`
	DisplayName string         `json:"display_name"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// Category returns the id prefix, e.g. "light" for "light.kitchen".
func (e Entity) Category() string {
	return CategoryOf(e.ID)
}

// Unit returns the unit_of_measurement attribute, or "" when absent.
func (e Entity) Unit() string {
	unit, _ := e.Attributes["unit_of_measurement"].(string)
	return unit
}

// Name returns the display name, falling back to the id.
func (e Entity) Name() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.ID
}

// Unavailable reports whether the hub flagged the entity's state as unknown.
func (e Entity) Unavailable() bool {
	return e.State == StateUnknown || e.State == StateUnavailable
}

// EntityView is the projection returned by discovery.
type EntityView struct {
	ID          string `json:"entity_id"`
	DisplayName string `json:"name"`
	State       string `json:"state"`
}

func (e Entity) View() EntityView {
	return EntityView{ID: e.ID, DisplayName: e.DisplayName, State: e.State}
}

// EntitySummary is the projection used when rendering confirmations.
type EntitySummary struct {
	ID          string         `json:"entity_id"`
	DisplayName string         `json:"name"`
	Category    string         `json:"category"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// ServiceResult is the outcome of a service call.
type ServiceResult struct {
	Category  string   `json:"category"`
	Operation string   `json:"operation"`
	EntityID  string   `json:"entity_id,omitempty"`
	Changed   []Entity `json:"changed,omitempty"`
}

// Target identifies what a service call acts on.
type Target struct {
	EntityID string
	AreaID   string
}

func CategoryOf(entityID string) string {
	category, _, _ := strings.Cut(entityID, ".")
	return category
}
