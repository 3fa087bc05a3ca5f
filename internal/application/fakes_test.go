package application_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"voice-bridge/internal/application"
	"voice-bridge/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeHub is an in-memory hub. Resolution is a lookup table from search
// phrase to entity id.
type fakeHub struct {
	mu        sync.Mutex
	entities  map[string]domain.Entity
	resolve   map[string]string
	callErr   error
	readErr   map[string]error
	calls     []string
	reads     []string
	resolves  int
	discovers int
}

func newFakeHub(entities ...domain.Entity) *fakeHub {
	h := &fakeHub{
		entities: make(map[string]domain.Entity),
		resolve:  make(map[string]string),
		readErr:  make(map[string]error),
	}
	for _, e := range entities {
		h.entities[e.ID] = e
	}
	return h
}

func (h *fakeHub) GetState(_ context.Context, entityID string) (*domain.Entity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reads = append(h.reads, entityID)
	if err := h.readErr[entityID]; err != nil {
		return nil, err
	}
	e, ok := h.entities[entityID]
	if !ok {
		return nil, &domain.NotFoundError{EntityID: entityID}
	}
	return &e, nil
}

func (h *fakeHub) CallService(_ context.Context, category, operation string, target domain.Target, _ map[string]any) (*domain.ServiceResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, fmt.Sprintf("%s.%s %s", category, operation, target.EntityID))
	if h.callErr != nil {
		return nil, h.callErr
	}
	if target.EntityID != "" {
		if _, ok := h.entities[target.EntityID]; !ok {
			return nil, &domain.NotFoundError{EntityID: target.EntityID}
		}
	}
	return &domain.ServiceResult{Category: category, Operation: operation, EntityID: target.EntityID}, nil
}

func (h *fakeHub) FindEntities(_ context.Context, category, _ string) ([]domain.EntityView, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.discovers++
	var out []domain.EntityView
	for _, e := range h.entities {
		if e.Category() == category {
			out = append(out, e.View())
		}
	}
	return out, nil
}

func (h *fakeHub) ResolveEntityID(_ context.Context, _ []string, search string, _ int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolves++
	return h.resolve[search], nil
}

func (h *fakeHub) GetSummary(entityID string) *domain.EntitySummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entities[entityID]
	if !ok {
		return nil
	}
	return &domain.EntitySummary{ID: e.ID, DisplayName: e.DisplayName, Category: e.Category(), Attributes: e.Attributes}
}

func (h *fakeHub) callLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// scriptedModel replays canned turns and records every request.
type scriptedModel struct {
	mu       sync.Mutex
	turns    []*application.ChatResponse
	err      error
	requests []application.ChatRequest
}

func (m *scriptedModel) Next(_ context.Context, req application.ChatRequest) (*application.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.requests) > len(m.turns) {
		return nil, fmt.Errorf("unexpected model call %d", len(m.requests))
	}
	return m.turns[len(m.requests)-1], nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// mapStore is a PlanStore without eviction or expiry.
type mapStore struct {
	mu      sync.Mutex
	plans   map[string]*domain.Plan
	deletes []string
}

func newMapStore() *mapStore {
	return &mapStore{plans: make(map[string]*domain.Plan)}
}

func (s *mapStore) Get(_ context.Context, key string) (*domain.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[key]
	return p, ok
}

func (s *mapStore) Put(_ context.Context, key string, plan *domain.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[key] = plan
}

func (s *mapStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, key)
	s.deletes = append(s.deletes, key)
}

var (
	poolPump = domain.Entity{
		ID:          "switch.pool_pump",
		DisplayName: "Pool Pump",
		State:       "off",
	}
	poolTemperature = domain.Entity{
		ID:          "sensor.pool_temperature",
		DisplayName: "Pool Temperature",
		State:       "82.1",
		Attributes:  map[string]any{"unit_of_measurement": "°F"},
	}
	bedroomLight = domain.Entity{
		ID:          "light.bedroom",
		DisplayName: "Bedroom Light",
		State:       "on",
	}
	livingRoomLights = domain.Entity{
		ID:          "light.living_room",
		DisplayName: "Living Room Lights",
		State:       "on",
	}
)

func turnOn(id string) domain.Action {
	return domain.Action{Name: domain.ActionCallService, Input: domain.ActionInput{
		Category: domain.CategoryOf(id), Operation: domain.OperationTurnOn, EntityID: id,
	}}
}

func turnOff(id string) domain.Action {
	return domain.Action{Name: domain.ActionCallService, Input: domain.ActionInput{
		Category: domain.CategoryOf(id), Operation: domain.OperationTurnOff, EntityID: id,
	}}
}

func readState(id string) domain.Action {
	return domain.Action{Name: domain.ActionReadState, Input: domain.ActionInput{EntityID: id}}
}
