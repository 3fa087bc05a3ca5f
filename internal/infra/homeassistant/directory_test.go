package homeassistant_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-bridge/internal/domain"
	"voice-bridge/internal/infra/homeassistant"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFetcher serves a mutable inventory and counts bulk fetches. When gate
// is set, FetchStates blocks until it is closed.
type fakeFetcher struct {
	mu       sync.Mutex
	entities []domain.Entity
	extra    map[string]domain.Entity
	fetchErr error
	gate     chan struct{}
	entered  chan struct{}
	fetches  atomic.Int32
	points   atomic.Int32
	calls    []map[string]any
}

func (f *fakeFetcher) FetchStates(ctx context.Context) ([]domain.Entity, error) {
	f.fetches.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]domain.Entity(nil), f.entities...), nil
}

func (f *fakeFetcher) FetchState(_ context.Context, entityID string) (*domain.Entity, error) {
	f.points.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.extra[entityID]; ok {
		return &e, nil
	}
	return nil, &domain.NotFoundError{EntityID: entityID}
}

func (f *fakeFetcher) CallService(_ context.Context, category, operation string, payload map[string]any) ([]domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload["_service"] = category + "." + operation
	f.calls = append(f.calls, payload)
	return nil, nil
}

func (f *fakeFetcher) set(entities ...domain.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities = entities
}

var inventory = []domain.Entity{
	{ID: "switch.pool_pump", DisplayName: "Pool Pump", State: "off"},
	{ID: "sensor.pool_temperature", DisplayName: "Pool Temperature", State: "82.1", Attributes: map[string]any{"unit_of_measurement": "°F"}},
	{ID: "light.bedroom", DisplayName: "Bedroom Light", State: "on"},
	{ID: "light.kitchen", DisplayName: "Kitchen", State: "off"},
	{ID: "switch.coffee_maker", DisplayName: "Coffee Maker", State: "off"},
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newDirectory(f *fakeFetcher, clk *clock) *homeassistant.Directory {
	cfg := homeassistant.DirectoryConfig{TTL: time.Minute, RequestTimeout: time.Second, WarmupBackoff: time.Millisecond}
	if clk != nil {
		cfg.Now = clk.Now
	}
	return homeassistant.NewDirectory(f, cfg, discardLogger())
}

func TestScoreMatch(t *testing.T) {
	tokens := map[string]struct{}{"pool": {}, "pump": {}}
	assert.Equal(t, 8, homeassistant.ScoreMatch([]string{"pool", "pump"}, tokens, "switch.pool_pump"))
	assert.Equal(t, 0, homeassistant.ScoreMatch([]string{"garage"}, tokens, "switch.pool_pump"))
	assert.Equal(t, 1, homeassistant.ScoreMatch([]string{"switch"}, tokens, "switch.pool_pump"))
}

func TestDirectory_ResolveEntityID(t *testing.T) {
	f := &fakeFetcher{entities: inventory}
	d := newDirectory(f, nil)
	ctx := context.Background()

	id, err := d.ResolveEntityID(ctx, []string{"light", "switch"}, "pool pump", 8)
	require.NoError(t, err)
	assert.Equal(t, "switch.pool_pump", id, "two tokens, two id substrings and the phrase bonus score 10")

	id, err = d.ResolveEntityID(ctx, []string{"light", "switch"}, "pool pump", 11)
	require.NoError(t, err)
	assert.Empty(t, id, "below threshold")

	id, err = d.ResolveEntityID(ctx, []string{"light"}, "pool pump", 1)
	require.NoError(t, err)
	assert.Empty(t, id, "categories restrict the search")

	id, err = d.ResolveEntityID(ctx, []string{"light", "switch"}, "garage door", 0)
	require.NoError(t, err)
	assert.Empty(t, id, "zero-score entities are never candidates")

	assert.EqualValues(t, 1, f.fetches.Load(), "inventory reused within the TTL")
}

func TestDirectory_ResolvePrefersAvailableEntities(t *testing.T) {
	f := &fakeFetcher{entities: []domain.Entity{
		{ID: "light.porch", DisplayName: "Porch Light", State: domain.StateUnavailable},
		{ID: "light.porch_2", DisplayName: "Porch Light", State: "off"},
	}}
	d := newDirectory(f, nil)

	id, err := d.ResolveEntityID(context.Background(), []string{"light"}, "porch light", 4)
	require.NoError(t, err)
	assert.Equal(t, "light.porch_2", id)

	f.set(domain.Entity{ID: "light.porch", DisplayName: "Porch Light", State: domain.StateUnknown})
	require.NoError(t, d.Refresh(context.Background(), true))

	id, err = d.ResolveEntityID(context.Background(), []string{"light"}, "porch light", -100)
	require.NoError(t, err)
	assert.Equal(t, "light.porch", id, "unavailable entities can still win")
}

func TestDirectory_ResolveTiesKeepHubOrder(t *testing.T) {
	f := &fakeFetcher{entities: []domain.Entity{
		{ID: "light.lamp_a", DisplayName: "Lamp", State: "on"},
		{ID: "light.lamp_b", DisplayName: "Lamp", State: "on"},
	}}
	d := newDirectory(f, nil)

	id, err := d.ResolveEntityID(context.Background(), []string{"light"}, "lamp", 1)
	require.NoError(t, err)
	assert.Equal(t, "light.lamp_a", id)
}

func TestDirectory_ConcurrentForcedRefreshesShareOneFetch(t *testing.T) {
	f := &fakeFetcher{entities: inventory, gate: make(chan struct{}), entered: make(chan struct{}, 10)}
	d := newDirectory(f, nil)
	ctx := context.Background()

	errs := make(chan error, 3)
	go func() { errs <- d.Refresh(ctx, true) }()
	<-f.entered

	go func() { errs <- d.Refresh(ctx, true) }()
	go func() { errs <- d.Refresh(ctx, true) }()
	time.Sleep(50 * time.Millisecond)
	close(f.gate)

	for range 3 {
		require.NoError(t, <-errs)
	}
	assert.EqualValues(t, 1, f.fetches.Load())
}

func TestDirectory_RefreshHonoursTTL(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{entities: inventory}
	d := newDirectory(f, clk)
	ctx := context.Background()

	require.NoError(t, d.EnsureFresh(ctx))
	require.NoError(t, d.EnsureFresh(ctx))
	assert.EqualValues(t, 1, f.fetches.Load())

	clk.Advance(2 * time.Minute)
	require.NoError(t, d.EnsureFresh(ctx))
	assert.EqualValues(t, 2, f.fetches.Load())
}

func TestDirectory_FailedRefreshKeepsSnapshot(t *testing.T) {
	f := &fakeFetcher{entities: inventory}
	d := newDirectory(f, nil)
	ctx := context.Background()

	require.NoError(t, d.Refresh(ctx, true))

	f.mu.Lock()
	f.fetchErr = errors.New("hub down")
	f.mu.Unlock()

	err := d.Refresh(ctx, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hub down")

	summary := d.GetSummary("light.bedroom")
	require.NotNil(t, summary)
	assert.Equal(t, "Bedroom Light", summary.DisplayName)
	assert.Equal(t, "light", summary.Category)
}

func TestDirectory_GetState(t *testing.T) {
	f := &fakeFetcher{
		entities: inventory,
		extra:    map[string]domain.Entity{"sensor.hidden": {ID: "sensor.hidden", DisplayName: "Hidden", State: "1"}},
	}
	d := newDirectory(f, nil)
	ctx := context.Background()

	e, err := d.GetState(ctx, "sensor.pool_temperature")
	require.NoError(t, err)
	assert.Equal(t, "82.1", e.State)
	assert.EqualValues(t, 1, f.fetches.Load())

	e, err = d.GetState(ctx, "sensor.hidden")
	require.NoError(t, err)
	assert.Equal(t, "Hidden", e.DisplayName)
	assert.EqualValues(t, 2, f.fetches.Load(), "a miss forces one refresh")
	assert.EqualValues(t, 1, f.points.Load())

	_, err = d.GetState(ctx, "sensor.nowhere")
	assert.True(t, domain.IsNotFound(err))
}

func TestDirectory_GetStateSeesNewEntityAfterForcedRefresh(t *testing.T) {
	f := &fakeFetcher{entities: inventory}
	d := newDirectory(f, nil)
	ctx := context.Background()
	require.NoError(t, d.EnsureFresh(ctx))

	added := domain.Entity{ID: "fan.office", DisplayName: "Office Fan", State: "off"}
	f.set(append(append([]domain.Entity(nil), inventory...), added)...)

	e, err := d.GetState(ctx, "fan.office")
	require.NoError(t, err)
	assert.Equal(t, "Office Fan", e.DisplayName)
	assert.Zero(t, f.points.Load())
}

func TestDirectory_CallService(t *testing.T) {
	f := &fakeFetcher{entities: inventory}
	d := newDirectory(f, nil)
	ctx := context.Background()

	res, err := d.CallService(ctx, "light", "turn_on", domain.Target{EntityID: "light.bedroom"}, map[string]any{"brightness": 200})
	require.NoError(t, err)
	assert.Equal(t, "light.bedroom", res.EntityID)

	require.Len(t, f.calls, 1)
	assert.Equal(t, map[string]any{"_service": "light.turn_on", "entity_id": "light.bedroom", "brightness": 200}, f.calls[0])

	_, err = d.CallService(ctx, "light", "turn_on", domain.Target{AreaID: "kitchen"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", f.calls[1]["area_id"])

	_, err = d.CallService(ctx, "light", "turn_on", domain.Target{EntityID: "light.deleted"}, nil)
	assert.True(t, domain.IsNotFound(err))
	assert.Len(t, f.calls, 2, "unknown targets never reach the hub")

	_, err = d.CallService(ctx, "", "turn_on", domain.Target{}, nil)
	assert.True(t, domain.IsValidation(err))
}

func TestDirectory_FindEntities(t *testing.T) {
	f := &fakeFetcher{entities: inventory}
	d := newDirectory(f, nil)
	ctx := context.Background()

	all, err := d.FindEntities(ctx, "light", "")
	require.NoError(t, err)
	assert.Equal(t, []domain.EntityView{
		{ID: "light.bedroom", DisplayName: "Bedroom Light", State: "on"},
		{ID: "light.kitchen", DisplayName: "Kitchen", State: "off"},
	}, all)

	ranked, err := d.FindEntities(ctx, "switch", "coffee")
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "switch.coffee_maker", ranked[0].ID)

	none, err := d.FindEntities(ctx, "climate", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDirectory_FindEntitiesCapsResults(t *testing.T) {
	var many []domain.Entity
	for i := range 60 {
		many = append(many, domain.Entity{ID: "light.lamp_" + string(rune('a'+i%26)) + string(rune('a'+i/26)), DisplayName: "Lamp", State: "on"})
	}
	d := newDirectory(&fakeFetcher{entities: many}, nil)

	views, err := d.FindEntities(context.Background(), "light", "")
	require.NoError(t, err)
	assert.Len(t, views, 50)

	views, err = d.FindEntities(context.Background(), "light", "lamp")
	require.NoError(t, err)
	assert.Len(t, views, 50)
}

func TestDirectory_GetSummaryNeverFetches(t *testing.T) {
	f := &fakeFetcher{entities: inventory}
	d := newDirectory(f, nil)

	assert.Nil(t, d.GetSummary("light.bedroom"))
	assert.Zero(t, f.fetches.Load())
}

func TestDirectory_WarmupRetriesAndGivesUp(t *testing.T) {
	f := &fakeFetcher{entities: inventory, fetchErr: errors.New("connection refused")}
	d := newDirectory(f, nil)

	d.Warmup(context.Background())
	assert.EqualValues(t, 3, f.fetches.Load())
	assert.Nil(t, d.GetSummary("light.bedroom"))

	f.mu.Lock()
	f.fetchErr = nil
	f.mu.Unlock()

	d.Warmup(context.Background())
	assert.EqualValues(t, 4, f.fetches.Load())
	assert.NotNil(t, d.GetSummary("light.bedroom"))
}
