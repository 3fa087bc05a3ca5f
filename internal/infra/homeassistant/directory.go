package homeassistant

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"voice-bridge/internal/domain"
)

const (
	DefaultInventoryTTL  = 30 * time.Second
	DefaultWarmupBackoff = 250 * time.Millisecond

	maxFindResults = 50
	warmupAttempts = 3
)

// StateFetcher is the subset of the hub API the directory builds on.
type StateFetcher interface {
	FetchStates(ctx context.Context) ([]domain.Entity, error)
	FetchState(ctx context.Context, entityID string) (*domain.Entity, error)
	CallService(ctx context.Context, category, operation string, payload map[string]any) ([]domain.Entity, error)
}

type DirectoryConfig struct {
	TTL            time.Duration
	RequestTimeout time.Duration
	WarmupBackoff  time.Duration
	Now            func() time.Time
}

func (c DirectoryConfig) withDefaults() DirectoryConfig {
	if c.TTL <= 0 {
		c.TTL = DefaultInventoryTTL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.WarmupBackoff <= 0 {
		c.WarmupBackoff = DefaultWarmupBackoff
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// snapshot is immutable once published.
type snapshot struct {
	refreshedAt time.Time
	byID        map[string]*indexedEntity
	byCategory  map[string][]*indexedEntity
}

func newSnapshot(entities []domain.Entity, at time.Time) *snapshot {
	s := &snapshot{
		refreshedAt: at,
		byID:        make(map[string]*indexedEntity, len(entities)),
		byCategory:  make(map[string][]*indexedEntity),
	}
	for _, e := range entities {
		ie := indexEntity(e)
		s.byID[e.ID] = ie
		category := e.Category()
		s.byCategory[category] = append(s.byCategory[category], ie)
	}
	return s
}

// Directory caches the hub's entity inventory and serves reads, service
// calls and fuzzy lookups on top of it.
type Directory struct {
	hub    StateFetcher
	cfg    DirectoryConfig
	logger *slog.Logger

	snap  atomic.Pointer[snapshot]
	group singleflight.Group
}

func NewDirectory(hub StateFetcher, cfg DirectoryConfig, logger *slog.Logger) *Directory {
	return &Directory{
		hub:    hub,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

func (d *Directory) fresh() bool {
	s := d.snap.Load()
	return s != nil && d.cfg.Now().Sub(s.refreshedAt) < d.cfg.TTL
}

// Refresh reloads the inventory unless it is still fresh and force is false.
// Concurrent callers share one in-flight fetch. On failure the previous
// snapshot stays in place.
func (d *Directory) Refresh(ctx context.Context, force bool) error {
	if !force && d.fresh() {
		return nil
	}

	// The shared fetch outlives any single caller's cancellation; it is
	// bounded by the request timeout instead.
	ch := d.group.DoChan("inventory", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.RequestTimeout)
		defer cancel()

		entities, err := d.hub.FetchStates(fetchCtx)
		if err != nil {
			return nil, err
		}

		s := newSnapshot(entities, d.cfg.Now())
		d.snap.Store(s)
		d.logger.Debug("inventory refreshed", "entities", len(entities), "categories", len(s.byCategory))
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("refreshing inventory: %w", res.Err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Directory) EnsureFresh(ctx context.Context) error {
	return d.Refresh(ctx, false)
}

func (d *Directory) lookup(id string) *indexedEntity {
	s := d.snap.Load()
	if s == nil {
		return nil
	}
	return s.byID[id]
}

// known returns the cached entity, forcing one refresh when it is missing.
func (d *Directory) known(ctx context.Context, id string) (*indexedEntity, error) {
	if err := d.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	if e := d.lookup(id); e != nil {
		return e, nil
	}
	if err := d.Refresh(ctx, true); err != nil {
		return nil, err
	}
	return d.lookup(id), nil
}

// GetState returns the cached entity, falling back to a direct lookup for
// entities missing from the bulk listing.
func (d *Directory) GetState(ctx context.Context, entityID string) (*domain.Entity, error) {
	if entityID == "" {
		return nil, domain.NewValidationError("entity_id", "required")
	}

	e, err := d.known(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if e != nil {
		entity := e.Entity
		return &entity, nil
	}

	d.logger.Debug("entity missing from inventory, asking hub directly", "entity_id", entityID)
	return d.hub.FetchState(ctx, entityID)
}

// CallService invokes category.operation. A target entity must be known to
// the hub, which guards against acting on deleted entities.
func (d *Directory) CallService(ctx context.Context, category, operation string, target domain.Target, data map[string]any) (*domain.ServiceResult, error) {
	if category == "" || operation == "" {
		return nil, domain.NewValidationError("service", "category and operation are required")
	}

	if target.EntityID != "" {
		e, err := d.known(ctx, target.EntityID)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, &domain.NotFoundError{EntityID: target.EntityID}
		}
	}

	payload := make(map[string]any, len(data)+2)
	maps.Copy(payload, data)
	if target.EntityID != "" {
		payload["entity_id"] = target.EntityID
	}
	if target.AreaID != "" {
		payload["area_id"] = target.AreaID
	}

	changed, err := d.hub.CallService(ctx, category, operation, payload)
	if err != nil {
		return nil, err
	}

	d.logger.Info("service called", "category", category, "operation", operation, "entity_id", target.EntityID, "area_id", target.AreaID)

	return &domain.ServiceResult{
		Category:  category,
		Operation: operation,
		EntityID:  target.EntityID,
		Changed:   changed,
	}, nil
}

// FindEntities lists up to 50 entities of category, ranked by search when
// one is given.
func (d *Directory) FindEntities(ctx context.Context, category, search string) ([]domain.EntityView, error) {
	if category == "" {
		return nil, domain.NewValidationError("category", "required")
	}
	if err := d.EnsureFresh(ctx); err != nil {
		return nil, err
	}

	s := d.snap.Load()
	if s == nil {
		return []domain.EntityView{}, nil
	}
	entities := s.byCategory[category]

	if search == "" {
		n := min(len(entities), maxFindResults)
		views := make([]domain.EntityView, n)
		for i := range n {
			views[i] = entities[i].View()
		}
		return views, nil
	}

	ranked := rank(entities, newQuery(search))
	views := make([]domain.EntityView, 0, min(len(ranked), maxFindResults))
	for _, c := range ranked {
		if c.score <= 0 {
			continue
		}
		views = append(views, c.entity.View())
		if len(views) == maxFindResults {
			break
		}
	}
	return views, nil
}

// GetSummary never contacts the hub.
func (d *Directory) GetSummary(entityID string) *domain.EntitySummary {
	e := d.lookup(entityID)
	if e == nil {
		return nil
	}
	return &domain.EntitySummary{
		ID:          e.ID,
		DisplayName: e.DisplayName,
		Category:    e.Category(),
		Attributes:  e.Attributes,
	}
}

// ResolveEntityID returns the best match for search across categories, or
// "" when nothing reaches minScore.
func (d *Directory) ResolveEntityID(ctx context.Context, categories []string, search string, minScore int) (string, error) {
	if err := d.EnsureFresh(ctx); err != nil {
		return "", err
	}

	s := d.snap.Load()
	if s == nil {
		return "", nil
	}

	var pool []*indexedEntity
	for _, category := range categories {
		pool = append(pool, s.byCategory[category]...)
	}

	ranked := rank(pool, newQuery(search))
	if len(ranked) == 0 || ranked[0].score < minScore {
		return "", nil
	}
	return ranked[0].entity.ID, nil
}

type candidate struct {
	entity *indexedEntity
	score  int
}

// rank scores entities and orders candidates best first. Ties keep
// enumeration order.
func rank(entities []*indexedEntity, q query) []candidate {
	var out []candidate
	for _, e := range entities {
		if score, ok := q.score(e); ok {
			out = append(out, candidate{entity: e, score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

// Warmup prefetches the inventory at startup. It never fails: a hub that is
// down only means the first request pays for the fetch.
func (d *Directory) Warmup(ctx context.Context) {
	for attempt := 1; attempt <= warmupAttempts; attempt++ {
		err := d.Refresh(ctx, true)
		if err == nil {
			s := d.snap.Load()
			d.logger.Info("inventory warmed up", "entities", len(s.byID))
			return
		}

		d.logger.Warn("inventory warmup failed", "attempt", attempt, "error", err)
		if attempt == warmupAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.cfg.WarmupBackoff * time.Duration(attempt)):
		}
	}
	d.logger.Error("giving up on inventory warmup; will fetch on first request")
}

// StartPeriodicRefresh force-refreshes the inventory every interval until
// ctx is done.
func (d *Directory) StartPeriodicRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.Refresh(ctx, true); err != nil {
					d.logger.Error("periodic inventory refresh failed", "error", err)
				}
			}
		}
	}()
}
