package plancache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"voice-bridge/internal/domain"
)

const (
	DefaultMaxSize = 500
	DefaultTTL     = 24 * time.Hour

	// NoExpiry keeps an entry until it is evicted.
	NoExpiry time.Duration = -1
)

type entry struct {
	plan      *domain.Plan
	expiresAt time.Time // zero means never
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LRU is a bounded in-memory plan cache. Reads and writes both move an
// entry to the most recently used position; expired entries are dropped
// when they are next looked up. Plans are copied in and out, so callers
// never share an entry with the cache.
type LRU struct {
	cache *lru.Cache[string, entry]
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*LRU)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *LRU) { c.now = now }
}

// NewLRU builds a cache holding at most maxSize plans, each living for ttl
// unless stored with PutTTL.
func NewLRU(maxSize int, ttl time.Duration, opts ...Option) (*LRU, error) {
	cache, err := lru.New[string, entry](maxSize)
	if err != nil {
		return nil, fmt.Errorf("creating plan cache: %w", err)
	}
	c := &LRU{cache: cache, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *LRU) Get(_ context.Context, key string) (*domain.Plan, bool) {
	e, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		c.cache.Remove(key)
		return nil, false
	}
	return e.plan.Clone(), true
}

func (c *LRU) Put(ctx context.Context, key string, plan *domain.Plan) {
	c.PutTTL(ctx, key, plan, c.ttl)
}

// PutTTL stores plan for ttl. A ttl of 0 stores an entry that is already
// expired; NoExpiry stores one that never expires.
func (c *LRU) PutTTL(_ context.Context, key string, plan *domain.Plan, ttl time.Duration) {
	if plan == nil {
		return
	}
	e := entry{plan: plan.Clone()}
	if ttl >= 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.cache.Add(key, e)
}

func (c *LRU) Delete(_ context.Context, key string) {
	c.cache.Remove(key)
}

// Keys lists keys from least to most recently used.
func (c *LRU) Keys() []string {
	return c.cache.Keys()
}

func (c *LRU) Len() int {
	return c.cache.Len()
}
