package plancache

import (
	"context"
	"time"

	"voice-bridge/internal/domain"
)

// Tiered answers from memory first and falls back to Redis, copying
// Redis hits into memory for no longer than they have left in Redis.
type Tiered struct {
	mem    *LRU
	remote *Redis
}

func NewTiered(mem *LRU, remote *Redis) *Tiered {
	return &Tiered{mem: mem, remote: remote}
}

func (t *Tiered) Get(ctx context.Context, key string) (*domain.Plan, bool) {
	if plan, ok := t.mem.Get(ctx, key); ok {
		return plan, true
	}
	plan, remaining, ok := t.remote.lookup(ctx, key)
	if !ok {
		return nil, false
	}
	t.mem.PutTTL(ctx, key, plan, backfillTTL(t.mem.ttl, remaining))
	return plan, true
}

func (t *Tiered) Put(ctx context.Context, key string, plan *domain.Plan) {
	t.mem.Put(ctx, key, plan)
	t.remote.Put(ctx, key, plan)
}

func (t *Tiered) PutTTL(ctx context.Context, key string, plan *domain.Plan, ttl time.Duration) {
	t.mem.PutTTL(ctx, key, plan, ttl)
	t.remote.PutTTL(ctx, key, plan, ttl)
}

func (t *Tiered) Delete(ctx context.Context, key string) {
	t.mem.Delete(ctx, key)
	t.remote.Delete(ctx, key)
}

// backfillTTL is the shorter of the memory ttl and what the entry has left
// in Redis. Either may be NoExpiry.
func backfillTTL(memTTL, remaining time.Duration) time.Duration {
	if remaining < 0 {
		return memTTL
	}
	if memTTL < 0 || remaining < memTTL {
		return remaining
	}
	return memTTL
}
