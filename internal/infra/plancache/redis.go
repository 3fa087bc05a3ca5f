package plancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-bridge/internal/domain"
)

const keyPrefix = "voice-bridge:plan:"

// Redis persists plans across restarts. Failures are logged and reported
// as misses.
type Redis struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}
}

// Dial connects to url and checks the connection.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.DialTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func planKey(key string) string {
	return keyPrefix + key
}

func (r *Redis) Get(ctx context.Context, key string) (*domain.Plan, bool) {
	plan, _, ok := r.lookup(ctx, key)
	return plan, ok
}

// lookup reads a plan together with its remaining lifetime, NoExpiry when
// the key has none.
func (r *Redis) lookup(ctx context.Context, key string) (*domain.Plan, time.Duration, bool) {
	pipe := r.rdb.Pipeline()
	get := pipe.Get(ctx, planKey(key))
	pttl := pipe.PTTL(ctx, planKey(key))
	_, _ = pipe.Exec(ctx)

	raw, err := get.Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("plan lookup failed", "key", key, "error", err)
		}
		return nil, 0, false
	}

	var plan domain.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		r.logger.Warn("discarding unreadable plan", "key", key, "error", err)
		return nil, 0, false
	}
	if plan.Version != domain.PlanVersion {
		return nil, 0, false
	}

	remaining, err := pttl.Result()
	if err != nil || remaining < 0 {
		remaining = NoExpiry
	}
	return &plan, remaining, true
}

func (r *Redis) Put(ctx context.Context, key string, plan *domain.Plan) {
	r.PutTTL(ctx, key, plan, r.ttl)
}

// PutTTL follows LRU.PutTTL: 0 means already expired, so nothing is kept.
func (r *Redis) PutTTL(ctx context.Context, key string, plan *domain.Plan, ttl time.Duration) {
	if plan == nil {
		return
	}
	if ttl == 0 {
		r.Delete(ctx, key)
		return
	}

	raw, err := json.Marshal(plan)
	if err != nil {
		r.logger.Warn("encoding plan", "key", key, "error", err)
		return
	}

	expiration := ttl
	if ttl < 0 {
		expiration = 0
	}
	if err := r.rdb.Set(ctx, planKey(key), raw, expiration).Err(); err != nil {
		r.logger.Warn("storing plan failed", "key", key, "error", err)
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, planKey(key)).Err(); err != nil {
		r.logger.Warn("deleting plan failed", "key", key, "error", err)
	}
}
