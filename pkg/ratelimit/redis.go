package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces limiter keys.
const DefaultRedisPrefix = "banlist:ratelimit:"

// Redis is a fixed-window limiter whose counters live in Redis, so every
// instance sharing the server sees the same windows.
type Redis struct {
	cfg    Config
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(client redis.Cmdable, cfg Config, prefix string) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{
		cfg:    cfg,
		client: client,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Allow implements Limiter. The window starts with the first INCR of a key,
// whose expiry is only set when the key is new.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	k := r.prefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, r.cfg.Window)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count request: %w", err)
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = r.cfg.Window
	}

	return decide(r.cfg, int(incr.Val()), r.now().Add(remaining)), nil
}
