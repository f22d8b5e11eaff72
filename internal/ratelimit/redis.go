package ratelimit

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// counter is the subset of the redis client the fixed-window limiter needs.
type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// Redis is a fixed-window limiter shared by every replica pointing at the same server.
// Redis failures fail open.
type Redis struct {
	client  counter
	closer  func() error
	log     *slog.Logger
	prefix  string
	limit   int
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewRedis connects to addr and verifies the connection with a PING.
func NewRedis(ctx context.Context, addr, password string, db, limit int, window time.Duration, log *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	rl := newRedis(client, limit, window, log)
	rl.closer = client.Close
	return rl, nil
}

func newRedis(client counter, limit int, window time.Duration, log *slog.Logger) *Redis {
	if window <= 0 {
		window = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Redis{
		client:  client,
		log:     log,
		prefix:  "taskline:ratelimit:",
		limit:   limit,
		window:  window,
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
}

func (rl *Redis) Allow(ctx context.Context, key string) Decision {
	if rl.limit <= 0 {
		return Decision{Allowed: true}
	}
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	redisKey := rl.prefix + key
	count, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		rl.log.Error("redis rate limiter error", "op", "incr", "error", err)
		return Decision{Allowed: true, Limit: rl.limit}
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			rl.log.Error("redis rate limiter error", "op", "expire", "error", err)
		}
	}
	ttl, err := rl.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = rl.window
	}
	remaining := rl.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   int(count) <= rl.limit,
		Limit:     rl.limit,
		Remaining: remaining,
		Reset:     rl.now().Add(ttl),
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d
}

func (rl *Redis) Close() error {
	if rl.closer == nil {
		return nil
	}
	return rl.closer()
}
