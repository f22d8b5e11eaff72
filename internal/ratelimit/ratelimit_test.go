package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/logger"
)

func TestMemoryBurstThenReject(t *testing.T) {
	m := NewMemory(time.Minute, 2, 16, time.Hour)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	ctx := context.Background()

	first := m.Allow(ctx, "1.2.3.4")
	require.True(t, first.Allowed)
	assert.Equal(t, 2, first.Limit)
	assert.Equal(t, 1, first.Remaining)

	require.True(t, m.Allow(ctx, "1.2.3.4").Allowed)
	denied := m.Allow(ctx, "1.2.3.4")
	assert.False(t, denied.Allowed)
	assert.InDelta(t, time.Minute.Seconds(), denied.RetryAfter.Seconds(), 1)

	assert.True(t, m.Allow(ctx, "5.6.7.8").Allowed, "keys are independent")

	m.now = func() time.Time { return base.Add(time.Minute) }
	assert.True(t, m.Allow(ctx, "1.2.3.4").Allowed, "one token refills per interval")
}

func TestMemoryConcurrentFirstRequestsShareBucket(t *testing.T) {
	m := NewMemory(time.Hour, 1, 16, time.Hour)
	ctx := context.Background()

	const callers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if m.Allow(ctx, "9.9.9.9").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, allowed)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "10.0.0.1", ClientKey(req, false))
	assert.Equal(t, "203.0.113.7", ClientKey(req, true))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-Ip", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientKey(req, true))
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	h := Middleware(NewMemory(time.Hour, 1, 16, time.Hour), false)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		h.ServeHTTP(rec, req)
		return rec
	}

	ok := do()
	assert.Equal(t, http.StatusNoContent, ok.Code)
	assert.Equal(t, "1", ok.Header().Get("X-RateLimit-Limit"))

	limited := do()
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"message":"Too many requests, please try again later"}`, limited.Body.String())
}

type fakeCounter struct {
	mu       sync.Mutex
	counts   map[string]int64
	expires  map[string]time.Duration
	failIncr bool
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIncr {
		return redis.NewIntResult(0, errors.New("connection refused"))
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCounter) TTL(_ context.Context, key string) *redis.DurationCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewDurationResult(f.expires[key], nil)
}

func TestRedisFixedWindow(t *testing.T) {
	fc := newFakeCounter()
	rl := newRedis(fc, 2, 30*time.Second, logger.Discard())
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "ip").Allowed)
	assert.Equal(t, 30*time.Second, fc.expires["taskline:ratelimit:ip"])
	second := rl.Allow(ctx, "ip")
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	third := rl.Allow(ctx, "ip")
	assert.False(t, third.Allowed)
	assert.Equal(t, 30*time.Second, third.RetryAfter)
	assert.NoError(t, rl.Close())
}

func TestRedisFailsOpen(t *testing.T) {
	fc := newFakeCounter()
	fc.failIncr = true
	rl := newRedis(fc, 1, time.Second, logger.Discard())
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(context.Background(), "ip").Allowed)
	}
}
