package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Time
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// Memory keeps one token bucket per key in an expiring LRU. Buckets are lost on restart
// and are not shared between replicas; use Redis for that.
type Memory struct {
	interval time.Duration
	burst    int
	mu       sync.Mutex // guards bucket creation
	cache    *expirable.LRU[string, *rate.Limiter]
	now      func() time.Time
}

func NewMemory(interval time.Duration, burst, cacheSize int, ttl time.Duration) *Memory {
	if burst <= 0 {
		burst = 1
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &Memory{
		interval: interval,
		burst:    burst,
		cache:    expirable.NewLRU[string, *rate.Limiter](cacheSize, nil, ttl),
		now:      time.Now,
	}
}

func (m *Memory) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	limiter, ok := m.cache.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Every(m.interval), m.burst)
		m.cache.Add(key, limiter)
	}
	return limiter
}

func (m *Memory) Allow(_ context.Context, key string) Decision {
	now := m.now()
	limiter := m.limiter(key)
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return Decision{Limit: m.burst, Reset: now}
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{Limit: m.burst, RetryAfter: delay, Reset: now.Add(delay)}
	}
	tokens := limiter.TokensAt(now)
	missing := float64(m.burst) - tokens
	return Decision{
		Allowed:   true,
		Limit:     m.burst,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		Reset:     now.Add(time.Duration(missing * float64(m.interval))),
	}
}

// ClientKey identifies the caller by remote address, or by forwarding headers when trusted.
func ClientKey(r *http.Request, trustHeaders bool) string {
	if trustHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			return strings.TrimSpace(ips[0])
		}
		if xri := r.Header.Get("X-Real-Ip"); xri != "" {
			return xri
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware rejects requests with 429 once the caller's budget is spent.
// The rejection body mirrors the API's {message} envelope.
func Middleware(l Limiter, trustHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(r.Context(), ClientKey(r, trustHeaders))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"message":%q}`, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
