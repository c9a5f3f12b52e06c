// Package ratelimit throttles the credential endpoints per client and route.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const HeaderRetryAfter = "Retry-After"

// Store decides whether one more hit on key is allowed
type Store interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type Logger interface {
	Warn(format string, args ...any)
}

type Config struct {
	Store Store
	// KeyFunc defaults to client IP plus route path
	KeyFunc func(ctx router.Context) string
	// LimitReached writes the 429 response
	LimitReached router.HandlerFunc
	// FailOpen lets requests through when the store errors
	FailOpen bool
	Logger   Logger
}

// New returns the limiting middleware
func New(cfg Config) router.MiddlewareFunc {
	if cfg.Store == nil {
		panic("ratelimit: Store is required")
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientRouteKey
	}
	if cfg.LimitReached == nil {
		cfg.LimitReached = defaultLimitReached
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			key := cfg.KeyFunc(ctx)

			allowed, retryAfter, err := cfg.Store.Allow(ctx.Context(), key)
			if err != nil {
				cfg.Logger.Warn("rate limit store error for %s: %v", key, err)
				if cfg.FailOpen {
					return next(ctx)
				}
				allowed = false
			}

			if !allowed {
				if retryAfter > 0 {
					ctx.SetHeader(HeaderRetryAfter, strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)))
				}
				cfg.Logger.Warn("rate limit exceeded for %s", key)
				return cfg.LimitReached(ctx)
			}

			return next(ctx)
		}
	}
}

func defaultLimitReached(ctx router.Context) error {
	return ctx.JSON(router.StatusTooManyRequests, map[string]any{
		"success": false,
		"message": "Too many attempts, please try again later",
		"code":    "TOO_MANY_ATTEMPTS",
	})
}

// ClientRouteKey is ip:path, so a login burst does not block registration
func ClientRouteKey(ctx router.Context) string {
	return clientIP(ctx) + ":" + ctx.Path()
}

func clientIP(ctx router.Context) string {
	ip := ctx.IP()
	if ip == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// RedisStore is a fixed window counter shared by every instance
type RedisStore struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, limit int, window time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix, limit: int64(limit), window: window}
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", s.prefix, key)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, s.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= s.limit {
		return true, 0, nil
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = s.window
	}
	return false, ttl, nil
}

// MemoryStore keeps one token bucket per key in process
type MemoryStore struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryStore allows perMinute hits a minute with a burst of the same size
func NewMemoryStore(perMinute int) *MemoryStore {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &MemoryStore{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		idle:     5 * time.Minute,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// WithClock is for tests
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
		s.lastGC = now()
	}
	return s
}

func (s *MemoryStore) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.gc(now)

	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (s *MemoryStore) gc(now time.Time) {
	if now.Sub(s.lastGC) < time.Minute {
		return
	}
	s.lastGC = now
	cutoff := now.Add(-s.idle)
	for k, v := range s.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(s.visitors, k)
		}
	}
}
