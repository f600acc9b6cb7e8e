package throttle

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts attempts per key in fixed windows.
type Limiter interface {
	// Allow records one attempt for key. When the window is exhausted it
	// returns false and the time until the window resets.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

type Config struct {
	RedisURL string
	Limit    int
	Window   time.Duration
}

// ConfigFromEnv reads REDIS_URL, LOGIN_RATE_LIMIT (default 10) and
// LOGIN_RATE_WINDOW (default 1m).
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		RedisURL: os.Getenv("REDIS_URL"),
		Limit:    10,
		Window:   time.Minute,
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("LOGIN_RATE_LIMIT: invalid value %q", v)
		}
		cfg.Limit = n
	}
	if v := os.Getenv("LOGIN_RATE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("LOGIN_RATE_WINDOW: invalid value %q", v)
		}
		cfg.Window = d
	}
	return cfg, nil
}

// Connect opens a redis client from a redis:// URL and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// counter is the subset of redis commands the limiter uses.
type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisLimiter shares counters across replicas.
type RedisLimiter struct {
	rdb    counter
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: "neuroflow:throttle:", limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if n <= int64(l.limit) {
		return true, 0, nil
	}
	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		// key lost its expiry; restart the window
		_ = l.rdb.Expire(ctx, k, l.window).Err()
		ttl = l.window
	}
	return false, ttl, nil
}

type bucket struct {
	count int
	reset time.Time
}

// MemoryLimiter is a process-local limiter used when no redis is configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: window, buckets: make(map[string]*bucket), now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.reset) {
		l.sweep(now)
		b = &bucket{reset: now.Add(l.window)}
		l.buckets[key] = b
	}
	b.count++
	if b.count <= l.limit {
		return true, 0, nil
	}
	return false, b.reset.Sub(now), nil
}

// sweep drops expired windows; caller holds mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if !now.Before(b.reset) {
			delete(l.buckets, k)
		}
	}
}
