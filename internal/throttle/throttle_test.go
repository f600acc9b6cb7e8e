package throttle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockCounter struct {
	mock.Mock
}

func (m *MockCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	return m.Called(ctx, key).Get(0).(*redis.IntCmd)
}

func (m *MockCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return m.Called(ctx, key, expiration).Get(0).(*redis.BoolCmd)
}

func (m *MockCounter) PTTL(ctx context.Context, key string) *redis.DurationCmd {
	return m.Called(ctx, key).Get(0).(*redis.DurationCmd)
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	rc := new(MockCounter)
	l := &RedisLimiter{rdb: rc, prefix: "t:", limit: 2, window: time.Minute}

	rc.On("Incr", ctx, "t:ip").Return(redis.NewIntResult(1, nil)).Once()
	rc.On("Expire", ctx, "t:ip", time.Minute).Return(redis.NewBoolResult(true, nil)).Once()
	ok, _, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok)

	rc.On("Incr", ctx, "t:ip").Return(redis.NewIntResult(2, nil)).Once()
	ok, _, err = l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok)

	rc.On("Incr", ctx, "t:ip").Return(redis.NewIntResult(3, nil)).Once()
	rc.On("PTTL", ctx, "t:ip").Return(redis.NewDurationResult(20*time.Second, nil)).Once()
	ok, retry, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, retry)

	rc.AssertExpectations(t)
}

func TestRedisLimiter_Error(t *testing.T) {
	ctx := context.Background()
	rc := new(MockCounter)
	l := &RedisLimiter{rdb: rc, prefix: "t:", limit: 2, window: time.Minute}
	rc.On("Incr", ctx, "t:ip").Return(redis.NewIntResult(0, errors.New("down")))

	_, _, err := l.Allow(ctx, "ip")
	assert.Error(t, err)
}

func TestMemoryLimiter_Window(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, _ := l.Allow(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)

	ok, _, _ = l.Allow(ctx, "b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _, _ = l.Allow(ctx, "a")
	assert.True(t, ok, "window resets")
}

func TestMiddleware(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	h := Middleware(l, "login", zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/login/face", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1111").Code)
	rec := do("10.0.0.1:2222")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1111").Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func TestMiddleware_FailsOpen(t *testing.T) {
	h := Middleware(failingLimiter{}, "login", zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOGIN_RATE_LIMIT", "")
	t.Setenv("LOGIN_RATE_WINDOW", "")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Limit)
	assert.Equal(t, time.Minute, cfg.Window)

	t.Setenv("LOGIN_RATE_LIMIT", "0")
	_, err = ConfigFromEnv()
	assert.Error(t, err)
}
