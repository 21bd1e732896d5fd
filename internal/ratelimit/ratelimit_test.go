package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tinylink/tinylink/internal/cache"
	"github.com/tinylink/tinylink/internal/config"
)

var errUnknown = errors.New("unknown error")

type MockCounter struct {
	mock.Mock
}

func (c *MockCounter) Get(ctx context.Context, key string) (string, error) {
	args := c.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (c *MockCounter) Incr(ctx context.Context, key string) (int64, error) {
	args := c.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (c *MockCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	args := c.Called(ctx, key, ttl)
	return args.Error(0)
}

func setupLimiter(max int, window time.Duration) (*Limiter, *MockCounter) {
	counter := new(MockCounter)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rule := config.RateLimitRule{MaxRequests: max, Window: window}

	return New(counter, "resolve", rule, logger), counter
}

func TestLimiter_Admit(t *testing.T) {
	key := cache.RateLimitKey("resolve", "203.0.113.10")

	t.Run("disabled limiter admits everything", func(t *testing.T) {
		limiter, counter := setupLimiter(0, time.Minute)

		decision := limiter.Admit(context.Background(), "203.0.113.10")

		assert.True(t, decision.Allowed)
		counter.AssertNotCalled(t, "Get")
	})

	t.Run("first request arms the window", func(t *testing.T) {
		limiter, counter := setupLimiter(5, time.Minute)

		counter.On("Get", mock.Anything, key).Once().Return("", cache.ErrMiss)
		counter.On("Incr", mock.Anything, key).Once().Return(int64(1), nil)
		counter.On("Expire", mock.Anything, key, time.Minute).Once().Return(nil)

		decision := limiter.Admit(context.Background(), "203.0.113.10")

		assert.True(t, decision.Allowed)
		assert.Equal(t, 4, decision.Remaining)
		counter.AssertExpectations(t)
	})

	t.Run("subsequent request keeps the existing window", func(t *testing.T) {
		limiter, counter := setupLimiter(5, time.Minute)

		counter.On("Get", mock.Anything, key).Once().Return("2", nil)
		counter.On("Incr", mock.Anything, key).Once().Return(int64(3), nil)

		decision := limiter.Admit(context.Background(), "203.0.113.10")

		assert.True(t, decision.Allowed)
		assert.Equal(t, 2, decision.Remaining)
		counter.AssertNotCalled(t, "Expire")
	})

	t.Run("denies over budget", func(t *testing.T) {
		limiter, counter := setupLimiter(5, time.Minute)

		counter.On("Get", mock.Anything, key).Once().Return("5", nil)

		decision := limiter.Admit(context.Background(), "203.0.113.10")

		assert.False(t, decision.Allowed)
		assert.Equal(t, time.Minute, decision.RetryAfter)
		counter.AssertNotCalled(t, "Incr")
	})

	t.Run("counter read failure admits the request", func(t *testing.T) {
		limiter, counter := setupLimiter(5, time.Minute)

		counter.On("Get", mock.Anything, key).Once().Return("", errUnknown)

		decision := limiter.Admit(context.Background(), "203.0.113.10")

		assert.True(t, decision.Allowed)
		counter.AssertNotCalled(t, "Incr")
	})

	t.Run("counter increment failure admits the request", func(t *testing.T) {
		limiter, counter := setupLimiter(5, time.Minute)

		counter.On("Get", mock.Anything, key).Once().Return("1", nil)
		counter.On("Incr", mock.Anything, key).Once().Return(int64(0), errUnknown)

		decision := limiter.Admit(context.Background(), "203.0.113.10")

		assert.True(t, decision.Allowed)
	})

	t.Run("garbage counter value admits the request", func(t *testing.T) {
		limiter, counter := setupLimiter(5, time.Minute)

		counter.On("Get", mock.Anything, key).Once().Return("not-a-number", nil)

		decision := limiter.Admit(context.Background(), "203.0.113.10")

		assert.True(t, decision.Allowed)
		counter.AssertNotCalled(t, "Incr")
	})
}
