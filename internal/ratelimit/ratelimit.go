package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/tinylink/tinylink/internal/cache"
	"github.com/tinylink/tinylink/internal/config"
)

// Counter is the slice of the cache the limiter needs: a shared counter with
// expiry. Backed by Redis so every instance of the service sees the same
// window.
type Counter interface {
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces a fixed-window request budget per client. The window is
// a Redis counter keyed by scope and client; the first increment in a window
// arms the TTL. Counter failures admit the request: the limiter protects the
// service, it must never take it down.
type Limiter struct {
	counter Counter
	scope   string
	max     int
	window  time.Duration
	logger  *slog.Logger
}

func New(counter Counter, scope string, rule config.RateLimitRule, logger *slog.Logger) *Limiter {
	return &Limiter{
		counter: counter,
		scope:   scope,
		max:     rule.MaxRequests,
		window:  rule.Window,
		logger:  logger,
	}
}

// Admit checks and consumes one request from the client's window.
func (l *Limiter) Admit(ctx context.Context, clientID string) Decision {
	if l.max <= 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	key := cache.RateLimitKey(l.scope, clientID)

	count := 0
	val, err := l.counter.Get(ctx, key)
	switch {
	case err == nil:
		if count, err = strconv.Atoi(val); err != nil {
			l.logger.Warn("rate limiter degraded, admitting request", slog.String("scope", l.scope), slog.Any("err", err))
			return Decision{Allowed: true, Remaining: -1}
		}
	case errors.Is(err, cache.ErrMiss):
		// Fresh window.
	default:
		l.logger.Warn("rate limiter degraded, admitting request", slog.String("scope", l.scope), slog.Any("err", err))
		return Decision{Allowed: true, Remaining: -1}
	}

	if count >= l.max {
		return Decision{Allowed: false, RetryAfter: l.window}
	}

	n, err := l.counter.Incr(ctx, key)
	if err != nil {
		l.logger.Warn("rate limiter degraded, admitting request", slog.String("scope", l.scope), slog.Any("err", err))
		return Decision{Allowed: true, Remaining: -1}
	}

	if n == 1 {
		if err := l.counter.Expire(ctx, key, l.window); err != nil {
			l.logger.Warn("failed to arm rate limit window", slog.String("scope", l.scope), slog.Any("err", err))
		}
	}

	remaining := l.max - int(n)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{Allowed: true, Remaining: remaining}
}
