package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/reachend/auth-service/internal/pkg/metrics"
)

// Limiter counts a request against key and reports whether it may proceed,
// plus how long until the budget resets.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Resetter is implemented by limiters that can clear a key's budget early.
type Resetter interface {
	Reset(ctx context.Context, key string) error
}

type rateLimitOptions struct {
	resetOnSuccess bool
}

// RateLimitOption tunes RateLimit.
type RateLimitOption func(*rateLimitOptions)

// ResetOnSuccess clears the client's budget once the handler answers 2xx.
// It has no effect when the limiter is not a Resetter.
func ResetOnSuccess() RateLimitOption {
	return func(o *rateLimitOptions) { o.resetOnSuccess = true }
}

// RateLimit throttles a route per client IP. Limiter errors are logged and the
// request is let through.
func RateLimit(route string, limiter Limiter, log zerolog.Logger, opts ...RateLimitOption) echo.MiddlewareFunc {
	var o rateLimitOptions
	for _, opt := range opts {
		opt(&o)
	}
	resetter, _ := limiter.(Resetter)
	if !o.resetOnSuccess {
		resetter = nil
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := route + ":" + c.RealIP()
			allowed, retryAfter, err := limiter.Allow(c.Request().Context(), key)
			if err != nil {
				log.Warn().Err(err).Str("route", route).Msg("rate limiter unavailable")
			}
			if !allowed {
				metrics.RateLimitedTotal.WithLabelValues(route).Inc()
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
			}

			if err := next(c); err != nil {
				return err
			}
			if status := c.Response().Status; resetter != nil && status >= 200 && status < 300 {
				if err := resetter.Reset(c.Request().Context(), key); err != nil {
					log.Warn().Err(err).Str("route", route).Msg("rate limiter reset failed")
				}
			}
			return nil
		}
	}
}

// MemoryLimiter is the single-instance fallback used when Redis is not configured.
type MemoryLimiter struct {
	store      *echomiddleware.RateLimiterMemoryStore
	retryAfter time.Duration
}

// NewMemoryLimiter allows bursts of requests and refills the budget evenly over window.
func NewMemoryLimiter(requests int, window time.Duration) *MemoryLimiter {
	if requests <= 0 {
		requests = 1
	}
	per := window / time.Duration(requests)
	return &MemoryLimiter{
		store: echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Every(per),
			Burst:     requests,
			ExpiresIn: window,
		}),
		retryAfter: per,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	ok, err := m.store.Allow(key)
	if err != nil {
		return true, 0, err
	}
	if !ok {
		return false, m.retryAfter, nil
	}
	return true, 0, nil
}
