package middleware

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/holly/pkg/metrics"
	"github.com/Ramsey-B/holly/pkg/redis"
)

// RateLimit throttles a route group by client IP. The PIN endpoints sit
// behind this because a 4-digit PIN survives very little brute force.
// Limiter errors fail open; Redis being down must not take the exchange
// down with it.
func RateLimit(limiter *redis.RateLimiter, logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			key := fmt.Sprintf("%s:%s", c.Path(), c.RealIP())
			result, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("Rate limiter unavailable, allowing request")
				return next(c)
			}

			if !result.Allowed {
				metrics.RateLimitedTotal.Inc()
				c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(result.RetryIn.Seconds())+1))
				return httperror.NewHTTPError(http.StatusTooManyRequests, "too many attempts, slow down")
			}

			return next(c)
		}
	}
}
