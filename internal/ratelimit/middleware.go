package ratelimit

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/pkg/logger"
	"github.com/bantai/bantai-service/pkg/response"
)

const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// ByIP limits requests per client IP. Store failures let the request through.
func ByIP(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res, err := l.Check(c.Request().Context(), c.RealIP())
			if err != nil {
				logger.Warnf("Rate limiter %s unavailable, allowing request: %v", l.policy.Name, err)
				return next(c)
			}

			c.Response().Header().Set(HeaderRemaining, strconv.Itoa(res.Remaining))
			c.Response().Header().Set(HeaderReset, strconv.FormatInt(res.ResetTime.Unix(), 10))

			if !res.Allowed {
				return response.FromError(c, &domain.RateLimitError{RetryAfter: res.ResetTime.Sub(l.now())})
			}

			return next(c)
		}
	}
}
