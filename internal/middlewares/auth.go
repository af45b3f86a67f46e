package middlewares

import (
	"crypto/subtle"
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/bantai/bantai-service/pkg/response"
)

const (
	APIKeyHeader        = "x-bantai-auth-key"
	WebhookSecretHeader = "x-bantai-webhook-secret"
)

// secureCompare compares two strings in a way that is safer against timing attacks.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// APIKeyAuth accepts any of keys in the x-bantai-auth-key header. Empty keys
// are ignored; with none configured every request fails as a server error.
func APIKeyAuth(keys ...string) echo.MiddlewareFunc {
	return headerAuth(APIKeyHeader, "API key", keys)
}

// WebhookSecret guards carrier callbacks with a shared secret header.
func WebhookSecret(secret string) echo.MiddlewareFunc {
	return headerAuth(WebhookSecretHeader, "webhook secret", []string{secret})
}

func headerAuth(header, what string, keys []string) echo.MiddlewareFunc {
	configured := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			configured = append(configured, k)
		}
	}

	if len(configured) == 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return response.InternalServerError(
					c,
					fmt.Errorf("%s is not configured for this endpoint group", what),
				)
			}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get(header)
			if token == "" {
				return response.Unauthorized(c, what)
			}

			// No early exit so timing does not reveal which key matched.
			matched := false
			for _, k := range configured {
				if secureCompare(token, k) {
					matched = true
				}
			}
			if !matched {
				return response.Unauthorized(c, what)
			}

			return next(c)
		}
	}
}
