package middleware

import (
	"crypto/subtle"
	"strings"

	"spot/config"
	"spot/internal/delivery/http/response"

	"github.com/labstack/echo/v4"
)

// AdminMiddleware guards the /admin surface with the shared bearer secret.
// Rejections carry no reason: the boundary leaks nothing about whether the
// token was absent, malformed, or wrong.
type AdminMiddleware struct {
	token string
}

// NewAdminMiddleware is the constructor for AdminMiddleware.
func NewAdminMiddleware(cfg *config.Config) *AdminMiddleware {
	return &AdminMiddleware{token: cfg.Registry.AdminToken}
}

// Authenticate validates the Authorization header against the configured
// secret in constant time.
func (m *AdminMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// An unconfigured secret closes the surface entirely.
		if m.token == "" {
			return response.Unauthorized(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		supplied := strings.TrimPrefix(authHeader, "Bearer ")
		if supplied == authHeader {
			return response.Unauthorized(c)
		}

		if subtle.ConstantTimeCompare([]byte(supplied), []byte(m.token)) != 1 {
			return response.Unauthorized(c)
		}

		return next(c)
	}
}
