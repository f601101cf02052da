package middleware

import (
	"net/http"
	"slices"

	"spot/config"
	"spot/internal/delivery/http/response"

	"github.com/labstack/echo/v4"
)

// CORSMiddleware gates every request on an origin allow-list. Browser
// requests from an origin outside the list are rejected with 403 before any
// handler runs; requests without an Origin header (curl, the dispatch job)
// always pass.
type CORSMiddleware struct {
	allowed  []string
	allowAll bool
}

// NewCORSMiddleware builds the gate from the configured allow-list.
func NewCORSMiddleware(cfg *config.Config) *CORSMiddleware {
	allowed := cfg.Registry.AllowedOriginList()

	return &CORSMiddleware{
		allowed:  allowed,
		allowAll: slices.Contains(allowed, "*"),
	}
}

// Handle applies the CORS policy and answers preflight requests.
func (m *CORSMiddleware) Handle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		origin := c.Request().Header.Get(echo.HeaderOrigin)

		if origin != "" && !m.allows(origin) {
			return response.Forbidden(c)
		}

		header := c.Response().Header()
		if origin != "" {
			header.Set(echo.HeaderAccessControlAllowOrigin, origin)
			header.Add(echo.HeaderVary, echo.HeaderOrigin)
		} else if m.allowAll {
			header.Set(echo.HeaderAccessControlAllowOrigin, "*")
		}
		header.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, PUT, DELETE, OPTIONS")
		header.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")
		header.Set(echo.HeaderAccessControlMaxAge, "86400")

		if c.Request().Method == http.MethodOptions {
			return c.NoContent(http.StatusNoContent)
		}

		return next(c)
	}
}

func (m *CORSMiddleware) allows(origin string) bool {
	return m.allowAll || slices.Contains(m.allowed, origin)
}
