// Package response holds the registry's wire format helpers. Error bodies
// are flat, {"error": <kind>}, and clients key off the kind string alone.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error kinds exposed on the wire.
const (
	KindInvalidPayload   = "invalid_payload"
	KindMissingID        = "missing_id"
	KindInvalidZone      = "invalid_zone"
	KindInvalidTimestamp = "invalid_timestamp"
	KindUnauthorized     = "unauthorized"
	KindForbidden        = "forbidden"
	KindNotFound         = "not_found"
	KindServerError      = "server_error"
)

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Fail writes an error body with the given status and kind.
func Fail(c echo.Context, status int, kind string) error {
	return c.JSON(status, errorBody{Error: kind})
}

// BadRequest 400 error.
func BadRequest(c echo.Context, kind string) error {
	return Fail(c, http.StatusBadRequest, kind)
}

// Unauthorized 401 error. No detail on purpose: the admin boundary leaks
// nothing about why a token was rejected.
func Unauthorized(c echo.Context) error {
	return Fail(c, http.StatusUnauthorized, KindUnauthorized)
}

// Forbidden 403 error, used by the CORS gate.
func Forbidden(c echo.Context) error {
	return Fail(c, http.StatusForbidden, KindForbidden)
}

// NotFound 404 error.
func NotFound(c echo.Context) error {
	return Fail(c, http.StatusNotFound, KindNotFound)
}

// ServerError 500 error carrying the underlying reason.
func ServerError(c echo.Context, detail string) error {
	return c.JSON(http.StatusInternalServerError, errorBody{
		Error:  KindServerError,
		Detail: detail,
	})
}
