package handler

import (
	"log/slog"
	"net/http"

	"spot/internal/delivery/http/response"
	"spot/internal/domain/entity"
	"spot/internal/domain/repository"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// CursorHandlerParams holds dependencies for CursorHandler, injected by Fx.
type CursorHandlerParams struct {
	fx.In

	Cursors repository.CursorStore
	Logger  *slog.Logger
}

// CursorHandler serves the admin per-zone timestamp cursor endpoints.
type CursorHandler struct {
	cursors repository.CursorStore
	logger  *slog.Logger
}

// NewCursorHandler is the constructor for CursorHandler.
func NewCursorHandler(params CursorHandlerParams) *CursorHandler {
	return &CursorHandler{
		cursors: params.Cursors,
		logger:  params.Logger,
	}
}

// PutTimestampRequest is the PUT /admin/ts/:zone body.
type PutTimestampRequest struct {
	Timestamp string `json:"timestamp"`
}

// GetTimestamp reads the cursor for a zone; 404 when never announced.
func (h *CursorHandler) GetTimestamp(c echo.Context) error {
	zone, err := entity.NormalizeZone(c.Param("zone"))
	if err != nil {
		return response.BadRequest(c, response.KindInvalidZone)
	}

	timestamp, err := h.cursors.GetCursor(c.Request().Context(), zone)
	if errors.Is(err, repository.ErrNotFound) {
		return response.NotFound(c)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entity.ZoneCursor{Zone: zone, Timestamp: timestamp})
}

// PutTimestamp replaces the cursor for a zone. Only "non-empty string" is
// enforced here; ordering is owned by the dispatch job, the sole writer, so
// the registry never silently reorders what it is told to store.
func (h *CursorHandler) PutTimestamp(c echo.Context) error {
	zone, err := entity.NormalizeZone(c.Param("zone"))
	if err != nil {
		return response.BadRequest(c, response.KindInvalidZone)
	}

	var req PutTimestampRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, response.KindInvalidTimestamp)
	}
	if req.Timestamp == "" {
		return response.BadRequest(c, response.KindInvalidTimestamp)
	}

	if err := h.cursors.PutCursor(c.Request().Context(), zone, req.Timestamp); err != nil {
		return err
	}

	h.logger.Info("Zone cursor updated",
		slog.String("zone", zone),
		slog.String("timestamp", req.Timestamp),
	)

	return c.JSON(http.StatusOK, entity.ZoneCursor{Zone: zone, Timestamp: req.Timestamp})
}
