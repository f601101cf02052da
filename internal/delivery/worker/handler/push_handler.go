package handler

import (
	"io"
	"log/slog"
	"net/http"

	"spot/internal/watcher"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// Push bodies are small JSON blobs; anything bigger is hostile.
const maxPushBody = 64 << 10

// PushHandler accepts platform push deliveries and hands them to the worker.
type PushHandler struct {
	logger *slog.Logger
	worker *watcher.Worker
}

// PushHandlerParams holds dependencies for the PushHandler.
type PushHandlerParams struct {
	fx.In

	Logger *slog.Logger
	Worker *watcher.Worker
}

// NewPushHandler creates a new push delivery handler.
func NewPushHandler(params PushHandlerParams) *PushHandler {
	return &PushHandler{
		logger: params.Logger,
		worker: params.Worker,
	}
}

// HandlePush parses the push body best-effort and queues it for the worker
// loop. The delivery is acknowledged as soon as it is queued; processing
// failures are the worker's to log, not the sender's to retry.
func (h *PushHandler) HandlePush(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPushBody))
	if err != nil {
		h.logger.Warn("[Worker] Failed to read push body", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	payload := watcher.ParsePushPayload(body)
	h.logger.Info("[Worker] Push delivery received",
		slog.String("zone", payload.Zone),
		slog.String("timestamp", payload.Timestamp),
	)
	h.worker.DeliverPush(payload)

	return c.NoContent(http.StatusNoContent)
}
