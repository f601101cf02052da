package handler

import (
	"context"
	"log/slog"

	"spot/internal/domain/entity"
	"spot/internal/watcher"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// PageHandler bridges page connections onto the worker hub over WebSocket.
type PageHandler struct {
	logger *slog.Logger
	worker *watcher.Worker
	hub    *watcher.Hub
}

// PageHandlerParams holds dependencies for the PageHandler.
type PageHandlerParams struct {
	fx.In

	Logger *slog.Logger
	Worker *watcher.Worker
	Hub    *watcher.Hub
}

// NewPageHandler creates a new page bridge handler.
func NewPageHandler(params PageHandlerParams) *PageHandler {
	return &PageHandler{
		logger: params.Logger,
		worker: params.Worker,
		hub:    params.Hub,
	}
}

// HandleSocket upgrades the connection, attaches the page to the hub, and
// shuttles tagged messages both ways until either side goes away. Messages
// with tags outside the protocol union are logged and dropped.
func (h *PageHandler) HandleSocket(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("[Worker] WebSocket accept failed", slog.Any("error", err))

		return nil
	}

	page := h.hub.Attach()
	ctx := c.Request().Context()

	defer func() {
		h.hub.Detach(page)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	go h.writeLoop(ctx, conn, page)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil
		}

		msg, err := entity.DecodeMessage(data)
		if err != nil {
			h.logger.Warn("[Worker] Dropping undecodable page message",
				slog.String("page", page.ID()),
				slog.Any("error", err),
			)

			continue
		}

		h.worker.DeliverFrom(page, msg)
	}
}

func (h *PageHandler) writeLoop(ctx context.Context, conn *websocket.Conn, page *watcher.Page) {
	for {
		var msg entity.Message
		select {
		case <-ctx.Done():
			return
		case <-page.Done():
			return
		case msg = <-page.Outbox():
		}

		data, err := entity.EncodeMessage(msg)
		if err != nil {
			h.logger.Error("[Worker] Failed to encode relay message",
				slog.String("type", msg.MessageType()),
				slog.Any("error", err),
			)

			continue
		}

		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}
