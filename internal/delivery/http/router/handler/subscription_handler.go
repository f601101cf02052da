package handler

import (
	"log/slog"
	"net/http"

	"spot/internal/delivery/http/response"
	"spot/internal/domain/entity"
	"spot/internal/domain/repository"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// SubscriptionHandlerParams holds dependencies for SubscriptionHandler, injected by Fx.
type SubscriptionHandlerParams struct {
	fx.In

	Subscriptions repository.SubscriptionStore
	Logger        *slog.Logger
}

// SubscriptionHandler serves the public subscription endpoints.
type SubscriptionHandler struct {
	subscriptions repository.SubscriptionStore
	logger        *slog.Logger
}

// NewSubscriptionHandler is the constructor for SubscriptionHandler.
func NewSubscriptionHandler(params SubscriptionHandlerParams) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: params.Subscriptions,
		logger:        params.Logger,
	}
}

// SubscribeRequest is the POST /subscribe body.
type SubscribeRequest struct {
	Subscription entity.Subscription `json:"subscription"`
	Zone         string              `json:"zone" validate:"required"`
}

type subscribeReply struct {
	ID   string `json:"id"`
	Zone string `json:"zone"`
}

// Subscribe registers a push subscription for a zone. Registering the same
// endpoint again is idempotent; registering it for a different zone moves it.
func (h *SubscriptionHandler) Subscribe(c echo.Context) error {
	var req SubscribeRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, response.KindInvalidPayload)
	}
	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, response.KindInvalidPayload)
	}

	zone, err := entity.NormalizeZone(req.Zone)
	if err != nil {
		return response.BadRequest(c, response.KindInvalidPayload)
	}
	if err := req.Subscription.Validate(); err != nil {
		return response.BadRequest(c, response.KindInvalidPayload)
	}

	id, err := h.subscriptions.Register(c.Request().Context(), req.Subscription, zone)
	if err != nil {
		return err
	}

	h.logger.Info("Subscription registered",
		slog.String("id", id),
		slog.String("zone", zone),
	)

	return c.JSON(http.StatusCreated, subscribeReply{ID: id, Zone: zone})
}

// Unsubscribe removes a subscription by id. Unknown ids still return 204 so
// the delete can be retried safely.
func (h *SubscriptionHandler) Unsubscribe(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return response.BadRequest(c, response.KindMissingID)
	}

	if err := h.subscriptions.Unregister(c.Request().Context(), id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// MissingID answers DELETE /subscribe without an id segment.
func (h *SubscriptionHandler) MissingID(c echo.Context) error {
	return response.BadRequest(c, response.KindMissingID)
}

// ListByZone returns every subscription record stored under a zone. Admin only.
func (h *SubscriptionHandler) ListByZone(c echo.Context) error {
	zone, err := entity.NormalizeZone(c.QueryParam("zone"))
	if err != nil {
		return response.BadRequest(c, response.KindInvalidZone)
	}

	subs, err := h.subscriptions.ListByZone(c.Request().Context(), zone)
	if err != nil {
		return err
	}
	if subs == nil {
		subs = []entity.Subscription{}
	}

	return c.JSON(http.StatusOK, subs)
}
