// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"spot/internal/delivery/http/middleware"
	"spot/internal/delivery/http/router/handler"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	SubscriptionHandler *handler.SubscriptionHandler
	CursorHandler       *handler.CursorHandler
	HealthHandler       *handler.HealthHandler
	AdminMiddleware     *middleware.AdminMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	subscriptionHandler *handler.SubscriptionHandler
	cursorHandler       *handler.CursorHandler
	healthHandler       *handler.HealthHandler
	adminMiddleware     *middleware.AdminMiddleware
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		subscriptionHandler: params.SubscriptionHandler,
		cursorHandler:       params.CursorHandler,
		healthHandler:       params.HealthHandler,
		adminMiddleware:     params.AdminMiddleware,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	e.GET("/admin/health", r.healthHandler.Check)

	// Public subscription routes
	e.POST("/subscribe", r.subscriptionHandler.Subscribe)
	e.DELETE("/subscribe/:id", r.subscriptionHandler.Unsubscribe)
	// A DELETE without an id is a client bug worth a specific error.
	e.DELETE("/subscribe", r.subscriptionHandler.MissingID)

	// Admin routes behind the bearer token
	adminGroup := e.Group("/admin")
	adminGroup.Use(r.adminMiddleware.Authenticate)
	{
		adminGroup.GET("/subs", r.subscriptionHandler.ListByZone)
		adminGroup.GET("/ts/:zone", r.cursorHandler.GetTimestamp)
		adminGroup.PUT("/ts/:zone", r.cursorHandler.PutTimestamp)
	}
}
