// Page is a development harness standing in for an open page: it connects to
// the background worker, runs the alert enable handshake against a real
// registry, and prints every state relay it receives.
//
// Subscription credentials can be pasted from a browser export via flags or
// environment, the same shape Worker KV exports use.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spot/config"
	"spot/internal/controller"
	"spot/internal/domain/entity"
	logs "spot/internal/infra/log"
	"spot/internal/infra/prices"
	"spot/internal/infra/registry"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	workerURL := flag.String("worker", "ws://localhost:8081/ws", "worker WebSocket URL")
	zone := flag.String("zone", "", "zone to enable alerts for")
	endpoint := flag.String("endpoint", os.Getenv("SPOT_PUSH_ENDPOINT"), "push endpoint URL")
	p256dh := flag.String("p256dh", os.Getenv("SPOT_PUSH_P256DH"), "push p256dh key")
	auth := flag.String("auth", os.Getenv("SPOT_PUSH_AUTH"), "push auth secret")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger, err := logs.New(logs.Params{Config: cfg})
	if err != nil {
		slog.Error("Failed to build logger", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn := controller.NewSocketWorkerConn(*workerURL, logger)
	defer conn.Close()

	ctrl := controller.NewController(controller.ControllerParams{
		Logger: logger,
		Push: &pastedPushAPI{
			subscription: entity.Subscription{
				Endpoint: *endpoint,
				Keys:     entity.SubscriptionKeys{P256dh: *p256dh, Auth: *auth},
			},
		},
		Worker:   conn,
		Registry: registry.NewClient(cfg.Registry.BaseURL, cfg.Registry.AdminToken, 20*time.Second),
		Prices:   prices.NewClient(cfg.Watcher.FetchTimeout),
	})

	ctrl.OnSelectionChange(func(event controller.SelectionEvent) {
		logger.Info("Selection changed",
			slog.String("zone", event.Zone),
			slog.String("origin", string(event.Origin)),
		)
	})

	go func() {
		if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Controller stopped", slog.Any("error", err))
			cancel()
		}
	}()

	if *zone != "" {
		if err := ctrl.EnableAlerts(ctx, *zone); err != nil {
			logger.Error("Failed to enable alerts", slog.Any("error", err))
			os.Exit(1)
		}
	}

	<-ctx.Done()
}

// pastedPushAPI satisfies the platform push surface with credentials pasted
// by the operator. Permission is always granted; Unsubscribe forgets them.
type pastedPushAPI struct {
	subscription entity.Subscription
	dropped      bool
}

func (p *pastedPushAPI) Permission(context.Context) (controller.Permission, error) {
	return controller.PermissionGranted, nil
}

func (p *pastedPushAPI) RequestPermission(context.Context) (controller.Permission, error) {
	return controller.PermissionGranted, nil
}

func (p *pastedPushAPI) Subscription(context.Context) (*entity.Subscription, error) {
	if p.dropped || p.subscription.Endpoint == "" {
		return nil, nil
	}
	sub := p.subscription

	return &sub, nil
}

func (p *pastedPushAPI) Subscribe(context.Context) (entity.Subscription, error) {
	if p.subscription.Endpoint == "" {
		return entity.Subscription{}, controller.ErrPushUnsupported
	}
	p.dropped = false

	return p.subscription, nil
}

func (p *pastedPushAPI) Unsubscribe(context.Context) error {
	p.dropped = true

	return nil
}
