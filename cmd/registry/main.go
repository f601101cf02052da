package main

import (
	"context"
	"log/slog"
	"os"

	"spot/config"
	"spot/internal/delivery"
	"spot/internal/delivery/http"
	"spot/internal/delivery/http/middleware"
	"spot/internal/delivery/http/router/handler"
	"spot/internal/domain/repository"
	logs "spot/internal/infra/log"
	"spot/internal/infra/persistence/postgres"
	"spot/internal/infra/registry"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func main() {
	fx.New(
		injectInfra(),
		injectRepo(),
		injectMiddleware(),
		injectHandler(),
		injectDelivery(),
		fx.Invoke(
			startServer,
		),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Provide(
		config.New,
		logs.New,
		context.Background,
		postgres.New,
	)
}

func injectRepo() fx.Option {
	return fx.Options(
		fx.Provide(
			newRegistryStore,
			asSubscriptionStore,
			asCursorStore,
		),
	)
}

// newRegistryStore backs the registry with the Postgres KV table.
func newRegistryStore(db *gorm.DB) (*registry.Store, error) {
	kvStore, err := postgres.NewKVStore(db)
	if err != nil {
		return nil, err
	}

	return registry.NewStore(kvStore), nil
}

func asSubscriptionStore(store *registry.Store) repository.SubscriptionStore { return store }

func asCursorStore(store *registry.Store) repository.CursorStore { return store }

func injectMiddleware() fx.Option {
	return fx.Options(
		fx.Provide(
			middleware.NewAdminMiddleware,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewSubscriptionHandler,
			handler.NewCursorHandler,
			handler.NewHealthHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				http.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start server", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}
}
