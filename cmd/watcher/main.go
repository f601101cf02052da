package main

import (
	"context"
	"log/slog"
	"os"

	"spot/config"
	"spot/internal/delivery"
	"spot/internal/delivery/worker"
	"spot/internal/delivery/worker/handler"
	"spot/internal/domain/repository"
	"spot/internal/domain/service"
	logs "spot/internal/infra/log"
	"spot/internal/infra/notify"
	"spot/internal/infra/persistence/state"
	"spot/internal/infra/prices"
	"spot/internal/watcher"

	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func main() {
	fx.New(
		injectInfra(),
		injectWorker(),
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
		newStateStore,
		newPricesClient,
		newPresenter,
	)
}

// newStateStore opens the durable WatchState file.
func newStateStore(cfg *config.Config) (repository.StateStore, error) {
	return state.NewFileStore(cfg.Watcher.StatePath)
}

func newPricesClient(cfg *config.Config) *prices.Client {
	return prices.NewClient(cfg.Watcher.FetchTimeout)
}

func newPresenter(logger *slog.Logger) service.AlertPresenter {
	return notify.NewLogPresenter(logger)
}

func injectWorker() fx.Option {
	return fx.Options(
		fx.Provide(
			watcher.NewHub,
			watcher.NewWorker,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewPushHandler,
			handler.NewPageHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				worker.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
			fx.Annotate(
				asWorkerDelivery,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

// asWorkerDelivery runs the worker loop alongside the HTTP server.
func asWorkerDelivery(w *watcher.Worker) delivery.Delivery { return w }

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
