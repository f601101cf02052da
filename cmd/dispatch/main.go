// Dispatch detects freshly published prices and notifies subscribers.
//
// Run it with zero or more bidding zones:
//
//	dispatch           # process every configured zone
//	dispatch SE1 DK1   # process a subset
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spot/config"
	"spot/internal/dispatch"
	"spot/internal/domain/entity"
	logs "spot/internal/infra/log"
	"spot/internal/infra/prices"
	"spot/internal/infra/push"
	"spot/internal/infra/registry"

	"github.com/joho/godotenv"
)

const registryCallTimeout = 30 * time.Second

func main() {
	// A .env beats exporting credentials by hand during local runs.
	_ = godotenv.Load()

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

	zones := os.Args[1:]
	if len(zones) == 0 {
		zones = cfg.Zones
	}
	if len(zones) == 0 {
		logger.Error("No zones given and none configured")
		os.Exit(1)
	}

	dataOrigin := cfg.Watcher.DataOrigin
	if dataOrigin == "" {
		dataOrigin = entity.ProductionDataOrigin
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := dispatch.NewRunner(
		logger,
		prices.NewClient(cfg.Watcher.FetchTimeout),
		registry.NewClient(cfg.Registry.BaseURL, cfg.Registry.AdminToken, registryCallTimeout),
		push.NewSender(cfg.Push.Subject, cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.TTL),
		dataOrigin,
	)

	if err := runner.ProcessZones(ctx, zones); err != nil {
		logger.Error("Dispatch run failed", slog.Any("error", err))
		os.Exit(1)
	}
}
