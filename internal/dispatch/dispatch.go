// Package dispatch detects freshly published prices and web-pushes every
// subscriber of the affected zone, pruning endpoints the push service
// rejects and advancing the per-zone cursor so repeated runs stay idempotent.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"spot/internal/domain/entity"
	"spot/internal/domain/repository"
	"spot/internal/domain/service"
	"spot/internal/infra/prices"

	"github.com/pkg/errors"
)

// RegistryAPI is the slice of the registry the dispatch job drives.
type RegistryAPI interface {
	ListSubscriptions(ctx context.Context, zone string) ([]entity.Subscription, error)
	GetCursor(ctx context.Context, zone string) (string, error)
	PutCursor(ctx context.Context, zone, timestamp string) error
	Unregister(ctx context.Context, id string) error
}

// pushMessage is the payload delivered to subscribers.
type pushMessage struct {
	Zone      string `json:"zone"`
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"url"`
}

// Runner processes zones one at a time.
type Runner struct {
	logger     *slog.Logger
	prices     *prices.Client
	registry   RegistryAPI
	sender     service.PushSender
	dataOrigin string
}

// NewRunner wires a dispatch run against a data origin and registry.
func NewRunner(logger *slog.Logger, priceClient *prices.Client, registry RegistryAPI, sender service.PushSender, dataOrigin string) *Runner {
	return &Runner{
		logger:     logger,
		prices:     priceClient,
		registry:   registry,
		sender:     sender,
		dataOrigin: dataOrigin,
	}
}

// ProcessZones runs every zone, continuing past per-zone failures so one
// broken feed cannot starve the rest.
func (r *Runner) ProcessZones(ctx context.Context, zones []string) error {
	failed := 0
	for _, zone := range zones {
		if err := r.ProcessZone(ctx, zone); err != nil {
			failed++
			r.logger.Error("Zone dispatch failed",
				slog.String("zone", zone),
				slog.Any("error", err),
			)
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d zones failed", failed, len(zones))
	}

	return nil
}

// ProcessZone compares the zone's latest published timestamp against the
// stored cursor and notifies subscribers on a strict advance.
func (r *Runner) ProcessZone(ctx context.Context, rawZone string) error {
	zone, err := entity.NormalizeZone(rawZone)
	if err != nil {
		return err
	}

	latest, err := r.prices.LatestTimestamp(ctx, r.dataOrigin, zone)
	if errors.Is(err, prices.ErrFeedNotFound) {
		r.logger.Info("Latest data not found, skipping", slog.String("zone", zone))

		return nil
	}
	if err != nil {
		return errors.Wrap(err, "fetch latest data")
	}

	stored, err := r.registry.GetCursor(ctx, zone)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return errors.Wrap(err, "read zone cursor")
	}

	if stored == "" {
		// First run for this zone: record the current value without
		// announcing, so subscribers are not spammed with old data.
		r.logger.Info("No previous timestamp stored, seeding cursor",
			slog.String("zone", zone),
			slog.String("timestamp", latest),
		)

		return errors.Wrap(r.registry.PutCursor(ctx, zone, latest), "seed zone cursor")
	}

	if latest <= stored {
		r.logger.Debug("No new data", slog.String("zone", zone))

		return nil
	}

	r.logger.Info("New data detected",
		slog.String("zone", zone),
		slog.String("from", stored),
		slog.String("to", latest),
	)

	subs, err := r.registry.ListSubscriptions(ctx, zone)
	if err != nil {
		return errors.Wrap(err, "list subscriptions")
	}

	if len(subs) > 0 {
		payload, err := json.Marshal(pushMessage{
			Zone:      zone,
			Timestamp: latest,
			Title:     "New prices available for " + zone,
			Body:      "Day-ahead rates were just published.",
			URL:       "/explorer/?zones=" + zone,
		})
		if err != nil {
			return errors.Wrap(err, "marshal push payload")
		}

		sent, removed := r.fanOut(ctx, subs, payload)
		r.logger.Info("Dispatch complete",
			slog.String("zone", zone),
			slog.Int("sent", sent),
			slog.Int("removed", removed),
		)
	}

	return errors.Wrap(r.registry.PutCursor(ctx, zone, latest), "advance zone cursor")
}

// fanOut pushes the payload to each subscriber. Endpoints the push service
// reports gone are pruned from the registry; other failures are logged and
// the subscription kept for the next run.
func (r *Runner) fanOut(ctx context.Context, subs []entity.Subscription, payload []byte) (sent, removed int) {
	for _, sub := range subs {
		err := r.sender.Send(ctx, sub, payload)
		if err == nil {
			sent++

			continue
		}

		if errors.Is(err, service.ErrSubscriptionGone) {
			id := sub.ID()
			r.logger.Info("Pruning stale subscription", slog.String("id", id))
			if err := r.registry.Unregister(ctx, id); err != nil {
				r.logger.Warn("Failed to prune subscription",
					slog.String("id", id),
					slog.Any("error", err),
				)
			} else {
				removed++
			}

			continue
		}

		r.logger.Warn("Push failed", slog.Any("error", err))
	}

	return sent, removed
}
