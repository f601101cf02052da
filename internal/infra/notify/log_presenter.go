// Package notify holds alert presentation backends for the sync worker.
package notify

import (
	"context"
	"log/slog"

	"spot/internal/domain/service"
)

// LogPresenter surfaces notifications and badge changes through the
// structured log. It stands in for the platform notification surface when
// the watcher runs headless.
type LogPresenter struct {
	logger *slog.Logger
}

var _ service.AlertPresenter = (*LogPresenter)(nil)

// NewLogPresenter wraps a logger as the alert surface.
func NewLogPresenter(logger *slog.Logger) *LogPresenter {
	return &LogPresenter{logger: logger}
}

// Notify implements service.AlertPresenter.
func (p *LogPresenter) Notify(ctx context.Context, notification service.Notification) error {
	p.logger.LogAttrs(ctx, slog.LevelInfo, "[Watcher] Notification",
		slog.String("title", notification.Title),
		slog.String("body", notification.Body),
		slog.String("tag", notification.Tag),
		slog.String("url", notification.URL),
	)

	return nil
}

// SetBadge implements service.AlertPresenter.
func (p *LogPresenter) SetBadge(ctx context.Context) error {
	p.logger.LogAttrs(ctx, slog.LevelDebug, "[Watcher] Badge set")

	return nil
}

// ClearBadge implements service.AlertPresenter.
func (p *LogPresenter) ClearBadge(ctx context.Context) error {
	p.logger.LogAttrs(ctx, slog.LevelDebug, "[Watcher] Badge cleared")

	return nil
}
