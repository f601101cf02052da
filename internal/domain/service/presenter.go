package service

import "context"

// Notification is a user-visible alert raised by the sync worker.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// AlertPresenter is the platform surface the worker raises alerts on:
// notifications plus the badge indicator. Failures are advisory; the worker
// logs and moves on.
type AlertPresenter interface {
	Notify(ctx context.Context, notification Notification) error
	SetBadge(ctx context.Context) error
	ClearBadge(ctx context.Context) error
}
