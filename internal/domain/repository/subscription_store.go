// Package repository defines the persistence boundaries of the domain.
package repository

import (
	"context"

	"spot/internal/domain/entity"

	"github.com/pkg/errors"
)

// ErrNotFound indicates an absent subscription, zone mapping, or cursor.
var ErrNotFound = errors.New("not found")

// SubscriptionStore persists push subscriptions keyed by zone and by their
// content-addressed id. A subscription belongs to at most one zone at a time;
// registering it under a new zone must remove the old zone-keyed record.
type SubscriptionStore interface {
	// Register stores the subscription under zone and returns its id.
	Register(ctx context.Context, sub entity.Subscription, zone string) (string, error)
	// Unregister removes the subscription with the given id. Removing an
	// unknown id is not an error.
	Unregister(ctx context.Context, id string) error
	// ListByZone returns every subscription currently stored under zone.
	ListByZone(ctx context.Context, zone string) ([]entity.Subscription, error)
	// ZoneForID resolves the reverse map id → zone. ErrNotFound when absent.
	ZoneForID(ctx context.Context, id string) (string, error)
}

// CursorStore persists the per-zone latest-announced timestamp.
type CursorStore interface {
	// GetCursor returns the stored timestamp for zone. ErrNotFound when the
	// zone has never been announced.
	GetCursor(ctx context.Context, zone string) (string, error)
	// PutCursor stores the timestamp for zone, replacing any previous value.
	PutCursor(ctx context.Context, zone, timestamp string) error
}
