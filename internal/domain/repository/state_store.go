package repository

import (
	"context"

	"spot/internal/domain/entity"
)

// StateStore is the durable home of the WatchState record. Implementations
// must replace the whole record on Save; partial field mutation is not part
// of the contract.
type StateStore interface {
	// Load returns the stored WatchState, or the first-run default (and no
	// error) when nothing has been persisted yet.
	Load(ctx context.Context) (entity.WatchState, error)
	// Save persists the record, replacing whatever was stored before.
	Save(ctx context.Context, state entity.WatchState) error
}
