// Package registry implements the subscription registry semantics on top of
// a flat KV namespace: zone-keyed subscription records, a reverse id → zone
// map, and per-zone timestamp cursors.
package registry

import (
	"context"
	"encoding/json"

	"spot/internal/domain/entity"
	"spot/internal/domain/repository"
	"spot/internal/infra/kv"

	"github.com/pkg/errors"
)

const (
	subPrefix    = "sub:"
	subIDPrefix  = "subid:"
	cursorPrefix = "ts:"
)

// Store persists subscriptions and cursors in a kv.Store.
type Store struct {
	kv kv.Store
}

var (
	_ repository.SubscriptionStore = (*Store)(nil)
	_ repository.CursorStore       = (*Store)(nil)
)

// NewStore wraps a KV namespace with registry semantics.
func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

func subKey(zone, id string) string { return subPrefix + zone + ":" + id }
func subIDKey(id string) string     { return subIDPrefix + id }
func cursorKey(zone string) string  { return cursorPrefix + zone }

// Register stores sub under zone. Re-registering the same endpoint is
// idempotent; when the endpoint was previously mapped to a different zone the
// stale zone-keyed record is removed first so no orphan survives the switch.
func (s *Store) Register(ctx context.Context, sub entity.Subscription, zone string) (string, error) {
	id := sub.ID()

	previousZone, err := s.ZoneForID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}
	if err == nil && previousZone != zone {
		if err := s.kv.Delete(ctx, subKey(previousZone, id)); err != nil {
			return "", errors.Wrap(err, "delete stale zone record")
		}
	}

	record, err := json.Marshal(sub)
	if err != nil {
		return "", errors.Wrap(err, "marshal subscription")
	}

	if err := s.kv.Put(ctx, subKey(zone, id), record); err != nil {
		return "", errors.Wrap(err, "store subscription")
	}
	if err := s.kv.Put(ctx, subIDKey(id), []byte(zone)); err != nil {
		return "", errors.Wrap(err, "store reverse map")
	}

	return id, nil
}

// Unregister removes the subscription and its reverse map entry. Unknown ids
// succeed silently so deletes can be retried.
func (s *Store) Unregister(ctx context.Context, id string) error {
	zone, err := s.ZoneForID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.kv.Delete(ctx, subKey(zone, id)); err != nil {
		return errors.Wrap(err, "delete subscription")
	}
	if err := s.kv.Delete(ctx, subIDKey(id)); err != nil {
		return errors.Wrap(err, "delete reverse map")
	}

	return nil
}

// ListByZone returns every subscription stored under zone. Records that fail
// to decode are skipped rather than failing the whole listing.
func (s *Store) ListByZone(ctx context.Context, zone string) ([]entity.Subscription, error) {
	entries, err := s.kv.ListPrefix(ctx, subPrefix+zone+":")
	if err != nil {
		return nil, errors.Wrap(err, "list zone subscriptions")
	}

	subs := make([]entity.Subscription, 0, len(entries))
	for _, entry := range entries {
		var sub entity.Subscription
		if err := json.Unmarshal(entry.Value, &sub); err != nil {
			continue
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

// ZoneForID resolves the reverse map.
func (s *Store) ZoneForID(ctx context.Context, id string) (string, error) {
	zone, err := s.kv.Get(ctx, subIDKey(id))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "read reverse map")
	}

	return string(zone), nil
}

// GetCursor returns the stored per-zone timestamp.
func (s *Store) GetCursor(ctx context.Context, zone string) (string, error) {
	value, err := s.kv.Get(ctx, cursorKey(zone))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "read cursor")
	}

	return string(value), nil
}

// PutCursor stores the per-zone timestamp. No monotonicity is enforced here:
// the dispatch job is the only writer and owns the ordering guarantee.
func (s *Store) PutCursor(ctx context.Context, zone, timestamp string) error {
	return errors.Wrap(s.kv.Put(ctx, cursorKey(zone), []byte(timestamp)), "store cursor")
}
