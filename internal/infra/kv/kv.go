// Package kv abstracts the flat key-value namespace the registry stores
// subscriptions and cursors in, mirroring the edge KV binding the service
// was originally deployed against.
package kv

import (
	"context"

	"github.com/pkg/errors"
)

// ErrKeyNotFound indicates an absent key.
var ErrKeyNotFound = errors.New("key not found")

// Entry is one stored key-value pair.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a minimal KV namespace: point reads and writes plus prefix scans.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// ListPrefix returns all entries whose key starts with prefix, in
	// unspecified order.
	ListPrefix(ctx context.Context, prefix string) ([]Entry, error)
}
