// Package state persists the watcher's WatchState record. The contract is
// whole-record replacement: a save either lands completely or not at all.
package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"spot/internal/domain/entity"
	"spot/internal/domain/repository"

	"github.com/pkg/errors"
)

// FileStore keeps the WatchState in a single JSON file, written via a temp
// file and rename so a crashed write never leaves a torn record.
type FileStore struct {
	path string
}

var _ repository.StateStore = (*FileStore)(nil)

// NewFileStore creates the parent directory and returns the store.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create state directory")
	}

	return &FileStore{path: path}, nil
}

// Load implements repository.StateStore. A missing or unreadable file yields
// the first-run default.
func (s *FileStore) Load(_ context.Context) (entity.WatchState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entity.NewWatchState(), nil
		}

		return entity.NewWatchState(), errors.Wrap(err, "read state file")
	}

	var st entity.WatchState
	if err := json.Unmarshal(data, &st); err != nil {
		return entity.NewWatchState(), errors.Wrap(err, "decode state file")
	}

	return st, nil
}

// Save implements repository.StateStore.
func (s *FileStore) Save(_ context.Context, st entity.WatchState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".watchstate-*")
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return errors.Wrap(err, "write temp state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return errors.Wrap(err, "close temp state file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)

		return errors.Wrap(err, "replace state file")
	}

	return nil
}
