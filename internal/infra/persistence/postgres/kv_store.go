package postgres

import (
	"context"

	"spot/internal/infra/kv"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// kvEntry is the single-table KV namespace backing the registry.
type kvEntry struct {
	Key   string `gorm:"column:key;primaryKey;size:512"`
	Value []byte `gorm:"column:value"`
}

func (kvEntry) TableName() string {
	return "registry_entries"
}

// KVStore implements kv.Store on a Postgres table.
type KVStore struct {
	db *gorm.DB
}

var _ kv.Store = (*KVStore)(nil)

// NewKVStore migrates the backing table and returns the store.
func NewKVStore(db *gorm.DB) (*KVStore, error) {
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, errors.Wrap(err, "migrate registry_entries")
	}

	return &KVStore{db: db}, nil
}

// Get implements kv.Store.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var entry kvEntry
	err := s.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select entry")
	}

	return entry.Value, nil
}

// Put implements kv.Store as an upsert, so writes replace prior values.
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	entry := kvEntry{Key: key, Value: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&entry).Error

	return errors.Wrap(err, "upsert entry")
}

// Delete implements kv.Store; deleting an absent key succeeds.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Delete(&kvEntry{}, "key = ?", key).Error

	return errors.Wrap(err, "delete entry")
}

// ListPrefix implements kv.Store with a prefix LIKE scan.
func (s *KVStore) ListPrefix(ctx context.Context, prefix string) ([]kv.Entry, error) {
	var rows []kvEntry
	err := s.db.WithContext(ctx).
		Where("key LIKE ?", escapeLike(prefix)+"%").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "scan prefix")
	}

	entries := make([]kv.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, kv.Entry{Key: row.Key, Value: row.Value})
	}

	return entries, nil
}

func escapeLike(s string) string {
	escaped := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' || s[i] == '_' || s[i] == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, s[i])
	}

	return string(escaped)
}
