package postgres

import (
	"context"
	"fmt"
	"time"

	"launchpad-terminal/internal/observability"
	"launchpad-terminal/internal/storage"
)

// SettingsStore implements storage.SettingsStore using PostgreSQL.
type SettingsStore struct {
	pool    *Pool
	metrics *observability.Metrics
}

// NewSettingsStore creates a new SettingsStore. metrics may be nil.
func NewSettingsStore(pool *Pool, metrics *observability.Metrics) *SettingsStore {
	return &SettingsStore{pool: pool, metrics: metrics}
}

func (s *SettingsStore) observe(operation string, start time.Time, err *error) {
	s.metrics.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), *err)
}

// Compile-time interface check.
var _ storage.SettingsStore = (*SettingsStore)(nil)

// Get returns the blob under key. Returns ErrNotFound if absent.
func (s *SettingsStore) Get(ctx context.Context, key string) (_ []byte, err error) {
	if key == "" {
		return nil, storage.ErrInvalidInput
	}
	defer s.observe("get_setting", time.Now(), &err)

	var value []byte
	err = s.pool.QueryRow(ctx, `SELECT value::text FROM terminal_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// Put upserts the blob under key. The value must be valid JSON.
func (s *SettingsStore) Put(ctx context.Context, key string, value []byte) (err error) {
	if key == "" {
		return storage.ErrInvalidInput
	}
	defer s.observe("put_setting", time.Now(), &err)

	query := `
		INSERT INTO terminal_settings (key, value, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err = s.pool.Exec(ctx, query, key, string(value)); err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *SettingsStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM terminal_settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}
