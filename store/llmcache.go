package store

import (
	"context"
	"database/sql"
)

// GetLLMCache returns the cached value for key, and whether it was
// present.
func (s *Store) GetLLMCache(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM llm_cache WHERE cache_key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// PutLLMCache stores or refreshes a cache entry.
func (s *Store) PutLLMCache(ctx context.Context, key, operation, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_cache (cache_key, operation, value) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET value = excluded.value, created_at = CURRENT_TIMESTAMP`,
		key, operation, value)
	return err
}

// SweepLLMCache deletes the oldest rows beyond keepMax, the probabilistic
// cap-enforcement the Gateway triggers on a small fraction of writes.
func (s *Store) SweepLLMCache(ctx context.Context, keepMax int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM llm_cache WHERE cache_key NOT IN (
			SELECT cache_key FROM llm_cache ORDER BY created_at DESC LIMIT ?
		)`, keepMax)
	return err
}
