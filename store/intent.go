package store

import (
	"context"
	"database/sql"
	"time"
)

// IntentCacheEntry mirrors a row of the intent_cache table.
type IntentCacheEntry struct {
	QueryHash     string
	QueryText     string
	Intent        string
	Confidence    float64
	TemporalStart string
	TemporalEnd   string
	CachedAt      time.Time
}

// GetIntentCache returns the cached classification for queryHash, and
// false if absent or older than ttl. Entries older than ttl are left
// in place (a later write will overwrite them); the classifier
// re-runs and re-caches on a miss.
func (s *Store) GetIntentCache(ctx context.Context, queryHash string, ttl time.Duration) (IntentCacheEntry, bool, error) {
	var e IntentCacheEntry
	var start, end sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT query_hash, query_text, intent, confidence, temporal_start, temporal_end, cached_at
		FROM intent_cache WHERE query_hash = ?`, queryHash)
	err := row.Scan(&e.QueryHash, &e.QueryText, &e.Intent, &e.Confidence, &start, &end, &e.CachedAt)
	if err == sql.ErrNoRows {
		return IntentCacheEntry{}, false, nil
	}
	if err != nil {
		return IntentCacheEntry{}, false, err
	}
	e.TemporalStart, e.TemporalEnd = start.String, end.String
	if time.Since(e.CachedAt) > ttl {
		return IntentCacheEntry{}, false, nil
	}
	return e, true, nil
}

// PutIntentCache stores or refreshes a classification.
func (s *Store) PutIntentCache(ctx context.Context, e IntentCacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO intent_cache (query_hash, query_text, intent, confidence, temporal_start, temporal_end, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(query_hash) DO UPDATE SET
			intent = excluded.intent, confidence = excluded.confidence,
			temporal_start = excluded.temporal_start, temporal_end = excluded.temporal_end,
			cached_at = CURRENT_TIMESTAMP`,
		e.QueryHash, e.QueryText, e.Intent, e.Confidence, nullable(e.TemporalStart), nullable(e.TemporalEnd))
	return err
}
