package store

import (
	"context"
	"database/sql"
	"time"
)

// Session mirrors a row of the sessions table.
type Session struct {
	SessionID    string
	StartedAt    time.Time
	EndedAt      sql.NullTime
	HandoffPath  string
	Machine      string
	FilesChanged []string
	Summary      string
}

// StartSession records the beginning of an agent session, a no-op if
// the session id is already known.
func (s *Store) StartSession(ctx context.Context, sessionID, machine string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, machine) VALUES (?, ?)`, sessionID, machine)
	return err
}

// EndSession closes out a session with its handoff summary and the
// files it touched, used by the Feedback Loop at SessionEnd.
func (s *Store) EndSession(ctx context.Context, sessionID, handoffPath, summary string, filesChanged []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = CURRENT_TIMESTAMP, handoff_path = ?, summary = ?, files_changed = ?
		WHERE session_id = ?`,
		nullable(handoffPath), summary, marshalStrings(filesChanged), sessionID)
	return err
}

// UsageRecord mirrors a row of the usage_records table.
type UsageRecord struct {
	ID              int64
	SessionID       string
	HookName        string
	InjectedPaths   []string
	EstimatedTokens int
	WasReferenced   bool
}

// RecordUsage logs a hook's injected memory paths, the Feedback
// Loop's write side for later access-count correlation.
func (s *Store) RecordUsage(ctx context.Context, sessionID, hookName string, injectedPaths []string, estimatedTokens int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (session_id, hook_name, injected_paths, estimated_tokens)
		VALUES (?, ?, ?, ?)`,
		sessionID, hookName, marshalStrings(injectedPaths), estimatedTokens)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UnreferencedUsage returns usage records for a session not yet marked
// referenced, the candidate set the Feedback Loop correlates against
// the session transcript.
func (s *Store) UnreferencedUsage(ctx context.Context, sessionID string) ([]UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, hook_name, COALESCE(injected_paths, '[]'), estimated_tokens, was_referenced
		FROM usage_records WHERE session_id = ? AND was_referenced = 0`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var u UsageRecord
		var paths string
		var referenced int
		if err := rows.Scan(&u.ID, &u.SessionID, &u.HookName, &paths, &u.EstimatedTokens, &referenced); err != nil {
			return nil, err
		}
		u.InjectedPaths = unmarshalStrings(&paths)
		u.WasReferenced = referenced != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

// MarkUsageReferenced flags a usage record as having influenced the
// session's actual output.
func (s *Store) MarkUsageReferenced(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE usage_records SET was_referenced = 1 WHERE id = ?`, id)
	return err
}

// SeenRecently reports whether (hookName, promptHash) was recorded
// within window, implementing the hook-dedupe invariant, and records
// the current sighting regardless of the outcome so the window slides
// forward on every call.
func (s *Store) SeenRecently(ctx context.Context, hookName, promptHash, preview string, window time.Duration) (bool, error) {
	var lastSeen time.Time
	row := s.db.QueryRowContext(ctx,
		`SELECT last_seen_at FROM hook_dedupe WHERE hook_name = ? AND prompt_hash = ?`, hookName, promptHash)
	err := row.Scan(&lastSeen)

	seen := err == nil && time.Since(lastSeen) < window

	_, execErr := s.db.ExecContext(ctx, `
		INSERT INTO hook_dedupe (hook_name, prompt_hash, preview) VALUES (?, ?, ?)
		ON CONFLICT(hook_name, prompt_hash) DO UPDATE SET last_seen_at = CURRENT_TIMESTAMP, preview = excluded.preview`,
		hookName, promptHash, preview)
	if execErr != nil {
		return seen, execErr
	}
	if err != nil && err != sql.ErrNoRows {
		return seen, err
	}
	return seen, nil
}
