package store

import (
	"context"
	"database/sql"
)

// CleanupOrphans removes content blobs and fragments/embeddings no
// longer referenced by any document, and vec_fragments rows whose
// fragment has been removed. Call periodically; safe to run
// concurrently with reads since deletes only ever touch rows with no
// remaining referrer.
func (s *Store) CleanupOrphans(ctx context.Context) (contentRemoved, fragmentsRemoved int64, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, `
			DELETE FROM fragments WHERE hash NOT IN (SELECT hash FROM documents)`)
		if execErr != nil {
			return execErr
		}
		fragmentsRemoved, _ = res.RowsAffected()

		if _, execErr := tx.ExecContext(ctx,
			`DELETE FROM vec_fragments WHERE fragment_id NOT IN (SELECT id FROM fragments)`); execErr != nil {
			return execErr
		}

		res, execErr = tx.ExecContext(ctx,
			`DELETE FROM content WHERE hash NOT IN (SELECT hash FROM documents)`)
		if execErr != nil {
			return execErr
		}
		contentRemoved, _ = res.RowsAffected()
		return nil
	})
	return contentRemoved, fragmentsRemoved, err
}

// Vacuum reclaims disk space after a cleanup pass. SQLite's VACUUM
// cannot run inside a transaction.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `VACUUM`)
	return err
}
