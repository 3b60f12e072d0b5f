package store

import (
	"context"
	"database/sql"
	"fmt"
)

// scanDocument scans a documents row in the fixed column order used
// by every query in this file.
func scanDocument(row interface {
	Scan(dest ...any) error
}) (*Document, error) {
	var d Document
	var tags, amemKeywords, amemTags, obsFacts, obsConcepts, filesRead, filesModified sql.NullString
	var domain, workstream, reviewBy, amemContext, obsType, obsNarrative sql.NullString
	var active int

	err := row.Scan(
		&d.ID, &d.Collection, &d.Path, &d.Title, &d.Hash, &d.ContentHash,
		&d.CreatedAt, &d.ModifiedAt, &active, &d.ContentType,
		&domain, &workstream, &tags, &reviewBy, &d.Confidence, &d.AccessCount,
		&amemKeywords, &amemTags, &amemContext,
		&obsType, &obsFacts, &obsNarrative, &obsConcepts,
		&filesRead, &filesModified,
	)
	if err != nil {
		return nil, err
	}

	d.Active = active != 0
	d.Domain = domain.String
	d.Workstream = workstream.String
	d.ReviewBy = reviewBy.String
	d.AmemContext = amemContext.String
	d.ObservationType = obsType.String
	d.ObservationNarrative = obsNarrative.String
	d.Tags = unmarshalStrings(&tags.String)
	d.AmemKeywords = unmarshalStrings(&amemKeywords.String)
	d.AmemTags = unmarshalStrings(&amemTags.String)
	d.ObservationFacts = unmarshalStrings(&obsFacts.String)
	d.ObservationConcepts = unmarshalStrings(&obsConcepts.String)
	d.FilesRead = unmarshalStrings(&filesRead.String)
	d.FilesModified = unmarshalStrings(&filesModified.String)
	return &d, nil
}

const documentColumns = `id, collection, path, title, hash, content_hash,
	created_at, modified_at, active, content_type,
	domain, workstream, tags, review_by, confidence, access_count,
	amem_keywords, amem_tags, amem_context,
	observation_type, observation_facts, observation_narrative, observation_concepts,
	files_read, files_modified`

// UpsertDocument implements the three-variant upsert described in the
// store's contract: new, reactivate-inactive, or update-active,
// keyed by the (collection, path) uniqueness constraint. It returns
// the row id and whether this is a brand-new logical document (true
// for both "new" and "reactivate", since both start the A-MEM
// is_new path).
func (s *Store) UpsertDocument(ctx context.Context, d Document) (id int64, isNew bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		var existingActive int
		row := tx.QueryRowContext(ctx,
			`SELECT id, active FROM documents WHERE collection = ? AND path = ?`, d.Collection, d.Path)
		scanErr := row.Scan(&existingID, &existingActive)

		switch scanErr {
		case sql.ErrNoRows:
			// amem_keywords stays NULL until a note is built, which is
			// what ListDocumentsMissingNote selects on.
			var amemKeywords any
			if len(d.AmemKeywords) > 0 {
				amemKeywords = marshalStrings(d.AmemKeywords)
			}
			res, execErr := tx.ExecContext(ctx, `
				INSERT INTO documents (
					collection, path, title, hash, content_hash, active, content_type,
					domain, workstream, tags, review_by, confidence,
					amem_keywords, amem_tags, amem_context,
					observation_type, observation_facts, observation_narrative, observation_concepts,
					files_read, files_modified
				) VALUES (?,?,?,?,?,1,?, ?,?,?,?,?, ?,?,?, ?,?,?,?, ?,?)`,
				d.Collection, d.Path, d.Title, d.Hash, d.ContentHash, d.ContentType,
				nullable(d.Domain), nullable(d.Workstream), marshalStrings(d.Tags), nullable(d.ReviewBy), confidenceOrDefault(d.Confidence),
				amemKeywords, marshalStrings(d.AmemTags), nullable(d.AmemContext),
				nullable(d.ObservationType), marshalStrings(d.ObservationFacts), nullable(d.ObservationNarrative), marshalStrings(d.ObservationConcepts),
				marshalStrings(d.FilesRead), marshalStrings(d.FilesModified),
			)
			if execErr != nil {
				return fmt.Errorf("inserting document: %w", execErr)
			}
			id, err = res.LastInsertId()
			isNew = true
			return err
		case nil:
			isNew = existingActive == 0 // reactivation counts as new for A-MEM purposes
			_, execErr := tx.ExecContext(ctx, `
				UPDATE documents SET
					title = ?, hash = ?, content_hash = ?, active = 1, content_type = ?,
					domain = ?, workstream = ?, tags = ?, review_by = ?,
					modified_at = CURRENT_TIMESTAMP
				WHERE id = ?`,
				d.Title, d.Hash, d.ContentHash, d.ContentType,
				nullable(d.Domain), nullable(d.Workstream), marshalStrings(d.Tags), nullable(d.ReviewBy),
				existingID,
			)
			id = existingID
			return execErr
		default:
			return scanErr
		}
	})
	return id, isNew, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func confidenceOrDefault(c float64) float64 {
	if c == 0 {
		return 0.5
	}
	return c
}

// DeactivateDocument marks the (collection, path) document inactive.
// Idempotent: deactivating an already-inactive or nonexistent row is
// not an error.
func (s *Store) DeactivateDocument(ctx context.Context, collection, path string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET active = 0, modified_at = CURRENT_TIMESTAMP WHERE collection = ? AND path = ? AND active = 1`,
		collection, path)
	return err
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDocumentByPath fetches the (collection, path) document,
// regardless of active state.
func (s *Store) GetDocumentByPath(ctx context.Context, collection, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE collection = ? AND path = ?`, collection, path)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// ListActivePaths returns the set of active paths in a collection, used
// by the indexer to detect files that disappeared between walks.
func (s *Store) ListActivePaths(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM documents WHERE collection = ? AND active = 1`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ListDocumentsMissingNote returns up to limit active documents with no
// A-MEM note yet, ordered by creation time — the Consolidation
// Worker's selection query.
func (s *Store) ListDocumentsMissingNote(ctx context.Context, limit int) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE active = 1 AND amem_keywords IS NULL ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateNote persists the A-MEM note (keywords/tags/context) for a
// document, used by both initial construction and consolidation.
func (s *Store) UpdateNote(ctx context.Context, id int64, keywords, tags []string, context string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET amem_keywords = ?, amem_tags = ?, amem_context = ? WHERE id = ?`,
		marshalStrings(keywords), marshalStrings(tags), context, id)
	return err
}

// IncrementAccessCount bumps access_count for a document, the
// Feedback Loop's write path into C8's confidence formula.
func (s *Store) IncrementAccessCount(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET access_count = access_count + 1 WHERE id = ?`, id)
	return err
}

// AllActiveDocuments loads every active document, used by the Graph
// Builder's temporal-backbone pass.
func (s *Store) AllActiveDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE active = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
