package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// SearchHit is a single ranked result from a lexical or vector search,
// scored into the shared (0,1] range so callers can fuse lists without
// caring which index produced them.
type SearchHit struct {
	DocumentID int64
	FragmentID int64
	Score      float64
}

// SearchFTS runs a BM25-ranked full-text query over documents_fts,
// field-weighted toward title over path over body, and maps BM25's
// unbounded (lower-is-better) score into (0,1] via 1/(1+bm25).
func (s *Store) SearchFTS(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if query == "" {
		return nil, ErrInvalidInput
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, bm25(documents_fts, 2.0, 3.0, 1.0) AS rank
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ? AND d.active = 1
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var docID int64
		var bm25 float64
		if err := rows.Scan(&docID, &bm25); err != nil {
			return nil, err
		}
		// bm25() returns a negative-or-zero value in SQLite's FTS5 where
		// lower is better; negate so 1/(1+x) stays well-behaved for
		// both sign conventions a future tokenizer change might produce.
		if bm25 < 0 {
			bm25 = -bm25
		}
		hits = append(hits, SearchHit{DocumentID: docID, Score: 1.0 / (1.0 + bm25)})
	}
	return hits, rows.Err()
}

// SearchVec performs a k-nearest-neighbor search against vec_fragments
// and resolves the results to documents, deduplicated so that up to
// limit distinct documents come back (keeping each document's closest
// fragment) rather than up to limit fragments. Internally this asks
// vec0 for 3*limit raw hits, since a single document's full/section/
// list/code fragments can otherwise crowd out every other document
// from the top-k before dedup ever runs.
//
// This runs in two strictly separate queries. vec0 virtual tables must
// never appear in the same statement as a regular table join: the
// first query touches vec_fragments alone to get fragment ids and
// distances, and the second is a plain dictionary lookup of those ids
// against fragments/documents. Collapsing this into one query is a
// correctness hazard regardless of whether a given driver build
// happens to tolerate it.
func (s *Store) SearchVec(ctx context.Context, embedding []float32, limit int) ([]SearchHit, error) {
	if len(embedding) != s.embeddingDim {
		return nil, fmt.Errorf("%w: embedding has %d dims, index has %d", ErrInvalidInput, len(embedding), s.embeddingDim)
	}

	// Step 1: vec_fragments alone.
	vecRows, err := s.db.QueryContext(ctx, `
		SELECT fragment_id, distance
		FROM vec_fragments
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`, serializeFloat32(embedding), limit*3)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	type hit struct {
		fragmentID int64
		distance   float64
	}
	var raw []hit
	for vecRows.Next() {
		var h hit
		if err := vecRows.Scan(&h.fragmentID, &h.distance); err != nil {
			vecRows.Close()
			return nil, err
		}
		raw = append(raw, h)
	}
	if err := vecRows.Err(); err != nil {
		vecRows.Close()
		return nil, err
	}
	vecRows.Close()

	if len(raw) == 0 {
		return nil, nil
	}

	// Step 2: dictionary join against documents/fragments by the ids
	// returned above, no vec0 table involved.
	ids := make([]any, len(raw))
	for i, h := range raw {
		ids[i] = h.fragmentID
	}

	query := fmt.Sprintf(`
		SELECT f.id, f.hash
		FROM fragments f
		JOIN documents d ON d.hash = f.hash
		WHERE f.id IN (%s) AND d.active = 1`, repeatPlaceholders(len(ids)))

	rows, err := s.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return nil, fmt.Errorf("resolving fragment ids: %w", err)
	}
	defer rows.Close()

	fragToHash := make(map[int64]string, len(raw))
	for rows.Next() {
		var fragID int64
		var hash string
		if err := rows.Scan(&fragID, &hash); err != nil {
			return nil, err
		}
		fragToHash[fragID] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hashes := make([]any, 0, len(fragToHash))
	seen := make(map[string]bool)
	for _, h := range fragToHash {
		if !seen[h] {
			seen[h] = true
			hashes = append(hashes, h)
		}
	}
	docRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, hash FROM documents WHERE hash IN (%s) AND active = 1`, repeatPlaceholders(len(hashes))), hashes...)
	if err != nil {
		return nil, fmt.Errorf("resolving documents by hash: %w", err)
	}
	defer docRows.Close()

	docByHash := make(map[string]int64)
	for docRows.Next() {
		var id int64
		var hash string
		if err := docRows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		docByHash[hash] = id
	}
	if err := docRows.Err(); err != nil {
		return nil, err
	}

	// Dedup by document, keeping the closest (lowest-distance) fragment
	// per document, so limit distinct documents come back instead of
	// limit fragments drawn from a handful of over-represented ones.
	type best struct {
		fragmentID int64
		distance   float64
	}
	bestByDoc := make(map[int64]best, len(raw))
	for _, h := range raw {
		hash, ok := fragToHash[h.fragmentID]
		if !ok {
			continue // fragment belongs to an inactive/deleted document
		}
		docID, ok := docByHash[hash]
		if !ok {
			continue
		}
		if cur, seen := bestByDoc[docID]; !seen || h.distance < cur.distance {
			bestByDoc[docID] = best{fragmentID: h.fragmentID, distance: h.distance}
		}
	}

	hits := make([]SearchHit, 0, len(bestByDoc))
	for docID, b := range bestByDoc {
		hits = append(hits, SearchHit{
			DocumentID: docID,
			FragmentID: b.fragmentID,
			// Cosine similarity, per the store's documented 1-distance
			// convention: vec0's distance metric is cosine distance, so
			// similarity is 1-distance, not a 1/(1+distance) reshaping.
			Score: 1 - b.distance,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DocumentEmbedding returns the seq=0 (whole-document) embedding for
// a document's content hash, the vector the graph traversal uses for
// cos(query, emb(v)) without re-embedding every neighbor it visits.
// Resolving the fragment id and reading vec_fragments are kept as two
// separate queries, matching SearchVec's strict-separation rule even
// though this lookup never joins the two tables in one statement.
func (s *Store) DocumentEmbedding(ctx context.Context, hash string) ([]float32, error) {
	var fragID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM fragments WHERE hash = ? AND seq = 0`, hash).Scan(&fragID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT embedding FROM vec_fragments WHERE fragment_id = ?`, fragID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deserializeFloat32(raw), nil
}

// InsertFragment registers a fragment row, returning its id.
func (s *Store) InsertFragment(ctx context.Context, f Fragment) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fragments (hash, seq, pos, fragment_type, fragment_label)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash, seq) DO UPDATE SET
			pos = excluded.pos, fragment_type = excluded.fragment_type, fragment_label = excluded.fragment_label`,
		f.Hash, f.Seq, f.Pos, f.FragmentType, nullable(f.FragmentLabel))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		// ON CONFLICT...UPDATE doesn't report LastInsertId on SQLite;
		// look the row back up by its unique key.
		row := s.db.QueryRowContext(ctx, `SELECT id FROM fragments WHERE hash = ? AND seq = ?`, f.Hash, f.Seq)
		if scanErr := row.Scan(&id); scanErr != nil {
			return 0, scanErr
		}
	}
	return id, nil
}

// EmbedFragment stores the embedding vector for an already-inserted
// fragment and marks it embedded.
func (s *Store) EmbedFragment(ctx context.Context, fragmentID int64, embedding []float32, model string) error {
	if len(embedding) != s.embeddingDim {
		return fmt.Errorf("%w: embedding has %d dims, index has %d", ErrInvalidInput, len(embedding), s.embeddingDim)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vec_fragments(fragment_id, embedding) VALUES (?, ?)
			 ON CONFLICT(fragment_id) DO UPDATE SET embedding = excluded.embedding`,
			fragmentID, serializeFloat32(embedding)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE fragments SET model = ?, embedded_at = CURRENT_TIMESTAMP WHERE id = ?`, model, fragmentID)
		return err
	})
}

// FragmentsForHash returns all fragments belonging to a content hash,
// ordered by sequence.
func (s *Store) FragmentsForHash(ctx context.Context, hash string) ([]Fragment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hash, seq, pos, fragment_type, COALESCE(fragment_label, ''), COALESCE(model, ''),
		       COALESCE(embedded_at, '1970-01-01')
		FROM fragments WHERE hash = ? ORDER BY seq`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fragment
	for rows.Next() {
		var f Fragment
		if err := rows.Scan(&f.ID, &f.Hash, &f.Seq, &f.Pos, &f.FragmentType, &f.FragmentLabel, &f.Model, &f.EmbeddedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
