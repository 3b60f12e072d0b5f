// Package store implements ClawMem's embedded, content-addressable
// document store: SQLite for relational data, FTS5 for lexical search,
// and sqlite-vec for dense vector search, fused behind one *sql.DB
// handle.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Document mirrors a row of the documents table.
type Document struct {
	ID                   int64     `json:"id"`
	Collection           string    `json:"collection"`
	Path                 string    `json:"path"`
	Title                string    `json:"title"`
	Hash                 string    `json:"hash"`
	ContentHash          string    `json:"content_hash"`
	CreatedAt            time.Time `json:"created_at"`
	ModifiedAt           time.Time `json:"modified_at"`
	Active               bool      `json:"active"`
	ContentType          string    `json:"content_type"`
	Domain               string    `json:"domain,omitempty"`
	Workstream           string    `json:"workstream,omitempty"`
	Tags                 []string  `json:"tags,omitempty"`
	ReviewBy             string    `json:"review_by,omitempty"`
	Confidence           float64   `json:"confidence"`
	AccessCount          int       `json:"access_count"`
	AmemKeywords         []string  `json:"amem_keywords,omitempty"`
	AmemTags             []string  `json:"amem_tags,omitempty"`
	AmemContext          string    `json:"amem_context,omitempty"`
	ObservationType      string    `json:"observation_type,omitempty"`
	ObservationFacts     []string  `json:"observation_facts,omitempty"`
	ObservationNarrative string    `json:"observation_narrative,omitempty"`
	ObservationConcepts  []string  `json:"observation_concepts,omitempty"`
	FilesRead            []string  `json:"files_read,omitempty"`
	FilesModified        []string  `json:"files_modified,omitempty"`
}

// Fragment mirrors a row of the fragments table.
type Fragment struct {
	ID            int64     `json:"id"`
	Hash          string    `json:"hash"`
	Seq           int       `json:"seq"`
	Pos           int       `json:"pos"`
	FragmentType  string    `json:"fragment_type"`
	FragmentLabel string    `json:"fragment_label,omitempty"`
	Model         string    `json:"model,omitempty"`
	EmbeddedAt    time.Time `json:"embedded_at,omitzero"`
}

// Store wraps a SQLite database providing content, document, fragment,
// vector, relation, and session persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (creating if necessary) the database at dbPath and
// ensures the schema, migrations, and vector table dimension are
// current.
func New(dbPath string, embeddingDim int) (*Store, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating db directory: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	s := &Store{db: db, embeddingDim: embeddingDim}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return nil, fmt.Errorf("creating schema_meta: %w", err)
	}
	if err := s.ensureEmbeddingDim(ctx, embeddingDim); err != nil {
		return nil, fmt.Errorf("checking embedding dimension: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL(embeddingDim)); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying handle for callers that need ad-hoc
// queries (e.g. consolidation bookkeeping).
func (s *Store) DB() *sql.DB { return s.db }

// EmbeddingDim returns the vector dimension this store was opened with.
func (s *Store) EmbeddingDim() int { return s.embeddingDim }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// ensureEmbeddingDim drops and rebuilds vec_fragments when the
// requested dimension differs from the one recorded at last bootstrap,
// per the schema-bootstrap invariant in the store's contract.
func (s *Store) ensureEmbeddingDim(ctx context.Context, dim int) error {
	var recorded string
	row := s.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'embedding_dim'`)
	err := row.Scan(&recorded)
	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx, `INSERT INTO schema_meta(key, value) VALUES ('embedding_dim', ?)`, fmt.Sprint(dim))
		return err
	}
	if err != nil {
		return err
	}
	if recorded == fmt.Sprint(dim) {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS vec_fragments`); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE fragments SET embedded_at = NULL, model = NULL`); err != nil {
		_ = err // fragments table may not exist yet on first bootstrap
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO schema_meta(key, value) VALUES ('embedding_dim', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprint(dim))
	return err
}

// inTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which is re-raised after
// rollback).
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 encodes a vector as little-endian bytes, the wire
// format sqlite-vec expects for a float[] column.
func serializeFloat32(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 is the inverse of serializeFloat32.
func deserializeFloat32(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// InsertContent stores a content blob, a no-op if the hash already
// exists (content is immutable and deduplicated by hash).
func (s *Store) InsertContent(ctx context.Context, hash, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO content (hash, body, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		hash, body)
	return err
}

// GetContent returns the body for hash.
func (s *Store) GetContent(ctx context.Context, hash string) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM content WHERE hash = ?`, hash).Scan(&body)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return body, err
}

// repeatPlaceholders returns a comma-separated "?" list of length n,
// for building dynamic IN (...) clauses.
func repeatPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
