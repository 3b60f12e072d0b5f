package store

import (
	"context"
	"database/sql"
)

// Relation mirrors a row of the relations table.
type Relation struct {
	SourceID     int64
	TargetID     int64
	RelationType string
	Weight       float64
	Metadata     string
}

// UpsertRelation inserts a relation edge, idempotent on
// (source, target, type): a repeat call only refreshes the weight.
func (s *Store) UpsertRelation(ctx context.Context, r Relation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relations (source_id, target_id, relation_type, weight, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, relation_type) DO UPDATE SET weight = excluded.weight`,
		r.SourceID, r.TargetID, r.RelationType, r.Weight, nullable(r.Metadata))
	return err
}

// RelationsFrom returns all outgoing edges from a document, the graph
// traversal's adjacency lookup.
func (s *Store) RelationsFrom(ctx context.Context, sourceID int64) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, target_id, relation_type, weight, COALESCE(metadata, '') FROM relations WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.SourceID, &r.TargetID, &r.RelationType, &r.Weight, &r.Metadata); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllRelations loads the full relation graph, used by the Graph
// Builder when recomputing temporal-backbone edges in bulk.
func (s *Store) AllRelations(ctx context.Context) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, target_id, relation_type, weight, COALESCE(metadata, '') FROM relations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.SourceID, &r.TargetID, &r.RelationType, &r.Weight, &r.Metadata); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Evolution mirrors a row of the evolutions table.
type Evolution struct {
	MemoryID         int64
	TriggeredBy      int64
	Version          int
	PreviousKeywords []string
	PreviousContext  string
	NewKeywords      []string
	NewContext       string
	Reasoning        string
}

// LatestEvolutionVersion returns the highest version recorded for a
// memory, or 0 if it has never evolved.
func (s *Store) LatestEvolutionVersion(ctx context.Context, memoryID int64) (int, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM evolutions WHERE memory_id = ?`, memoryID).Scan(&v)
	if err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// ApplyEvolution appends an evolution record and updates the target
// document's note in the same transaction, so a neighbor's note and
// its evolution history never diverge.
func (s *Store) ApplyEvolution(ctx context.Context, e Evolution, newTags []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		next, err := nextVersion(ctx, tx, e.MemoryID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO evolutions (
				memory_id, triggered_by, version,
				previous_keywords, previous_context, new_keywords, new_context, reasoning
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.MemoryID, e.TriggeredBy, next,
			marshalStrings(e.PreviousKeywords), e.PreviousContext,
			marshalStrings(e.NewKeywords), e.NewContext, e.Reasoning,
		); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET amem_keywords = ?, amem_tags = ?, amem_context = ? WHERE id = ?`,
			marshalStrings(e.NewKeywords), marshalStrings(newTags), e.NewContext, e.MemoryID)
		return err
	})
}

func nextVersion(ctx context.Context, tx *sql.Tx, memoryID int64) (int, error) {
	var v sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM evolutions WHERE memory_id = ?`, memoryID).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64) + 1, nil
}

// EvolutionHistory returns a memory's evolution records in
// chronological order.
func (s *Store) EvolutionHistory(ctx context.Context, memoryID int64) ([]Evolution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, COALESCE(triggered_by, 0), version,
		       COALESCE(previous_keywords, '[]'), COALESCE(previous_context, ''),
		       COALESCE(new_keywords, '[]'), COALESCE(new_context, ''), COALESCE(reasoning, '')
		FROM evolutions WHERE memory_id = ? ORDER BY version ASC`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Evolution
	for rows.Next() {
		var e Evolution
		var prevKw, newKw string
		if err := rows.Scan(&e.MemoryID, &e.TriggeredBy, &e.Version,
			&prevKw, &e.PreviousContext, &newKw, &e.NewContext, &e.Reasoning); err != nil {
			return nil, err
		}
		e.PreviousKeywords = unmarshalStrings(&prevKw)
		e.NewKeywords = unmarshalStrings(&newKw)
		out = append(out, e)
	}
	return out, rows.Err()
}
