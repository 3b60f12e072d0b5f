// Package graph builds and traverses the relation graph connecting
// documents: a temporal backbone over creation order, a semantic
// graph over embedding similarity, and an intent-weighted beam search
// for retrieval-time expansion.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clawmem/clawmem/llm"
	"github.com/clawmem/clawmem/store"
)

const (
	// semanticNeighborCount bounds how many semantic edges a single
	// document can gain per build pass.
	semanticNeighborCount = 10
	// semanticSimilarityThreshold is the minimum cosine similarity
	// (SearchVec already returns 1-distance) for two documents to be
	// linked, i.e. cosine distance < 1-threshold.
	semanticSimilarityThreshold = 0.7
	// temporalEdgeWeight is the fixed weight for consecutive-document
	// backbone edges.
	temporalEdgeWeight = 1.0
)

// Builder constructs the temporal and semantic edges of the relation
// graph from already-indexed documents.
type Builder struct {
	store  *store.Store
	gw     *llm.Gateway
	logger *slog.Logger
}

// NewBuilder builds a Builder.
func NewBuilder(s *store.Store, gw *llm.Gateway, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: s, gw: gw, logger: logger}
}

// BuildTemporalBackbone orders all active documents by creation time
// and inserts a fixed-weight `temporal` edge between every
// consecutive pair. Idempotent via the store's INSERT OR IGNORE
// semantics on the relation's unique key.
func (b *Builder) BuildTemporalBackbone(ctx context.Context) (int, error) {
	docs, err := b.store.AllActiveDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading active documents: %w", err)
	}

	inserted := 0
	for i := 1; i < len(docs); i++ {
		err := b.store.UpsertRelation(ctx, store.Relation{
			SourceID: docs[i-1].ID, TargetID: docs[i].ID,
			RelationType: "temporal", Weight: temporalEdgeWeight,
		})
		if err != nil {
			b.logger.Warn("graph: temporal edge insert failed", "from", docs[i-1].ID, "to", docs[i].ID, "error", err)
			continue
		}
		inserted++
	}
	return inserted, nil
}

// BuildSemanticGraph re-embeds each active document's title and body
// prefix, finds up to semanticNeighborCount other documents above the
// similarity threshold, and inserts `semantic` edges weighted by
// similarity.
func (b *Builder) BuildSemanticGraph(ctx context.Context) (int, error) {
	docs, err := b.store.AllActiveDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading active documents: %w", err)
	}

	inserted := 0
	for _, doc := range docs {
		body, err := b.store.GetContent(ctx, doc.Hash)
		if err != nil {
			continue
		}
		emb, err := b.gw.Embed(ctx, truncateRunes(body, 2000), false, doc.Title)
		if err != nil {
			b.logger.Warn("graph: embedding document for semantic graph failed", "doc", doc.ID, "error", err)
			continue
		}

		hits, err := b.store.SearchVec(ctx, emb.Vector, semanticNeighborCount+1)
		if err != nil {
			continue
		}

		for _, h := range hits {
			if h.DocumentID == doc.ID || h.Score < semanticSimilarityThreshold {
				continue
			}
			if err := b.store.UpsertRelation(ctx, store.Relation{
				SourceID: doc.ID, TargetID: h.DocumentID, RelationType: "semantic", Weight: h.Score,
			}); err != nil {
				continue
			}
			inserted++
		}
	}
	return inserted, nil
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
