// Package retrieval implements the four named retrieval pipelines
// (Keyword, Vector, Hybrid, Intent-aware), Reciprocal Rank Fusion,
// and the composite scoring (search/recency/confidence) that every
// pipeline's output is run through before reaching a caller.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	clawmem "github.com/clawmem/clawmem"
	"github.com/clawmem/clawmem/graph"
	"github.com/clawmem/clawmem/intent"
	"github.com/clawmem/clawmem/llm"
	"github.com/clawmem/clawmem/store"
	"golang.org/x/sync/errgroup"
)

// hybridFanoutLimit bounds how many query variants the hybrid
// pipeline fans its FTS+vector search out to concurrently, so a wide
// expand_query result doesn't flood the gateway with simultaneous
// embed calls.
const hybridFanoutLimit = 4

// maxExpansionVariants bounds expand_query's output per the hybrid
// pipeline's "up to 7 variants" contract.
const maxExpansionVariants = 7

// rerankMaxChars is the body-slice length cap fed to the cross-encoder.
const rerankMaxChars = 4000

// Engine runs the retrieval pipelines against one store/gateway pair.
type Engine struct {
	store        *store.Store
	gw           *llm.Gateway
	classifier   *intent.Classifier
	graphEnabled bool
	now          func() time.Time
}

// New builds an Engine. classifier may be nil, in which case the
// intent-aware pipeline falls back to balanced weights and never
// traverses the graph.
func New(s *store.Store, gw *llm.Gateway, classifier *intent.Classifier, graphEnabled bool) *Engine {
	return &Engine{store: s, gw: gw, classifier: classifier, graphEnabled: graphEnabled, now: time.Now}
}

// Keyword runs search_fts -> enrich -> composite.
func (e *Engine) Keyword(ctx context.Context, query string, limit int) ([]Scored, error) {
	hits, err := e.store.SearchFTS(ctx, sanitizeFTSQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: keyword search: %w", err)
	}
	return e.enrichAndScore(ctx, dedupeHits(hits), query, limit)
}

// Vector runs embed(query) -> knn -> enrich -> composite.
func (e *Engine) Vector(ctx context.Context, query string, limit int) ([]Scored, error) {
	emb, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embedding query: %w", err)
	}
	hits, err := e.store.SearchVec(ctx, emb, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search: %w", err)
	}
	return e.enrichAndScore(ctx, dedupeHits(hits), query, limit)
}

// Hybrid is the highest-quality pipeline: query expansion, per-variant
// FTS+vector fan-out, RRF fusion, cross-encoder rerank of the top 30,
// and a position-aware blend of the two scores.
func (e *Engine) Hybrid(ctx context.Context, query string, limit int) ([]Scored, error) {
	variants := e.expandQuery(ctx, query)

	type weighted struct {
		text   string
		weight float64
	}
	all := []weighted{{text: query, weight: 2.0}}
	for _, v := range variants {
		all = append(all, weighted{text: v.Text, weight: 1.0})
	}

	// Each variant's FTS search and embed+vector search run concurrently
	// across variants (bounded by hybridFanoutLimit), replacing the
	// teacher's raw channel fan-out with errgroup.Group for first-error
	// propagation; results are collected per-variant slot so the final
	// lists/weights stay in the same order a sequential loop would
	// produce.
	type variantResult struct {
		ftsHits, vecHits []store.SearchHit
	}
	results := make([]variantResult, len(all))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hybridFanoutLimit)
	for i, w := range all {
		i, w := i, w
		g.Go(func() error {
			if ftsHits, err := e.store.SearchFTS(gctx, sanitizeFTSQuery(w.text), limit); err != nil {
				slog.Warn("retrieval: hybrid fts variant failed", "error", err)
			} else {
				results[i].ftsHits = ftsHits
			}

			emb, err := e.embedQuery(gctx, w.text)
			if err != nil {
				slog.Warn("retrieval: hybrid embed variant failed", "error", err)
				return nil
			}
			vecHits, err := e.store.SearchVec(gctx, emb, limit)
			if err != nil {
				slog.Warn("retrieval: hybrid vector variant failed", "error", err)
				return nil
			}
			results[i].vecHits = vecHits
			return nil
		})
	}
	_ = g.Wait() // per-variant errors are already logged and degrade to an empty list, never fatal

	lists := make([][]store.SearchHit, 0, len(all)*2)
	weights := make([]float64, 0, len(all)*2)
	for i, w := range all {
		if len(results[i].ftsHits) > 0 {
			lists = append(lists, results[i].ftsHits)
			weights = append(weights, w.weight)
		}
		if len(results[i].vecHits) > 0 {
			lists = append(lists, results[i].vecHits)
			weights = append(weights, w.weight)
		}
	}

	ranked, err := FuseRRF(lists, weights, defaultRRFK, 30)
	if err != nil {
		return nil, fmt.Errorf("retrieval: hybrid fusion: %w", err)
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	rerankByID, err := e.rerankRanked(ctx, query, ranked)
	if err != nil {
		slog.Warn("retrieval: hybrid rerank failed, falling back to RRF order", "error", err)
	}

	blended := make([]store.SearchHit, 0, len(ranked))
	for i, r := range ranked {
		score := blendPositionAware(i+1, rerankByID[r.DocumentID])
		blended = append(blended, store.SearchHit{DocumentID: r.DocumentID, Score: score})
	}

	return e.enrichAndScore(ctx, blended, query, limit)
}

// IntentAware classifies the query, runs an intent-biased FTS+vector
// fusion, optionally folds in a graph traversal for WHY/ENTITY
// queries, reranks the top 30, and returns limit composite-scored
// results.
func (e *Engine) IntentAware(ctx context.Context, query string, limit int) ([]Scored, error) {
	result := intent.Result{Intent: intent.What, Confidence: 0}
	if e.classifier != nil {
		if r, err := e.classifier.Classify(ctx, query); err == nil {
			result = r
		} else {
			slog.Warn("retrieval: intent classification failed, defaulting to WHAT", "error", err)
		}
	}

	ftsWeight, vecWeight := 1.0, 1.0
	switch result.Intent {
	case intent.When:
		ftsWeight, vecWeight = 2.0, 1.0
	case intent.Why:
		ftsWeight, vecWeight = 1.0, 2.0
	}

	ftsHits, err := e.store.SearchFTS(ctx, sanitizeFTSQuery(query), 40)
	if err != nil {
		slog.Warn("retrieval: intent-aware fts failed", "error", err)
	}
	emb, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embedding query: %w", err)
	}
	vecHits, err := e.store.SearchVec(ctx, emb, 40)
	if err != nil {
		slog.Warn("retrieval: intent-aware vector failed", "error", err)
	}

	ranked, err := FuseRRF([][]store.SearchHit{ftsHits, vecHits}, []float64{ftsWeight, vecWeight}, defaultRRFK, 30)
	if err != nil {
		return nil, fmt.Errorf("retrieval: intent-aware fusion: %w", err)
	}

	rankedByID := make(map[int64]float64, len(ranked))
	for _, r := range ranked {
		rankedByID[r.DocumentID] = r.Score
	}

	if e.graphEnabled && (result.Intent == intent.Why || result.Intent == intent.Entity) {
		anchors := make([]graph.Visited, 0, 10)
		for i, r := range ranked {
			if i >= 10 {
				break
			}
			anchors = append(anchors, graph.Visited{DocumentID: r.DocumentID, Score: r.Score})
		}
		if len(anchors) > 0 {
			traversed, err := graph.Traverse(ctx, e.store, anchors, emb, graph.DefaultParams(result.Intent))
			if err != nil {
				slog.Warn("retrieval: graph traversal failed", "error", err)
			} else {
				rankedByID = graph.MergeIntoRanked(rankedByID, traversed)
			}
		}
	}

	merged := make([]RankedDoc, 0, len(rankedByID))
	for id, score := range rankedByID {
		merged = append(merged, RankedDoc{DocumentID: id, Score: score})
	}
	sortRankedDescending(merged)
	if len(merged) > 30 {
		merged = merged[:30]
	}

	rerankByID, err := e.rerankRanked(ctx, query, merged)
	if err != nil {
		slog.Warn("retrieval: intent-aware rerank failed, falling back to fused order", "error", err)
	}

	blended := make([]store.SearchHit, 0, len(merged))
	for i, r := range merged {
		score := blendPositionAware(i+1, rerankByID[r.DocumentID])
		blended = append(blended, store.SearchHit{DocumentID: r.DocumentID, Score: score})
	}

	return e.enrichAndScore(ctx, blended, query, limit)
}

// blendPositionAware mixes a rank-derived proxy for the fusion score
// (1/rank) with the cross-encoder rerank score, using the spec's
// position-aware ratio: top-3 weighs fusion rank 0.75, ranks 4-10
// weigh it 0.60, and beyond 10 the reranker gets the larger share.
func blendPositionAware(rank int, rerank float64) float64 {
	rankScore := 1.0 / float64(rank)
	switch {
	case rank <= 3:
		return 0.75*rankScore + 0.25*rerank
	case rank <= 10:
		return 0.60*rankScore + 0.40*rerank
	default:
		return 0.40*rankScore + 0.60*rerank
	}
}

// rerankRanked cross-encoder-reranks the documents named by ranked,
// slicing each body to rerankMaxChars, and returns a score per
// document id (absent for any document the rerank call couldn't
// resolve or score).
func (e *Engine) rerankRanked(ctx context.Context, query string, ranked []RankedDoc) (map[int64]float64, error) {
	if e.gw == nil || len(ranked) == 0 {
		return map[int64]float64{}, nil
	}

	ids := make([]int64, 0, len(ranked))
	texts := make([]string, 0, len(ranked))
	for _, r := range ranked {
		doc, err := e.store.GetDocument(ctx, r.DocumentID)
		if err != nil {
			continue
		}
		body, err := e.store.GetContent(ctx, doc.Hash)
		if err != nil {
			continue
		}
		ids = append(ids, r.DocumentID)
		texts = append(texts, truncateChars(body, rerankMaxChars))
	}
	if len(texts) == 0 {
		return map[int64]float64{}, nil
	}

	results, err := e.gw.Rerank(ctx, query, texts)
	if err != nil {
		return nil, err
	}

	queue := make(map[string][]float64, len(results))
	for _, r := range results {
		queue[r.File] = append(queue[r.File], r.Score)
	}
	out := make(map[int64]float64, len(ids))
	for i, text := range texts {
		q := queue[text]
		if len(q) == 0 {
			continue
		}
		out[ids[i]] = q[0]
		queue[text] = q[1:]
	}
	return out, nil
}

// expandQuery asks the gateway for up to maxExpansionVariants query
// variants, tolerating a nil gateway or a failed expansion by
// returning no variants (the pipeline still runs on the original
// query alone).
func (e *Engine) expandQuery(ctx context.Context, query string) []llm.QueryExpansion {
	if e.gw == nil {
		return nil
	}
	variants, err := e.gw.ExpandQuery(ctx, query, true, "")
	if err != nil {
		slog.Warn("retrieval: query expansion failed", "error", err)
		return nil
	}
	if len(variants) > maxExpansionVariants {
		variants = variants[:maxExpansionVariants]
	}
	return variants
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	res, err := e.gw.Embed(ctx, query, true, "")
	if err != nil {
		return nil, err
	}
	return res.Vector, nil
}

// enrichAndScore resolves each hit's document, extracts a query-aware
// snippet, and runs the composite scoring formula, returning at most
// limit results sorted by composite score.
func (e *Engine) enrichAndScore(ctx context.Context, hits []store.SearchHit, query string, limit int) ([]Scored, error) {
	now := e.now()
	out := make([]Scored, 0, len(hits))
	for _, h := range hits {
		doc, err := e.store.GetDocument(ctx, h.DocumentID)
		if err != nil {
			slog.Warn("retrieval: resolving document failed", "docid", h.DocumentID, "error", err)
			continue
		}
		if doc.ContentType == "" {
			doc.ContentType = contentTypeFromPath(doc.Path)
		}

		body, err := e.store.GetContent(ctx, doc.Hash)
		if err != nil {
			slog.Warn("retrieval: loading content failed", "docid", h.DocumentID, "error", err)
			body = ""
		}

		snippet := clawmem.ExtractSnippet(body, query, 400, nil)
		out = append(out, ScoreDocument(doc, h.Score, query, snippet, now))
	}

	w := WeightsFor(query)
	sortScored(out, w)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// dedupeHits keeps each document's best-scoring hit, since SearchFTS
// and SearchVec operate at fragment granularity and a document can
// surface more than once.
func dedupeHits(hits []store.SearchHit) []store.SearchHit {
	best := make(map[int64]store.SearchHit, len(hits))
	order := make([]int64, 0, len(hits))
	for _, h := range hits {
		if cur, ok := best[h.DocumentID]; !ok || h.Score > cur.Score {
			if !ok {
				order = append(order, h.DocumentID)
			}
			best[h.DocumentID] = h
		}
	}
	out := make([]store.SearchHit, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

func sortRankedDescending(docs []RankedDoc) {
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0 && docs[j-1].Score < docs[j].Score; j-- {
			docs[j-1], docs[j] = docs[j], docs[j-1]
		}
	}
}

func truncateChars(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
