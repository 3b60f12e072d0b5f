package graph

import (
	"context"
	"math"
	"sort"

	"github.com/clawmem/clawmem/intent"
	"github.com/clawmem/clawmem/store"
)

const (
	lambdaIntent     = 0.6
	lambdaSimilarity = 0.4
	decayGamma       = 0.9
)

// TraversalParams bounds one beam search.
type TraversalParams struct {
	MaxDepth  int
	BeamWidth int
	Budget    int
	Intent    intent.Kind
}

// DefaultParams returns the spec's default bounds.
func DefaultParams(k intent.Kind) TraversalParams {
	return TraversalParams{MaxDepth: 3, BeamWidth: 8, Budget: 30, Intent: k}
}

// Visited is one document discovered by the traversal, with its final
// beam-search score.
type Visited struct {
	DocumentID int64
	Score      float64
}

// inboundAllowed is the set of relation types the traversal follows
// in reverse (target -> source) in addition to the universal outbound
// direction.
var inboundAllowed = map[string]bool{"semantic": true, "entity": true}

// Traverse runs an intent-weighted beam search outward from anchors
// (typically the top-10 of a fused retrieval list), returning every
// visited document sorted by score descending.
func Traverse(ctx context.Context, s *store.Store, anchors []Visited, queryEmbedding []float32, p TraversalParams) ([]Visited, error) {
	if len(anchors) == 0 {
		return nil, nil
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 3
	}
	if p.BeamWidth <= 0 {
		p.BeamWidth = 8
	}
	if p.Budget <= 0 {
		p.Budget = 30
	}

	weights := intent.WeightsFor(p.Intent)

	visited := make(map[int64]float64, len(anchors))
	frontier := make([]Visited, 0, len(anchors))
	for _, a := range anchors {
		if cur, ok := visited[a.DocumentID]; !ok || a.Score > cur {
			visited[a.DocumentID] = a.Score
		}
		frontier = append(frontier, a)
	}

	for depth := 0; depth < p.MaxDepth && len(frontier) > 0 && len(visited) < p.Budget; depth++ {
		var candidates []Visited

		for _, u := range frontier {
			edges, err := neighborsOf(ctx, s, u.DocumentID)
			if err != nil {
				continue
			}
			for _, e := range edges {
				if _, seen := visited[e.neighbor]; seen {
					continue
				}

				relWeight := weightFor(weights, e.relationType)
				sim := 0.0
				if queryEmbedding != nil {
					if neighborEmb, err := docEmbeddingByID(ctx, s, e.neighbor); err == nil {
						sim = cosine(queryEmbedding, neighborEmb)
					}
				}

				transition := math.Exp(lambdaIntent*relWeight + lambdaSimilarity*sim)
				score := u.Score*decayGamma + transition*e.weight
				candidates = append(candidates, Visited{DocumentID: e.neighbor, Score: score})
			}
		}

		if len(candidates) == 0 {
			break
		}

		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
		if len(candidates) > p.BeamWidth {
			candidates = candidates[:p.BeamWidth]
		}

		var next []Visited
		for _, c := range candidates {
			if len(visited) >= p.Budget {
				break
			}
			visited[c.DocumentID] = c.Score
			next = append(next, c)
		}
		frontier = next
	}

	out := make([]Visited, 0, len(visited))
	for id, score := range visited {
		out = append(out, Visited{DocumentID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

type edge struct {
	neighbor     int64
	relationType string
	weight       float64
}

// neighborsOf returns u's outbound edges of every relation type, plus
// its inbound edges for the relation types where traversal allows
// walking against the stored direction (semantic, entity).
func neighborsOf(ctx context.Context, s *store.Store, u int64) ([]edge, error) {
	out, err := s.RelationsFrom(ctx, u)
	if err != nil {
		return nil, err
	}
	edges := make([]edge, 0, len(out))
	for _, r := range out {
		edges = append(edges, edge{neighbor: r.TargetID, relationType: r.RelationType, weight: r.Weight})
	}

	all, err := s.AllRelations(ctx)
	if err != nil {
		return edges, nil
	}
	for _, r := range all {
		if r.TargetID == u && inboundAllowed[r.RelationType] {
			edges = append(edges, edge{neighbor: r.SourceID, relationType: r.RelationType, weight: r.Weight})
		}
	}
	return edges, nil
}

func weightFor(w intent.Weights, relationType string) float64 {
	switch relationType {
	case "causal":
		return w.Causal
	case "semantic", "supporting", "contradicts":
		return w.Semantic
	case "temporal":
		return w.Temporal
	case "entity":
		return w.Entity
	default:
		return w.Semantic
	}
}

func docEmbeddingByID(ctx context.Context, s *store.Store, docID int64) ([]float32, error) {
	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	return s.DocumentEmbedding(ctx, doc.Hash)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MergeIntoRanked applies the merge policy folding traversal results
// back into a previously fused, scored ranked list: documents found
// by both methods are boosted to max(orig, 1.1*graph); traversal-only
// documents are penalized to 0.8*graph.
func MergeIntoRanked(ranked map[int64]float64, traversed []Visited) map[int64]float64 {
	out := make(map[int64]float64, len(ranked)+len(traversed))
	for k, v := range ranked {
		out[k] = v
	}
	for _, t := range traversed {
		if orig, ok := out[t.DocumentID]; ok {
			out[t.DocumentID] = math.Max(orig, 1.1*t.Score)
		} else {
			out[t.DocumentID] = 0.8 * t.Score
		}
	}
	return out
}
