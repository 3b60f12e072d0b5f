package retrieval

import (
	"fmt"
	"math"
	"sort"

	"github.com/clawmem/clawmem/store"
)

// defaultRRFK is the standard Reciprocal Rank Fusion constant.
const defaultRRFK = 60.0

const (
	rank0Bonus  = 0.05
	rank12Bonus = 0.02
)

// RankedDoc is one document's fused score, independent of which
// search method(s) contributed to it.
type RankedDoc struct {
	DocumentID int64
	Score      float64
}

// FuseRRF combines any number of ranked hit lists via Reciprocal Rank
// Fusion:
//
//	RRF(d) = Σ_i [ w_i / (k + rank_i(d) + 1) ]
//
// plus a +0.05 bonus for rank 0 and +0.02 for ranks 1-2 in each
// contributing list. len(weights) must equal len(lists); a mismatch
// is rejected since there is no sane way to guess which weight
// belongs to which list. Individual weight values are still tolerant:
// NaN or negative weights coerce to 1, and a zero weight skips that
// list's contribution entirely. A non-finite k coerces to 60.
func FuseRRF(lists [][]store.SearchHit, weights []float64, k float64, maxResults int) ([]RankedDoc, error) {
	if len(lists) != len(weights) {
		return nil, fmt.Errorf("retrieval: fuseRRF got %d lists but %d weights", len(lists), len(weights))
	}
	if math.IsNaN(k) || math.IsInf(k, 0) {
		k = defaultRRFK
	}

	scores := make(map[int64]float64)
	for i, list := range lists {
		w := weights[i]
		if math.IsNaN(w) || w < 0 {
			w = 1
		}
		if w == 0 {
			continue
		}
		for rank, hit := range list {
			contribution := w / (k + float64(rank) + 1)
			switch rank {
			case 0:
				contribution += rank0Bonus
			case 1, 2:
				contribution += rank12Bonus
			}
			scores[hit.DocumentID] += contribution
		}
	}

	out := make([]RankedDoc, 0, len(scores))
	for id, s := range scores {
		out = append(out, RankedDoc{DocumentID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}
