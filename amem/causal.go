package amem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clawmem/clawmem/store"
)

// ObservationFacts pairs a document id with the facts extracted from
// it, the unit CausalInference reasons over.
type ObservationFacts struct {
	DocID int64
	Facts []string
}

const causalInferencePrompt = `Given this flattened list of observed facts, each tagged with the document it came from, identify cause-to-effect relationships between facts from DIFFERENT documents. Only report pairs you are confident about (confidence >= 0.6).
Respond with JSON only: {"pairs": [{"cause_doc": int, "cause_fact": "...", "effect_doc": int, "effect_fact": "...", "confidence": 0.0-1.0, "reasoning": "..."}]}

Facts:
%s`

type causalPair struct {
	CauseDoc   int64   `json:"cause_doc"`
	CauseFact  string  `json:"cause_fact"`
	EffectDoc  int64   `json:"effect_doc"`
	EffectFact string  `json:"effect_fact"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type causalResult struct {
	Pairs []causalPair `json:"pairs"`
}

const minCausalConfidence = 0.6

// CausalInference flattens facts across the given observations, asks
// the generator for cause -> effect pairs, and inserts `causal`
// relation edges between the originating documents, skipping
// self-loops and any pair below minCausalConfidence. Returns the
// number of edges inserted.
func (s *Service) CausalInference(ctx context.Context, observations []ObservationFacts) (int, error) {
	var b strings.Builder
	total := 0
	for _, o := range observations {
		for _, f := range o.Facts {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			fmt.Fprintf(&b, "[doc %d] %s\n", o.DocID, f)
			total++
		}
	}
	if total == 0 {
		return 0, nil
	}

	raw, err := s.gw.Generate(ctx, fmt.Sprintf(causalInferencePrompt, b.String()), 800, 0)
	if err != nil {
		return 0, fmt.Errorf("causal inference generation: %w", err)
	}

	var result causalResult
	if js := extractJSON(raw); js != "" {
		_ = json.Unmarshal([]byte(js), &result)
	}

	inserted := 0
	for _, p := range result.Pairs {
		if p.CauseDoc == p.EffectDoc || p.CauseDoc == 0 || p.EffectDoc == 0 {
			continue
		}
		if p.Confidence < minCausalConfidence {
			continue
		}
		meta, _ := json.Marshal(map[string]string{
			"cause_fact": p.CauseFact, "effect_fact": p.EffectFact, "reasoning": p.Reasoning,
		})
		if err := s.store.UpsertRelation(ctx, store.Relation{
			SourceID: p.CauseDoc, TargetID: p.EffectDoc, RelationType: "causal",
			Weight: clamp01(p.Confidence), Metadata: string(meta),
		}); err != nil {
			continue
		}
		inserted++
	}
	return inserted, nil
}
