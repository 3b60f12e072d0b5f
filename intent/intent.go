// Package intent classifies a query into {WHY, WHEN, ENTITY, WHAT}
// plus an optional temporal window, the routing signal C8 (fusion)
// and C7 (graph traversal) weight by.
package intent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/clawmem/clawmem/llm"
	"github.com/clawmem/clawmem/store"
)

// Kind is one of the four classified intents.
type Kind string

const (
	Why    Kind = "WHY"
	When   Kind = "WHEN"
	Entity Kind = "ENTITY"
	What   Kind = "WHAT"
)

// refinementConfidenceThreshold is the heuristic confidence below
// which the LLM refinement step runs.
const refinementConfidenceThreshold = 0.8

// cacheTTL is how long a cached classification stays valid.
const cacheTTL = time.Hour

// Result is a full classification: the intent, a confidence in
// [0,1], and an optional ISO-date temporal window.
type Result struct {
	Intent         Kind
	Confidence     float64
	TemporalStart  string
	TemporalEnd    string
}

// Weights returns the intent-to-weights row used by both fusion and
// graph traversal: {causal, semantic, temporal, entity}.
type Weights struct {
	Causal, Semantic, Temporal, Entity float64
}

var weightTable = map[Kind]Weights{
	Why:    {Causal: 5.0, Semantic: 2.0, Temporal: 0.5, Entity: 1.0},
	When:   {Causal: 1.0, Semantic: 2.0, Temporal: 5.0, Entity: 0.5},
	Entity: {Causal: 2.0, Semantic: 3.0, Temporal: 1.0, Entity: 6.0},
	What:   {Causal: 1.0, Semantic: 5.0, Temporal: 1.0, Entity: 2.0},
}

// WeightsFor returns the fusion/traversal weight row for kind,
// defaulting to WHAT's balanced weights for an unrecognized kind.
func WeightsFor(k Kind) Weights {
	if w, ok := weightTable[k]; ok {
		return w
	}
	return weightTable[What]
}

// Classifier runs the heuristic layer always, and the LLM refinement
// only when heuristic confidence is below threshold, caching results
// in the store by query hash.
type Classifier struct {
	gw    *llm.Gateway
	store *store.Store
	now   func() time.Time
}

// New builds a Classifier. gw may be nil to skip LLM refinement
// entirely (heuristic-only mode).
func New(gw *llm.Gateway, s *store.Store) *Classifier {
	return &Classifier{gw: gw, store: s, now: time.Now}
}

// Classify returns the cached classification if fresh, else runs the
// heuristic layer (and, if still unconfident, the LLM refinement) and
// caches the result.
func (c *Classifier) Classify(ctx context.Context, query string) (Result, error) {
	hash := queryHash(query)

	if c.store != nil {
		if entry, ok, err := c.store.GetIntentCache(ctx, hash, cacheTTL); err == nil && ok {
			return Result{
				Intent:        Kind(entry.Intent),
				Confidence:    entry.Confidence,
				TemporalStart: entry.TemporalStart,
				TemporalEnd:   entry.TemporalEnd,
			}, nil
		}
	}

	result := heuristicClassify(query, c.now())

	if result.Confidence < refinementConfidenceThreshold && c.gw != nil {
		if refined, ok := c.refine(ctx, query); ok {
			result.Intent = refined
			result.Confidence = refinementConfidenceThreshold
		}
	}

	if c.store != nil {
		_ = c.store.PutIntentCache(ctx, store.IntentCacheEntry{
			QueryHash: hash, QueryText: query,
			Intent: string(result.Intent), Confidence: result.Confidence,
			TemporalStart: result.TemporalStart, TemporalEnd: result.TemporalEnd,
		})
	}
	return result, nil
}

func queryHash(query string) string {
	h := sha256.Sum256([]byte(query))
	return hex.EncodeToString(h[:])
}

const refinePrompt = `Classify the query's intent as exactly one of: WHY, WHEN, ENTITY, WHAT.
Respond with only that single capitalized word.
Query: %s`

// refine asks the LLM to pick among the four known labels, tolerating
// any extra text around the token; failures fall through to the
// heuristic result unchanged.
func (c *Classifier) refine(ctx context.Context, query string) (Kind, bool) {
	text, err := c.gw.Generate(ctx, fmt.Sprintf(refinePrompt, query), 8, 0)
	if err != nil {
		return "", false
	}
	for _, k := range []Kind{Why, When, Entity, What} {
		if strings.Contains(strings.ToUpper(text), string(k)) {
			return k, true
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Heuristic layer: instant, always runs.
// ---------------------------------------------------------------------------

var (
	whyPatterns    = []string{"why", "reason", "rationale", "because", "decided to", "decision to", "chose", "choose"}
	whenPatterns   = []string{"when", "what time", "yesterday", "last week", "last session", "ago", "date", "schedule"}
	entityPatterns = []string{"who", "owns", "owner", "which team", "responsible for", "assigned to"}
	whatPatterns   = []string{"what is", "what are", "describe", "explain", "how does", "how do"}
)

// heuristicClassify scores the four intents by lowercased substring
// matching, giving leading wh-words extra weight, and extracts a
// relative-time window when one is present.
func heuristicClassify(query string, now time.Time) Result {
	lower := strings.ToLower(strings.TrimSpace(query))

	scores := map[Kind]float64{Why: 0, When: 0, Entity: 0, What: 0}
	add := func(k Kind, patterns []string, weight float64) {
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				scores[k] += weight
			}
		}
	}
	add(Why, whyPatterns, 1.0)
	add(When, whenPatterns, 1.0)
	add(Entity, entityPatterns, 1.0)
	add(What, whatPatterns, 1.0)

	// The WHAT prefix bonus is a tie-breaker for bare wh-questions
	// ("what is X") and must not override a more specific pattern a
	// competing intent already matched ("what happened last week" has
	// a WHEN pattern hit and must stay WHEN, not flip to WHAT just
	// because the sentence also starts with "what").
	competingMatch := scores[Why] > 0 || scores[When] > 0 || scores[Entity] > 0
	for kind, prefixes := range map[Kind][]string{
		Why:    {"why"},
		When:   {"when"},
		Entity: {"who"},
		What:   {"what", "how"},
	} {
		if kind == What && competingMatch {
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(lower, p) {
				scores[kind] += 1.5
			}
		}
	}

	best, bestScore := What, 0.0
	total := 0.0
	for k, s := range scores {
		total += s
		if s > bestScore {
			bestScore, best = s, k
		}
	}

	confidence := 0.5
	if total > 0 {
		confidence = bestScore / total
	}
	if confidence > 1 {
		confidence = 1
	}

	start, end := extractTemporalWindow(lower, now)
	return Result{Intent: best, Confidence: confidence, TemporalStart: start, TemporalEnd: end}
}

var daysAgoRe = regexp.MustCompile(`(\d+)\s+days?\s+ago`)
var monthYearRe = regexp.MustCompile(`in\s+(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})`)

var monthNumbers = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

const isoDate = "2006-01-02"

// extractTemporalWindow recognizes a small set of relative-time
// phrases and returns an ISO-date [start, end] window, empty if none
// match.
func extractTemporalWindow(lower string, now time.Time) (string, string) {
	today := now.Truncate(24 * time.Hour)

	switch {
	case strings.Contains(lower, "yesterday"):
		d := today.AddDate(0, 0, -1)
		return d.Format(isoDate), d.Format(isoDate)
	case strings.Contains(lower, "last week"):
		return today.AddDate(0, 0, -7).Format(isoDate), today.Format(isoDate)
	case strings.Contains(lower, "last session"), strings.Contains(lower, "last month"):
		return today.AddDate(0, -1, 0).Format(isoDate), today.Format(isoDate)
	}

	if m := daysAgoRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			d := today.AddDate(0, 0, -n)
			return d.Format(isoDate), d.Format(isoDate)
		}
	}

	if m := monthYearRe.FindStringSubmatch(lower); m != nil {
		month := monthNumbers[m[1]]
		year, err := strconv.Atoi(m[2])
		if err == nil && month > 0 {
			start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 1, -1)
			return start.Format(isoDate), end.Format(isoDate)
		}
	}

	return "", ""
}
