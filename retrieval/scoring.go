package retrieval

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/clawmem/clawmem/store"
)

// contentTypeProfile carries the recency decay and baseline confidence
// for one content_type, per the catalog in the scoring spec.
type contentTypeProfile struct {
	HalfLifeDays float64 // 0 means infinite: recency decay disabled
	Baseline     float64
}

// contentTypeCatalog is the full set of recognized content types. An
// unrecognized or empty content_type falls back to "note".
var contentTypeCatalog = map[string]contentTypeProfile{
	"handoff":  {HalfLifeDays: 30, Baseline: 0.60},
	"progress": {HalfLifeDays: 45, Baseline: 0.50},
	"note":     {HalfLifeDays: 60, Baseline: 0.50},
	"research": {HalfLifeDays: 90, Baseline: 0.70},
	"project":  {HalfLifeDays: 120, Baseline: 0.65},
	"decision": {HalfLifeDays: 0, Baseline: 0.85}, // infinite half-life
	"hub":      {HalfLifeDays: 0, Baseline: 0.80}, // infinite half-life
}

func profileFor(contentType string) contentTypeProfile {
	if p, ok := contentTypeCatalog[contentType]; ok {
		return p
	}
	return contentTypeCatalog["note"]
}

// floatedTypes are boosted to the top of equal composite-score bands
// under recency-intent weighting.
var floatedTypes = map[string]bool{"handoff": true, "decision": true, "progress": true}

// Weights are the composite-score mixing weights for search, recency,
// and confidence subscores.
type Weights struct {
	Search     float64
	Recency    float64
	Confidence float64
}

var (
	defaultWeights      = Weights{Search: 0.5, Recency: 0.25, Confidence: 0.25}
	recencyIntentWeights = Weights{Search: 0.1, Recency: 0.7, Confidence: 0.2}
)

// recencyIntentPatterns detects queries asking about "what just
// happened" rather than "what do I know about X".
var recencyIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brecent(ly)?\b`),
	regexp.MustCompile(`(?i)\blast\s+(session|week|time|night|month)\b`),
	regexp.MustCompile(`(?i)\bwhere\s+was\s+i\b`),
	regexp.MustCompile(`(?i)\byesterday\b`),
	regexp.MustCompile(`(?i)\bwhat\s+(was|were)\s+i\s+(doing|working)\b`),
	regexp.MustCompile(`(?i)\bjust\s+(now|happened)\b`),
	regexp.MustCompile(`(?i)\bpick\s+up\s+where\b`),
}

// isRecencyIntent reports whether query should switch composite
// scoring to the recency-weighted profile.
func isRecencyIntent(query string) bool {
	for _, p := range recencyIntentPatterns {
		if p.MatchString(query) {
			return true
		}
	}
	return false
}

// WeightsFor returns the composite-score weights for a query.
func WeightsFor(query string) Weights {
	if isRecencyIntent(query) {
		return recencyIntentWeights
	}
	return defaultWeights
}

// safeFloat replaces a non-finite value with 0, the NaN/Infinity-safe
// substitution the composite arithmetic requires everywhere.
func safeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// RecencyScore computes 2^(-days_since_modified/half_life). A zero
// half-life (decision, hub) disables decay entirely: recency is
// always 1.0. A future modification returns 1.0; a zero time returns
// 0.5. An undated document and a malformed date both arrive as the
// zero time, so both get 0.5; the two cases are not told apart.
func RecencyScore(contentType string, modifiedAt time.Time, now time.Time) float64 {
	profile := profileFor(contentType)
	if profile.HalfLifeDays == 0 {
		return 1.0
	}
	if modifiedAt.IsZero() {
		return 0.5
	}
	days := now.Sub(modifiedAt).Hours() / 24
	if days < 0 {
		return 1.0
	}
	score := math.Pow(2, -days/profile.HalfLifeDays)
	return safeFloat(score)
}

// Confidence computes min(1, baseline * recency * (1 + log2(1+access_count)*0.1)),
// clamped to [0,1] and NaN-safe.
func Confidence(contentType string, recency float64, accessCount int) float64 {
	profile := profileFor(contentType)
	if accessCount < 0 {
		accessCount = 0
	}
	boost := 1 + math.Log2(1+float64(accessCount))*0.1
	c := profile.Baseline * safeFloat(recency) * boost
	c = safeFloat(c)
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

// Composite blends the search/recency/confidence subscores per w.
func Composite(w Weights, search, recency, confidence float64) float64 {
	return safeFloat(w.Search)*safeFloat(search) +
		safeFloat(w.Recency)*safeFloat(recency) +
		safeFloat(w.Confidence)*safeFloat(confidence)
}

// Scored is one fully scored retrieval result, matching the boundary
// contract shared by every pipeline.
type Scored struct {
	DocID         int64   `json:"docid"`
	File          string  `json:"file"`
	Title         string  `json:"title"`
	Snippet       string  `json:"snippet"`
	CompositeScore float64 `json:"composite_score"`
	RecencyScore  float64 `json:"recency_score"`
	SearchScore   float64 `json:"search_score"`
	ContentType   string  `json:"content_type"`
	Context       string  `json:"context,omitempty"`
}

// ScoreDocument turns one retrieved document plus its raw search
// score into the boundary-contract output shape, applying recency
// decay, confidence, and the composite blend.
func ScoreDocument(doc *store.Document, searchScore float64, query, snippet string, now time.Time) Scored {
	recency := RecencyScore(doc.ContentType, doc.ModifiedAt, now)
	confidence := Confidence(doc.ContentType, recency, doc.AccessCount)
	w := WeightsFor(query)
	composite := Composite(w, searchScore, recency, confidence)

	return Scored{
		DocID:          doc.ID,
		File:           doc.Path,
		Title:          doc.Title,
		Snippet:        snippet,
		CompositeScore: composite,
		RecencyScore:   recency,
		SearchScore:    safeFloat(searchScore),
		ContentType:    doc.ContentType,
		Context:        doc.AmemContext,
	}
}

// sortScored orders results by composite score descending. When w
// matches the recency-intent profile, handoff/decision/progress
// documents float to the top within equal composite bands (rounded
// to avoid float-noise ties).
func sortScored(results []Scored, w Weights) {
	const band = 1e-6
	floatOrder := func(ct string) int {
		if floatedTypes[ct] {
			return 0
		}
		return 1
	}
	isRecency := w == recencyIntentWeights

	for i := 1; i < len(results); i++ {
		for j := i; j > 0; j-- {
			a, b := results[j-1], results[j]
			swap := false
			if a.CompositeScore < b.CompositeScore-band {
				swap = true
			} else if isRecency && math.Abs(a.CompositeScore-b.CompositeScore) <= band {
				if floatOrder(a.ContentType) > floatOrder(b.ContentType) {
					swap = true
				}
			}
			if !swap {
				break
			}
			results[j-1], results[j] = results[j], results[j-1]
		}
	}
}

// contentTypeFromPath mirrors indexer.inferContentType's keyword
// table for callers in this package that only have a path, not a
// parsed frontmatter map (kept here, not imported, to avoid a
// retrieval->indexer dependency for one lookup table).
func contentTypeFromPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "handoff"):
		return "handoff"
	case strings.Contains(lower, "progress"):
		return "progress"
	case strings.Contains(lower, "research"):
		return "research"
	case strings.Contains(lower, "decision"):
		return "decision"
	case strings.Contains(lower, "hub") || strings.Contains(lower, "index"):
		return "hub"
	case strings.Contains(lower, "project"):
		return "project"
	default:
		return "note"
	}
}
