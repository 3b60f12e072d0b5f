// Package amem implements the "self-evolving memory" enrichment cycle:
// constructing a note for each indexed document, linking it to its
// nearest neighbors, and cascading note evolution into those
// neighbors when warranted. Every operation here is non-fatal — a
// failure logs and returns a zero-count result rather than
// propagating an error, since enrichment is a best-effort layer on
// top of an already-persisted document.
package amem

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/clawmem/clawmem/llm"
	"github.com/clawmem/clawmem/store"
	"golang.org/x/sync/errgroup"
)

const (
	// neighborCount is k in "k nearest neighbors", default per the
	// note-linking contract.
	neighborCount = 8
	// evolveNeighborSample bounds how many of a neighbor's own
	// neighbors are shown to the LLM when deciding whether to evolve.
	evolveNeighborSample = 5
	// evolveFanoutLimit bounds how many neighbors EvolveNeighbors
	// evaluates concurrently, so a document with many links doesn't
	// open more simultaneous generator calls than the gateway can take.
	evolveFanoutLimit = 4
	// noteBodyRunes is how much of a document's body the note
	// constructor reads.
	noteBodyRunes = 2000
)

// Service runs A-MEM enrichment against a store and LLM gateway.
type Service struct {
	store  *store.Store
	gw     *llm.Gateway
	logger *slog.Logger
}

// New builds a Service.
func New(s *store.Store, gw *llm.Gateway, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, gw: gw, logger: logger}
}

// Enrich implements indexer.Enricher: construct the note always, and
// for genuinely new documents also generate links and cascade
// evolution into the linked neighbors.
func (s *Service) Enrich(ctx context.Context, doc *store.Document, isNew bool) {
	if err := s.ConstructNote(ctx, doc); err != nil {
		s.logger.Warn("amem: construct note failed", "doc", doc.ID, "error", err)
	}
	if !isNew {
		return
	}

	linked, err := s.GenerateLinks(ctx, doc)
	if err != nil {
		s.logger.Warn("amem: generate links failed", "doc", doc.ID, "error", err)
		return
	}
	if len(linked) == 0 {
		return
	}

	evolved, err := s.EvolveNeighbors(ctx, doc, linked)
	if err != nil {
		s.logger.Warn("amem: evolve neighbors failed", "doc", doc.ID, "error", err)
		return
	}
	s.logger.Info("amem: enrichment complete", "doc", doc.ID, "links", len(linked), "evolved", evolved)
}

const constructNotePrompt = `Read the document below and produce a JSON object describing it:
{"keywords": [3 to 7 short keywords], "tags": [2 to 5 short category tags], "context": "one or two sentence summary"}
Respond with only the JSON object, no commentary.

Title: %s
Path: %s

%s`

type noteJSON struct {
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
	Context  string   `json:"context"`
}

// ConstructNote prompts the generator for a keywords/tags/context
// triple and persists it. A malformed or empty LLM response still
// results in a persisted (empty) note rather than an error, per the
// "parse defensively, never fatal" contract.
func (s *Service) ConstructNote(ctx context.Context, doc *store.Document) error {
	body, err := s.store.GetContent(ctx, doc.Hash)
	if err != nil {
		return fmt.Errorf("loading content: %w", err)
	}

	prompt := fmt.Sprintf(constructNotePrompt, doc.Title, doc.Path, truncateRunes(body, noteBodyRunes))
	raw, err := s.gw.Generate(ctx, prompt, 400, 0)
	if err != nil {
		return s.store.UpdateNote(ctx, doc.ID, nil, nil, "")
	}

	var note noteJSON
	if js := extractJSON(raw); js != "" {
		_ = json.Unmarshal([]byte(js), &note) // parse failure leaves note zero-valued, persisted as empty
	}
	return s.store.UpdateNote(ctx, doc.ID, note.Keywords, note.Tags, note.Context)
}

const classifyLinkPrompt = `Two documents may be related. Classify the relationship from document A to document B as exactly one of: semantic, supporting, contradicts.
Respond with JSON only: {"relation_type": "...", "confidence": 0.0-1.0, "reasoning": "one sentence"}

Document A (%s): %s
Document B (%s): %s`

type linkJSON struct {
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

var validLinkTypes = map[string]bool{"semantic": true, "supporting": true, "contradicts": true}

// GenerateLinks finds the k nearest neighbors of doc by cosine
// similarity (from a fresh embedding of its title plus the first
// noteBodyRunes runes of its body; the stored fragment embeddings are
// not read here), classifies each relation with the generator, and
// inserts the edges.
// It returns the neighbor document ids that were successfully linked.
func (s *Service) GenerateLinks(ctx context.Context, doc *store.Document) ([]int64, error) {
	body, err := s.store.GetContent(ctx, doc.Hash)
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	emb, err := s.gw.Embed(ctx, truncateRunes(body, noteBodyRunes), false, doc.Title)
	if err != nil {
		return nil, fmt.Errorf("embedding anchor document: %w", err)
	}

	hits, err := s.store.SearchVec(ctx, emb.Vector, neighborCount+1)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor search: %w", err)
	}

	var linked []int64
	seen := make(map[int64]bool)
	for _, h := range hits {
		if h.DocumentID == doc.ID || seen[h.DocumentID] {
			continue
		}
		seen[h.DocumentID] = true
		if len(linked) >= neighborCount {
			break
		}

		neighbor, err := s.store.GetDocument(ctx, h.DocumentID)
		if err != nil {
			continue
		}
		neighborBody, err := s.store.GetContent(ctx, neighbor.Hash)
		if err != nil {
			continue
		}

		prompt := fmt.Sprintf(classifyLinkPrompt,
			doc.Title, truncateRunes(body, 500), neighbor.Title, truncateRunes(neighborBody, 500))
		raw, err := s.gw.Generate(ctx, prompt, 150, 0)
		if err != nil {
			continue
		}

		var link linkJSON
		if js := extractJSON(raw); js != "" {
			_ = json.Unmarshal([]byte(js), &link)
		}
		relType := strings.ToLower(strings.TrimSpace(link.RelationType))
		if !validLinkTypes[relType] {
			continue
		}

		meta, _ := json.Marshal(map[string]string{"reasoning": link.Reasoning})
		if err := s.store.UpsertRelation(ctx, store.Relation{
			SourceID: doc.ID, TargetID: neighbor.ID, RelationType: relType,
			Weight: clamp01(link.Confidence), Metadata: string(meta),
		}); err != nil {
			continue
		}
		linked = append(linked, neighbor.ID)
	}
	return linked, nil
}

const evolvePrompt = `A new document has just linked to this memory. Decide whether the memory's note should evolve to incorporate the new context.
Respond with JSON only: {"should_evolve": bool, "keywords": [...], "tags": [...], "context": "...", "reasoning": "one sentence"}
If should_evolve is false, keywords/tags/context may be empty.

Memory note: keywords=%v tags=%v context=%q
New linked document: %s — %s
Memory's other neighbors: %s`

type evolveJSON struct {
	ShouldEvolve bool     `json:"should_evolve"`
	Keywords     []string `json:"keywords"`
	Tags         []string `json:"tags"`
	Context      string   `json:"context"`
	Reasoning    string   `json:"reasoning"`
}

// EvolveNeighbors asks, for each newly linked neighbor, whether its
// note should evolve given the new link, and atomically applies the
// evolution when the generator says yes. Returns how many neighbors
// actually evolved.
//
// Neighbors are independent rows, so the cascade runs concurrently
// (bounded by evolveFanoutLimit) with errgroup.Group rather than the
// sequential loop this would otherwise be, the same fan-out-with-
// first-error-propagation shape used in the hybrid retrieval pipeline.
func (s *Service) EvolveNeighbors(ctx context.Context, doc *store.Document, neighborIDs []int64) (int, error) {
	var evolved atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evolveFanoutLimit)
	for _, nid := range neighborIDs {
		nid := nid
		g.Go(func() error {
			neighbor, err := s.store.GetDocument(gctx, nid)
			if err != nil {
				return nil
			}

			sample, err := s.neighborSample(gctx, nid)
			if err != nil {
				sample = ""
			}

			prompt := fmt.Sprintf(evolvePrompt,
				neighbor.AmemKeywords, neighbor.AmemTags, neighbor.AmemContext,
				doc.Title, doc.AmemContext, sample)
			raw, err := s.gw.Generate(gctx, prompt, 300, 0)
			if err != nil {
				return nil
			}

			var decision evolveJSON
			if js := extractJSON(raw); js != "" {
				_ = json.Unmarshal([]byte(js), &decision)
			}
			if !decision.ShouldEvolve {
				return nil
			}

			err = s.store.ApplyEvolution(gctx, store.Evolution{
				MemoryID:         neighbor.ID,
				TriggeredBy:      doc.ID,
				PreviousKeywords: neighbor.AmemKeywords,
				PreviousContext:  neighbor.AmemContext,
				NewKeywords:      decision.Keywords,
				NewContext:       decision.Context,
				Reasoning:        decision.Reasoning,
			}, decision.Tags)
			if err != nil {
				s.logger.Warn("amem: applying evolution failed", "memory", neighbor.ID, "error", err)
				return nil
			}
			evolved.Add(1)
			return nil
		})
	}
	_ = g.Wait() // per-neighbor failures are already logged and non-fatal

	return int(evolved.Load()), nil
}

// neighborSample describes up to evolveNeighborSample of a document's
// own linked neighbors, for the evolve prompt's "other neighbors"
// context.
func (s *Service) neighborSample(ctx context.Context, docID int64) (string, error) {
	rels, err := s.store.RelationsFrom(ctx, docID)
	if err != nil {
		return "", err
	}
	var parts []string
	for i, r := range rels {
		if i >= evolveNeighborSample {
			break
		}
		target, err := s.store.GetDocument(ctx, r.TargetID)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", target.Title, r.RelationType))
	}
	return strings.Join(parts, "; "), nil
}

func clamp01(f float64) float64 {
	if f < 0 || f != f {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
