package clawmem

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clawmem/clawmem/amem"
	"github.com/clawmem/clawmem/consolidation"
	"github.com/clawmem/clawmem/feedback"
	"github.com/clawmem/clawmem/graph"
	"github.com/clawmem/clawmem/indexer"
	"github.com/clawmem/clawmem/intent"
	"github.com/clawmem/clawmem/llm"
	"github.com/clawmem/clawmem/parser"
	"github.com/clawmem/clawmem/retrieval"
	"github.com/clawmem/clawmem/store"
)

// Engine wires the full ClawMem stack (C1-C11) into one handle: the
// store, LLM gateway, indexer, enrichment, graph, intent, retrieval,
// consolidation, and feedback loop. Callers that only need one piece
// (e.g. an eval harness driving retrieval.Engine directly) can still
// construct the lower-level packages themselves; Engine exists for
// the hook binaries and CLI that need all of it wired consistently.
type Engine struct {
	cfg Config

	Store         *store.Store
	Gateway       *llm.Gateway
	Indexer       *indexer.Indexer
	Enricher      *amem.Service
	GraphBuilder  *graph.Builder
	Classifier    *intent.Classifier
	Retrieval     *retrieval.Engine
	Consolidation *consolidation.Worker
	Feedback      *feedback.Loop

	logger *slog.Logger
}

// New builds an Engine from cfg, opening the store at
// cfg.ResolveDBPath() and wiring remote/local LLM providers from the
// configured URLs. The caller owns the returned Engine's lifetime and
// must call Close.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.LoadEnvOverrides()
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = 768
	}

	s, err := store.New(cfg.ResolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("clawmem: opening store: %w", err)
	}

	gw, err := buildGateway(cfg, s)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("clawmem: building LLM gateway: %w", err)
	}

	parsers := parser.NewRegistry()
	enricher := amem.New(s, gw, logger)
	idx := indexer.New(s, gw, parsers, enricher, logger)
	builder := graph.NewBuilder(s, gw, logger)
	classifier := intent.New(gw, s)
	retr := retrieval.New(s, gw, classifier, true)
	worker := consolidation.New(s, enricher, cfg.ConsolidationInterval, logger)
	fb := feedback.New(s, logger)

	return &Engine{
		cfg:           cfg,
		Store:         s,
		Gateway:       gw,
		Indexer:       idx,
		Enricher:      enricher,
		GraphBuilder:  builder,
		Classifier:    classifier,
		Retrieval:     retr,
		Consolidation: worker,
		Feedback:      fb,
		logger:        logger,
	}, nil
}

// buildGateway wires a remote provider from cfg.LLMURL (or cfg.EmbedURL
// when only that is set). No local fallback is wired: the gateway is
// built with a nil local loader, so a failing remote is not retried
// locally. With no URLs configured at all, the gateway still constructs
// but every call returns an error that ErrorCode maps to
// REMOTE_UNAVAILABLE.
func buildGateway(cfg Config, s *store.Store) (*llm.Gateway, error) {
	var remote llm.Provider
	if cfg.LLMURL != "" || cfg.EmbedURL != "" {
		baseURL := cfg.LLMURL
		if baseURL == "" {
			baseURL = cfg.EmbedURL
		}
		p, err := llm.NewProvider(llm.Config{Provider: "custom", BaseURL: baseURL})
		if err != nil {
			return nil, err
		}
		remote = p
	}

	// No local loader (llm.NewLocalProviderLoader) is passed, so a
	// missing remote surfaces REMOTE_UNAVAILABLE instead of silently
	// running local-only.
	gw := llm.NewGateway(remote, nil, s)
	return gw, nil
}

// IndexAll walks every configured collection.
func (e *Engine) IndexAll(ctx context.Context) error {
	for _, c := range e.cfg.Collections {
		pattern := c.Pattern
		if pattern == "" {
			pattern = "**/*.md"
		}
		res, err := e.Indexer.IndexCollection(ctx, c.Name, expandHome(c.Path), pattern)
		if err != nil {
			return fmt.Errorf("clawmem: indexing collection %q: %w", c.Name, err)
		}
		e.logger.Info("clawmem: indexed collection", "collection", c.Name,
			"scanned", res.Scanned, "indexed", res.Indexed, "deactivated", res.Deactivated, "errors", res.Errors)
	}

	if _, err := e.GraphBuilder.BuildTemporalBackbone(ctx); err != nil {
		e.logger.Warn("clawmem: building temporal backbone failed", "error", err)
	}
	if _, err := e.GraphBuilder.BuildSemanticGraph(ctx); err != nil {
		e.logger.Warn("clawmem: building semantic graph failed", "error", err)
	}
	return nil
}

// StartBackground launches the consolidation worker if enabled in
// configuration. It is a no-op otherwise.
func (e *Engine) StartBackground(ctx context.Context) {
	if e.cfg.EnableConsolidation {
		e.Consolidation.Start(ctx)
	}
}

// Close releases the consolidation worker and the underlying store.
// The LLM gateway's resources are released with it since it holds no
// independent handle a caller needs to close separately beyond
// disposing loaded local models.
func (e *Engine) Close() error {
	if e.cfg.EnableConsolidation {
		e.Consolidation.Stop()
	}
	e.Gateway.Dispose()
	return e.Store.Close()
}
