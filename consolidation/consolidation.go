// Package consolidation runs the background worker that catches up
// documents the indexer created but that never received an A-MEM
// note, in small bounded batches, without blocking retrieval or
// overlapping with itself.
package consolidation

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/clawmem/clawmem/amem"
	"github.com/clawmem/clawmem/store"
)

const (
	// batchSize is how many un-enriched documents one tick processes.
	batchSize = 3
	// minInterval is the floor on the tick period; configuration below
	// this is clamped rather than rejected.
	minInterval = 15 * time.Second
	// defaultInterval is used when the caller passes 0.
	defaultInterval = 5 * time.Minute
)

// Worker periodically enriches documents whose amem_keywords is still
// NULL, running construct-note and generate-links but never evolution
// (evolution only cascades from a genuinely new document's own
// indexing pass, to avoid retroactively rewriting old notes on every
// tick).
type Worker struct {
	store    *store.Store
	enricher *amem.Service
	logger   *slog.Logger
	interval time.Duration

	running atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Worker. interval is clamped to at least minInterval; 0
// uses defaultInterval.
func New(s *store.Store, enricher *amem.Service, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if interval < minInterval {
		interval = minInterval
	}
	return &Worker{store: s, enricher: enricher, logger: logger, interval: interval}
}

// Start launches the ticker loop in a background goroutine. Stop must
// be called to release it; Start is not safe to call twice.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight tick, if any, to
// return.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Tick runs one consolidation pass. Reentrancy-guarded: a tick that
// fires while the previous one is still running is skipped entirely,
// satisfying "never processes the same document twice within a single
// tick" by construction (there is never more than one tick in flight).
func (w *Worker) Tick(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Debug("consolidation: tick already running, skipping")
		return
	}
	defer w.running.Store(false)

	docs, err := w.store.ListDocumentsMissingNote(ctx, batchSize)
	if err != nil {
		w.logger.Warn("consolidation: listing un-enriched documents failed", "error", err)
		return
	}

	for _, doc := range docs {
		if err := w.enricher.ConstructNote(ctx, doc); err != nil {
			w.logger.Warn("consolidation: construct note failed", "doc", doc.ID, "error", err)
			continue
		}
		if _, err := w.enricher.GenerateLinks(ctx, doc); err != nil {
			w.logger.Warn("consolidation: generate links failed", "doc", doc.ID, "error", err)
		}
	}
	if len(docs) > 0 {
		w.logger.Info("consolidation: tick complete", "documents", len(docs))
	}
}
