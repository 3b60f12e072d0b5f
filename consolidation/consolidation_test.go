//go:build cgo

package consolidation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawmem/clawmem/amem"
	"github.com/clawmem/clawmem/llm"
	"github.com/clawmem/clawmem/store"
)

type fakeProvider struct {
	chats int
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.chats++
	return &llm.ChatResponse{Content: `{"keywords":["a","b","c"],"tags":["t"],"context":"summary"}`}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return out, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUnenriched(t *testing.T, s *store.Store, path string) int64 {
	t.Helper()
	ctx := context.Background()
	hash := "h-" + path
	if err := s.InsertContent(ctx, hash, "body for "+path); err != nil {
		t.Fatalf("inserting content: %v", err)
	}
	id, _, err := s.UpsertDocument(ctx, store.Document{
		Collection: "notes", Path: path, Title: path, Hash: hash, ContentHash: hash, ContentType: "note",
	})
	if err != nil {
		t.Fatalf("upserting document: %v", err)
	}
	return id
}

func TestTickEnrichesUpToBatchSize(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < batchSize+2; i++ {
		seedUnenriched(t, s, string(rune('a'+i))+".md")
	}

	gw := llm.NewGateway(&fakeProvider{}, nil, nil)
	enricher := amem.New(s, gw, nil)
	w := New(s, enricher, time.Minute, nil)

	w.Tick(context.Background())

	remaining, err := s.ListDocumentsMissingNote(context.Background(), 100)
	if err != nil {
		t.Fatalf("ListDocumentsMissingNote: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected %d documents still unenriched after one batch, got %d", 2, len(remaining))
	}
}

func TestTickSkipsWhenAlreadyRunning(t *testing.T) {
	s := newTestStore(t)
	seedUnenriched(t, s, "only.md")

	gw := llm.NewGateway(&fakeProvider{}, nil, nil)
	enricher := amem.New(s, gw, nil)
	w := New(s, enricher, time.Minute, nil)

	w.running.Store(true)
	w.Tick(context.Background())

	remaining, err := s.ListDocumentsMissingNote(context.Background(), 100)
	if err != nil {
		t.Fatalf("ListDocumentsMissingNote: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected tick to be skipped while running, still want 1 unenriched, got %d", len(remaining))
	}
}

func TestNewClampsInterval(t *testing.T) {
	s := newTestStore(t)
	gw := llm.NewGateway(&fakeProvider{}, nil, nil)
	enricher := amem.New(s, gw, nil)

	w := New(s, enricher, time.Second, nil)
	if w.interval != minInterval {
		t.Fatalf("expected interval clamped to %v, got %v", minInterval, w.interval)
	}

	w2 := New(s, enricher, 0, nil)
	if w2.interval != defaultInterval {
		t.Fatalf("expected default interval %v, got %v", defaultInterval, w2.interval)
	}
}
