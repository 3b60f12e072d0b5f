//go:build cgo

package amem

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/clawmem/clawmem/llm"
	"github.com/clawmem/clawmem/store"
)

type fakeProvider struct {
	chatFn  func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return f.chatFn(ctx, req)
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f.embedFn(ctx, texts)
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

func seedDocument(t *testing.T, s *store.Store, path, title, body string) *store.Document {
	t.Helper()
	ctx := context.Background()
	hash := hashOf(body)
	if err := s.InsertContent(ctx, hash, body); err != nil {
		t.Fatalf("inserting content: %v", err)
	}
	id, _, err := s.UpsertDocument(ctx, store.Document{
		Collection: "notes", Path: path, Title: title, Hash: hash, ContentHash: hash, ContentType: "note",
	})
	if err != nil {
		t.Fatalf("upserting document: %v", err)
	}
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("getting document: %v", err)
	}
	return doc
}

func hashOf(s string) string {
	return "h-" + s[:min(8, len(s))]
}

func TestConstructNotePersistsEmptyNoteOnParseFailure(t *testing.T) {
	s := newTestStore(t)
	doc := seedDocument(t, s, "a.md", "Decision A", "We chose SQLite for storage.")

	remote := &fakeProvider{
		chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Content: "not json at all"}, nil
		},
	}
	gw := llm.NewGateway(remote, nil, nil)
	svc := New(s, gw, nil)

	if err := svc.ConstructNote(context.Background(), doc); err != nil {
		t.Fatalf("ConstructNote: %v", err)
	}

	got, err := s.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if len(got.AmemKeywords) != 0 {
		t.Fatalf("expected empty note on parse failure, got keywords %v", got.AmemKeywords)
	}
}

func TestConstructNoteParsesFencedJSON(t *testing.T) {
	s := newTestStore(t)
	doc := seedDocument(t, s, "b.md", "Decision B", "We chose Postgres for analytics workloads.")

	remote := &fakeProvider{
		chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Content: "```json\n{\"keywords\":[\"postgres\",\"analytics\"],\"tags\":[\"db\"],\"context\":\"storage choice\"}\n```"}, nil
		},
	}
	gw := llm.NewGateway(remote, nil, nil)
	svc := New(s, gw, nil)

	if err := svc.ConstructNote(context.Background(), doc); err != nil {
		t.Fatalf("ConstructNote: %v", err)
	}

	got, err := s.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if len(got.AmemKeywords) != 2 || got.AmemContext != "storage choice" {
		t.Fatalf("unexpected note: %+v", got)
	}
}

func TestCausalInferenceSkipsSelfLoopsAndLowConfidence(t *testing.T) {
	s := newTestStore(t)
	docA := seedDocument(t, s, "a.md", "A", "deployed without canary")
	docB := seedDocument(t, s, "b.md", "B", "outage occurred")

	remote := &fakeProvider{
		chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Content: `{"pairs":[
				{"cause_doc":` + strconv.FormatInt(docA.ID, 10) + `,"cause_fact":"x","effect_doc":` + strconv.FormatInt(docA.ID, 10) + `,"effect_fact":"y","confidence":0.9},
				{"cause_doc":` + strconv.FormatInt(docA.ID, 10) + `,"cause_fact":"x","effect_doc":` + strconv.FormatInt(docB.ID, 10) + `,"effect_fact":"y","confidence":0.4},
				{"cause_doc":` + strconv.FormatInt(docA.ID, 10) + `,"cause_fact":"x","effect_doc":` + strconv.FormatInt(docB.ID, 10) + `,"effect_fact":"y","confidence":0.9}
			]}`}, nil
		},
	}
	gw := llm.NewGateway(remote, nil, nil)
	svc := New(s, gw, nil)

	n, err := svc.CausalInference(context.Background(), []ObservationFacts{
		{DocID: docA.ID, Facts: []string{"deployed without canary"}},
		{DocID: docB.ID, Facts: []string{"outage occurred"}},
	})
	if err != nil {
		t.Fatalf("CausalInference: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 inserted edge (self-loop and low-confidence skipped), got %d", n)
	}
}
