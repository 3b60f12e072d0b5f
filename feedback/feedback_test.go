//go:build cgo

package feedback

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/clawmem/clawmem/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedDoc(t *testing.T, s *store.Store, collection, path, title string) *store.Document {
	t.Helper()
	ctx := context.Background()
	hash := "h-" + collection + "-" + path
	if err := s.InsertContent(ctx, hash, "body"); err != nil {
		t.Fatalf("inserting content: %v", err)
	}
	id, _, err := s.UpsertDocument(ctx, store.Document{
		Collection: collection, Path: path, Title: title, Hash: hash, ContentHash: hash, ContentType: "note",
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

func writeTranscript(t *testing.T, lines []map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating transcript: %v", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			t.Fatalf("encoding transcript line: %v", err)
		}
	}
	return path
}

func TestOnSessionEndMarksReferencedAndBumpsAccessCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "notes", "decision-sqlite.md", "Decision: SQLite")

	if err := s.StartSession(ctx, "sess1", "laptop"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	usageID, err := s.RecordUsage(ctx, "sess1", "UserPromptSubmit", []string{"clawmem://notes/decision-sqlite.md"}, 120)
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	transcript := writeTranscript(t, []map[string]any{
		{"role": "user", "content": "what did we decide?"},
		{"role": "assistant", "content": "Per decision-sqlite.md, we chose SQLite."},
	})

	loop := New(s, nil)
	referenced, err := loop.OnSessionEnd(ctx, "sess1", transcript)
	if err != nil {
		t.Fatalf("OnSessionEnd: %v", err)
	}
	if referenced != 1 {
		t.Fatalf("expected 1 referenced usage record, got %d", referenced)
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.AccessCount != 1 {
		t.Fatalf("expected access_count 1, got %d", got.AccessCount)
	}

	unreferenced, err := s.UnreferencedUsage(ctx, "sess1")
	if err != nil {
		t.Fatalf("UnreferencedUsage: %v", err)
	}
	for _, u := range unreferenced {
		if u.ID == usageID {
			t.Fatalf("expected usage record %d to be marked referenced", usageID)
		}
	}
}

func TestOnSessionEndSkipsUnmentionedDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDoc(t, s, "notes", "random.md", "Weather")

	if err := s.StartSession(ctx, "sess2", "laptop"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := s.RecordUsage(ctx, "sess2", "UserPromptSubmit", []string{"clawmem://notes/random.md"}, 80); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	transcript := writeTranscript(t, []map[string]any{
		{"role": "assistant", "content": "Nothing relevant was referenced here."},
	})

	loop := New(s, nil)
	referenced, err := loop.OnSessionEnd(ctx, "sess2", transcript)
	if err != nil {
		t.Fatalf("OnSessionEnd: %v", err)
	}
	if referenced != 0 {
		t.Fatalf("expected 0 referenced usage records, got %d", referenced)
	}
}

func TestMentionsDocumentRejectsShortTitles(t *testing.T) {
	doc := &store.Document{Path: "notes/x.md", Title: "abc"}
	if mentionsDocument("the abc is mentioned", doc) {
		t.Fatalf("expected short title (<%d chars) to not count as a mention on its own", minTitleLen)
	}
}
