//go:build cgo

package store

import (
	"context"
	"testing"
)

func TestParseVirtualPath(t *testing.T) {
	tests := []struct {
		in             string
		wantCollection string
		wantPath       string
		wantAnchor     int
		wantErr        bool
	}{
		{"clawmem://notes/decision-sqlite.md", "notes", "decision-sqlite.md", 0, false},
		{"clawmem:notes//decision-sqlite.md", "notes", "decision-sqlite.md", 0, false},
		{"clawmem://notes/decision-sqlite.md:42", "notes", "decision-sqlite.md", 42, false},
		{"notes/decision-sqlite.md", "notes", "decision-sqlite.md", 0, false},
		{"garbage", "", "", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseVirtualPath(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseVirtualPath(%q): expected error, got none", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVirtualPath(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got.Collection != tt.wantCollection || got.Path != tt.wantPath || got.LineAnchor != tt.wantAnchor {
			t.Errorf("ParseVirtualPath(%q) = %+v, want {%q %q %d}", tt.in, got, tt.wantCollection, tt.wantPath, tt.wantAnchor)
		}
	}
}

func TestBuildVirtualPathRoundTrip(t *testing.T) {
	vp := BuildVirtualPath("notes", "decision-sqlite.md")
	got, err := ParseVirtualPath(vp)
	if err != nil {
		t.Fatalf("round-trip parse: %v", err)
	}
	if got.Collection != "notes" || got.Path != "decision-sqlite.md" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestShortDocID(t *testing.T) {
	if got := ShortDocID("abc123def456"); got != "abc123" {
		t.Errorf("ShortDocID: got %q, want %q", got, "abc123")
	}
}

func TestFindDocumentByDocIDCollision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mkDoc := func(path, hash string) {
		if err := s.InsertContent(ctx, hash, "body"); err != nil {
			t.Fatal(err)
		}
		if _, _, err := s.UpsertDocument(ctx, Document{Collection: "notes", Path: path, Title: path, Hash: hash, ContentHash: hash, ContentType: "note"}); err != nil {
			t.Fatal(err)
		}
	}
	mkDoc("a.md", "abc123aaaa")
	mkDoc("b.md", "abc123bbbb")

	_, err := s.FindDocumentByDocID(ctx, "#abc123")
	if err == nil {
		t.Fatal("expected a collision error")
	}
}

func TestFindDocumentByDocIDUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertContent(ctx, "def456xyz", "body"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.UpsertDocument(ctx, Document{Collection: "notes", Path: "c.md", Title: "c", Hash: "def456xyz", ContentHash: "def456xyz", ContentType: "note"}); err != nil {
		t.Fatal(err)
	}

	doc, err := s.FindDocumentByDocID(ctx, "#def456")
	if err != nil {
		t.Fatalf("finding by docid: %v", err)
	}
	if doc.Path != "c.md" {
		t.Errorf("path: got %q, want c.md", doc.Path)
	}
}

func TestFindDocumentViaVirtualPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.InsertContent(ctx, "h1", "body"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.UpsertDocument(ctx, Document{Collection: "notes", Path: "decision-sqlite.md", Title: "t", Hash: "h1", ContentHash: "h1", ContentType: "note"}); err != nil {
		t.Fatal(err)
	}

	doc, err := s.FindDocument(ctx, "clawmem://notes/decision-sqlite.md")
	if err != nil {
		t.Fatalf("finding document: %v", err)
	}
	if doc.Path != "decision-sqlite.md" {
		t.Errorf("path: got %q", doc.Path)
	}
}

func TestFindDocumentsGlob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"notes-a.md", "notes-b.md", "other.md"} {
		if err := s.InsertContent(ctx, p, "body"); err != nil {
			t.Fatal(err)
		}
		if _, _, err := s.UpsertDocument(ctx, Document{Collection: "notes", Path: p, Title: p, Hash: p, ContentHash: p, ContentType: "note"}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.FindDocuments(ctx, "notes-*.md", 0)
	if err != nil {
		t.Fatalf("finding documents: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(results), results)
	}
}

func TestFindDocumentsCSV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, p := range []string{"x.md", "y.md"} {
		if err := s.InsertContent(ctx, p, "body"); err != nil {
			t.Fatal(err)
		}
		if _, _, err := s.UpsertDocument(ctx, Document{Collection: "notes", Path: p, Title: p, Hash: p, ContentHash: p, ContentType: "note"}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.FindDocuments(ctx, "clawmem://notes/x.md, clawmem://notes/y.md", 0)
	if err != nil {
		t.Fatalf("finding documents: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Skipped {
			t.Errorf("unexpected skip for %q: %s", r.Identifier, r.Reason)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
