//go:build cgo

package store

import (
	"context"
	"testing"
)

func TestCleanupOrphansRemovesUnreferencedContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertContent(ctx, "orphan-hash", "nobody points at me"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertContent(ctx, "live-hash", "a live document"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.UpsertDocument(ctx, Document{Collection: "notes", Path: "live.md", Title: "live", Hash: "live-hash", ContentHash: "live-hash", ContentType: "note"}); err != nil {
		t.Fatal(err)
	}

	contentRemoved, _, err := s.CleanupOrphans(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if contentRemoved != 1 {
		t.Errorf("expected 1 orphaned content row removed, got %d", contentRemoved)
	}

	if _, err := s.GetContent(ctx, "orphan-hash"); err != ErrNotFound {
		t.Errorf("expected orphan-hash to be gone, got err=%v", err)
	}
	if _, err := s.GetContent(ctx, "live-hash"); err != nil {
		t.Errorf("expected live-hash to survive cleanup: %v", err)
	}
}

func TestCleanupOrphansRemovesUnreferencedFragments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertFragment(ctx, Fragment{Hash: "dangling-hash", Seq: 0, FragmentType: "full"}); err != nil {
		t.Fatal(err)
	}

	_, fragmentsRemoved, err := s.CleanupOrphans(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if fragmentsRemoved != 1 {
		t.Errorf("expected 1 orphaned fragment removed, got %d", fragmentsRemoved)
	}
}
