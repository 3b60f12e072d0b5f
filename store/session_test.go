//go:build cgo

package store

import (
	"context"
	"testing"
	"time"
)

func TestStartAndEndSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.StartSession(ctx, "sess-1", "laptop-a"); err != nil {
		t.Fatalf("starting session: %v", err)
	}
	if err := s.StartSession(ctx, "sess-1", "laptop-a"); err != nil {
		t.Fatalf("re-starting session should be a no-op: %v", err)
	}
	if err := s.EndSession(ctx, "sess-1", "/tmp/handoff.md", "did some work", []string{"a.go", "b.go"}); err != nil {
		t.Fatalf("ending session: %v", err)
	}
}

func TestRecordUsageAndMarkReferenced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.StartSession(ctx, "sess-1", "laptop-a"); err != nil {
		t.Fatal(err)
	}

	id, err := s.RecordUsage(ctx, "sess-1", "UserPromptSubmit", []string{"notes/a.md"}, 120)
	if err != nil {
		t.Fatalf("recording usage: %v", err)
	}

	unreferenced, err := s.UnreferencedUsage(ctx, "sess-1")
	if err != nil {
		t.Fatalf("listing unreferenced: %v", err)
	}
	if len(unreferenced) != 1 {
		t.Fatalf("expected 1 unreferenced record, got %d", len(unreferenced))
	}

	if err := s.MarkUsageReferenced(ctx, id); err != nil {
		t.Fatalf("marking referenced: %v", err)
	}

	unreferenced, err = s.UnreferencedUsage(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(unreferenced) != 0 {
		t.Errorf("expected 0 unreferenced records after marking, got %d", len(unreferenced))
	}
}

func TestSeenRecentlyWithinWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen, err := s.SeenRecently(ctx, "UserPromptSubmit", "hash1", "preview", time.Hour)
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if seen {
		t.Error("expected first sighting to not be 'seen recently'")
	}

	seen, err = s.SeenRecently(ctx, "UserPromptSubmit", "hash1", "preview", time.Hour)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !seen {
		t.Error("expected second sighting within the window to be 'seen recently'")
	}
}

func TestSeenRecentlyOutsideWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SeenRecently(ctx, "UserPromptSubmit", "hash2", "preview", time.Hour); err != nil {
		t.Fatal(err)
	}

	seen, err := s.SeenRecently(ctx, "UserPromptSubmit", "hash2", "preview", 0)
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("expected zero-width window to never report 'seen recently'")
	}
}
