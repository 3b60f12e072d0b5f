package indexer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWalkCollectionSkipsExcludedDirs(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "notes", "a.md"), "# A")
	mustWrite(t, filepath.Join(root, ".git", "b.md"), "# B")
	mustWrite(t, filepath.Join(root, "node_modules", "pkg", "c.md"), "# C")

	got, err := walkCollection(root, "**/*.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "a.md" {
		t.Fatalf("expected only a.md, got %v", got)
	}
}

func TestWalkCollectionBraceExpansion(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "x.md"), "x")
	mustWrite(t, filepath.Join(root, "y.markdown"), "y")
	mustWrite(t, filepath.Join(root, "z.txt"), "z")

	got, err := walkCollection(root, "**/*.{md,markdown}")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %v", got)
	}
}

func TestInferContentType(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"notes/decisions/db-choice.md", "decision"},
		{"handoffs/2026-01-01.md", "handoff"},
		{"misc/random.md", "note"},
	}
	for _, c := range cases {
		got := inferContentType(nil, c.path)
		if got != c.want {
			t.Errorf("inferContentType(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestInferContentTypeFrontmatterWins(t *testing.T) {
	got := inferContentType(map[string]string{"content_type": "research"}, "notes/decisions/x.md")
	if got != "research" {
		t.Fatalf("expected frontmatter to win, got %q", got)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
