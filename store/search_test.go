//go:build cgo

package store

import (
	"context"
	"testing"
)

func seedSearchableDoc(t *testing.T, s *Store, collection, path, title, body string) int64 {
	t.Helper()
	ctx := context.Background()
	hash := path // distinct per test doc, good enough as a fake content hash
	if err := s.InsertContent(ctx, hash, body); err != nil {
		t.Fatalf("inserting content: %v", err)
	}
	doc := Document{Collection: collection, Path: path, Title: title, Hash: hash, ContentHash: hash, ContentType: "note"}
	id, _, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("upserting document: %v", err)
	}
	return id
}

func TestSearchFTSMatchesBody(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSearchableDoc(t, s, "notes", "sqlite.md", "SQLite decision", "We chose SQLite for embedded storage.")
	seedSearchableDoc(t, s, "notes", "postgres.md", "Postgres notes", "Unrelated content about Postgres.")

	hits, err := s.SearchFTS(ctx, "SQLite", 10)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Score <= 0 || hits[0].Score > 1 {
		t.Errorf("score out of (0,1] range: %v", hits[0].Score)
	}
}

func TestSearchFTSEmptyQuery(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SearchFTS(context.Background(), "", 10); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchFTSExcludesInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSearchableDoc(t, s, "notes", "gone.md", "Gone", "findable text")
	if err := s.DeactivateDocument(ctx, "notes", "gone.md"); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchFTS(ctx, "findable", 10)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for inactive document, got %d", len(hits))
	}
}

func TestInsertFragmentAndEmbedVectorSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := seedSearchableDoc(t, s, "notes", "vec.md", "Vector doc", "some body")

	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}

	fragID, err := s.InsertFragment(ctx, Fragment{Hash: doc.Hash, Seq: 0, FragmentType: "full"})
	if err != nil {
		t.Fatalf("inserting fragment: %v", err)
	}
	if err := s.EmbedFragment(ctx, fragID, []float32{1, 0, 0, 0}, "test-model"); err != nil {
		t.Fatalf("embedding fragment: %v", err)
	}

	hits, err := s.SearchVec(ctx, []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].DocumentID != docID {
		t.Errorf("document id: got %d, want %d", hits[0].DocumentID, docID)
	}
}

func TestSearchVecScoreIsOneMinusDistance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := seedSearchableDoc(t, s, "notes", "exact.md", "Exact match", "body")
	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	fragID, err := s.InsertFragment(ctx, Fragment{Hash: doc.Hash, Seq: 0, FragmentType: "full"})
	if err != nil {
		t.Fatalf("inserting fragment: %v", err)
	}
	if err := s.EmbedFragment(ctx, fragID, []float32{1, 0, 0, 0}, "test-model"); err != nil {
		t.Fatalf("embedding fragment: %v", err)
	}

	hits, err := s.SearchVec(ctx, []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	// An identical vector has cosine distance 0, so score = 1-0 = 1.
	// A reshaped 1/(1+0) formula would also give 1 here, so this case
	// alone does not tell the two formulas apart.
	if hits[0].Score < 0.999 {
		t.Errorf("expected score ~1 for identical vector, got %v", hits[0].Score)
	}
}

func TestSearchVecDedupesByDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := seedSearchableDoc(t, s, "notes", "multi.md", "Multi fragment", "body")
	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}

	far, err := s.InsertFragment(ctx, Fragment{Hash: doc.Hash, Seq: 0, FragmentType: "full"})
	if err != nil {
		t.Fatalf("inserting fragment: %v", err)
	}
	if err := s.EmbedFragment(ctx, far, []float32{0, 1, 0, 0}, "test-model"); err != nil {
		t.Fatalf("embedding fragment: %v", err)
	}
	closer, err := s.InsertFragment(ctx, Fragment{Hash: doc.Hash, Seq: 1, FragmentType: "section"})
	if err != nil {
		t.Fatalf("inserting fragment: %v", err)
	}
	if err := s.EmbedFragment(ctx, closer, []float32{1, 0, 0, 0}, "test-model"); err != nil {
		t.Fatalf("embedding fragment: %v", err)
	}

	hits, err := s.SearchVec(ctx, []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected exactly 1 deduped hit for the single document, got %d", len(hits))
	}
	if hits[0].DocumentID != docID {
		t.Errorf("document id: got %d, want %d", hits[0].DocumentID, docID)
	}
	if hits[0].FragmentID != closer {
		t.Errorf("expected the closer fragment %d to win, got %d", closer, hits[0].FragmentID)
	}
}

func TestSearchVecWrongDimension(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SearchVec(context.Background(), []float32{1, 2}, 5); err == nil {
		t.Fatal("expected error for mismatched dimension")
	}
}

func TestSearchVecNoMatches(t *testing.T) {
	s := newTestStore(t)
	hits, err := s.SearchVec(context.Background(), []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("searching empty index: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestFragmentsForHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.InsertContent(ctx, "h1", "body"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertFragment(ctx, Fragment{Hash: "h1", Seq: 0, FragmentType: "full"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertFragment(ctx, Fragment{Hash: "h1", Seq: 1, FragmentType: "section", FragmentLabel: "Intro"}); err != nil {
		t.Fatal(err)
	}

	frags, err := s.FragmentsForHash(ctx, "h1")
	if err != nil {
		t.Fatalf("listing fragments: %v", err)
	}
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if frags[0].Seq != 0 || frags[1].Seq != 1 {
		t.Errorf("expected fragments ordered by seq, got %+v", frags)
	}
}
