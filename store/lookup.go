package store

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// maxPathLength bounds the fuzzy-path fallback in FindDocument: paths
// longer than this are never worth a Levenshtein scan against every
// active document.
const maxPathLength = 4096

// ParsedRef is a resolved identifier: either an exact
// (collection, path) pair or an explicit document id, plus an
// optional line anchor from a ":N" suffix.
type ParsedRef struct {
	Collection string
	Path       string
	LineAnchor int
}

// ParseVirtualPath normalizes and parses a clawmem:// reference into
// its (collection, path) components, tolerating a missing scheme,
// repeated slashes, and a trailing ":N" line anchor.
func ParseVirtualPath(ref string) (ParsedRef, error) {
	s := strings.TrimPrefix(ref, "clawmem://")
	s = strings.TrimPrefix(s, "clawmem:")

	var anchor int
	if idx := strings.LastIndex(s, ":"); idx > 0 {
		if n, err := strconv.Atoi(s[idx+1:]); err == nil {
			anchor = n
			s = s[:idx]
		}
	}

	s = strings.TrimPrefix(s, "/")
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}

	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ParsedRef{}, fmt.Errorf("%w: malformed virtual path %q", ErrInvalidInput, ref)
	}
	return ParsedRef{Collection: parts[0], Path: parts[1], LineAnchor: anchor}, nil
}

// BuildVirtualPath renders the canonical clawmem:// form of a
// (collection, path) pair.
func BuildVirtualPath(collection, path string) string {
	return fmt.Sprintf("clawmem://%s/%s", collection, path)
}

// ShortDocID returns the 6-hex-char docid prefix of a content hash.
func ShortDocID(hash string) string {
	if len(hash) < 6 {
		return hash
	}
	return hash[:6]
}

// FindDocumentByDocID resolves a short docid (with or without a
// leading '#') to its document, returning ErrDocIDCollision if two or
// more documents' content hashes share the prefix rather than
// silently returning the first match.
func (s *Store) FindDocumentByDocID(ctx context.Context, docid string) (*Document, error) {
	prefix := strings.TrimPrefix(docid, "#")
	if prefix == "" {
		return nil, ErrInvalidInput
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash LIKE ? || '%' AND active = 1 ORDER BY id ASC LIMIT 2`,
		prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %q matches multiple documents, use a longer prefix", ErrDocIDCollision, prefix)
	}
}

// FindDocument resolves identifier using the four accepted forms: an
// explicit virtual path, an absolute filesystem path (matched against
// known (collection, path) pairs by suffix), a short docid, or a
// fuzzy path match bounded by maxPathLength.
func (s *Store) FindDocument(ctx context.Context, identifier string) (*Document, error) {
	if identifier == "" {
		return nil, ErrInvalidInput
	}

	if strings.HasPrefix(identifier, "#") || isHexPrefix(identifier) {
		return s.FindDocumentByDocID(ctx, identifier)
	}

	if strings.Contains(identifier, "clawmem:") {
		ref, err := ParseVirtualPath(identifier)
		if err != nil {
			return nil, err
		}
		return s.GetDocumentByPath(ctx, ref.Collection, ref.Path)
	}

	if strings.HasPrefix(identifier, "/") {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE active = 1 AND ? LIKE '%' || path ORDER BY LENGTH(path) DESC LIMIT 1`,
			identifier)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		if rows.Next() {
			return scanDocument(rows)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if len(identifier) > maxPathLength {
		return nil, fmt.Errorf("%w: identifier exceeds max path length", ErrInvalidInput)
	}
	return s.fuzzyFindByPath(ctx, identifier)
}

func isHexPrefix(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

// fuzzyFindByPath scans active documents for the path with the
// smallest Levenshtein distance to identifier, returning it only when
// the match is close enough to be plausible (within a quarter of the
// query's own length).
func (s *Store) fuzzyFindByPath(ctx context.Context, identifier string) (*Document, error) {
	paths, err := s.allActivePathsWithID(ctx)
	if err != nil {
		return nil, err
	}

	var bestID int64
	bestDist := -1
	for id, p := range paths {
		d := levenshtein(identifier, p)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			bestID = id
		}
	}

	threshold := len(identifier)/4 + 1
	if bestDist == -1 || bestDist > threshold {
		return nil, ErrNotFound
	}
	return s.GetDocument(ctx, bestID)
}

func (s *Store) allActivePathsWithID(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path FROM documents WHERE active = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var p string
		if err := rows.Scan(&id, &p); err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, rows.Err()
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// FindDocumentResult is one entry of a FindDocuments batch response:
// either a resolved document or a skip reason (e.g. oversized file).
type FindDocumentResult struct {
	Identifier string
	Document   *Document
	Skipped    bool
	Reason     string
}

// FindDocuments resolves a glob pattern or comma-separated list of
// identifiers, returning a per-item result so a caller can report
// partial success.
func (s *Store) FindDocuments(ctx context.Context, globOrCSV string, maxBytes int64) ([]FindDocumentResult, error) {
	var identifiers []string
	if strings.Contains(globOrCSV, ",") {
		for _, part := range strings.Split(globOrCSV, ",") {
			if p := strings.TrimSpace(part); p != "" {
				identifiers = append(identifiers, p)
			}
		}
	} else if strings.ContainsAny(globOrCSV, "*?[") {
		matches, err := s.matchGlob(ctx, globOrCSV)
		if err != nil {
			return nil, err
		}
		identifiers = matches
	} else {
		identifiers = []string{globOrCSV}
	}

	results := make([]FindDocumentResult, 0, len(identifiers))
	for _, id := range identifiers {
		d, err := s.FindDocument(ctx, id)
		if err != nil {
			results = append(results, FindDocumentResult{Identifier: id, Skipped: true, Reason: err.Error()})
			continue
		}
		if maxBytes > 0 {
			var bodyLen int64
			if err := s.db.QueryRowContext(ctx, `SELECT LENGTH(body) FROM content WHERE hash = ?`, d.Hash).Scan(&bodyLen); err == nil && bodyLen > maxBytes {
				results = append(results, FindDocumentResult{Identifier: id, Skipped: true, Reason: "exceeds byte cap"})
				continue
			}
		}
		results = append(results, FindDocumentResult{Identifier: id, Document: d})
	}
	return results, nil
}

func (s *Store) matchGlob(ctx context.Context, pattern string) ([]string, error) {
	paths, err := s.allActivePathsWithID(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range paths {
		if ok, _ := globMatch(pattern, p); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// globMatch matches a brace-free shell glob against a slash-separated
// path; path.Match already treats '/' literally, which is what we
// want for collection-relative paths.
func globMatch(pattern, name string) (bool, error) {
	return path.Match(pattern, name)
}
