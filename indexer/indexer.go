package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clawmem/clawmem/llm"
	"github.com/clawmem/clawmem/parser"
	"github.com/clawmem/clawmem/splitter"
	"github.com/clawmem/clawmem/store"
)

// Enricher runs A-MEM enrichment for a freshly indexed document. The
// indexer depends only on this narrow interface so the amem package
// (which itself only depends on store/llm) never needs to import
// indexer back.
type Enricher interface {
	Enrich(ctx context.Context, doc *store.Document, isNew bool)
}

// markdownFormats are parsed directly by the splitter; everything
// else routes through the parser registry when one is configured.
var markdownFormats = map[string]bool{".md": true, ".markdown": true}

// Indexer walks configured collections, detects changed files by
// content hash, and keeps documents/fragments/embeddings in sync.
type Indexer struct {
	store    *store.Store
	gateway  *llm.Gateway
	parsers  *parser.Registry
	enricher Enricher
	logger   *slog.Logger
}

// New builds an Indexer. parsers may be nil to skip attachment
// ingestion entirely (markdown-only operation).
func New(s *store.Store, gw *llm.Gateway, parsers *parser.Registry, enricher Enricher, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: s, gateway: gw, parsers: parsers, enricher: enricher, logger: logger}
}

// Result summarizes one collection walk.
type Result struct {
	Scanned    int
	Unchanged  int
	Indexed    int
	Deactivated int
	Errors     int
}

// IndexCollection walks root for files matching pattern, indexing new
// or changed ones and deactivating documents for files that vanished.
func (idx *Indexer) IndexCollection(ctx context.Context, collection, root, pattern string) (Result, error) {
	if pattern == "" {
		pattern = "**/*.md"
	}
	var res Result

	files, err := walkCollection(root, pattern)
	if err != nil {
		return res, fmt.Errorf("walking collection %q: %w", collection, err)
	}

	seen := make(map[string]bool, len(files))
	for _, path := range files {
		res.Scanned++
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true

		changed, err := idx.indexFile(ctx, collection, rel, path)
		if err != nil {
			idx.logger.Warn("indexing file failed", "collection", collection, "path", rel, "error", err)
			res.Errors++
			continue
		}
		if changed {
			res.Indexed++
		} else {
			res.Unchanged++
		}
	}

	existing, err := idx.store.ListActivePaths(ctx, collection)
	if err != nil {
		return res, fmt.Errorf("listing active paths for %q: %w", collection, err)
	}
	for _, p := range existing {
		if !seen[p] {
			if err := idx.store.DeactivateDocument(ctx, collection, p); err != nil {
				idx.logger.Warn("deactivating missing document failed", "collection", collection, "path", p, "error", err)
				continue
			}
			res.Deactivated++
		}
	}

	return res, nil
}

// indexFile reads one file, detects whether its content changed since
// the last index, and if so upserts it end to end. It reports whether
// the file was (re)indexed.
func (idx *Indexer) indexFile(ctx context.Context, collection, relPath, fullPath string) (bool, error) {
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return false, fmt.Errorf("reading file: %w", err)
	}

	contentHash := hashString(string(raw))

	existing, err := idx.store.GetDocumentByPath(ctx, collection, relPath)
	if err == nil && existing.Active && existing.ContentHash == contentHash {
		return false, nil
	}

	ext := strings.ToLower(filepath.Ext(relPath))
	var body string
	var fm splitter.Frontmatter
	if markdownFormats[ext] || ext == "" {
		fm = splitter.ParseFrontmatter(string(raw))
		body = fm.Body
	} else {
		body, err = idx.parseAttachment(ctx, fullPath, ext)
		if err != nil {
			return false, err
		}
		fm = splitter.Frontmatter{Body: body}
	}

	bodyHash := hashString(body)
	filenameNoExt := strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
	title := splitter.TitleFrom(fm, filenameNoExt)

	doc := store.Document{
		Collection:  collection,
		Path:        relPath,
		Title:       title,
		Hash:        bodyHash,
		ContentHash: contentHash,
		ContentType: inferContentType(fm.Fields, relPath),
		Domain:      fm.Fields["domain"],
		Workstream:  fm.Fields["workstream"],
		Tags:        splitList(fm.Fields["tags"]),
		ReviewBy:    fm.Fields["review_by"],
	}
	if doc.ContentType == "observation" {
		doc.ObservationType = fm.Fields["observation_type"]
		doc.ObservationFacts = splitList(fm.Fields["facts"])
		doc.ObservationNarrative = fm.Fields["narrative"]
		doc.ObservationConcepts = splitList(fm.Fields["concepts"])
	}

	if err := idx.store.InsertContent(ctx, bodyHash, body); err != nil {
		return false, fmt.Errorf("storing content: %w", err)
	}

	id, isNew, err := idx.store.UpsertDocument(ctx, doc)
	if err != nil {
		return false, fmt.Errorf("upserting document: %w", err)
	}

	if err := idx.embedFragments(ctx, bodyHash, body, doc, title, fm.Fields); err != nil {
		idx.logger.Warn("embedding fragments failed", "path", relPath, "error", err)
	}

	if idx.enricher != nil {
		doc.ID = id
		idx.enricher.Enrich(ctx, &doc, isNew)
	}

	return true, nil
}

// embedFragments splits body, embeds every fragment, and inserts them.
// One fragment's embedding failing does not stop the others.
func (idx *Indexer) embedFragments(ctx context.Context, hash, body string, doc store.Document, title string, frontmatterFields map[string]string) error {
	existing, err := idx.store.FragmentsForHash(ctx, hash)
	if err == nil && len(existing) > 0 {
		allEmbedded := true
		for _, f := range existing {
			if f.Model == "" {
				allEmbedded = false
				break
			}
		}
		if allEmbedded {
			return nil
		}
	}

	fragments := splitter.Split(body, doc.ContentType, frontmatterFields, doc.ObservationFacts, doc.ObservationNarrative)

	for seq, frag := range fragments {
		fragID, err := idx.store.InsertFragment(ctx, store.Fragment{
			Hash: hash, Seq: seq, Pos: seq, FragmentType: frag.Type, FragmentLabel: frag.Label,
		})
		if err != nil {
			idx.logger.Warn("inserting fragment failed", "hash", hash, "seq", seq, "error", err)
			continue
		}

		emb, err := idx.gateway.Embed(ctx, frag.Content, false, title)
		if err != nil {
			idx.logger.Warn("embedding fragment failed", "hash", hash, "seq", seq, "error", err)
			continue
		}
		if err := idx.store.EmbedFragment(ctx, fragID, emb.Vector, emb.Model); err != nil {
			idx.logger.Warn("persisting embedding failed", "hash", hash, "seq", seq, "error", err)
		}
	}
	return nil
}

// parseAttachment routes a non-markdown file through the parser
// registry, flattening its sections back into one body string the
// splitter can treat like any other document.
func (idx *Indexer) parseAttachment(ctx context.Context, path, ext string) (string, error) {
	if idx.parsers == nil {
		return "", fmt.Errorf("no parser registered for %q and attachment ingestion is disabled", ext)
	}
	p, err := idx.parsers.Get(strings.TrimPrefix(ext, "."))
	if err != nil {
		return "", err
	}
	result, err := p.Parse(ctx, path)
	if err != nil {
		return "", fmt.Errorf("parsing attachment: %w", err)
	}

	var b strings.Builder
	for _, s := range result.Sections {
		if s.Heading != "" {
			b.WriteString(strings.Repeat("#", max(1, s.Level)))
			b.WriteString(" ")
			b.WriteString(s.Heading)
			b.WriteString("\n")
		}
		b.WriteString(s.Content)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// contentTypePathHints maps path keywords to an inferred content
// type, per the scoring catalog's "inferred from path keywords unless
// explicitly set by frontmatter" rule.
var contentTypePathHints = []struct {
	keyword string
	kind    string
}{
	{"handoff", "handoff"},
	{"progress", "progress"},
	{"research", "research"},
	{"decision", "decision"},
	{"project", "project"},
	{"hub", "hub"},
	{"observation", "observation"},
}

func inferContentType(fields map[string]string, path string) string {
	if t := fields["content_type"]; t != "" {
		return t
	}
	lower := strings.ToLower(path)
	for _, h := range contentTypePathHints {
		if strings.Contains(lower, h.keyword) {
			return h.kind
		}
	}
	return "note"
}
