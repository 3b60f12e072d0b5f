// Package feedback closes the loop between what the retrieval engine
// injected into a session and what the assistant actually used: on
// session end it reads the persisted usage log and the transcript,
// and for every injected document whose path, filename, or title
// shows up in the assistant's own text, bumps that document's access
// count so C8's confidence score reflects real usage.
package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clawmem/clawmem/store"
)

// maxTranscriptBytes bounds how large a transcript file this loop will
// read, per the wire-protocol contract's 50 MB ceiling.
const maxTranscriptBytes = 50 * 1024 * 1024

// minTitleLen is the shortest title considered for the "title
// mention" heuristic; shorter titles produce too many false-positive
// substring matches against ordinary prose.
const minTitleLen = 5

// Loop correlates session usage records against a transcript.
type Loop struct {
	store  *store.Store
	logger *slog.Logger
}

// New builds a Loop.
func New(s *store.Store, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{store: s, logger: logger}
}

// transcriptLine mirrors one line of the line-delimited JSON
// transcript format: either {role, content} directly, or the content
// nested under {message: {role, content}}.
type transcriptLine struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Message *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// contentBlock matches the {type:"text", text} shape content may take
// when it is a list instead of a bare string.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// OnSessionEnd is the entry point invoked when a session closes. It is
// non-fatal: any read or parse failure logs and returns a zero result
// rather than propagating, per the enrichment-path error policy.
func (l *Loop) OnSessionEnd(ctx context.Context, sessionID, transcriptPath string) (referenced int, err error) {
	pending, err := l.store.UnreferencedUsage(ctx, sessionID)
	if err != nil {
		l.logger.Warn("feedback: loading usage records failed", "session", sessionID, "error", err)
		return 0, nil
	}
	if len(pending) == 0 {
		return 0, nil
	}

	assistantText, err := readAssistantText(transcriptPath)
	if err != nil {
		l.logger.Warn("feedback: reading transcript failed", "path", transcriptPath, "error", err)
		return 0, nil
	}
	lowerText := strings.ToLower(assistantText)

	seenDocs := make(map[int64]bool)
	for _, rec := range pending {
		matched := false
		for _, path := range rec.InjectedPaths {
			doc, err := l.store.GetDocumentByPath(ctx, pathCollection(path), pathRelative(path))
			if err != nil {
				continue
			}
			if mentionsDocument(lowerText, doc) {
				matched = true
				if !seenDocs[doc.ID] {
					seenDocs[doc.ID] = true
					if err := l.store.IncrementAccessCount(ctx, doc.ID); err != nil {
						l.logger.Warn("feedback: incrementing access count failed", "doc", doc.ID, "error", err)
					}
				}
			}
		}
		if matched {
			if err := l.store.MarkUsageReferenced(ctx, rec.ID); err != nil {
				l.logger.Warn("feedback: marking usage referenced failed", "usage", rec.ID, "error", err)
				continue
			}
			referenced++
		}
	}
	return referenced, nil
}

// mentionsDocument reports whether the assistant's lowercased text
// contains the document's path, bare filename, or (if long enough)
// title.
func mentionsDocument(lowerText string, doc *store.Document) bool {
	if doc == nil {
		return false
	}
	if doc.Path != "" && strings.Contains(lowerText, strings.ToLower(doc.Path)) {
		return true
	}
	base := filepath.Base(doc.Path)
	if base != "" && base != "." && strings.Contains(lowerText, strings.ToLower(base)) {
		return true
	}
	if len(doc.Title) >= minTitleLen && strings.Contains(lowerText, strings.ToLower(doc.Title)) {
		return true
	}
	return false
}

// pathCollection and pathRelative split a `clawmem://collection/path`
// or bare `collection/path` string coming from an injected-paths log
// entry. Injected paths are recorded by the hook handler in whichever
// shape it had on hand; both are accepted here.
func pathCollection(p string) string {
	p = strings.TrimPrefix(p, "clawmem://")
	if i := strings.Index(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}

func pathRelative(p string) string {
	p = strings.TrimPrefix(p, "clawmem://")
	if i := strings.Index(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// readAssistantText reads a .jsonl transcript and concatenates every
// assistant-role text block, skipping lines that fail to parse
// (fail-soft, matching the rest of the engine's parsing posture).
func readAssistantText(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("feedback: empty transcript path")
	}
	if !filepath.IsAbs(path) || filepath.Ext(path) != ".jsonl" {
		return "", fmt.Errorf("feedback: transcript path must be an absolute .jsonl file")
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat transcript: %w", err)
	}
	if info.Size() > maxTranscriptBytes {
		return "", fmt.Errorf("feedback: transcript exceeds %d byte limit", maxTranscriptBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var tl transcriptLine
		if err := json.Unmarshal(line, &tl); err != nil {
			continue
		}
		role, content := tl.Role, tl.Content
		if tl.Message != nil {
			role, content = tl.Message.Role, tl.Message.Content
		}
		if role != "assistant" {
			continue
		}
		sb.WriteString(extractText(content))
		sb.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

// extractText pulls text out of a content field that may be a bare
// JSON string or a list of {type, text} blocks.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == "text" || b.Type == "" {
				sb.WriteString(b.Text)
				sb.WriteByte(' ')
			}
		}
		return sb.String()
	}
	return ""
}
