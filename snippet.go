package clawmem

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// snippetMaxLen is the default approximate maximum character length
// for a snippet window when maxChars is not supplied.
const snippetMaxLen = 300

// ExtractSnippet returns the best-matching window of body around
// query, prefixed by a unified-diff-style header line
// "@@ -start,count @@ (N before, M after)" so callers can locate the
// window within the original document. chunkPos, when non-nil,
// restricts scoring to a sub-range of lines (e.g. a specific
// fragment's span) before the header's line numbers are translated
// back to whole-document coordinates.
func ExtractSnippet(body, query string, maxChars int, chunkPos *int) string {
	if maxChars <= 0 {
		maxChars = snippetMaxLen
	}
	lines := strings.Split(body, "\n")
	if len(lines) == 0 || strings.TrimSpace(body) == "" {
		return "@@ -1,0 @@ (0 before, 0 after)\n"
	}

	queryWords := significantWords(query)

	offset := 0
	searchLines := lines
	if chunkPos != nil && *chunkPos >= 0 && *chunkPos < len(lines) {
		offset = *chunkPos
		searchLines = lines[offset:]
	}

	best := bestLineIndex(searchLines, queryWords)

	before, after := 0, 0
	start := best
	end := best + 1
	budget := maxChars - len(searchLines[best])

	for budget > 0 && (start > 0 || end < len(searchLines)) {
		grew := false
		if start > 0 && budget > 0 {
			start--
			budget -= len(searchLines[start]) + 1
			before++
			grew = true
		}
		if end < len(searchLines) && budget > 0 {
			end++
			budget -= len(searchLines[end-1]) + 1
			after++
			grew = true
		}
		if !grew {
			break
		}
	}

	window := searchLines[start:end]
	count := len(window)
	headerStart := offset + start + 1 // 1-based

	header := fmt.Sprintf("@@ -%d,%d @@ (%d before, %d after)", headerStart, count, before, after)
	return header + "\n" + strings.Join(window, "\n")
}

// bestLineIndex returns the index of the line in lines with the
// highest word-overlap score against queryWords, defaulting to 0 when
// nothing scores above zero.
func bestLineIndex(lines []string, queryWords map[string]bool) int {
	if len(queryWords) == 0 {
		return 0
	}
	best, bestScore := 0, -1
	for i, l := range lines {
		score := 0
		for w := range significantWords(l) {
			if queryWords[w] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}

// significantWords returns the set of lowercased words >= 4
// characters, excluding common stop words.
func significantWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) >= 4 && !snippetStopWords[w] {
			words[w] = true
		}
	}
	return words
}

var snippetStopWords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true,
	"have": true, "been": true, "were": true, "they": true,
	"their": true, "will": true, "would": true, "could": true,
	"should": true, "about": true, "which": true, "there": true,
	"these": true, "those": true, "then": true, "than": true,
	"them": true, "what": true, "when": true, "where": true,
	"your": true, "more": true, "some": true, "such": true,
	"only": true, "also": true, "very": true, "just": true,
	"into": true, "over": true, "each": true, "does": true,
	"most": true, "after": true, "before": true, "other": true,
	"being": true, "same": true, "both": true, "between": true,
}

// parseSnippetHeader is the test-facing inverse of ExtractSnippet's
// header line, used to assert the line-count invariant.
func parseSnippetHeader(header string) (start, count int, ok bool) {
	if !strings.HasPrefix(header, "@@ -") {
		return 0, 0, false
	}
	rest := strings.TrimPrefix(header, "@@ -")
	end := strings.Index(rest, " @@")
	if end < 0 {
		return 0, 0, false
	}
	parts := strings.SplitN(rest[:end], ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	s, err1 := strconv.Atoi(parts[0])
	c, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return s, c, true
}
