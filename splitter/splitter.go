// Package splitter turns a document's raw body into the ordered list
// of fragments the indexer embeds separately: a whole-document "full"
// fragment first, followed by section/list/code/frontmatter slices
// and, for observation documents, fact/narrative slices.
package splitter

import (
	"regexp"
	"strconv"
	"strings"
)

// Fragment is one splitter output entry, pre-insert: the indexer
// assigns seq/pos and the hash it belongs to.
type Fragment struct {
	Type    string // full, section, list, code, frontmatter, fact, narrative
	Label   string
	Content string
}

const (
	// maxInputRunes caps pathological inputs before splitting even
	// looks at them.
	maxInputRunes = 2_000_000
	// minSectionableRunes is the size below which only the "full"
	// fragment is produced; tiny documents don't benefit from sub-
	// fragmenting.
	minSectionableRunes = 500
	// maxFragments bounds the total fragment count per document.
	maxFragments = 64
)

var (
	headingRe    = regexp.MustCompile(`(?m)^(#{1,2})\s+(.+)$`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-*+]\s+.+$`)
	codeFenceRe  = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\\n(.*?)\\n```")
)

// Split produces the ordered fragment list for a document body. kind
// is the document's content_type ("observation" triggers fact/
// narrative extraction); frontmatter is the already-parsed key/value
// map (may be nil).
func Split(body string, kind string, frontmatter map[string]string, facts []string, narrative string) []Fragment {
	body = truncateRunes(body, maxInputRunes)

	fragments := []Fragment{{Type: "full", Content: body}}

	for k, v := range frontmatter {
		fragments = append(fragments, Fragment{Type: "frontmatter", Label: k, Content: k + ": " + v})
	}

	if len([]rune(body)) >= minSectionableRunes {
		fragments = append(fragments, splitSections(body)...)
		fragments = append(fragments, splitLists(body)...)
		fragments = append(fragments, splitCode(body)...)
	}

	if kind == "observation" {
		for i, f := range facts {
			if strings.TrimSpace(f) == "" {
				continue
			}
			fragments = append(fragments, Fragment{Type: "fact", Label: strconv.Itoa(i), Content: f})
		}
		if strings.TrimSpace(narrative) != "" {
			fragments = append(fragments, Fragment{Type: "narrative", Content: narrative})
		}
	}

	if len(fragments) > maxFragments {
		fragments = fragments[:maxFragments]
	}
	return fragments
}

// splitSections slices body at "#"/"##" heading boundaries, one
// fragment per heading through to the next heading of equal-or-higher
// level (approximated here by "next heading at all", which keeps the
// splitter simple and matches the teacher's paragraph-boundary style).
func splitSections(body string) []Fragment {
	matches := headingRe.FindAllStringIndex(body, -1)
	if len(matches) == 0 {
		return nil
	}

	var out []Fragment
	for i, m := range matches {
		start := m[0]
		end := len(body)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		section := strings.TrimSpace(body[start:end])
		if section == "" {
			continue
		}
		heading := strings.TrimSpace(headingRe.FindStringSubmatch(body[m[0]:m[1]])[2])
		out = append(out, Fragment{Type: "section", Label: heading, Content: section})
	}
	return out
}

// splitLists groups consecutive bullet lines (2 or more) into a
// single "list" fragment per run.
func splitLists(body string) []Fragment {
	lines := strings.Split(body, "\n")
	var out []Fragment
	var run []string

	flush := func() {
		if len(run) >= 2 {
			out = append(out, Fragment{Type: "list", Content: strings.Join(run, "\n")})
		}
		run = nil
	}

	for _, line := range lines {
		if bulletRe.MatchString(line) {
			run = append(run, line)
			continue
		}
		flush()
	}
	flush()
	return out
}

// splitCode extracts fenced code blocks as their own fragments.
func splitCode(body string) []Fragment {
	matches := codeFenceRe.FindAllStringSubmatch(body, -1)
	var out []Fragment
	for _, m := range matches {
		content := strings.TrimSpace(m[1])
		if content == "" {
			continue
		}
		out = append(out, Fragment{Type: "code", Content: content})
	}
	return out
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
