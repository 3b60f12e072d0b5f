// Package indexer implements the collection walk, change detection,
// and fragment-embedding loop that keep the store's documents and
// fragments in sync with a set of on-disk collections.
package indexer

import (
	"os"
	"path/filepath"
	"strings"
)

// excludedDirs is the fixed set of directory names the walk never
// descends into, matched by base name at any depth.
var excludedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	".idea":        true,
	".vscode":      true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".cache":       true,
	"__pycache__":  true,
}

// walkCollection returns every regular file under root whose path
// matches pattern, skipping excludedDirs. pattern supports a leading
// "**/" meaning "any depth" and brace alternation like
// "*.{md,markdown}"; beyond that it is matched with filepath.Match
// against the path relative to root.
func walkCollection(root, pattern string) ([]string, error) {
	alternatives := expandBraces(pattern)

	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal to the walk
		}
		if d.IsDir() {
			if path != root && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, alt := range alternatives {
			if matchPattern(alt, rel) {
				matches = append(matches, path)
				break
			}
		}
		return nil
	})
	return matches, err
}

// matchPattern matches a single (brace-expanded) glob pattern against
// a slash-separated relative path. A leading "**/" matches any number
// of leading path segments, including none.
func matchPattern(pattern, rel string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(suffix, filepath.Base(rel)); ok {
			return true
		}
		ok, _ := filepath.Match("*/"+suffix, rel)
		if ok {
			return true
		}
		// Fall back to matching the suffix against every possible
		// tail of the path, covering depths "**/" is meant to span.
		segments := strings.Split(rel, "/")
		for i := range segments {
			tail := strings.Join(segments[i:], "/")
			if ok, _ := filepath.Match(suffix, tail); ok {
				return true
			}
		}
		return false
	}
	ok, _ := filepath.Match(pattern, rel)
	return ok
}

// expandBraces expands one level of "{a,b,c}" alternation in pattern,
// e.g. "**/*.{md,markdown}" -> ["**/*.md", "**/*.markdown"].
func expandBraces(pattern string) []string {
	start := strings.IndexByte(pattern, '{')
	if start < 0 {
		return []string{pattern}
	}
	end := strings.IndexByte(pattern[start:], '}')
	if end < 0 {
		return []string{pattern}
	}
	end += start

	prefix := pattern[:start]
	suffix := pattern[end+1:]
	options := strings.Split(pattern[start+1:end], ",")

	out := make([]string, 0, len(options))
	for _, o := range options {
		out = append(out, prefix+o+suffix)
	}
	return out
}
