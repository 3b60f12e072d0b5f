package splitter

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the parsed `---\n...\n---` YAML header of a document,
// plus the body that follows it.
type Frontmatter struct {
	Fields map[string]string
	Body   string
}

// ParseFrontmatter extracts a leading YAML frontmatter block. Parsing
// is fail-soft: malformed YAML yields an empty Fields map and the
// original raw text as Body rather than an error, per the indexer's
// "parse frontmatter (fail-soft)" contract.
func ParseFrontmatter(raw string) Frontmatter {
	const delim = "---"
	if !strings.HasPrefix(raw, delim) {
		return Frontmatter{Body: raw}
	}

	rest := raw[len(delim):]
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	end := strings.Index(rest, "\n"+delim)
	if end < 0 {
		return Frontmatter{Body: raw}
	}

	yamlBlock := rest[:end]
	body := rest[end+1+len(delim):]
	body = strings.TrimPrefix(body, "\r\n")
	body = strings.TrimPrefix(body, "\n")

	var raw2 map[string]any
	if err := yaml.Unmarshal([]byte(yamlBlock), &raw2); err != nil {
		return Frontmatter{Body: raw}
	}

	fields := make(map[string]string, len(raw2))
	for k, v := range raw2 {
		fields[k] = stringify(v)
	}
	return Frontmatter{Fields: fields, Body: body}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ", ")
	default:
		b, err := yaml.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
}

// TitleFrom returns the document's title: the frontmatter "title"
// field if set, else the first "#" or "##" heading, else the filename
// without its extension.
func TitleFrom(fm Frontmatter, filenameNoExt string) string {
	if t, ok := fm.Fields["title"]; ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	if m := headingRe.FindStringSubmatch(fm.Body); m != nil {
		return strings.TrimSpace(m[2])
	}
	return filenameNoExt
}
