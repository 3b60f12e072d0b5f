package llm

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// parseScoreLines extracts up to want floating-point scores from a
// tolerant, possibly-noisy line-based response, defaulting any
// unparseable or missing line to 0.
func parseScoreLines(text string, want int) []float64 {
	scores := make([]float64, want)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	i := 0
	for _, line := range lines {
		if i >= want {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx := strings.Index(line, "]"); idx != -1 && strings.HasPrefix(line, "[") {
			line = strings.TrimSpace(line[idx+1:])
		}
		if v, err := strconv.ParseFloat(line, 64); err == nil {
			scores[i] = v
			i++
		}
	}
	return scores
}

// parseExpansionLines parses the remote expand_query response's
// "type: text" line format, skipping anything that doesn't match a
// known prefix.
func parseExpansionLines(text string) []QueryExpansion {
	var out []QueryExpansion
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, kind := range []ExpansionKind{ExpansionLexical, ExpansionVector, ExpansionHyDE} {
			prefix := string(kind) + ":"
			if strings.HasPrefix(strings.ToLower(line), prefix) {
				out = append(out, QueryExpansion{Type: kind, Text: strings.TrimSpace(line[len(prefix):])})
				break
			}
		}
	}
	return out
}

func sortRerankDescending(results []RerankResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

func encodeRerankCache(results []RerankResult) string {
	b, err := json.Marshal(results)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeRerankCache(raw string) []RerankResult {
	var out []RerankResult
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeExpansionCache(expansions []QueryExpansion) string {
	b, err := json.Marshal(expansions)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeExpansionCache(raw string) []QueryExpansion {
	var out []QueryExpansion
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
