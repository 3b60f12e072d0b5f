package amem

import (
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON locates a JSON object or array within raw LLM output,
// stripping markdown fences and any leading/trailing prose. Unlike a
// strict parser this never errors on "no JSON found" — callers treat
// an empty string as a soft failure, consistent with A-MEM operations
// being non-fatal end to end.
func extractJSON(raw string) string {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		if repaired, ok := repairTruncated(raw); ok {
			return repaired
		}
		return raw
	}

	startObj, startArr := strings.IndexByte(raw, '{'), strings.IndexByte(raw, '[')
	start := firstNonNegative(startObj, startArr)
	if start < 0 {
		return ""
	}
	endObj, endArr := strings.LastIndexByte(raw, '}'), strings.LastIndexByte(raw, ']')
	end := max(endObj, endArr)
	if end <= start {
		return ""
	}
	candidate := raw[start : end+1]
	if repaired, ok := repairTruncated(candidate); ok {
		return repaired
	}
	return candidate
}

func firstNonNegative(a, b int) int {
	if a < 0 {
		return b
	}
	if b < 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// repairTruncated attempts two common small-model failure repairs: a
// trailing comma before a closing bracket, and a stream cut off
// mid-object. It returns ok=false (meaning "use the input unchanged")
// whenever no repair was needed.
func repairTruncated(s string) (string, bool) {
	trimmed := strings.TrimRight(s, " \t\n\r")
	repaired := strings.ReplaceAll(trimmed, ",}", "}")
	repaired = strings.ReplaceAll(repaired, ",]", "]")

	opens := strings.Count(repaired, "{") - strings.Count(repaired, "}")
	opensArr := strings.Count(repaired, "[") - strings.Count(repaired, "]")
	if opens <= 0 && opensArr <= 0 {
		if repaired != s {
			return repaired, true
		}
		return s, false
	}

	for opensArr > 0 {
		repaired += "]"
		opensArr--
	}
	for opens > 0 {
		repaired += "}"
		opens--
	}
	return repaired, true
}
