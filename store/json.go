package store

import "encoding/json"

// marshalStrings serializes a string slice to a JSON array, "[]" for
// nil/empty.
func marshalStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// unmarshalStrings parses a JSON array column back into a string
// slice, tolerating NULL/empty/malformed input by returning nil.
func unmarshalStrings(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return nil
	}
	return out
}
