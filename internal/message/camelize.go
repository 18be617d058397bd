package message

import (
	"encoding/json"
	"strings"
)

// CamelizeKeys rewrites every object key in raw from snake_case to
// camelCase, recursing through nested objects and arrays. Values are left
// untouched. This is a serialization concern only; dispatch never sees
// camelized keys.
func CamelizeKeys(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(camelizeValue(v))
}

func camelizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[snakeToCamel(k)] = camelizeValue(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = camelizeValue(val)
		}
		return t
	default:
		return v
	}
}

func snakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.Grow(len(s))
	wrote := false
	for _, p := range parts {
		if p == "" {
			continue
		}
		if !wrote {
			b.WriteString(p)
			wrote = true
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	if !wrote {
		return s
	}
	return b.String()
}
