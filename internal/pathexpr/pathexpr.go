// Package pathexpr reads values out of decoded JSON trees with expressions
// such as "data.search.edges[0].node.title".
//
// A path is a dot-separated list of segments. Each segment is a field name
// followed by zero or more non-negative indexes in brackets. A segment may
// omit the field name to index the current value directly ("[2].name").
package pathexpr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type step struct {
	field   string
	indexes []int
}

func parse(path string) ([]step, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	parts := strings.Split(path, ".")
	steps := make([]step, 0, len(parts))
	for _, part := range parts {
		open := strings.IndexByte(part, '[')
		if open < 0 {
			if part == "" || strings.ContainsRune(part, ']') {
				return nil, fmt.Errorf("malformed segment %q", part)
			}
			steps = append(steps, step{field: part})
			continue
		}

		s := step{field: part[:open]}
		rest := part[open:]
		for rest != "" {
			if rest[0] != '[' {
				return nil, fmt.Errorf("malformed segment %q", part)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated index in %q", part)
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid index in %q", part)
			}
			s.indexes = append(s.indexes, idx)
			rest = rest[end+1:]
		}
		if s.field == "" && len(s.indexes) == 0 {
			return nil, fmt.Errorf("malformed segment %q", part)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// Valid reports whether path is a well-formed expression
func Valid(path string) bool {
	_, err := parse(path)
	return err == nil
}

// Extract walks root along path. A missing field, a non-list where an index
// is expected, an out-of-range index or a malformed path all yield (nil, false).
func Extract(root any, path string) (any, bool) {
	steps, err := parse(path)
	if err != nil {
		return nil, false
	}

	current := root
	for _, s := range steps {
		if s.field != "" {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = obj[s.field]
			if !ok {
				return nil, false
			}
		}
		for _, idx := range s.indexes {
			list, ok := current.([]any)
			if !ok || idx >= len(list) {
				return nil, false
			}
			current = list[idx]
		}
	}
	return current, true
}

// WithIndex rewrites the first "[0]" in path to "[k]". Paths without a
// "[0]" token are returned unchanged.
func WithIndex(path string, k int) string {
	return strings.Replace(path, "[0]", "["+strconv.Itoa(k)+"]", 1)
}

// String extracts the value at path and renders scalars as text. Objects,
// lists, null and empty strings count as absent.
func String(root any, path string) (string, bool) {
	v, ok := Extract(root, path)
	if !ok {
		return "", false
	}
	return Scalar(v)
}

// Scalar renders a decoded JSON scalar as text
func Scalar(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
