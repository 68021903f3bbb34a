package crawler

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const (
	productNamePlaceholder     = "{product_name}"
	productCategoryPlaceholder = "{product_category}"
)

var apiJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// fillPlaceholders substitutes the query into s. Without a category the
// category placeholder is stripped; keep is false when nothing is left.
func fillPlaceholders(s string, query SearchQuery) (filled string, keep bool) {
	s = strings.ReplaceAll(s, productNamePlaceholder, query.SearchTerm)
	if !strings.Contains(s, productCategoryPlaceholder) {
		return s, true
	}
	if query.Category != "" {
		return strings.ReplaceAll(s, productCategoryPlaceholder, query.Category), true
	}
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, productCategoryPlaceholder, "")), " ")
	return s, s != ""
}

// buildQueryParams substitutes the product name into every string-valued
// template entry and serializes the result as a query string.
func buildQueryParams(template map[string]any, query SearchQuery) url.Values {
	params := url.Values{}
	for k, v := range template {
		switch t := v.(type) {
		case string:
			if filled, keep := fillPlaceholders(t, query); keep {
				params.Set(k, filled)
			}
		case nil:
			params.Set(k, "")
		default:
			params.Set(k, fmt.Sprint(t))
		}
	}
	return params
}

// appendQuery adds params to endpoint, keeping any query it already has
func appendQuery(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + params.Encode()
}

// buildPayload deep-copies template substituting placeholders. Without a
// category, list entries that reference the category placeholder are
// dropped, and strings lose the placeholder; a field left empty is dropped.
func buildPayload(template map[string]any, query SearchQuery) map[string]any {
	out, _ := substitute(template, query).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func substitute(v any, query SearchQuery) any {
	switch t := v.(type) {
	case string:
		filled, _ := fillPlaceholders(t, query)
		return filled
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if s, ok := child.(string); ok {
				if filled, keep := fillPlaceholders(s, query); keep {
					out[k] = filled
				}
				continue
			}
			out[k] = substitute(child, query)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, child := range t {
			if query.Category == "" && referencesCategory(child) {
				continue
			}
			out = append(out, substitute(child, query))
		}
		return out
	default:
		return v
	}
}

func referencesCategory(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.Contains(t, productCategoryPlaceholder)
	case map[string]any:
		for _, child := range t {
			if referencesCategory(child) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if referencesCategory(child) {
				return true
			}
		}
	}
	return false
}

// embedVariables encodes a GraphQL-style payload as GET query parameters:
// operationName, variables as compact JSON and, when present, extensions.
// Any other top-level entries are passed through as plain parameters.
func embedVariables(endpoint string, payload map[string]any) (string, error) {
	params := url.Values{}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := payload[k]
		if s, ok := v.(string); ok && k != "variables" && k != "extensions" {
			params.Set(k, s)
			continue
		}
		encoded, err := apiJSON.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", k, err)
		}
		params.Set(k, string(encoded))
	}

	if _, ok := payload["variables"]; !ok {
		params.Set("variables", "{}")
	}

	return appendQuery(endpoint, params), nil
}
