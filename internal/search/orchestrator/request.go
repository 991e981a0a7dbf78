// internal/search/orchestrator/request.go
//
// Helpers that pull the fixed-meaning and prefixed parameters out of a
// query request. A request is an ordered multi-valued mapping, exactly
// the shape of parsed URL query parameters.
package orchestrator

import (
	"net/url"
	"strconv"
	"strings"
)

// Reserved extended-parameter prefixes. The remainder of the key names
// the target field.
const (
	prefixExQuery       = "ex_q_"
	prefixExFilter      = "ex_f_"
	prefixExAgg         = "ex_agg_"
	prefixExHighlight   = "ex_highlight_"
	prefixExSection     = "ex_section_"
	prefixExScriptField = "ex_script_field_"
)

// Fixed-meaning parameters.
const (
	paramQuery      = "q"
	paramFrom       = "from"
	paramSize       = "size"
	paramCat        = "cat"
	paramCats       = "cats"
	paramBasic      = "basic"
	paramProp       = "prop"
	paramSort       = "sort"
	paramField      = "field"
	paramExFields   = "ex_fields"
	paramExFielddts = "ex_fielddatas"
	paramExDsl      = "ex_dsl"
	paramExScriptPy = "ex_script_py"
)

// prefixedValue is one extended parameter: the field embedded in the
// key plus the raw operator expression.
type prefixedValue struct {
	Field string
	Raw   string
}

// extractPrefixed collects every value carried under the given prefix,
// one entry per value so a legitimately repeated field OR-combines.
func extractPrefixed(params url.Values, prefix string) []prefixedValue {
	out := []prefixedValue{}
	for key, values := range params {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		field := strings.TrimPrefix(key, prefix)
		if field == "" {
			continue
		}
		for _, v := range values {
			if v != "" {
				out = append(out, prefixedValue{Field: field, Raw: v})
			}
		}
	}
	return out
}

// splitValues splits a comma-separated parameter into its entries.
func splitValues(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// condition is one parsed item of the basic/prop mini-syntax:
// "key:v1,v2".
type condition struct {
	Key    string
	Values []string
}

// parseConditions parses a basic/prop parameter. Items are delimited by
// ";" when present, "_" otherwise. Malformed items are skipped.
func parseConditions(raw string) []condition {
	sep := "_"
	if strings.Contains(raw, ";") {
		sep = ";"
	}
	out := []condition{}
	for _, item := range strings.Split(raw, sep) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, rest, found := strings.Cut(item, ":")
		if !found || key == "" {
			continue
		}
		values := splitValues(rest)
		if len(values) == 0 {
			continue
		}
		out = append(out, condition{Key: key, Values: values})
	}
	return out
}

// clampInt parses a numeric parameter, clamping to [0, max] with a
// fallback default on absence or garbage.
func clampInt(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
