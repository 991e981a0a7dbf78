// internal/search/orchestrator/highlight.go
package orchestrator

import (
	"net/url"
	"strings"

	"search-platform/internal/common/errors"
	"search-platform/internal/search/dsl"
)

// highlightFragment builds the highlight clause from ex_highlight_*
// parameters: per-field pre/post tags plus an independently resolved
// sub-query used only for highlighting, defaulting to a match on the
// main query string.
func (o *Orchestrator) highlightFragment(params url.Values) (dsl.Fragment, error) {
	entries := extractPrefixed(params, prefixExHighlight)
	if len(entries) == 0 {
		return nil, nil
	}

	fields := dsl.Fragment{}
	var highlightQuery dsl.Fragment

	for _, pv := range entries {
		call, err := dsl.ParseCall(pv.Raw)
		if err != nil {
			o.warnDrop(pv.Field, err)
			continue
		}
		if call.Op != "highlight" {
			o.warnDrop(pv.Field, errors.NewParseError("expected highlight(...)"))
			continue
		}

		pre, post, sub, err := parseHighlightArgs(call.Arg)
		if err != nil {
			o.warnDrop(pv.Field, err)
			continue
		}

		fields[pv.Field] = dsl.Fragment{
			"pre_tags":  []interface{}{pre},
			"post_tags": []interface{}{post},
		}

		if sub != "" {
			frag, err := o.query.Compile(pv.Field, sub)
			if err != nil {
				if errors.IsInvalidArgument(err) {
					return nil, err
				}
				o.warnDrop(pv.Field, err)
				continue
			}
			highlightQuery = frag
		}
	}

	if len(fields) == 0 {
		return nil, nil
	}

	highlight := dsl.Fragment{"fields": fields}
	if highlightQuery != nil {
		highlight["highlight_query"] = highlightQuery
	} else if q := params.Get(paramQuery); q != "" {
		// Default: highlight what the main query string matched.
		should := []interface{}{}
		for field := range fields {
			should = append(should, dsl.Fragment{"match": dsl.Fragment{field: q}})
		}
		highlight["highlight_query"] = dsl.Fragment{
			"bool": dsl.Fragment{"should": should, "minimum_should_match": 1},
		}
	}

	return dsl.Fragment{"highlight": highlight}, nil
}

// parseHighlightArgs reads the pre/post/query arguments. The query
// value may itself contain ";" inside a nested operator expression, so
// it is cut out before the generic key:value split.
func parseHighlightArgs(raw string) (pre, post, sub string, err error) {
	pre, post = "<em>", "</em>"

	if idx := argKeyIndex(raw, "query"); idx >= 0 {
		sub = strings.TrimSpace(raw[idx+len("query:"):])
		raw = strings.TrimSuffix(strings.TrimSpace(raw[:idx]), ";")
	}

	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, found := strings.Cut(item, ":")
		if !found {
			return "", "", "", errors.NewParseError("highlight: argument is not key:value")
		}
		switch strings.TrimSpace(key) {
		case "pre":
			pre = value
		case "post":
			post = value
		default:
			return "", "", "", errors.NewParseError("highlight: unknown argument key " + key)
		}
	}
	return pre, post, sub, nil
}

// argKeyIndex locates "key:" at an item boundary (string start or just
// after a ";").
func argKeyIndex(raw, key string) int {
	marker := key + ":"
	if strings.HasPrefix(raw, marker) {
		return 0
	}
	if idx := strings.Index(raw, ";"+marker); idx >= 0 {
		return idx + 1
	}
	return -1
}
