// Package dsl compiles the URL mini-language into Elasticsearch
// Query/Aggregation DSL fragments.
package dsl

// Fragment is one composable clause of Query or Aggregation DSL,
// represented as a JSON-like nested map.
type Fragment = map[string]interface{}

// Merge deep-merges src into dst and returns the result. Neither input
// is mutated. Map values merge recursively, list values concatenate,
// and conflicting scalars resolve right-biased (src wins). The merge is
// associative whenever no two fragments share a conflicting scalar key.
func Merge(dst, src Fragment) Fragment {
	if dst == nil && src == nil {
		return Fragment{}
	}
	out := make(Fragment, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		dv, exists := out[k]
		if !exists {
			out[k] = sv
			continue
		}
		out[k] = mergeValue(dv, sv)
	}
	return out
}

// MergeAll folds Merge over any number of fragments, left to right.
func MergeAll(fragments ...Fragment) Fragment {
	out := Fragment{}
	for _, f := range fragments {
		out = Merge(out, f)
	}
	return out
}

func mergeValue(dst, src interface{}) interface{} {
	dm, dok := dst.(map[string]interface{})
	sm, sok := src.(map[string]interface{})
	if dok && sok {
		return Merge(dm, sm)
	}

	dl, dok := dst.([]interface{})
	sl, sok := src.([]interface{})
	if dok && sok {
		out := make([]interface{}, 0, len(dl)+len(sl))
		out = append(out, dl...)
		out = append(out, sl...)
		return out
	}

	return src
}
