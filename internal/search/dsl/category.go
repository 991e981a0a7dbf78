// internal/search/dsl/category.go
package dsl

import "strings"

// CategoryPathNode is one node of a category tree as it appears in
// documents and aggregation responses.
type CategoryPathNode struct {
	Name   string             `json:"name"`
	Childs []CategoryPathNode `json:"childs,omitempty"`
}

// CategoryCompiler builds arbitrarily deep nested-document queries and
// aggregations over a category tree rooted at Path (e.g. "cats").
type CategoryCompiler struct {
	Path string
}

// levelPath returns the document path of nesting level i:
// cats, cats.childs, cats.childs.childs, ...
func (c CategoryCompiler) levelPath(i int) string {
	return c.Path + strings.Repeat(".childs", i)
}

// BuildQueryFragment wraps each path segment in one nested-query level.
// The innermost bool carries one terms clause per segment, matched on
// that level's ".name" field. Depth 0 yields an empty fragment.
func (c CategoryCompiler) BuildQueryFragment(segments []string) Fragment {
	if len(segments) == 0 {
		return Fragment{}
	}

	must := make([]interface{}, 0, len(segments))
	for i, seg := range segments {
		must = append(must, Fragment{
			"terms": Fragment{
				c.levelPath(i) + ".name": []interface{}{seg},
			},
		})
	}

	inner := Fragment{
		"bool": Fragment{"must": must},
	}
	for i := len(segments) - 1; i >= 0; i-- {
		inner = Fragment{
			"nested": Fragment{
				"path":  c.levelPath(i),
				"query": inner,
			},
		}
	}
	return inner
}

// BuildAggregationFragment mirrors BuildQueryFragment with nested terms
// aggregations: one "childs" nesting level per depth unit, each level
// aggregating on its ".name" field. Depth 0 yields an empty fragment.
func (c CategoryCompiler) BuildAggregationFragment(depth int) Fragment {
	if depth <= 0 {
		return Fragment{}
	}
	return c.buildAggLevel(0, depth)
}

func (c CategoryCompiler) buildAggLevel(level, depth int) Fragment {
	name := Fragment{
		"terms": Fragment{"field": c.levelPath(level) + ".name"},
	}
	// The deeper level hangs off each name bucket, so every parent key
	// gets its own child bucket list.
	if level+1 < depth {
		name["aggs"] = Fragment{"childs": c.buildAggLevel(level+1, depth)}
	}
	return Fragment{
		"nested": Fragment{"path": c.levelPath(level)},
		"aggs":   Fragment{"name": name},
	}
}

// ExtractFlattenedPath walks the first-child chain of a category tree,
// concatenating names with "-". Used to build flat cache keys, not by
// the query compiler.
func ExtractFlattenedPath(tree CategoryPathNode, rootKey string) string {
	parts := []string{rootKey}
	node := tree
	for {
		if node.Name != "" {
			parts = append(parts, node.Name)
		}
		if len(node.Childs) == 0 {
			break
		}
		node = node.Childs[0]
	}
	return strings.Join(parts, "-")
}
