// internal/search/dsl/category_test.go
package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueryFragment_DepthMatchesSegments(t *testing.T) {
	c := CategoryCompiler{Path: "cats"}
	segments := []string{"electronics", "phones", "android"}

	frag := c.BuildQueryFragment(segments)

	// Walk the nested wrappers: one per segment, paths deepening by one
	// ".childs" each level.
	wantPaths := []string{"cats", "cats.childs", "cats.childs.childs"}
	current := frag
	var innermost Fragment
	for i, wantPath := range wantPaths {
		nested, ok := current["nested"].(Fragment)
		require.True(t, ok, "level %d missing nested wrapper", i)
		assert.Equal(t, wantPath, nested["path"])
		current = nested["query"].(Fragment)
		innermost = current
	}

	// The innermost bool carries one terms clause per segment.
	must := innermost["bool"].(Fragment)["must"].([]interface{})
	require.Len(t, must, len(segments))
	first := must[0].(Fragment)["terms"].(Fragment)
	assert.Equal(t, []interface{}{"electronics"}, first["cats.name"])
	last := must[2].(Fragment)["terms"].(Fragment)
	assert.Equal(t, []interface{}{"android"}, last["cats.childs.childs.name"])
}

func TestBuildQueryFragment_Empty(t *testing.T) {
	c := CategoryCompiler{Path: "cats"}
	assert.Equal(t, Fragment{}, c.BuildQueryFragment(nil))
}

func TestBuildAggregationFragment(t *testing.T) {
	c := CategoryCompiler{Path: "cats"}

	frag := c.BuildAggregationFragment(2)

	nested := frag["nested"].(Fragment)
	assert.Equal(t, "cats", nested["path"])
	name := frag["aggs"].(Fragment)["name"].(Fragment)
	assert.Equal(t, "cats.name", name["terms"].(Fragment)["field"])

	// The childs level is a sub-aggregation of the name terms, so each
	// parent bucket carries its own children.
	child := name["aggs"].(Fragment)["childs"].(Fragment)
	childNested := child["nested"].(Fragment)
	assert.Equal(t, "cats.childs", childNested["path"])
	childName := child["aggs"].(Fragment)["name"].(Fragment)
	assert.Equal(t, "cats.childs.name", childName["terms"].(Fragment)["field"])
	_, hasDeeper := childName["aggs"]
	assert.False(t, hasDeeper)
}

func TestBuildAggregationFragment_ZeroDepth(t *testing.T) {
	c := CategoryCompiler{Path: "cats"}
	assert.Empty(t, c.BuildAggregationFragment(0))
}

func TestExtractFlattenedPath(t *testing.T) {
	tree := CategoryPathNode{
		Name: "electronics",
		Childs: []CategoryPathNode{
			{
				Name:   "phones",
				Childs: []CategoryPathNode{{Name: "android"}},
			},
			{Name: "ignored-sibling"},
		},
	}

	assert.Equal(t, "root-electronics-phones-android", ExtractFlattenedPath(tree, "root"))
}
