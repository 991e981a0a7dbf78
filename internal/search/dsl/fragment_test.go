// internal/search/dsl/fragment_test.go
package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_MapsRecurse(t *testing.T) {
	a := Fragment{"bool": Fragment{"must": []interface{}{"m1"}}}
	b := Fragment{"bool": Fragment{"filter": []interface{}{"f1"}}}

	out := Merge(a, b)

	boolClause, ok := out["bool"].(Fragment)
	require.True(t, ok)
	assert.Equal(t, []interface{}{"m1"}, boolClause["must"])
	assert.Equal(t, []interface{}{"f1"}, boolClause["filter"])
}

func TestMerge_ListsConcatenate(t *testing.T) {
	a := Fragment{"bool": Fragment{"must": []interface{}{"m1"}}}
	b := Fragment{"bool": Fragment{"must": []interface{}{"m2", "m3"}}}

	out := Merge(a, b)

	boolClause := out["bool"].(Fragment)
	assert.Equal(t, []interface{}{"m1", "m2", "m3"}, boolClause["must"])
}

func TestMerge_ScalarConflictRightBiased(t *testing.T) {
	a := Fragment{"size": 10}
	b := Fragment{"size": 50}

	out := Merge(a, b)

	assert.Equal(t, 50, out["size"])
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	a := Fragment{"bool": Fragment{"must": []interface{}{"m1"}}}
	b := Fragment{"bool": Fragment{"must": []interface{}{"m2"}}}

	_ = Merge(a, b)

	assert.Equal(t, []interface{}{"m1"}, a["bool"].(Fragment)["must"])
	assert.Equal(t, []interface{}{"m2"}, b["bool"].(Fragment)["must"])
}

func TestMerge_NilInputs(t *testing.T) {
	assert.Equal(t, Fragment{}, Merge(nil, nil))
	assert.Equal(t, Fragment{"a": 1}, Merge(nil, Fragment{"a": 1}))
	assert.Equal(t, Fragment{"a": 1}, Merge(Fragment{"a": 1}, nil))
}

func TestMergeAll_AssociativeOnDisjointScalars(t *testing.T) {
	a := Fragment{"bool": Fragment{"must": []interface{}{"m1"}}}
	b := Fragment{"bool": Fragment{"must": []interface{}{"m2"}}}
	c := Fragment{"bool": Fragment{"filter": []interface{}{"f1"}}}

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))

	assert.Equal(t, left, right)
	assert.Equal(t, left, MergeAll(a, b, c))
}
