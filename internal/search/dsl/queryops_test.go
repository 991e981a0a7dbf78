// internal/search/dsl/queryops_test.go
package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-platform/internal/common/errors"
)

func newQueryCompiler() QueryCompiler {
	return QueryCompiler{Cats: CategoryCompiler{Path: "cats"}}
}

func TestQueryCompile_Terms(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("color", "term(str:red,str:blue)")
	require.NoError(t, err)

	want := Fragment{
		"terms": Fragment{
			"color":                []interface{}{"red", "blue"},
			"minimum_should_match": 1,
		},
	}
	assert.Equal(t, want, frag)
}

func TestQueryCompile_TermsTypedValues(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("stock", "terms(num:1,bool:true,plain)")
	require.NoError(t, err)

	terms := frag["terms"].(Fragment)
	assert.Equal(t, []interface{}{1.0, true, "plain"}, terms["stock"])
}

func TestQueryCompile_BoolTerms(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("color", "bterms(red,blue)")
	require.NoError(t, err)

	boolClause := frag["bool"].(Fragment)
	should := boolClause["should"].([]interface{})
	require.Len(t, should, 2)
	assert.Equal(t, Fragment{"term": Fragment{"color": "red"}}, should[0])
	assert.Equal(t, 1, boolClause["minimum_should_match"])
}

func TestQueryCompile_Range(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("price", "range(num:10-num:20,num:50-)")
	require.NoError(t, err)

	should := frag["bool"].(Fragment)["should"].([]interface{})
	require.Len(t, should, 2)
	assert.Equal(t,
		Fragment{"range": Fragment{"price": Fragment{"gte": 10.0, "lt": 20.0}}},
		should[0])
	assert.Equal(t,
		Fragment{"range": Fragment{"price": Fragment{"gte": 50.0}}},
		should[1])
}

func TestQueryCompile_RangeFiltersUndecodable(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("price", "range(garbage,num:10-num:20)")
	require.NoError(t, err)

	should := frag["bool"].(Fragment)["should"].([]interface{})
	assert.Len(t, should, 1)
}

func TestQueryCompile_RangeAllUndecodable(t *testing.T) {
	qc := newQueryCompiler()

	_, err := qc.Compile("price", "range(garbage)")
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))
}

func TestQueryCompile_UnknownArgKeyRejected(t *testing.T) {
	qc := newQueryCompiler()

	_, err := qc.Compile("title", "ematch(query:shoes;bogus:1)")
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))
}

func TestQueryCompile_MissingMandatoryArg(t *testing.T) {
	qc := newQueryCompiler()

	_, err := qc.Compile("title", "ematch(operator:and)")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestQueryCompile_QueryString(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("ignored", "query_string(query:red shoes;fields:title,description;default_operator:AND)")
	require.NoError(t, err)

	body := frag["query_string"].(Fragment)
	assert.Equal(t, "red shoes", body["query"])
	assert.Equal(t, []interface{}{"title", "description"}, body["fields"])
	assert.Equal(t, "AND", body["default_operator"])
}

func TestQueryCompile_Stock(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("stocks", "stock(min:1)")
	require.NoError(t, err)

	nested := frag["nested"].(Fragment)
	assert.Equal(t, "stocks", nested["path"])
	assert.Equal(t,
		Fragment{"range": Fragment{"stocks.count": Fragment{"gte": 1.0}}},
		nested["query"])
}

func TestQueryCompile_StockWithRegion(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("stocks", "stock(min:1;region:east)")
	require.NoError(t, err)

	outer := frag["nested"].(Fragment)
	assert.Equal(t, "stocks", outer["path"])
	inner := outer["query"].(Fragment)["nested"].(Fragment)
	assert.Equal(t, "stocks.regions", inner["path"])
	must := inner["query"].(Fragment)["bool"].(Fragment)["must"].([]interface{})
	require.Len(t, must, 2)
	assert.Equal(t, Fragment{"term": Fragment{"stocks.regions.name": "east"}}, must[0])
}

func TestQueryCompile_NestedMultiLevelPath(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("ignored", "nested(path:a|b;field:a.b.c;query:term(x))")
	require.NoError(t, err)

	outer := frag["nested"].(Fragment)
	assert.Equal(t, "a", outer["path"])
	inner := outer["query"].(Fragment)["nested"].(Fragment)
	assert.Equal(t, "a.b", inner["path"])
	terms := inner["query"].(Fragment)["terms"].(Fragment)
	assert.Equal(t, []interface{}{"x"}, terms["a.b.c"])
}

func TestQueryCompile_NestedSubExpressionKeepsItsOwnArgs(t *testing.T) {
	qc := newQueryCompiler()

	// The embedded expression's ";"-delimited arguments stay intact.
	frag, err := qc.Compile("ignored",
		"nested(path:props;field:props.value;query:ematch(query:x;operator:and))")
	require.NoError(t, err)

	nested := frag["nested"].(Fragment)
	assert.Equal(t, "props", nested["path"])
	match := nested["query"].(Fragment)["match"].(Fragment)["props.value"].(Fragment)
	assert.Equal(t, "x", match["query"])
	assert.Equal(t, "and", match["operator"])
}

func TestQueryCompile_NestedMissingQueryIsInvalidArgument(t *testing.T) {
	qc := newQueryCompiler()

	_, err := qc.Compile("ignored", "nested(path:props;field:props.value)")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestQueryCompile_Not(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("color", "not(term(red)|term(blue))")
	require.NoError(t, err)

	mustNot := frag["bool"].(Fragment)["must_not"].([]interface{})
	require.Len(t, mustNot, 2)
}

func TestQueryCompile_NotNull(t *testing.T) {
	qc := newQueryCompiler()

	frag, err := qc.Compile("color", "not_null()")
	require.NoError(t, err)
	assert.Equal(t, Fragment{"exists": Fragment{"field": "color"}}, frag)
}

func TestQueryCompile_UnknownOperator(t *testing.T) {
	qc := newQueryCompiler()

	_, err := qc.Compile("color", "frobnicate(x)")
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))
}
