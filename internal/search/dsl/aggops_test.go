// internal/search/dsl/aggops_test.go
package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-platform/internal/common/errors"
)

func newAggCompiler() AggCompiler {
	return AggCompiler{Cats: CategoryCompiler{Path: "cats"}}
}

func TestAggCompile_PlainMetrics(t *testing.T) {
	ac := newAggCompiler()

	key, frag, err := ac.Compile("price", "max()")
	require.NoError(t, err)
	assert.Equal(t, "ex_agg_price.max", key)
	assert.Equal(t, Fragment{"max": Fragment{"field": "price"}}, frag)

	// exstats maps to the extended_stats aggregation.
	key, frag, err = ac.Compile("price", "exstats()")
	require.NoError(t, err)
	assert.Equal(t, "ex_agg_price.exstats", key)
	assert.Equal(t, Fragment{"extended_stats": Fragment{"field": "price"}}, frag)
}

func TestAggCompile_Terms(t *testing.T) {
	ac := newAggCompiler()

	_, frag, err := ac.Compile("brand", "terms(size:5;order:desc)")
	require.NoError(t, err)

	body := frag["terms"].(Fragment)
	assert.Equal(t, 5, body["size"])
	assert.Equal(t, Fragment{"_count": "desc"}, body["order"])
}

func TestAggCompile_Range(t *testing.T) {
	ac := newAggCompiler()

	_, frag, err := ac.Compile("price", "range(num:0-num:100,num:100-)")
	require.NoError(t, err)

	body := frag["range"].(Fragment)
	assert.Equal(t, "price", body["field"])
	ranges := body["ranges"].([]interface{})
	require.Len(t, ranges, 2)
	assert.Equal(t, Fragment{"from": 0.0, "to": 100.0}, ranges[0])
	assert.Equal(t, Fragment{"from": 100.0}, ranges[1])
}

func TestAggCompile_DateRangeUsesDoubleDashSeparator(t *testing.T) {
	ac := newAggCompiler()

	_, frag, err := ac.Compile("created", "date_range(2024-01-01--2024-06-30)")
	require.NoError(t, err)

	ranges := frag["date_range"].(Fragment)["ranges"].([]interface{})
	require.Len(t, ranges, 1)
	assert.Equal(t, Fragment{"from": "2024-01-01", "to": "2024-06-30"}, ranges[0])
}

func TestAggCompile_Histogram(t *testing.T) {
	ac := newAggCompiler()

	_, frag, err := ac.Compile("price", "histogram(interval:50)")
	require.NoError(t, err)
	assert.Equal(t, Fragment{
		"histogram": Fragment{"field": "price", "interval": 50.0, "min_doc_count": 0},
	}, frag)

	_, _, err = ac.Compile("price", "histogram()")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestAggCompile_DateHistogram(t *testing.T) {
	ac := newAggCompiler()

	_, frag, err := ac.Compile("created", "date_histogram(interval:month;format:yyyy-MM)")
	require.NoError(t, err)

	body := frag["date_histogram"].(Fragment)
	assert.Equal(t, "month", body["calendar_interval"])
	assert.Equal(t, "yyyy-MM", body["format"])
}

func TestAggCompile_Cats(t *testing.T) {
	ac := newAggCompiler()

	_, frag, err := ac.Compile("ignored", "cats(depth:2)")
	require.NoError(t, err)

	nested := frag["nested"].(Fragment)
	assert.Equal(t, "cats", nested["path"])
	name := frag["aggs"].(Fragment)["name"].(Fragment)
	_, hasChild := name["aggs"].(Fragment)["childs"]
	assert.True(t, hasChild)
}

func TestAggCompile_KeyValue(t *testing.T) {
	ac := newAggCompiler()

	_, frag, err := ac.Compile("ignored", "key_value(key:props.name;value:props.value)")
	require.NoError(t, err)

	body := frag["terms"].(Fragment)
	assert.Equal(t, 100, body["size"])
	script := body["script"].(Fragment)
	assert.Equal(t, "doc['props.name'].value + '|' + doc['props.value'].value", script["source"])
	assert.Equal(t, "painless", script["lang"])
}

func TestAggCompile_UnknownOperator(t *testing.T) {
	ac := newAggCompiler()

	_, _, err := ac.Compile("price", "frobnicate()")
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))
}

func TestDecodeKeyValueBuckets(t *testing.T) {
	buckets := []interface{}{
		map[string]interface{}{"key": "color|red", "doc_count": float64(5)},
		map[string]interface{}{"key": "size|xl", "doc_count": float64(9)},
		map[string]interface{}{"key": "color|blue", "doc_count": float64(3)},
		map[string]interface{}{"key": "malformed", "doc_count": float64(7)},
	}

	groups := DecodeKeyValueBuckets(buckets)

	require.Len(t, groups, 2)
	// Sorted by total doc count descending: size (9) before color (8).
	assert.Equal(t, "size", groups[0].Key)
	assert.Equal(t, int64(9), groups[0].DocCount)
	assert.Equal(t, "color", groups[1].Key)
	assert.Equal(t, int64(8), groups[1].DocCount)
	require.Len(t, groups[1].Value, 2)
	assert.Equal(t, KeyValueEntry{Key: "red", DocCount: 5}, groups[1].Value[0])
	assert.Equal(t, KeyValueEntry{Key: "blue", DocCount: 3}, groups[1].Value[1])
}
