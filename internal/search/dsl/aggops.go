// internal/search/dsl/aggops.go
//
// Aggregation operator compiler. Same argument-string convention as the
// query compiler. Each operator emits its fragment under the
// "ex_agg_<field>.<opType>" naming convention so result parsing can
// route by suffix.
package dsl

import (
	"fmt"
	"sort"
	"strings"

	"search-platform/internal/common/errors"
)

// AggCompiler compiles single aggregation-context operators.
type AggCompiler struct {
	Cats CategoryCompiler
}

// metric ops that compile to {"<op>": {"field": f}} with no arguments.
var plainMetricOps = map[string]string{
	"max":         "max",
	"min":         "min",
	"sum":         "sum",
	"avg":         "avg",
	"stats":       "stats",
	"exstats":     "extended_stats",
	"value_count": "value_count",
	"cardinality": "cardinality",
	"missing":     "missing",
}

// Compile translates one aggregation expression for the given field and
// returns the fragment plus the result key it should be emitted under.
func (ac AggCompiler) Compile(field, raw string) (string, Fragment, error) {
	call, err := ParseCall(raw)
	if err != nil {
		return "", nil, err
	}

	key := fmt.Sprintf("ex_agg_%s.%s", field, call.Op)

	if esName, ok := plainMetricOps[call.Op]; ok {
		return key, Fragment{esName: Fragment{"field": field}}, nil
	}

	var frag Fragment
	switch call.Op {
	case "percentiles":
		frag, err = ac.percentiles(field, call.Arg)
	case "percentile_ranks":
		frag, err = ac.percentileRanks(field, call.Arg)
	case "terms":
		frag, err = ac.terms(field, call.Arg)
	case "range":
		frag, err = ac.ranges("range", field, call.Arg, "-")
	case "date_range":
		// Dates contain "-", so date ranges use "--" as separator.
		frag, err = ac.ranges("date_range", field, call.Arg, "--")
	case "histogram":
		frag, err = ac.histogram(field, call.Arg)
	case "date_histogram":
		frag, err = ac.dateHistogram(field, call.Arg)
	case "geo_distance":
		frag, err = ac.geoDistance(field, call.Arg)
	case "cats":
		frag, err = ac.cats(call.Arg)
	case "key_value":
		frag, err = ac.keyValue(call.Arg)
	default:
		return "", nil, errors.NewParseError(fmt.Sprintf("unknown aggregation operator %q", call.Op))
	}
	if err != nil {
		return "", nil, err
	}
	return key, frag, nil
}

func (ac AggCompiler) percentiles(field, arg string) (Fragment, error) {
	args, err := parseArgs("percentiles", arg, "percents")
	if err != nil {
		return nil, err
	}
	body := Fragment{"field": field}
	if raw, ok := args.get("percents"); ok {
		percents, err := decodeNumberList(raw)
		if err != nil {
			return nil, err
		}
		body["percents"] = percents
	}
	return Fragment{"percentiles": body}, nil
}

func (ac AggCompiler) percentileRanks(field, arg string) (Fragment, error) {
	args, err := parseArgs("percentile_ranks", arg, "values")
	if err != nil {
		return nil, err
	}
	raw, err := args.require("values")
	if err != nil {
		return nil, err
	}
	values, err := decodeNumberList(raw)
	if err != nil {
		return nil, err
	}
	return Fragment{
		"percentile_ranks": Fragment{"field": field, "values": values},
	}, nil
}

func (ac AggCompiler) terms(field, arg string) (Fragment, error) {
	args, err := parseArgs("terms", arg, "size", "order")
	if err != nil {
		return nil, err
	}
	size, err := args.integer("size", 10)
	if err != nil {
		return nil, err
	}
	body := Fragment{"field": field, "size": size}
	if order, ok := args.get("order"); ok {
		body["order"] = Fragment{"_count": order}
	}
	return Fragment{"terms": body}, nil
}

func (ac AggCompiler) ranges(aggName, field, arg, sep string) (Fragment, error) {
	ranges := make([]interface{}, 0, 2)
	for _, sub := range strings.Split(arg, ",") {
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		low, high, err := DecodeRange(sub, sep)
		if err != nil {
			continue
		}
		r := Fragment{}
		if low != nil {
			r["from"] = low.Value()
		}
		if high != nil {
			r["to"] = high.Value()
		}
		if len(r) == 0 {
			continue
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil, errors.NewParseError("range: no decodable sub-ranges")
	}
	return Fragment{
		aggName: Fragment{"field": field, "ranges": ranges},
	}, nil
}

func (ac AggCompiler) histogram(field, arg string) (Fragment, error) {
	args, err := parseArgs("histogram", arg, "interval", "min_doc_count")
	if err != nil {
		return nil, err
	}
	if _, err := args.require("interval"); err != nil {
		return nil, err
	}
	interval, err := args.number("interval", 0)
	if err != nil {
		return nil, err
	}
	minDocCount, err := args.integer("min_doc_count", 0)
	if err != nil {
		return nil, err
	}
	return Fragment{
		"histogram": Fragment{
			"field":         field,
			"interval":      interval,
			"min_doc_count": minDocCount,
		},
	}, nil
}

func (ac AggCompiler) dateHistogram(field, arg string) (Fragment, error) {
	args, err := parseArgs("date_histogram", arg, "interval", "format")
	if err != nil {
		return nil, err
	}
	interval, err := args.require("interval")
	if err != nil {
		return nil, err
	}
	body := Fragment{
		"field":             field,
		"calendar_interval": interval,
	}
	if format, ok := args.get("format"); ok {
		body["format"] = format
	}
	return Fragment{"date_histogram": body}, nil
}

func (ac AggCompiler) geoDistance(field, arg string) (Fragment, error) {
	args, err := parseArgs("geo_distance", arg, "origin", "unit", "ranges")
	if err != nil {
		return nil, err
	}
	origin, err := args.require("origin")
	if err != nil {
		return nil, err
	}
	rawRanges, err := args.require("ranges")
	if err != nil {
		return nil, err
	}
	ranges := make([]interface{}, 0, 2)
	for _, sub := range strings.Split(rawRanges, ",") {
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		low, high, err := DecodeRange(sub, "-")
		if err != nil {
			continue
		}
		r := Fragment{}
		if low != nil {
			r["from"] = low.Value()
		}
		if high != nil {
			r["to"] = high.Value()
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil, errors.NewParseError("geo_distance: no decodable ranges")
	}
	return Fragment{
		"geo_distance": Fragment{
			"field":  field,
			"origin": origin,
			"unit":   args.getOr("unit", "km"),
			"ranges": ranges,
		},
	}, nil
}

func (ac AggCompiler) cats(arg string) (Fragment, error) {
	args, err := parseArgs("cats", arg, "depth")
	if err != nil {
		return nil, err
	}
	depth, err := args.integer("depth", 1)
	if err != nil {
		return nil, err
	}
	frag := ac.Cats.BuildAggregationFragment(depth)
	if len(frag) == 0 {
		return nil, errors.NewParseError("cats: depth must be positive")
	}
	return frag, nil
}

// keyValueSeparator joins the two field values in the scripted
// composite key. Decomposed again on the read side.
const keyValueSeparator = "|"

// keyValue builds a scripted composite-key terms aggregation over two
// field names.
func (ac AggCompiler) keyValue(arg string) (Fragment, error) {
	args, err := parseArgs("key_value", arg, "key", "value", "size")
	if err != nil {
		return nil, err
	}
	keyField, err := args.require("key")
	if err != nil {
		return nil, err
	}
	valueField, err := args.require("value")
	if err != nil {
		return nil, err
	}
	size, err := args.integer("size", 100)
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf("doc['%s'].value + '%s' + doc['%s'].value",
		keyField, keyValueSeparator, valueField)
	return Fragment{
		"terms": Fragment{
			"script": Fragment{"source": script, "lang": "painless"},
			"size":   size,
		},
	}, nil
}

// KeyValueGroup is the read-side shape of a key_value aggregation: one
// composite-key group with its per-value buckets.
type KeyValueGroup struct {
	Key      string          `json:"key"`
	DocCount int64           `json:"doc_count"`
	Value    []KeyValueEntry `json:"value"`
}

type KeyValueEntry struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}

// DecodeKeyValueBuckets decomposes scripted composite-key buckets back
// into grouped key→values structures, sorted descending by total
// document count.
func DecodeKeyValueBuckets(buckets []interface{}) []KeyValueGroup {
	grouped := map[string]*KeyValueGroup{}
	order := []string{}

	for _, b := range buckets {
		bucket, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		composite, _ := bucket["key"].(string)
		key, value, found := strings.Cut(composite, keyValueSeparator)
		if !found {
			continue
		}
		count := asInt64(bucket["doc_count"])

		group, ok := grouped[key]
		if !ok {
			group = &KeyValueGroup{Key: key}
			grouped[key] = group
			order = append(order, key)
		}
		group.DocCount += count
		group.Value = append(group.Value, KeyValueEntry{Key: value, DocCount: count})
	}

	out := make([]KeyValueGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *grouped[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DocCount > out[j].DocCount
	})
	return out
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}
