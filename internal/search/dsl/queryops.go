// internal/search/dsl/queryops.go
//
// Query operator compiler. Each operator reads one raw expression
// "opType(argString)" targeting the field embedded in the parameter
// name and returns a Query-DSL fragment. Malformed optional input is a
// ParseError (caller drops the fragment); a missing mandatory sub-key
// is an InvalidArgument (caller aborts the request).
package dsl

import (
	"fmt"
	"strings"

	"search-platform/internal/common/errors"
)

// QueryCompiler compiles single query-context operators.
type QueryCompiler struct {
	Cats CategoryCompiler
}

// Compile translates one operator expression for the given field.
func (qc QueryCompiler) Compile(field, raw string) (Fragment, error) {
	call, err := ParseCall(raw)
	if err != nil {
		return nil, err
	}

	switch call.Op {
	case "term", "terms":
		return qc.terms(field, call.Arg)
	case "bterms":
		return qc.boolTerms(field, call.Arg)
	case "size_terms":
		return qc.sizeTerms(field, call.Arg)
	case "range":
		return qc.ranges(field, call.Arg)
	case "ids":
		return qc.ids(call.Arg)
	case "match":
		return qc.match(field, call.Arg)
	case "ematch":
		return qc.extendedMatch(field, call.Arg)
	case "query_string":
		return qc.queryString(call.Arg)
	case "multi_match":
		return qc.multiMatch(call.Arg)
	case "more_like_this":
		return qc.moreLikeThis(field, call.Arg)
	case "prefix":
		return qc.prefix(field, call.Arg)
	case "regexp":
		return qc.regexp(field, call.Arg)
	case "span_first":
		return qc.spanFirst(field, call.Arg)
	case "span_near":
		return qc.spanNear(field, call.Arg)
	case "wildcard":
		return qc.wildcard(field, call.Arg)
	case "stock":
		return qc.stock(field, call.Arg)
	case "nested":
		return qc.nested(call.Arg)
	case "not_null":
		return qc.notNull(field)
	case "not":
		return qc.negate(field, call.Arg)
	default:
		return nil, errors.NewParseError(fmt.Sprintf("unknown query operator %q", call.Op))
	}
}

// terms compiles term(v1,v2,...) into a terms query matching any value.
func (qc QueryCompiler) terms(field, arg string) (Fragment, error) {
	values, err := decodeValueList(arg)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.NewParseError("term: empty value list")
	}
	return Fragment{
		"terms": Fragment{
			field:                  values,
			"minimum_should_match": 1,
		},
	}, nil
}

// boolTerms is the bool-should workaround for Elasticsearch versions
// that dropped minimum_should_match on the terms query.
func (qc QueryCompiler) boolTerms(field, arg string) (Fragment, error) {
	values, err := decodeValueList(arg)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.NewParseError("bterms: empty value list")
	}
	should := make([]interface{}, 0, len(values))
	for _, v := range values {
		should = append(should, Fragment{"term": Fragment{field: v}})
	}
	return Fragment{
		"bool": Fragment{
			"should":               should,
			"minimum_should_match": 1,
		},
	}, nil
}

func (qc QueryCompiler) sizeTerms(field, arg string) (Fragment, error) {
	args, err := parseArgs("size_terms", arg, "value", "size")
	if err != nil {
		return nil, err
	}
	rawValues, err := args.require("value")
	if err != nil {
		return nil, err
	}
	values, err := decodeValueList(rawValues)
	if err != nil {
		return nil, err
	}
	size, err := args.integer("size", 1)
	if err != nil {
		return nil, err
	}
	return Fragment{
		"terms": Fragment{
			field:                  values,
			"minimum_should_match": size,
		},
	}, nil
}

// ranges compiles range(a-b,c-,-d) into an OR of half-open ranges.
// Sub-tokens without a separator are filtered out, not fatal.
func (qc QueryCompiler) ranges(field, arg string) (Fragment, error) {
	should := make([]interface{}, 0, 2)
	for _, sub := range strings.Split(arg, ",") {
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		low, high, err := DecodeRange(sub, "-")
		if err != nil {
			continue
		}
		bounds := Fragment{}
		if low != nil {
			bounds["gte"] = low.Value()
		}
		if high != nil {
			bounds["lt"] = high.Value()
		}
		if len(bounds) == 0 {
			continue
		}
		should = append(should, Fragment{"range": Fragment{field: bounds}})
	}
	if len(should) == 0 {
		return nil, errors.NewParseError("range: no decodable sub-ranges")
	}
	return Fragment{
		"bool": Fragment{
			"should":               should,
			"minimum_should_match": 1,
		},
	}, nil
}

func (qc QueryCompiler) ids(arg string) (Fragment, error) {
	values, err := decodeValueList(arg)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.NewParseError("ids: empty value list")
	}
	return Fragment{"ids": Fragment{"values": values}}, nil
}

func (qc QueryCompiler) match(field, arg string) (Fragment, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, errors.NewParseError("match: empty query")
	}
	return Fragment{"match": Fragment{field: arg}}, nil
}

func (qc QueryCompiler) extendedMatch(field, arg string) (Fragment, error) {
	args, err := parseArgs("ematch", arg, "query", "operator", "minimum_should_match")
	if err != nil {
		return nil, err
	}
	query, err := args.require("query")
	if err != nil {
		return nil, err
	}
	body := Fragment{
		"query":    query,
		"operator": args.getOr("operator", "or"),
	}
	if msm, ok := args.get("minimum_should_match"); ok {
		body["minimum_should_match"] = msm
	}
	return Fragment{"match": Fragment{field: body}}, nil
}

func (qc QueryCompiler) queryString(arg string) (Fragment, error) {
	args, err := parseArgs("query_string", arg, "query", "fields", "default_operator", "boost")
	if err != nil {
		return nil, err
	}
	query, err := args.require("query")
	if err != nil {
		return nil, err
	}
	body := Fragment{"query": query}
	if fields, ok := args.get("fields"); ok {
		body["fields"] = splitList(fields)
	}
	if op, ok := args.get("default_operator"); ok {
		body["default_operator"] = op
	}
	if boost, err := args.number("boost", 0); err != nil {
		return nil, err
	} else if boost > 0 {
		body["boost"] = boost
	}
	return Fragment{"query_string": body}, nil
}

func (qc QueryCompiler) multiMatch(arg string) (Fragment, error) {
	args, err := parseArgs("multi_match", arg, "query", "fields", "type", "operator")
	if err != nil {
		return nil, err
	}
	query, err := args.require("query")
	if err != nil {
		return nil, err
	}
	fields, err := args.require("fields")
	if err != nil {
		return nil, err
	}
	body := Fragment{
		"query":  query,
		"fields": splitList(fields),
	}
	if typ, ok := args.get("type"); ok {
		body["type"] = typ
	}
	if op, ok := args.get("operator"); ok {
		body["operator"] = op
	}
	return Fragment{"multi_match": body}, nil
}

func (qc QueryCompiler) moreLikeThis(field, arg string) (Fragment, error) {
	args, err := parseArgs("more_like_this", arg,
		"like", "min_term_freq", "max_query_terms", "min_doc_freq")
	if err != nil {
		return nil, err
	}
	like, err := args.require("like")
	if err != nil {
		return nil, err
	}
	minTermFreq, err := args.integer("min_term_freq", 1)
	if err != nil {
		return nil, err
	}
	maxQueryTerms, err := args.integer("max_query_terms", 12)
	if err != nil {
		return nil, err
	}
	return Fragment{
		"more_like_this": Fragment{
			"fields":          []interface{}{field},
			"like":            like,
			"min_term_freq":   minTermFreq,
			"max_query_terms": maxQueryTerms,
		},
	}, nil
}

func (qc QueryCompiler) prefix(field, arg string) (Fragment, error) {
	args, err := parseArgs("prefix", arg, "value", "prefix")
	if err != nil {
		return nil, err
	}
	value := args.getOr("value", args.getOr("prefix", ""))
	if value == "" {
		return nil, errors.NewInvalidArgumentError("prefix", "value")
	}
	return Fragment{"prefix": Fragment{field: value}}, nil
}

func (qc QueryCompiler) regexp(field, arg string) (Fragment, error) {
	args, err := parseArgs("regexp", arg, "value", "flags")
	if err != nil {
		return nil, err
	}
	value, err := args.require("value")
	if err != nil {
		return nil, err
	}
	body := Fragment{"value": value}
	if flags, ok := args.get("flags"); ok {
		body["flags"] = flags
	}
	return Fragment{"regexp": Fragment{field: body}}, nil
}

func (qc QueryCompiler) spanFirst(field, arg string) (Fragment, error) {
	args, err := parseArgs("span_first", arg, "value", "end")
	if err != nil {
		return nil, err
	}
	value, err := args.require("value")
	if err != nil {
		return nil, err
	}
	end, err := args.integer("end", 3)
	if err != nil {
		return nil, err
	}
	return Fragment{
		"span_first": Fragment{
			"match": Fragment{"span_term": Fragment{field: value}},
			"end":   end,
		},
	}, nil
}

func (qc QueryCompiler) spanNear(field, arg string) (Fragment, error) {
	args, err := parseArgs("span_near", arg, "value", "slop", "in_order")
	if err != nil {
		return nil, err
	}
	rawValues, err := args.require("value")
	if err != nil {
		return nil, err
	}
	values, err := decodeValueList(rawValues)
	if err != nil {
		return nil, err
	}
	clauses := make([]interface{}, 0, len(values))
	for _, v := range values {
		clauses = append(clauses, Fragment{"span_term": Fragment{field: v}})
	}
	slop, err := args.integer("slop", 0)
	if err != nil {
		return nil, err
	}
	return Fragment{
		"span_near": Fragment{
			"clauses":  clauses,
			"slop":     slop,
			"in_order": args.boolean("in_order", true),
		},
	}, nil
}

func (qc QueryCompiler) wildcard(field, arg string) (Fragment, error) {
	args, err := parseArgs("wildcard", arg, "value")
	if err != nil {
		return nil, err
	}
	value, err := args.require("value")
	if err != nil {
		return nil, err
	}
	return Fragment{"wildcard": Fragment{field: value}}, nil
}

// stock compiles a nested numeric-range on "<field>.count" with an
// optional per-region nesting level.
func (qc QueryCompiler) stock(field, arg string) (Fragment, error) {
	args, err := parseArgs("stock", arg, "min", "max", "region")
	if err != nil {
		return nil, err
	}
	bounds := Fragment{}
	if _, ok := args.get("min"); ok {
		n, err := args.number("min", 0)
		if err != nil {
			return nil, err
		}
		bounds["gte"] = n
	}
	if _, ok := args.get("max"); ok {
		n, err := args.number("max", 0)
		if err != nil {
			return nil, err
		}
		bounds["lt"] = n
	}
	if len(bounds) == 0 {
		return nil, errors.NewInvalidArgumentError("stock", "min")
	}

	if region, ok := args.get("region"); ok {
		path := field + ".regions"
		return Fragment{
			"nested": Fragment{
				"path": field,
				"query": Fragment{
					"nested": Fragment{
						"path": path,
						"query": Fragment{
							"bool": Fragment{
								"must": []interface{}{
									Fragment{"term": Fragment{path + ".name": region}},
									Fragment{"range": Fragment{path + ".count": bounds}},
								},
							},
						},
					},
				},
			},
		}, nil
	}

	return Fragment{
		"nested": Fragment{
			"path":  field,
			"query": Fragment{"range": Fragment{field + ".count": bounds}},
		},
	}, nil
}

// nested compiles a generic nested-path wrapper. The path supports
// "|"-delimited multi-level nesting and the embedded sub-expression is
// compiled recursively against the given field. The query value may
// itself carry ";"-delimited arguments, so it is cut out before the
// generic key:value split.
func (qc QueryCompiler) nested(arg string) (Fragment, error) {
	sub := ""
	if idx := argKeyIndex(arg, "query"); idx >= 0 {
		sub = strings.TrimSpace(arg[idx+len("query:"):])
		arg = strings.TrimSuffix(strings.TrimSpace(arg[:idx]), ";")
	}

	args, err := parseArgs("nested", arg, "path", "field")
	if err != nil {
		return nil, err
	}
	rawPath, err := args.require("path")
	if err != nil {
		return nil, err
	}
	field, err := args.require("field")
	if err != nil {
		return nil, err
	}
	if sub == "" {
		return nil, errors.NewInvalidArgumentError("nested", "query")
	}

	inner, err := qc.Compile(field, sub)
	if err != nil {
		return nil, err
	}

	levels := strings.Split(rawPath, "|")
	for i := len(levels) - 1; i >= 0; i-- {
		path := strings.Join(levels[:i+1], ".")
		inner = Fragment{
			"nested": Fragment{
				"path":  path,
				"query": inner,
			},
		}
	}
	return inner, nil
}

func (qc QueryCompiler) notNull(field string) (Fragment, error) {
	return Fragment{"exists": Fragment{"field": field}}, nil
}

// negate compiles not(expr|expr...) into a must_not over each compiled
// sub-expression.
func (qc QueryCompiler) negate(field, arg string) (Fragment, error) {
	subs := strings.Split(arg, "|")
	mustNot := make([]interface{}, 0, len(subs))
	for _, sub := range subs {
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		f, err := qc.Compile(field, sub)
		if err != nil {
			return nil, err
		}
		mustNot = append(mustNot, f)
	}
	if len(mustNot) == 0 {
		return nil, errors.NewParseError("not: no sub-expressions")
	}
	return Fragment{"bool": Fragment{"must_not": mustNot}}, nil
}

func splitList(raw string) []interface{} {
	parts := strings.Split(raw, ",")
	out := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
