// internal/search/orchestrator/aggregations.go
package orchestrator

import (
	"context"
	"net/url"
	"strings"

	"search-platform/internal/common/errors"
	"search-platform/internal/search/dsl"
)

// Aggregate compiles and executes an aggregation request: the document
// query plus default aggregations (brand, props, deep category path),
// extended ex_agg_* fragments, and the section-statistics extension.
// Section fields trigger a second, data-dependent round trip (see
// sections.go).
func (o *Orchestrator) Aggregate(ctx context.Context, tenantID, index string, params url.Values) (*Response, error) {
	body, err := o.BuildSearchBody(ctx, tenantID, index, params)
	if err != nil {
		return nil, err
	}

	aggs, err := o.buildAggregations(params)
	if err != nil {
		return nil, err
	}
	if len(aggs) > 0 {
		body["aggs"] = aggs
	}

	result, err := o.backend.Search(ctx, index, body)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Root:  result.Hits,
		Total: result.Total,
		Aggs:  o.decodeAggregations(params, result.Aggregations),
	}
	if resp.Root == nil {
		resp.Root = []map[string]interface{}{}
	}

	// Second pass: data-dependent section bucketing per ex_section
	// field, batched into one msearch round trip.
	phases := []sectionPhase{}
	for _, pv := range extractPrefixed(params, prefixExSection) {
		secondBody, err := o.sectionSecondBody(body, pv.Field, result)
		if err != nil {
			o.warnDrop(pv.Field, err)
			continue
		}
		if secondBody != nil {
			phases = append(phases, sectionPhase{field: pv.Field, body: secondBody})
		}
	}
	if len(phases) > 0 {
		bodies := make([]map[string]interface{}, 0, len(phases))
		for _, p := range phases {
			bodies = append(bodies, p.body)
		}
		results, err := o.backend.MultiSearch(ctx, index, bodies)
		if err != nil {
			return nil, err
		}
		for i, p := range phases {
			if i >= len(results) {
				break
			}
			ranges, err := o.decodeSectionRanges(p.field, results[i])
			if err != nil {
				o.warnDrop(p.field, err)
				continue
			}
			if resp.Aggs == nil {
				resp.Aggs = map[string]interface{}{}
			}
			resp.Aggs[p.field+"_section"] = ranges
		}
	}

	return resp, nil
}

// buildAggregations assembles the aggs clause: defaults first, then
// extended fragments, then per-section extended stats.
func (o *Orchestrator) buildAggregations(params url.Values) (dsl.Fragment, error) {
	search := o.cfg.Search()
	aggs := dsl.Fragment{}

	// Brand terms, unless brand is already a query filter.
	if !brandFiltered(params.Get(paramBasic)) {
		aggs["brand"] = dsl.Fragment{
			"terms": dsl.Fragment{"field": search.Fields.Brand, "size": 20},
		}
	}

	// Nested prop name/value terms.
	props := search.Fields.PropsPath
	aggs["props"] = dsl.Fragment{
		"nested": dsl.Fragment{"path": props},
		"aggs": dsl.Fragment{
			"name": dsl.Fragment{
				"terms": dsl.Fragment{"field": props + ".name"},
				"aggs": dsl.Fragment{
					"value": dsl.Fragment{
						"terms": dsl.Fragment{"field": props + ".value"},
					},
				},
			},
		},
	}

	// Deep category path at the current depth plus one deeper level, so
	// result parsing can tell whether the current category is a leaf.
	depth := len(splitValues(params.Get(paramCats))) + 1
	aggs["cats"] = o.aggs.Cats.BuildAggregationFragment(depth)
	aggs["cats_leaf"] = o.aggs.Cats.BuildAggregationFragment(depth + 1)

	// Extended aggregation fragments.
	for _, pv := range extractPrefixed(params, prefixExAgg) {
		key, frag, err := o.aggs.Compile(pv.Field, pv.Raw)
		if err != nil {
			if errors.IsParseError(err) {
				o.warnDrop(pv.Field, err)
				continue
			}
			return nil, err
		}
		aggs[key] = frag
	}

	// Section statistics: extended stats per named field feed the
	// second-pass bucket boundaries.
	for _, pv := range extractPrefixed(params, prefixExSection) {
		aggs[pv.Field+"_stats"] = dsl.Fragment{
			"extended_stats": dsl.Fragment{"field": pv.Field},
		}
	}

	return aggs, nil
}

func brandFiltered(basic string) bool {
	for _, cond := range parseConditions(basic) {
		if cond.Key == "brand" {
			return true
		}
	}
	return false
}

// decodeAggregations shapes raw backend aggregations into the response
// contract: flat buckets for terms-like aggs, recursive
// {key, doc_count, childs} for cats, grouped key→values for key_value,
// everything else passed through.
func (o *Orchestrator) decodeAggregations(params url.Values, raw map[string]interface{}) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	out := map[string]interface{}{}
	for key, value := range raw {
		agg, ok := value.(map[string]interface{})
		if !ok {
			out[key] = value
			continue
		}
		switch {
		case key == "cats" || key == "cats_leaf":
			out[key] = decodeCatsAgg(agg)
		case key == "props":
			out[key] = decodePropsAgg(agg)
		case strings.HasSuffix(key, ".key_value"):
			buckets, _ := agg["buckets"].([]interface{})
			out[key] = dsl.DecodeKeyValueBuckets(buckets)
		case strings.HasSuffix(key, "_stats"):
			out[key] = agg
		default:
			if buckets, ok := agg["buckets"]; ok {
				out[key] = buckets
			} else {
				out[key] = agg
			}
		}
	}
	return out
}

// decodeCatsAgg unrolls the nested name/childs aggregation into
// {key, doc_count, childs} nodes. The childs sub-aggregation lives
// inside each name bucket, so children stay attributed to their own
// parent key.
func decodeCatsAgg(agg map[string]interface{}) []interface{} {
	name, ok := agg["name"].(map[string]interface{})
	if !ok {
		return nil
	}
	buckets, _ := name["buckets"].([]interface{})
	out := make([]interface{}, 0, len(buckets))
	for _, b := range buckets {
		bucket, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		node := map[string]interface{}{
			"key":       bucket["key"],
			"doc_count": bucket["doc_count"],
		}
		if childs, ok := bucket["childs"].(map[string]interface{}); ok {
			if decoded := decodeCatsAgg(childs); len(decoded) > 0 {
				node["childs"] = decoded
			}
		}
		out = append(out, node)
	}
	return out
}

// decodePropsAgg flattens the nested prop aggregation into name buckets
// carrying their value buckets.
func decodePropsAgg(agg map[string]interface{}) []interface{} {
	name, ok := agg["name"].(map[string]interface{})
	if !ok {
		return nil
	}
	buckets, _ := name["buckets"].([]interface{})
	out := make([]interface{}, 0, len(buckets))
	for _, b := range buckets {
		bucket, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		node := map[string]interface{}{
			"key":       bucket["key"],
			"doc_count": bucket["doc_count"],
		}
		if value, ok := bucket["value"].(map[string]interface{}); ok {
			node["value"] = value["buckets"]
		}
		out = append(out, node)
	}
	return out
}
