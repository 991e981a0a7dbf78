// internal/search/orchestrator/sections.go
package orchestrator

import (
	"fmt"

	"search-platform/internal/common/errors"
	"search-platform/internal/search/backend"
	"search-platform/internal/search/dsl"
	"search-platform/internal/search/section"
)

// sectionPhase is one field's second-phase query of the section
// extension. All phases of a request are independent of each other, so
// the orchestrator batches them into a single msearch round trip.
type sectionPhase struct {
	field string
	body  dsl.Fragment
}

// sectionSecondBody reads mean and standard deviation from the first
// response's extended stats and builds the same query with a
// data-dependent range aggregation. The second round trip is
// unavoidable because the bucket boundaries depend on the population
// statistics. Returns nil when the stats yield no ranges.
func (o *Orchestrator) sectionSecondBody(firstBody dsl.Fragment, field string, first *backend.Result) (dsl.Fragment, error) {
	stats, ok := first.Aggregations[field+"_stats"].(map[string]interface{})
	if !ok {
		return nil, errors.NewParseError(fmt.Sprintf("no extended stats for section field %q", field))
	}
	mean, meanOK := asFloat(stats["avg"])
	stdDev, stdOK := asFloat(stats["std_deviation"])
	if !meanOK || !stdOK {
		return nil, errors.NewParseError(fmt.Sprintf("incomplete stats for section field %q", field))
	}

	cfg := o.cfg.Search().Section
	childRanges := o.part.BuildRangeList(mean, stdDev, cfg.TargetCount)
	if len(childRanges) == 0 {
		return nil, nil
	}

	rangeSpecs := make([]interface{}, 0, len(childRanges))
	for _, r := range childRanges {
		spec := dsl.Fragment{}
		if r.From != nil {
			spec["from"] = *r.From
		}
		if r.To != nil {
			spec["to"] = *r.To
		}
		rangeSpecs = append(rangeSpecs, spec)
	}

	return dsl.Fragment{
		"query": firstBody["query"],
		"size":  0,
		"aggs": dsl.Fragment{
			field + "_section": dsl.Fragment{
				"range": dsl.Fragment{"field": field, "ranges": rangeSpecs},
			},
		},
	}, nil
}

// decodeSectionRanges merges the fine-grained second-phase buckets down
// to the configured target count.
func (o *Orchestrator) decodeSectionRanges(field string, result *backend.Result) ([]section.Range, error) {
	agg, ok := result.Aggregations[field+"_section"].(map[string]interface{})
	if !ok {
		return nil, errors.NewParseError(fmt.Sprintf("no section aggregation for %q", field))
	}
	buckets, _ := agg["buckets"].([]interface{})

	childs := make([]section.Range, 0, len(buckets))
	var total int64
	for _, b := range buckets {
		bucket, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		r := section.Range{}
		if from, ok := asFloat(bucket["from"]); ok {
			r.From = &from
		}
		if to, ok := asFloat(bucket["to"]); ok {
			r.To = &to
		}
		if count, ok := asFloat(bucket["doc_count"]); ok {
			r.DocCount = int64(count)
		}
		total += r.DocCount
		childs = append(childs, r)
	}

	return o.part.MergeChildSections(childs, total, o.cfg.Search().Section.TargetCount, true), nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
