// Package orchestrator composes full Elasticsearch query bodies from a
// query request: full-text strategy, category and condition filters,
// extended fragments, highlight, projections, paging, sort,
// aggregations, and the two-phase section bucketing extension.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"search-platform/internal/common/config"
	"search-platform/internal/common/errors"
	"search-platform/internal/common/logger"
	"search-platform/internal/common/metrics"
	"search-platform/internal/search/backend"
	"search-platform/internal/search/dsl"
	"search-platform/internal/search/section"
)

// ScriptInvoker is the external script-invocation collaborator behind
// the ex_script_py parameter. The returned fragment is merged into the
// body as-is.
type ScriptInvoker interface {
	Invoke(ctx context.Context, name string, params url.Values) (dsl.Fragment, error)
}

// Orchestrator is the stateless query compiler. One instance serves all
// tenants concurrently.
type Orchestrator struct {
	cfg     config.Provider
	backend backend.SearchBackend
	logger  logger.Logger
	query   dsl.QueryCompiler
	aggs    dsl.AggCompiler
	part    section.Partitioner
	scripts ScriptInvoker
}

func New(cfg config.Provider, be backend.SearchBackend, log logger.Logger) *Orchestrator {
	search := cfg.Search()
	cats := dsl.CategoryCompiler{Path: search.Fields.CatsPath}
	return &Orchestrator{
		cfg:     cfg,
		backend: be,
		logger:  log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		query:   dsl.QueryCompiler{Cats: cats},
		aggs:    dsl.AggCompiler{Cats: cats},
		part: section.Partitioner{
			Ladder:      search.Section.Ladder,
			Rate:        search.Section.Rate,
			BucketCount: search.Section.BucketCount,
		},
	}
}

// WithScripts attaches the optional script collaborator.
func (o *Orchestrator) WithScripts(s ScriptInvoker) *Orchestrator {
	o.scripts = s
	return o
}

// Response is the document-query response payload.
type Response struct {
	Root  []map[string]interface{} `json:"root"`
	Total int64                    `json:"total"`
	Aggs  map[string]interface{}   `json:"aggs,omitempty"`
}

// Search compiles and executes a document query.
func (o *Orchestrator) Search(ctx context.Context, tenantID, index string, params url.Values) (*Response, error) {
	body, err := o.BuildSearchBody(ctx, tenantID, index, params)
	if err != nil {
		return nil, err
	}

	result, err := o.backend.Search(ctx, index, body)
	if err != nil {
		return nil, err
	}

	resp := &Response{Root: result.Hits, Total: result.Total}
	if resp.Root == nil {
		resp.Root = []map[string]interface{}{}
	}
	return resp, nil
}

// BuildSearchBody runs the compilation pipeline and returns the
// complete query body. Malformed optional fragments are dropped with a
// warning; a missing mandatory operator sub-key aborts with
// InvalidArgument.
func (o *Orchestrator) BuildSearchBody(ctx context.Context, tenantID, index string, params url.Values) (dsl.Fragment, error) {
	search := o.cfg.Search()

	must := []interface{}{}
	filter := []interface{}{}

	// 1. Full-text strategy.
	if q := params.Get(paramQuery); q != "" {
		clause, err := o.fulltextClause(ctx, index, q, search.Fulltext)
		if err != nil {
			return nil, err
		}
		must = append(must, clause)
	}

	// 2. Category, basic, prop, and deep category-path filters.
	if cat := params.Get(paramCat); cat != "" {
		filter = append(filter, dsl.Fragment{
			"terms": dsl.Fragment{search.Fields.Category: toInterfaces(splitValues(cat))},
		})
	}
	filter = append(filter, o.basicFilters(params.Get(paramBasic), search.Fields)...)
	filter = append(filter, o.propFilters(params.Get(paramProp), search.Fields.PropsPath)...)
	if cats := params.Get(paramCats); cats != "" {
		if frag := o.query.Cats.BuildQueryFragment(splitValues(cats)); len(frag) > 0 {
			filter = append(filter, frag)
		}
	}

	// 3. Extended query and filter fragments.
	for _, pv := range extractPrefixed(params, prefixExQuery) {
		frag, err := o.compileOptional(pv)
		if err != nil {
			return nil, err
		}
		if frag != nil {
			must = append(must, frag)
		}
	}
	for _, pv := range extractPrefixed(params, prefixExFilter) {
		frag, err := o.compileOptional(pv)
		if err != nil {
			return nil, err
		}
		if frag != nil {
			filter = append(filter, frag)
		}
	}

	boolBody := dsl.Fragment{}
	if len(must) > 0 {
		boolBody["must"] = must
	}
	if len(filter) > 0 {
		boolBody["filter"] = filter
	}

	body := dsl.Fragment{}
	if len(boolBody) > 0 {
		body["query"] = dsl.Fragment{"bool": boolBody}
	} else {
		body["query"] = dsl.Fragment{"match_all": dsl.Fragment{}}
	}

	// Raw template injection and the script collaborator.
	if raw := params.Get(paramExDsl); raw != "" {
		frag, err := o.renderDslTemplate(raw, params)
		if err != nil {
			o.warnDrop("ex_dsl", err)
		} else {
			body = dsl.Merge(body, frag)
		}
	}
	if name := params.Get(paramExScriptPy); name != "" && o.scripts != nil {
		frag, err := o.scripts.Invoke(ctx, name, params)
		if err != nil {
			o.warnDrop("ex_script_py", err)
		} else {
			body = dsl.Merge(body, frag)
		}
	}

	// 4. Highlight.
	if frag, err := o.highlightFragment(params); err != nil {
		return nil, err
	} else if frag != nil {
		body = dsl.Merge(body, frag)
	}

	// 5. Projections.
	body = dsl.Merge(body, o.projections(params))

	// 6. Paging and sort.
	body["from"] = clampInt(params.Get(paramFrom), 0, search.Page.MaxFrom)
	body["size"] = clampInt(params.Get(paramSize), search.Page.DefaultSize, search.Page.MaxSize)
	if sorts := o.parseSort(params.Get(paramSort)); len(sorts) > 0 {
		body["sort"] = sorts
	}

	metrics.QueriesCompiled.WithLabelValues(tenantID).Inc()
	return body, nil
}

// compileOptional compiles one extended fragment, dropping parse
// failures and propagating mandatory-argument failures.
func (o *Orchestrator) compileOptional(pv prefixedValue) (dsl.Fragment, error) {
	frag, err := o.query.Compile(pv.Field, pv.Raw)
	if err != nil {
		if errors.IsParseError(err) {
			o.warnDrop(pv.Field, err)
			return nil, nil
		}
		return nil, err
	}
	return frag, nil
}

func (o *Orchestrator) warnDrop(what string, err error) {
	metrics.FragmentsDropped.WithLabelValues(what).Inc()
	o.logger.Warn("dropping malformed fragment", map[string]interface{}{
		"fragment": what,
		"error":    err.Error(),
	})
}

// fulltextClause resolves the configured full-text strategy. Both modes
// analyze the query string through the backend, OR-match each token,
// and append a non-scored query_string boost clause rewarding phrase
// adjacency.
func (o *Orchestrator) fulltextClause(ctx context.Context, index, q string, cfg config.FulltextConfig) (dsl.Fragment, error) {
	tokens, err := o.backend.Analyze(ctx, index, cfg.Analyzer, q)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		tokens = []string{q}
	}

	should := []interface{}{}
	switch cfg.Mode {
	case "selected":
		for _, tok := range tokens {
			for _, field := range cfg.Fields {
				should = append(should, dsl.Fragment{"match": dsl.Fragment{field: tok}})
			}
			for _, nf := range cfg.NestedFields {
				should = append(should, dsl.Fragment{
					"nested": dsl.Fragment{
						"path":  cfg.NestedPath,
						"query": dsl.Fragment{"match": dsl.Fragment{nf: tok}},
					},
				})
			}
		}
	default: // "all": every token against the single configured field
		for _, tok := range tokens {
			should = append(should, dsl.Fragment{"match": dsl.Fragment{cfg.Field: tok}})
		}
	}

	boostFields := cfg.BoostFields
	if len(boostFields) == 0 {
		boostFields = []string{cfg.Field}
	}
	adjacency := dsl.Fragment{
		"bool": dsl.Fragment{
			"should": []interface{}{
				dsl.Fragment{
					"query_string": dsl.Fragment{
						"query":  fmt.Sprintf("%q", q),
						"fields": toInterfaces(boostFields),
					},
				},
			},
			"minimum_should_match": 0,
		},
	}

	return dsl.Fragment{
		"bool": dsl.Fragment{
			"must": []interface{}{
				dsl.Fragment{
					"bool": dsl.Fragment{
						"should":               should,
						"minimum_should_match": 1,
					},
				},
			},
			"should": []interface{}{adjacency},
		},
	}, nil
}

// basicFilters parses the basic parameter: brand terms and price
// multi-range. Unknown keys are skipped with a warning.
func (o *Orchestrator) basicFilters(raw string, fields config.FieldsConfig) []interface{} {
	if raw == "" {
		return nil
	}
	out := []interface{}{}
	for _, cond := range parseConditions(raw) {
		switch cond.Key {
		case "brand":
			out = append(out, dsl.Fragment{
				"terms": dsl.Fragment{fields.Brand: toInterfaces(cond.Values)},
			})
		case "price":
			should := []interface{}{}
			for _, rv := range cond.Values {
				low, high, err := dsl.DecodeRange(rv, "-")
				if err != nil {
					continue
				}
				bounds := dsl.Fragment{}
				if low != nil {
					bounds["gte"] = low.Value()
				}
				if high != nil {
					bounds["lt"] = high.Value()
				}
				if len(bounds) > 0 {
					should = append(should, dsl.Fragment{"range": dsl.Fragment{fields.Price: bounds}})
				}
			}
			if len(should) > 0 {
				out = append(out, dsl.Fragment{
					"bool": dsl.Fragment{"should": should, "minimum_should_match": 1},
				})
			}
		default:
			o.logger.Warn("skipping unknown basic condition", map[string]interface{}{"key": cond.Key})
		}
	}
	return out
}

// propFilters parses the prop parameter into nested name/value filters.
func (o *Orchestrator) propFilters(raw, propsPath string) []interface{} {
	if raw == "" {
		return nil
	}
	out := []interface{}{}
	for _, cond := range parseConditions(raw) {
		out = append(out, dsl.Fragment{
			"nested": dsl.Fragment{
				"path": propsPath,
				"query": dsl.Fragment{
					"bool": dsl.Fragment{
						"must": []interface{}{
							dsl.Fragment{"term": dsl.Fragment{propsPath + ".name": cond.Key}},
							dsl.Fragment{"terms": dsl.Fragment{propsPath + ".value": toInterfaces(cond.Values)}},
						},
					},
				},
			},
		})
	}
	return out
}

// renderDslTemplate substitutes {var} placeholders from request
// parameters into a raw JSON template and parses the result.
func (o *Orchestrator) renderDslTemplate(raw string, params url.Values) (dsl.Fragment, error) {
	rendered := raw
	for key, values := range params {
		if len(values) == 0 {
			continue
		}
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", values[0])
	}
	var frag dsl.Fragment
	if err := json.Unmarshal([]byte(rendered), &frag); err != nil {
		return nil, errors.NewParseError(fmt.Sprintf("ex_dsl template: %v", err))
	}
	return frag, nil
}

// projections merges the fields, script_fields, and fielddata_fields
// projections.
func (o *Orchestrator) projections(params url.Values) dsl.Fragment {
	out := dsl.Fragment{}
	if raw := params.Get(paramExFields); raw != "" {
		out["fields"] = toInterfaces(splitValues(raw))
	}
	if raw := params.Get(paramExFielddts); raw != "" {
		out["fielddata_fields"] = toInterfaces(splitValues(raw))
	}
	scriptFields := dsl.Fragment{}
	for _, pv := range extractPrefixed(params, prefixExScriptField) {
		scriptFields[pv.Field] = dsl.Fragment{
			"script": dsl.Fragment{"source": pv.Raw, "lang": "painless"},
		}
	}
	if len(scriptFields) > 0 {
		out["script_fields"] = scriptFields
	}
	return out
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
