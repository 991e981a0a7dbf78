// internal/search/orchestrator/suggest.go
package orchestrator

import (
	"context"
	"net/url"

	"search-platform/internal/common/errors"
	"search-platform/internal/search/dsl"
)

const suggestName = "completions"

// Suggest runs a completion suggest for the q prefix and returns the
// matched texts. The target field defaults to the full-text field's
// .suggest sub-field and can be overridden per request.
func (o *Orchestrator) Suggest(ctx context.Context, tenantID, index string, params url.Values) ([]string, error) {
	prefix := params.Get(paramQuery)
	if prefix == "" {
		return nil, errors.NewInvalidArgumentError("suggest", paramQuery)
	}
	field := params.Get(paramField)
	if field == "" {
		field = o.cfg.Search().Fulltext.Field + ".suggest"
	}
	size := clampInt(params.Get(paramSize), 5, o.cfg.Search().Page.MaxSize)

	body := dsl.Fragment{
		"suggest": dsl.Fragment{
			suggestName: dsl.Fragment{
				"prefix": prefix,
				"completion": dsl.Fragment{
					"field":           field,
					"size":            size,
					"skip_duplicates": true,
				},
			},
		},
	}

	result, err := o.backend.Suggest(ctx, index, body)
	if err != nil {
		return nil, err
	}
	return suggestTexts(result.Suggest, suggestName), nil
}

// suggestTexts flattens a suggest response section into the option
// texts, in response order.
func suggestTexts(raw map[string]interface{}, name string) []string {
	out := []string{}
	entries, _ := raw[name].([]interface{})
	for _, e := range entries {
		entry, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		options, _ := entry["options"].([]interface{})
		for _, opt := range options {
			option, ok := opt.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := option["text"].(string); ok {
				out = append(out, text)
			}
		}
	}
	return out
}
