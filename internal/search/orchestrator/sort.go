// internal/search/orchestrator/sort.go
package orchestrator

import (
	"strings"

	"search-platform/internal/search/dsl"
)

// parseSort parses the sort parameter into an Elasticsearch sort list.
// Items are "field:orderSpec" where orderSpec is 0/1, order(0|1), or a
// script(...)/geodistance(...) composite spec. The item separator is
// auto-detected: semicolon when script/geo markers are present, else
// underscore when present, else semicolon. Malformed items are skipped
// with a warning so one bad item never fails the request.
func (o *Orchestrator) parseSort(raw string) []interface{} {
	if raw == "" {
		return nil
	}

	sep := byte(';')
	if !strings.Contains(raw, "script(") && !strings.Contains(raw, "geodistance(") {
		if strings.Contains(raw, "_") {
			sep = '_'
		}
	}

	out := []interface{}{}
	for _, item := range splitOutsideParens(raw, sep) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		field, spec, found := strings.Cut(item, ":")
		if !found || field == "" {
			o.logger.Warn("skipping malformed sort item", map[string]interface{}{"item": item})
			continue
		}
		entry := o.parseSortSpec(field, spec)
		if entry == nil {
			o.logger.Warn("skipping malformed sort item", map[string]interface{}{"item": item})
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (o *Orchestrator) parseSortSpec(field, spec string) interface{} {
	spec = strings.TrimSpace(spec)

	switch {
	case spec == "0" || spec == "1":
		return dsl.Fragment{field: dsl.Fragment{"order": orderWord(spec)}}

	case strings.HasPrefix(spec, "order(") && strings.HasSuffix(spec, ")"):
		inner := spec[len("order(") : len(spec)-1]
		if inner != "0" && inner != "1" {
			return nil
		}
		return dsl.Fragment{field: dsl.Fragment{"order": orderWord(inner)}}

	case strings.HasPrefix(spec, "script(") && strings.HasSuffix(spec, ")"):
		return o.parseScriptSort(spec[len("script(") : len(spec)-1])

	case strings.HasPrefix(spec, "geodistance(") && strings.HasSuffix(spec, ")"):
		return o.parseGeoSort(field, spec[len("geodistance(") : len(spec)-1])
	}
	return nil
}

// splitOutsideParens splits on sep only at parenthesis depth zero, so
// composite specs keep their argument lists intact.
func splitOutsideParens(raw string, sep byte) []string {
	out := []string{}
	depth, start := 0, 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				out = append(out, raw[start:i])
				start = i + 1
			}
		}
	}
	return append(out, raw[start:])
}

// orderWord maps the mini-language order flag: 0 ascending, 1
// descending.
func orderWord(flag string) string {
	if flag == "1" {
		return "desc"
	}
	return "asc"
}

func (o *Orchestrator) parseScriptSort(arg string) interface{} {
	var source, typ, order string
	typ, order = "number", "asc"
	for _, item := range strings.Split(arg, ";") {
		key, value, found := strings.Cut(item, ":")
		if !found {
			return nil
		}
		switch strings.TrimSpace(key) {
		case "source":
			source = value
		case "type":
			typ = value
		case "order":
			order = orderWord(value)
		default:
			return nil
		}
	}
	if source == "" {
		return nil
	}
	return dsl.Fragment{
		"_script": dsl.Fragment{
			"type":   typ,
			"script": dsl.Fragment{"source": source, "lang": "painless"},
			"order":  order,
		},
	}
}

func (o *Orchestrator) parseGeoSort(field, arg string) interface{} {
	var origin, unit, order string
	unit, order = "km", "asc"
	for _, item := range strings.Split(arg, ";") {
		key, value, found := strings.Cut(item, ":")
		if !found {
			return nil
		}
		switch strings.TrimSpace(key) {
		case "origin":
			origin = value
		case "unit":
			unit = value
		case "order":
			order = orderWord(value)
		default:
			return nil
		}
	}
	if origin == "" {
		return nil
	}
	return dsl.Fragment{
		"_geo_distance": dsl.Fragment{
			field:   origin,
			"unit":  unit,
			"order": order,
		},
	}
}
