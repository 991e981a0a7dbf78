// internal/search/dsl/operator.go
package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"search-platform/internal/common/errors"
)

// Call is one parsed mini-language expression: opType(argString).
type Call struct {
	Op  string
	Arg string
}

// ParseCall splits "opType(argString)" into its parts. The argument
// string may itself contain nested calls; the match is on the first
// opening and last closing parenthesis.
func ParseCall(raw string) (Call, error) {
	raw = strings.TrimSpace(raw)
	open := strings.Index(raw, "(")
	if open <= 0 || !strings.HasSuffix(raw, ")") {
		return Call{}, errors.NewParseError(fmt.Sprintf("not an operator expression: %q", raw))
	}
	return Call{
		Op:  strings.TrimSpace(raw[:open]),
		Arg: raw[open+1 : len(raw)-1],
	}, nil
}

// opArgs is a parsed ";"-delimited "key:value" argument string. The
// key set is closed per operator: an unknown key is a ParseError rather
// than passing through unvalidated.
type opArgs struct {
	op    string
	pairs map[string]string
}

func parseArgs(op, raw string, allowed ...string) (opArgs, error) {
	a := opArgs{op: op, pairs: make(map[string]string)}
	if strings.TrimSpace(raw) == "" {
		return a, nil
	}
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, found := strings.Cut(item, ":")
		if !found {
			return a, errors.NewParseError(fmt.Sprintf("%s: argument %q is not key:value", op, item))
		}
		key = strings.TrimSpace(key)
		if !contains(allowed, key) {
			return a, errors.NewParseError(fmt.Sprintf("%s: unknown argument key %q", op, key))
		}
		a.pairs[key] = value
	}
	return a, nil
}

// argKeyIndex locates "key:" at an item boundary (string start or just
// after a ";"). Operators with an embedded sub-expression use it to cut
// the expression out before the generic key:value split.
func argKeyIndex(raw, key string) int {
	marker := key + ":"
	if strings.HasPrefix(raw, marker) {
		return 0
	}
	if idx := strings.Index(raw, ";"+marker); idx >= 0 {
		return idx + 1
	}
	return -1
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func (a opArgs) get(key string) (string, bool) {
	v, ok := a.pairs[key]
	return v, ok
}

func (a opArgs) getOr(key, def string) string {
	if v, ok := a.pairs[key]; ok {
		return v
	}
	return def
}

// require returns the value of a mandatory sub-key, failing with
// InvalidArgument when absent.
func (a opArgs) require(key string) (string, error) {
	v, ok := a.pairs[key]
	if !ok || v == "" {
		return "", errors.NewInvalidArgumentError(a.op, key)
	}
	return v, nil
}

func (a opArgs) number(key string, def float64) (float64, error) {
	v, ok := a.pairs[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.NewParseError(fmt.Sprintf("%s: %s is not a number: %q", a.op, key, v))
	}
	return n, nil
}

func (a opArgs) integer(key string, def int) (int, error) {
	n, err := a.number(key, float64(def))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (a opArgs) boolean(key string, def bool) bool {
	v, ok := a.pairs[key]
	if !ok {
		return def
	}
	return strings.EqualFold(v, "true")
}
