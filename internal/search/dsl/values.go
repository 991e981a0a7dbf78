// internal/search/dsl/values.go
package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"search-platform/internal/common/errors"
)

// Kind enumerates the typed-value kinds of the mini-language.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

// TypedValue is a decoded mini-language value.
type TypedValue struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

// Value returns the natural Go representation for JSON encoding.
func (v TypedValue) Value() interface{} {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return v.Str
	}
}

// DecodeTypedValue parses a token of the form "type:value" where type
// is one of num, bool, str. A bare token defaults to string. Booleans
// compare case-insensitively against "true".
func DecodeTypedValue(token string) (TypedValue, error) {
	typ, rest, found := strings.Cut(token, ":")
	if !found {
		return TypedValue{Kind: KindString, Str: token}, nil
	}

	switch typ {
	case "num":
		n, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return TypedValue{}, errors.NewParseError(fmt.Sprintf("malformed number %q", rest))
		}
		return TypedValue{Kind: KindNumber, Num: n}, nil
	case "bool":
		return TypedValue{Kind: KindBool, Bool: strings.EqualFold(rest, "true")}, nil
	case "str":
		return TypedValue{Kind: KindString, Str: rest}, nil
	default:
		// Unknown prefix: the colon belonged to the value itself.
		return TypedValue{Kind: KindString, Str: token}, nil
	}
}

// DecodeRange splits a range token on the last unescaped occurrence of
// sep into (low, high). "a-" yields (a, nil), "-b" yields (nil, b).
// A token without the separator is a ParseError; callers treat it as
// "no range" and filter it out.
func DecodeRange(token, sep string) (*TypedValue, *TypedValue, error) {
	idx := lastUnescapedIndex(token, sep)
	if idx < 0 {
		return nil, nil, errors.NewParseError(fmt.Sprintf("no range separator in %q", token))
	}

	lowRaw := unescape(token[:idx], sep)
	highRaw := unescape(token[idx+len(sep):], sep)

	var low, high *TypedValue
	if lowRaw != "" {
		v, err := DecodeTypedValue(lowRaw)
		if err != nil {
			return nil, nil, err
		}
		low = &v
	}
	if highRaw != "" {
		v, err := DecodeTypedValue(highRaw)
		if err != nil {
			return nil, nil, err
		}
		high = &v
	}
	return low, high, nil
}

// lastUnescapedIndex finds the last occurrence of sep in s that is not
// preceded by a backslash.
func lastUnescapedIndex(s, sep string) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if s[i:i+len(sep)] != sep {
			continue
		}
		if i > 0 && s[i-1] == '\\' {
			continue
		}
		return i
	}
	return -1
}

func unescape(s, sep string) string {
	return strings.ReplaceAll(s, "\\"+sep, sep)
}

// decodeValueList splits a comma-delimited list and decodes each entry.
func decodeValueList(raw string) ([]interface{}, error) {
	parts := strings.Split(raw, ",")
	out := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := DecodeTypedValue(p)
		if err != nil {
			return nil, err
		}
		out = append(out, v.Value())
	}
	return out, nil
}

// decodeNumberList splits a comma-delimited list of numbers.
func decodeNumberList(raw string) ([]interface{}, error) {
	parts := strings.Split(raw, ",")
	out := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, errors.NewParseError(fmt.Sprintf("malformed number %q", p))
		}
		out = append(out, n)
	}
	return out, nil
}
