package admeta

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Payload is an untyped JSON-like object as delivered over a cast channel.
// Every accessor returns a default on a missing key or a type mismatch.
type Payload map[string]any

// String returns the first key holding a string value, or nil.
func (p Payload) String(keys ...string) *string {
	for _, k := range keys {
		if s, ok := p[k].(string); ok {
			return &s
		}
	}
	return nil
}

// Int returns the first key holding a value coercible to an integer, or 0.
func (p Payload) Int(keys ...string) int {
	for _, k := range keys {
		if n, ok := toInt(p[k]); ok {
			return n
		}
	}
	return 0
}

// Object returns the value at key as a Payload.
func (p Payload) Object(key string) (Payload, bool) {
	return asObject(p[key])
}

// List returns the value at key as a slice.
func (p Payload) List(key string) ([]any, bool) {
	l, ok := p[key].([]any)
	return l, ok
}

// StringLists reads an object of string -> list of strings. A single
// non-conforming entry makes the whole result empty.
func (p Payload) StringLists(key string) map[string][]string {
	out := make(map[string][]string)

	obj, ok := p.Object(key)
	if !ok {
		return out
	}

	for k, v := range obj {
		urls, ok := toStrings(v)
		if !ok {
			return make(map[string][]string)
		}
		out[k] = urls
	}

	return out
}

func asObject(v any) (Payload, bool) {
	switch o := v.(type) {
	case Payload:
		return o, o != nil
	case map[string]any:
		return Payload(o), o != nil
	}
	return nil, false
}

func toStrings(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return append([]string{}, l...), true
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt || f < math.MinInt {
		return 0, false
	}
	return int(f), true
}
