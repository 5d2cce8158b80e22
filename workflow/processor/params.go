package processor

import (
	"encoding/json"
	"fmt"
)

// intPair reads a two-element numeric list such as resize: [w, h].
func intPair(params map[string]any, key string, def []int) []int {
	fallback := []int{416, 416}
	if len(def) == 2 {
		fallback = []int{def[0], def[1]}
	}
	raw, ok := params[key]
	if !ok {
		return fallback
	}

	var vals []any
	switch v := raw.(type) {
	case []any:
		vals = v
	case []int:
		if len(v) == 2 {
			return []int{v[0], v[1]}
		}
		return fallback
	default:
		return fallback
	}
	if len(vals) != 2 {
		return fallback
	}

	out := make([]int, 2)
	for i, v := range vals {
		n, ok := toInt(v)
		if !ok || n <= 0 {
			return fallback
		}
		out[i] = n
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// stringList reads a list of strings such as classes: [cat, dog].
func stringList(params map[string]any, key string, def []string) []string {
	raw, ok := params[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case []string:
		if len(v) > 0 {
			return v
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
