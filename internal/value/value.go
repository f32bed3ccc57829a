// Package value provides helpers for working with dynamic workflow values:
// the null | bool | number | string | sequence | mapping shapes produced by
// decoding JSON or YAML into any. The variable resolver, the output mapper
// and the validator all traverse values through this package so coercion
// rules stay in one place.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Get traverses v along a dotted path ("a.b.c") and returns the value found
// there. The second return is false when any segment is missing or the
// current value is not a mapping. An empty path returns v itself.
//
// Traversal is undefined-safe: a missing intermediate key returns (nil,
// false) rather than panicking, which is what the step output mapper relies
// on.
func Get(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	return GetParts(v, strings.Split(path, "."))
}

// GetParts is Get with a pre-split path.
func GetParts(v any, parts []string) (any, bool) {
	current := v
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Truthy applies the engine's condition semantics to an arbitrary value:
//
//   - booleans are used as-is
//   - strings are truthy unless empty, "false" or "0" (case-insensitive)
//   - numbers are falsy when zero or NaN
//   - nil is falsy
//   - sequences and mappings are truthy (even when empty)
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		lower := strings.ToLower(val)
		return val != "" && lower != "false" && lower != "0"
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0 && !math.IsNaN(val)
	default:
		return true
	}
}

// IsAbsent reports whether v counts as "unset" for the default operator:
// nil or the empty string.
func IsAbsent(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// Stringify coerces v to its textual-substitution form. nil becomes the
// empty string; floats that hold integral values render without a decimal
// point so "${inputs.port}" interpolates as "8080", not "8080.000000".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// DeepCopy returns a structural copy of v. Mappings and sequences are copied
// recursively; scalars are returned as-is. Used when handing snapshots of
// the resolution scope to action handlers so they cannot mutate engine state.
func DeepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = DeepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	default:
		return val
	}
}

// MergeSanitized copies src into dst key by key, skipping any key for which
// refuse returns true. Values are deep-copied so later mutations of src do
// not leak into dst. It returns the list of refused keys in sorted order.
//
// There is deliberately no recursive merge of mapping values: engine-owned
// keys in dst can never be reached through a nested user value.
func MergeSanitized(dst, src map[string]any, refuse func(string) bool) []string {
	var refused []string
	for k, v := range src {
		if refuse != nil && refuse(k) {
			refused = append(refused, k)
			continue
		}
		dst[k] = DeepCopy(v)
	}
	sort.Strings(refused)
	return refused
}

// Keys returns the keys of m in sorted order.
func Keys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
