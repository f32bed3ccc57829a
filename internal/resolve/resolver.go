package resolve

import (
	"strings"

	"github.com/orbyt-dev/orbyt/internal/errs"
	"github.com/orbyt-dev/orbyt/internal/value"
)

// maxDepth bounds both structural recursion and re-resolution of values
// that themselves produce ${...} text. The cap is what turns a circular
// reference into a diagnosable error instead of a hang.
const maxDepth = 10

// Resolve applies variable resolution recursively and structurally to v:
// strings are interpolated, sequences and mappings are resolved
// element-by-element, and all other scalars pass through unchanged.
func Resolve(v any, scope *Scope) (any, error) {
	return resolveValue(v, scope, 0)
}

// ResolveString resolves a single string value. A string that is exactly
// one ${...} expression evaluates to the raw typed value; any other string
// performs textual substitution where missing or null lookups become the
// empty string.
func ResolveString(s string, scope *Scope) (any, error) {
	return resolveString(s, scope, 0)
}

func resolveValue(v any, scope *Scope, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errs.Newf(errs.CodeDepthExceeded,
			"variable resolution exceeded maximum depth %d", maxDepth)
	}

	switch val := v.(type) {
	case string:
		return resolveString(val, scope, depth)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := resolveValue(item, scope, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := resolveValue(item, scope, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveString(s string, scope *Scope, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errs.Newf(errs.CodeDepthExceeded,
			"variable resolution exceeded maximum depth %d", maxDepth)
	}
	if !strings.Contains(s, "${") {
		return s, nil
	}

	segments, err := scanSegments(s)
	if err != nil {
		return nil, err
	}

	// Exact single-expression strings evaluate to the raw typed value so
	// numbers stay numbers.
	if len(segments) == 1 && segments[0].isExpr {
		node, err := parseExpr(segments[0].text)
		if err != nil {
			return nil, err
		}
		val, _, err := evalNode(node, scope)
		if err != nil {
			return nil, err
		}
		// A resolved value may itself contain expression text (e.g. a
		// context variable holding "${inputs.host}"); re-resolve within
		// the depth budget.
		if str, ok := val.(string); ok && strings.Contains(str, "${") {
			return resolveString(str, scope, depth+1)
		}
		return val, nil
	}

	// Textual substitution: missing and null lookups render as "".
	var b strings.Builder
	for _, seg := range segments {
		if !seg.isExpr {
			b.WriteString(seg.text)
			continue
		}
		node, err := parseExpr(seg.text)
		if err != nil {
			return nil, err
		}
		val, _, err := evalNode(node, scope)
		if err != nil {
			return nil, err
		}
		b.WriteString(value.Stringify(val))
	}

	out := b.String()
	if strings.Contains(out, "${") {
		return resolveString(out, scope, depth+1)
	}
	return out, nil
}

// evalNode evaluates an AST node against the scope. The found flag is false
// only for absent path lookups; literals and builtins are always found.
func evalNode(node exprNode, scope *Scope) (val any, found bool, err error) {
	switch n := node.(type) {
	case *litNode:
		return n.val, true, nil
	case *callNode:
		v, err := evalBuiltin(n.name, scope)
		return v, err == nil, err
	case *pathNode:
		return scope.lookupPath(n.parts)
	case *defaultNode:
		left, leftFound, err := evalNode(n.left, scope)
		if err != nil {
			// Lookup errors (e.g. a missing step output) fall through to
			// the default; structural errors propagate.
			if !isLookupErr(err) {
				return nil, false, err
			}
		} else if leftFound && !value.IsAbsent(left) {
			return left, true, nil
		}
		return evalNode(n.right, scope)
	default:
		return nil, false, errs.Newf(errs.CodeInternal, "unknown expression node %T", node)
	}
}

// segment is either literal text or the inside of a ${...} expression.
type segment struct {
	text   string
	isExpr bool
}

// scanSegments splits s into literal and expression segments. The closing
// brace is matched with awareness of quoted strings inside the expression
// so a literal like '}' does not terminate it early.
func scanSegments(s string) ([]segment, error) {
	var segments []segment
	for len(s) > 0 {
		start := strings.Index(s, "${")
		if start < 0 {
			segments = append(segments, segment{text: s})
			break
		}
		if start > 0 {
			segments = append(segments, segment{text: s[:start]})
		}
		rest := s[start+2:]
		end, err := findClose(rest)
		if err != nil {
			return nil, errs.Newf(errs.CodeResolution, "unterminated expression in %q", s)
		}
		segments = append(segments, segment{text: rest[:end], isExpr: true})
		s = rest[end+1:]
	}
	return segments, nil
}

// findClose returns the index of the '}' closing the expression that starts
// at the beginning of s, skipping over quoted string literals.
func findClose(s string) (int, error) {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '}':
			return i, nil
		}
	}
	return 0, errs.New(errs.CodeResolution, "missing closing brace")
}
