package resolve

import (
	"strings"
)

// Ref is a namespace-qualified path reference found by a static walk of a
// workflow value, before any execution happens. Used by the validator to
// enforce the forward-reference rule and by the explanation generator to
// predict data flow.
type Ref struct {
	// Namespace is the first path segment, e.g. "steps" or "inputs".
	Namespace string

	// Parts is the full dotted path including the namespace.
	Parts []string

	// Raw is the expression text the reference came from.
	Raw string
}

// Refs statically walks v (scalars, sequences, mappings) and returns every
// path reference inside ${...} expressions, including references nested in
// default operators. Expressions that fail to parse are returned in errs so
// the validator can reject them before execution; parseable builtin calls
// and literals produce no refs.
func Refs(v any) (refs []Ref, errors []error) {
	walkValue(v, func(expr string) {
		node, err := parseExpr(expr)
		if err != nil {
			errors = append(errors, err)
			return
		}
		collectRefs(node, expr, &refs)
	})
	return refs, errors
}

// StepRefs returns the distinct step ids referenced via ${steps.<id>...}
// anywhere inside v, in order of first appearance. Unparseable expressions
// are ignored here; Refs reports them.
func StepRefs(v any) []string {
	refs, _ := Refs(v)
	seen := make(map[string]bool)
	var out []string
	for _, r := range refs {
		if r.Namespace != NSSteps || len(r.Parts) < 2 {
			continue
		}
		id := r.Parts[1]
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// NamespaceRefs returns the distinct second-level keys referenced under the
// given namespace, e.g. NamespaceRefs(v, "inputs") lists the input names a
// step reads. Order is first appearance.
func NamespaceRefs(v any, namespace string) []string {
	refs, _ := Refs(v)
	seen := make(map[string]bool)
	var out []string
	for _, r := range refs {
		if r.Namespace != namespace || len(r.Parts) < 2 {
			continue
		}
		key := r.Parts[1]
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

func collectRefs(node exprNode, raw string, refs *[]Ref) {
	switch n := node.(type) {
	case *pathNode:
		*refs = append(*refs, Ref{Namespace: n.parts[0], Parts: n.parts, Raw: raw})
	case *defaultNode:
		collectRefs(n.left, raw, refs)
		collectRefs(n.right, raw, refs)
	}
}

// walkValue visits every ${...} expression in v, recursing through mappings
// and sequences. Unterminated expressions are skipped; the resolver will
// report them with full context at resolution time.
func walkValue(v any, visit func(expr string)) {
	switch val := v.(type) {
	case string:
		if !strings.Contains(val, "${") {
			return
		}
		segments, err := scanSegments(val)
		if err != nil {
			return
		}
		for _, seg := range segments {
			if seg.isExpr {
				visit(seg.text)
			}
		}
	case map[string]any:
		for _, item := range val {
			walkValue(item, visit)
		}
	case []any:
		for _, item := range val {
			walkValue(item, visit)
		}
	}
}
