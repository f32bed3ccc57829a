package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orbyt-dev/orbyt/internal/action"
	"github.com/orbyt-dev/orbyt/internal/errs"
	"github.com/orbyt-dev/orbyt/internal/graph"
	"github.com/orbyt-dev/orbyt/internal/resolve"
)

// ReservedPrefix marks annotation and field names owned by the engine.
// Documents may not set them.
const ReservedPrefix = "orbyt."

// Validator turns an untrusted workflow object into a ValidatedPlan. It
// runs four phases in order — security, shape, steps, graph — and stops
// after the first phase that reports errors, collecting every error within
// that phase.
type Validator struct {
	registry *action.Registry
}

// NewValidator returns a validator that resolves `uses` references against
// reg. A nil registry skips adapter resolution, which is only appropriate
// for offline shape checking.
func NewValidator(reg *action.Registry) *Validator {
	return &Validator{registry: reg}
}

// Validate runs all phases and emits the immutable plan. The plan is nil
// whenever errors are returned.
func (v *Validator) Validate(doc map[string]any) (*ValidatedPlan, []*errs.Error) {
	if violations := securityPass(doc); len(violations) > 0 {
		return nil, violations
	}

	def, shapeErrs := Load(doc)
	if len(shapeErrs) > 0 {
		return nil, shapeErrs
	}

	if stepErrs := v.stepsPass(def); len(stepErrs) > 0 {
		return nil, stepErrs
	}

	g, plan, graphErrs := graphPass(def)
	if len(graphErrs) > 0 {
		return nil, graphErrs
	}

	return newPlan(def, g, plan), nil
}

// securityPass walks every key in the raw document and rejects reserved
// names before any other interpretation happens: underscore-prefixed keys
// and keys under the engine's reserved prefix are never author-writable,
// wherever they appear.
func securityPass(doc map[string]any) []*errs.Error {
	var violations []*errs.Error
	walkKeys(doc, "", func(key, path string) {
		if !isReservedKey(key) {
			return
		}
		violations = append(violations, errs.Detect(errs.ErrorContext{
			Type:     errs.DetectPermission,
			Field:    key,
			Location: path,
		}))
	})
	return violations
}

func isReservedKey(key string) bool {
	return strings.HasPrefix(key, "_") || strings.HasPrefix(key, ReservedPrefix)
}

// walkKeys visits every mapping key in the document, depth-first, keys in
// sorted order so violation reports are deterministic.
func walkKeys(v any, path string, visit func(key, path string)) {
	switch node := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := k
			if path != "" {
				p = path + "." + k
			}
			visit(k, p)
			walkKeys(node[k], p, visit)
		}
	case []any:
		for i, item := range node {
			walkKeys(item, fmt.Sprintf("%s[%d]", path, i), visit)
		}
	}
}

// stepsPass checks step-level semantics: the workflow is non-empty, ids
// are unique, needs point at declared steps, uses resolves to a handler,
// and expression references never reach forward.
func (v *Validator) stepsPass(def *Definition) []*errs.Error {
	if len(def.Steps) == 0 {
		return []*errs.Error{
			errs.New(errs.CodeEmptyWorkflow, "workflow has no steps").
				WithPath("workflow.steps"),
		}
	}

	var out []*errs.Error
	declared := make(map[string]*Step, len(def.Steps))
	ids := make([]string, 0, len(def.Steps))
	for _, s := range def.Steps {
		if _, dup := declared[s.ID]; dup {
			out = append(out, errs.Detect(errs.ErrorContext{
				Type:     errs.DetectDuplicate,
				Field:    s.ID,
				Location: fmt.Sprintf("workflow.steps[%d].id", s.Index),
			}))
			continue
		}
		declared[s.ID] = s
		ids = append(ids, s.ID)
	}

	for _, s := range def.Steps {
		loc := fmt.Sprintf("workflow.steps[%d]", s.Index)

		for _, need := range s.Needs {
			if _, ok := declared[need]; ok {
				continue
			}
			e := errs.Newf(errs.CodeUnknownStep,
				"step %q needs unknown step %q", s.ID, need).
				WithPath(loc + ".needs").
				WithContext("step", s.ID).
				WithContext("needs", need)
			if suggestion, ok := errs.Suggest(need, ids); ok {
				e.WithContext("suggestion", suggestion)
			}
			out = append(out, e)
		}

		if v.registry != nil && s.Uses != "" {
			if _, err := v.registry.Resolve(s.Uses); err != nil {
				if e := errs.As(err); e != nil {
					out = append(out, e.WithPath(loc+".uses"))
				}
			}
		}

		out = append(out, forwardRefs(s, declared, loc)...)
	}
	return out
}

// forwardRefs statically walks the step's expression-bearing fields and
// rejects references to steps declared at or after this one.
func forwardRefs(s *Step, declared map[string]*Step, loc string) []*errs.Error {
	var out []*errs.Error
	check := func(v any, field string) {
		for _, ref := range resolve.StepRefs(v) {
			target, ok := declared[ref]
			switch {
			case !ok:
				out = append(out, errs.Newf(errs.CodeUnknownStep,
					"step %q references output of unknown step %q", s.ID, ref).
					WithPath(loc+"."+field).
					WithContext("reference", ref))
			case target.Index >= s.Index:
				out = append(out, errs.Newf(errs.CodeForwardReference,
					"step %q references %q, which does not precede it", s.ID, ref).
					WithPath(loc+"."+field).
					WithContext("step", s.ID).
					WithContext("reference", ref))
			}
		}
	}

	check(s.With, "with")
	check(s.When, "when")
	for k, expr := range s.Env {
		check(expr, "env."+k)
	}
	for alias, path := range s.Outputs {
		check(path, "outputs."+alias)
	}
	return out
}

// graphPass builds the dependency graph, surfaces cycles with their path,
// and computes the phase plan.
func graphPass(def *Definition) (*graph.Graph, *graph.Plan, []*errs.Error) {
	needs := make(map[string][]string, len(def.Steps))
	for _, s := range def.Steps {
		needs[s.ID] = s.Needs
	}

	g, err := graph.Build(def.StepIDs(), needs)
	if err != nil {
		if e := errs.As(err); e != nil {
			return nil, nil, []*errs.Error{e}
		}
		return nil, nil, []*errs.Error{errs.Wrap(errs.CodeInternal, err, "graph construction failed")}
	}

	if cycle := graph.FindCycle(g); cycle != nil {
		return nil, nil, []*errs.Error{errs.Detect(errs.ErrorContext{
			Type: errs.DetectCycle,
			Data: map[string]any{"cycle": cycle},
		})}
	}

	plan, err := graph.Phases(g)
	if err != nil {
		if e := errs.As(err); e != nil {
			return nil, nil, []*errs.Error{e}
		}
		return nil, nil, []*errs.Error{errs.Wrap(errs.CodeInternal, err, "phase planning failed")}
	}
	return g, plan, nil
}
