package engine

import (
	"context"
	"strings"

	"github.com/orbyt-dev/orbyt/internal/errs"
	"github.com/orbyt-dev/orbyt/internal/workflow"
)

// Planner is the public façade over validation and execution. It owns the
// validator and executor wiring so embedders and the CLI deal with one
// type.
type Planner struct {
	validator *workflow.Validator
	executor  *Executor
}

// NewPlanner wires a planner around an executor. The validator resolves
// `uses` references against the executor's action registry.
func NewPlanner(executor *Executor) *Planner {
	return &Planner{
		validator: workflow.NewValidator(executor.registry),
		executor:  executor,
	}
}

// Executor returns the underlying executor.
func (p *Planner) Executor() *Executor { return p.executor }

// LoadAndValidate turns an untrusted document object into an immutable
// plan, or returns the collected validation errors.
func (p *Planner) LoadAndValidate(doc map[string]any) (*workflow.ValidatedPlan, []*errs.Error) {
	return p.validator.Validate(doc)
}

// ValidationReport is the outcome of a validate-only call.
type ValidationReport struct {
	Valid  bool          `json:"valid"`
	Errors []*errs.Error `json:"errors,omitempty"`
}

// Validate checks a document without executing anything.
func (p *Planner) Validate(doc map[string]any) ValidationReport {
	_, verrs := p.validator.Validate(doc)
	return ValidationReport{Valid: len(verrs) == 0, Errors: verrs}
}

// Run validates doc (when it is not already a plan) and executes it.
// Accepts either a raw document (map[string]any) or a *workflow.ValidatedPlan.
// Validation failures are joined into a single error carrying the first
// failure's code.
func (p *Planner) Run(ctx context.Context, doc any, opts RunOptions) (*Result, error) {
	plan, err := p.planFor(doc)
	if err != nil {
		return nil, err
	}

	opts.Context = p.injectInternalContext(opts)
	return p.executor.Run(ctx, plan, opts)
}

// RunPlan executes an already-validated plan.
func (p *Planner) RunPlan(ctx context.Context, plan *workflow.ValidatedPlan, opts RunOptions) (*Result, error) {
	opts.Context = p.injectInternalContext(opts)
	return p.executor.Run(ctx, plan, opts)
}

func (p *Planner) planFor(doc any) (*workflow.ValidatedPlan, error) {
	switch d := doc.(type) {
	case *workflow.ValidatedPlan:
		return d, nil
	case map[string]any:
		plan, verrs := p.validator.Validate(d)
		if len(verrs) > 0 {
			return nil, JoinErrors(verrs)
		}
		return plan, nil
	default:
		return nil, errs.Newf(errs.CodeInternal, "cannot run a %T; expected a document or a validated plan", doc)
	}
}

// injectInternalContext strips reserved keys from the caller's context —
// the executor refuses them again during the merge — and leaves the
// engine-owned metadata (identity, run accounting) to the executor's scope
// construction. The caller's map is never mutated.
func (p *Planner) injectInternalContext(opts RunOptions) map[string]any {
	if opts.Context == nil {
		return nil
	}
	cleaned := make(map[string]any, len(opts.Context))
	for k, v := range opts.Context {
		if strings.HasPrefix(k, "_") || strings.HasPrefix(k, workflow.ReservedPrefix) {
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}

// JoinErrors folds a validation error list into one error: the first
// error decides the code and exit behavior, the rest are attached as
// context so nothing is lost in transit.
func JoinErrors(list []*errs.Error) error {
	if len(list) == 0 {
		return nil
	}
	if len(list) == 1 {
		return list[0]
	}

	first := list[0]
	msgs := make([]string, 0, len(list)-1)
	for _, e := range list[1:] {
		msgs = append(msgs, e.Error())
	}
	joined := errs.Newf(first.Code, "%s (and %d more)", first.Message, len(list)-1).
		WithContext("additional", msgs)
	if first.Path != "" {
		joined.WithPath(first.Path)
	}
	return joined
}
