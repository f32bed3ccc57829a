// Package resolve implements the variable resolution engine: ${...}
// expressions are evaluated against a namespace-keyed Scope with a default
// operator, builtin functions, and strict rules for reserved namespaces.
package resolve

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/orbyt-dev/orbyt/internal/errs"
	"github.com/orbyt-dev/orbyt/internal/value"
)

// Active namespace names. These are the only prefixes a path expression may
// start with.
const (
	NSEnv      = "env"
	NSInputs   = "inputs"
	NSSecrets  = "secrets"
	NSMetadata = "metadata"
	NSContext  = "context"
	NSWorkflow = "workflow"
	NSRun      = "run"
	NSSteps    = "steps"
)

// reservedNamespaces are declared by the schema but not yet implemented;
// lookups into them fail with a dedicated error so workflows written against
// a future engine version fail loudly instead of silently resolving to nil.
var reservedNamespaces = map[string]bool{
	"telemetry":  true,
	"resources":  true,
	"compliance": true,
}

// activeNamespaces lists every resolvable namespace, used in error hints.
var activeNamespaces = []string{
	NSEnv, NSInputs, NSSecrets, NSMetadata, NSContext, NSWorkflow, NSRun, NSSteps,
}

// WorkflowInfo is the read-only workflow identity exposed under the
// "workflow" namespace.
type WorkflowInfo struct {
	ID          string
	Name        string
	Version     string
	Description string
	Tags        []string
	Owner       string
}

// RunInfo is the read-only execution identity exposed under the "run"
// namespace.
type RunInfo struct {
	ID          string
	Timestamp   time.Time
	Attempt     int
	TriggeredBy string
}

// Scope is the namespace-keyed record variable expressions read from.
// Namespace fields are explicit and typed: user context is merged key by
// key, never deep-merged over engine fields, which is what keeps reserved
// engine state unreachable from workflow values.
//
// The steps sub-map is written only by the workflow executor after a step's
// SUCCESS transition (guarded here by a mutex so concurrent completions
// within a phase stay safe); all other fields are fixed at construction.
type Scope struct {
	Env      map[string]any
	Inputs   map[string]any
	Secrets  map[string]any
	Metadata map[string]any
	Context  map[string]any
	Workflow WorkflowInfo
	Run      RunInfo

	mu    sync.RWMutex
	steps map[string]any // stepID -> raw recorded output
}

// NewScope creates a Scope with every map namespace allocated, so callers
// can populate fields without nil checks.
func NewScope() *Scope {
	return &Scope{
		Env:      map[string]any{},
		Inputs:   map[string]any{},
		Secrets:  map[string]any{},
		Metadata: map[string]any{},
		Context:  map[string]any{},
		steps:    map[string]any{},
	}
}

// SetStepOutput records the raw output of a completed step. Passing nil
// records an explicit null output, which is still a "present" step for
// lookup purposes.
func (s *Scope) SetStepOutput(stepID string, output any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[stepID] = output
}

// StepOutput returns the recorded output for stepID and whether one exists.
func (s *Scope) StepOutput(stepID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.steps[stepID]
	return out, ok
}

// StepIDs returns the ids of all steps with recorded outputs, sorted.
func (s *Scope) StepIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.steps))
	for k := range s.steps {
		out[k] = nil
	}
	return value.Keys(out)
}

// StepOutputs returns a deep copy of the recorded step outputs, keyed by
// step id. Handed to action handlers via the action context.
func (s *Scope) StepOutputs() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.steps))
	for k, v := range s.steps {
		out[k] = value.DeepCopy(v)
	}
	return out
}

// lookupErr marks errors the default operator may absorb: a missing step id
// or an unresolvable path. Hard errors (reserved or unknown namespaces)
// are plain *errs.Error values and always propagate.
type lookupErr struct{ err *errs.Error }

func (l *lookupErr) Error() string { return l.err.Error() }
func (l *lookupErr) Unwrap() error { return l.err }

// isLookupErr reports whether err is absorbable by the default operator.
func isLookupErr(err error) bool {
	_, ok := err.(*lookupErr)
	return ok
}

// lookupPath resolves a namespace-qualified path against the scope.
//
// The returned found flag distinguishes "present" (possibly nil) values
// from absent keys: an absent key inside an active namespace is not an
// error, it substitutes to the empty string or triggers the default
// operator. Structural violations return an error instead.
func (s *Scope) lookupPath(parts []string) (val any, found bool, err error) {
	if len(parts) == 0 {
		return nil, false, errs.New(errs.CodeResolution, "empty variable path")
	}
	ns, rest := parts[0], parts[1:]

	switch ns {
	case NSEnv:
		return mapLookup(s.Env, rest)
	case NSInputs:
		return mapLookup(s.Inputs, rest)
	case NSSecrets:
		return mapLookup(s.Secrets, rest)
	case NSMetadata:
		return mapLookup(s.Metadata, rest)
	case NSContext:
		return mapLookup(s.Context, rest)
	case NSWorkflow:
		return s.workflowField(rest)
	case NSRun:
		return s.runField(rest)
	case NSSteps:
		return s.stepLookup(rest)
	}

	if reservedNamespaces[ns] {
		return nil, false, errs.Newf(errs.CodeReservedNamespace,
			"namespace %q is reserved and not yet implemented", ns)
	}
	return nil, false, errs.Newf(errs.CodeUnknownNamespace,
		"unknown namespace %q; active namespaces are %s", ns, strings.Join(activeNamespaces, ", "))
}

func mapLookup(m map[string]any, rest []string) (any, bool, error) {
	if len(rest) == 0 {
		// Bare namespace reference, e.g. ${env}. Expose the whole mapping.
		return m, true, nil
	}
	v, ok := value.GetParts(m, rest)
	return v, ok, nil
}

func (s *Scope) workflowField(rest []string) (any, bool, error) {
	if len(rest) != 1 {
		return nil, false, nil
	}
	switch rest[0] {
	case "id":
		return s.Workflow.ID, true, nil
	case "name":
		return s.Workflow.Name, true, nil
	case "version":
		return s.Workflow.Version, true, nil
	case "description":
		return s.Workflow.Description, true, nil
	case "tags":
		tags := make([]any, len(s.Workflow.Tags))
		for i, t := range s.Workflow.Tags {
			tags[i] = t
		}
		return tags, true, nil
	case "owner":
		return s.Workflow.Owner, true, nil
	}
	return nil, false, nil
}

func (s *Scope) runField(rest []string) (any, bool, error) {
	if len(rest) != 1 {
		return nil, false, nil
	}
	switch rest[0] {
	case "id":
		return s.Run.ID, true, nil
	case "timestamp":
		return s.Run.Timestamp.UTC().Format(time.RFC3339), true, nil
	case "attempt":
		return s.Run.Attempt, true, nil
	case "triggeredBy":
		return s.Run.TriggeredBy, true, nil
	}
	return nil, false, nil
}

func (s *Scope) stepLookup(rest []string) (any, bool, error) {
	if len(rest) == 0 {
		return nil, false, errs.New(errs.CodeResolution,
			"steps references must name a step, e.g. ${steps.build.artifact}")
	}
	stepID := rest[0]

	out, ok := s.StepOutput(stepID)
	if !ok {
		available := s.StepIDs()
		return nil, false, &lookupErr{errs.Newf(errs.CodeResolution,
			"no output recorded for step %q; available steps: %s",
			stepID, fmt.Sprintf("[%s]", strings.Join(available, ", "))).
			WithContext("step", stepID).
			WithContext("available", available)}
	}

	if len(rest) == 1 {
		return out, true, nil
	}
	v, found := value.GetParts(out, rest[1:])
	return v, found, nil
}
