// Package workflow holds the workflow definition model, the loader that
// builds it from an untrusted document, and the phased validator that turns
// a definition into an immutable ValidatedPlan.
package workflow

import (
	"regexp"
	"time"
)

// Kind is the only document kind the engine accepts.
const Kind = "Workflow"

// SchemaVersions lists the accepted schema-version strings.
var SchemaVersions = []string{"1", "1.0"}

// IDPattern is the step id shape. Leading digit and leading dash are
// rejected so ids are safe as expression identifiers.
var IDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// DurationPattern is the accepted duration string shape.
var DurationPattern = regexp.MustCompile(`^[0-9]+(ms|s|m|h)$`)

// Definition is the parsed workflow document. Immutable after Load; the
// validator and executors only read it.
type Definition struct {
	Version     string
	Metadata    Metadata
	Annotations map[string]string
	Inputs      map[string]InputSpec
	Secrets     SecretsSpec
	Context     map[string]any
	Defaults    Defaults
	Policies    Policies
	Steps       []*Step
	Outputs     map[string]string
}

// Metadata is the document's descriptive block.
type Metadata struct {
	Name        string
	Description string
	Version     string
	Tags        []string
	Owner       string
	CreatedAt   string
	UpdatedAt   string
}

// InputSpec declares one typed workflow input.
type InputSpec struct {
	Type        string
	Required    bool
	Default     any
	Description string
}

// SecretsSpec names the vault and the keys a run will need. Values are
// never part of the document.
type SecretsSpec struct {
	Vault string
	Keys  []string
}

// Defaults supplies per-step fallbacks.
type Defaults struct {
	Timeout time.Duration
	Adapter string
}

// Failure policy values.
const (
	FailureStop     = "stop"
	FailureContinue = "continue"
	FailureIsolate  = "isolate"
)

// Sandbox policy values.
const (
	SandboxNone   = "none"
	SandboxBasic  = "basic"
	SandboxStrict = "strict"
)

// Policies is the workflow-level execution policy block.
type Policies struct {
	Failure     string
	Concurrency int
	Sandbox     string
}

// Retry configures a step's retry loop.
type Retry struct {
	Max     int
	Backoff string // "linear" or "exponential"
	Delay   time.Duration
}

// Backoff strategy values.
const (
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// Step is one unit of work in the workflow.
type Step struct {
	ID              string
	Name            string
	Uses            string
	With            map[string]any
	Needs           []string
	When            string
	Timeout         time.Duration
	Retry           Retry
	ContinueOnError bool
	Outputs         map[string]string
	Env             map[string]string

	// Index is the step's position in declared order, set by the loader.
	Index int
}

// DisplayName returns the human name, falling back to the id.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// EffectiveTimeout returns the step timeout, falling back to the workflow
// default, then to fallback.
func (d *Definition) EffectiveTimeout(s *Step, fallback time.Duration) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	if d.Defaults.Timeout > 0 {
		return d.Defaults.Timeout
	}
	return fallback
}

// StepIDs returns the declared step ids in order.
func (d *Definition) StepIDs() []string {
	ids := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		ids[i] = s.ID
	}
	return ids
}

// Adapters returns the distinct `uses` references in first-appearance
// order.
func (d *Definition) Adapters() []string {
	seen := make(map[string]bool, len(d.Steps))
	var out []string
	for _, s := range d.Steps {
		if s.Uses != "" && !seen[s.Uses] {
			seen[s.Uses] = true
			out = append(out, s.Uses)
		}
	}
	return out
}
