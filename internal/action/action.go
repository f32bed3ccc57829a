// Package action defines the pluggable action provider surface: the Handler
// interface, the capability metadata handlers advertise, the per-invocation
// context and result shapes, and the Registry that resolves dotted `uses`
// references to handlers.
package action

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Capabilities describes what a handler supports. The executor consults
// Concurrent to decide whether calls may overlap; the rest is advisory
// metadata surfaced by the explanation generator.
type Capabilities struct {
	// Concurrent permits overlapping Execute calls. Handlers that leave
	// this false are serialized on a per-handler guard.
	Concurrent bool

	// Cacheable indicates identical inputs produce identical outputs.
	Cacheable bool

	// Idempotent indicates repeated execution is safe, which makes the
	// handler's errors eligible for retry without side-effect concerns.
	Idempotent bool

	// Resources names external resources the handler touches (e.g.
	// "network", "filesystem").
	Resources []string

	// Cost is a coarse cost band: "free", "low", "medium", "high".
	Cost string
}

// Context is the per-invocation environment passed to Execute. The
// context.Context given to Execute is the cancel token; handlers are
// expected to honor it cooperatively.
type Context struct {
	// WorkflowName and StepID identify the invoking step.
	WorkflowName string
	StepID       string

	// ExecutionID identifies the running workflow instance.
	ExecutionID string

	// Attempt is the 1-based attempt number for this invocation.
	Attempt int

	// Logger is a component logger scoped to the step. Never nil.
	Logger *log.Logger

	// Secrets holds the resolved secret values declared by the workflow.
	Secrets map[string]any

	// TempDir is a scratch directory the handler may write to.
	TempDir string

	// Timeout is the effective deadline for this invocation.
	Timeout time.Duration

	// Cwd is the working directory for handlers that spawn processes.
	Cwd string

	// Env is the resolved environment for the step.
	Env map[string]string

	// StepOutputs is a read-only snapshot of prior step outputs.
	StepOutputs map[string]any

	// Inputs and WorkflowContext expose the workflow's typed inputs and
	// free-form context variables.
	Inputs          map[string]any
	WorkflowContext map[string]any
}

// ResultError describes a handler failure. Code may be one of the engine's
// error codes to opt in to retry classification.
type ResultError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Metrics carries handler-reported measurements.
type Metrics struct {
	DurationMs int64 `json:"durationMs"`
}

// Result is the outcome of a single handler invocation.
type Result struct {
	Success bool         `json:"success"`
	Output  any          `json:"output,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
	Metrics *Metrics     `json:"metrics,omitempty"`
	Logs    []string     `json:"logs,omitempty"`
	Effects []string     `json:"effects,omitempty"`
}

// Handler is the interface every action provider implements. A handler
// serves a family of dotted action names declared by SupportedActions;
// the registry resolves each step's `uses` to exactly one handler.
type Handler interface {
	// Name is the unique handler identifier, e.g. "core" or "http".
	Name() string

	// Version is the handler's own version string.
	Version() string

	// SupportedActions lists the action names this handler serves: exact
	// strings ("http.request.get") or glob patterns ("http.*").
	SupportedActions() []string

	// Capabilities returns the handler's capability metadata.
	Capabilities() Capabilities

	// Execute runs one action with fully resolved input. It must respect
	// ctx cancellation. A nil error with Result.Success == false is the
	// normal failure path; returned errors indicate the handler itself
	// broke.
	Execute(ctx context.Context, action string, input map[string]any, actx *Context) (*Result, error)
}

// Predicate is an optional refinement interface: a handler whose declared
// patterns match an action may still decline it at plan time. This is the
// single extension point kept from the legacy driver-dispatch layer, so
// alternative dispatch strategies (in-process vs. sandboxed) can be added
// without another indirection.
type Predicate interface {
	CanHandle(action string) bool
}
