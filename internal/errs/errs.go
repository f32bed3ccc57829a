// Package errs defines Orbyt's structured error taxonomy.
//
// Every error the engine raises carries a stable code of the form
// ORB-<category>-<n>, a severity that drives execution control, an optional
// corrective hint, and an optional path into the workflow object. Rendering
// is left to callers (the CLI formatter); this package only produces data.
package errs

import (
	"fmt"
	"sort"
	"strings"
)

// Category identifies the broad class of an error code. It is the single
// letter embedded in the ORB-<cat>-<n> code string.
type Category string

const (
	// CategorySchema covers structural problems in the raw workflow object
	// (missing fields, type mismatches, bad enums).
	CategorySchema Category = "S"

	// CategoryValidation covers cross-reference problems detected at plan
	// time (duplicate IDs, unknown steps, cycles).
	CategoryValidation Category = "V"

	// CategoryExecution covers failures raised while steps run (timeouts,
	// adapter errors).
	CategoryExecution Category = "E"

	// CategoryRuntime covers engine-level faults (permission violations,
	// resource exhaustion, internal bugs).
	CategoryRuntime Category = "R"
)

// Severity ranks how serious an error is. The severity alone determines the
// execution-control decision via ControlFor.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityFatal    Severity = "FATAL"
	SeverityError    Severity = "ERROR"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Control is the execution-control decision derived from a severity.
type Control string

const (
	// ControlStopWorkflow aborts the entire workflow execution.
	ControlStopWorkflow Control = "STOP_WORKFLOW"

	// ControlStopStep fails the current step but lets the workflow continue
	// subject to its failure policy.
	ControlStopStep Control = "STOP_STEP"

	// ControlContinue records the error and carries on.
	ControlContinue Control = "CONTINUE"
)

// ControlFor maps a severity to its execution-control decision:
// CRITICAL/FATAL/ERROR stop the workflow, MEDIUM stops the step, and
// LOW/WARNING/INFO continue. Unknown severities stop the workflow so a
// mistyped severity can never weaken error handling.
func ControlFor(sev Severity) Control {
	switch sev {
	case SeverityCritical, SeverityFatal, SeverityError:
		return ControlStopWorkflow
	case SeverityMedium:
		return ControlStopStep
	case SeverityLow, SeverityWarning, SeverityInfo:
		return ControlContinue
	default:
		return ControlStopWorkflow
	}
}

// Error is the single structured error type used across the engine.
// The zero value is not useful; construct instances with New, Newf, or Wrap.
type Error struct {
	// Code is the stable ORB-<cat>-<n> identifier.
	Code Code

	// Severity drives execution control. Defaults to the code's registered
	// severity but may be overridden per instance (e.g. a handler demoting
	// an adapter error to a warning).
	Severity Severity

	// Message is the human-readable description.
	Message string

	// Hint, when non-empty, names the canonical corrective action.
	Hint string

	// Path points into the workflow object, e.g. "workflow.steps[2].with.url".
	Path string

	// Context carries structured detail: the offending field, the list of
	// valid alternatives, a nearest-match suggestion, a cycle path.
	Context map[string]any

	cause error
}

// New creates an Error with the given code and message. Severity and hint
// are taken from the code's registration.
func New(code Code, message string) *Error {
	info := lookup(code)
	return &Error{
		Code:     code,
		Severity: info.severity,
		Message:  message,
		Hint:     info.hint,
	}
}

// Newf creates an Error with a formatted message. See New.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates an Error that preserves cause for errors.Is / errors.As
// chains. The message should describe the operation that failed; cause's
// message is appended when it is not already contained.
func Wrap(code Code, cause error, message string) *Error {
	e := New(code, message)
	e.cause = cause
	if cause != nil && !strings.Contains(message, cause.Error()) {
		e.Message = message + ": " + cause.Error()
	}
	return e
}

// Error implements the error interface, rendering "[CODE] message".
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Category returns the category letter embedded in the error's code.
func (e *Error) Category() Category { return e.Code.Category() }

// Control returns the execution-control decision for this error's severity.
func (e *Error) Control() Control { return ControlFor(e.Severity) }

// ExitCode returns the process exit code registered for this error's code.
func (e *Error) ExitCode() int { return lookup(e.Code).exitCode }

// WithPath returns e with Path set. The receiver is returned to allow
// chained construction.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithSeverity returns e with Severity overridden.
func (e *Error) WithSeverity(sev Severity) *Error {
	e.Severity = sev
	return e
}

// WithContext returns e with key set in its context bag, allocating the bag
// on first use.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ContextKeys returns the keys of the context bag in sorted order. Useful
// for deterministic rendering and tests.
func (e *Error) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// As returns err as an *Error when it is one (directly or via wrapping with
// fmt.Errorf %w), or nil otherwise.
func As(err error) *Error {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		err = u.Unwrap()
	}
	return nil
}

// CodeOf returns the code carried by err, or the empty code when err is not
// a structured Error.
func CodeOf(err error) Code {
	if e := As(err); e != nil {
		return e.Code
	}
	return ""
}

// ExitCodeFor returns the process exit code for err: 0 for nil, the
// registered exit code for a structured Error, and ExitInternal otherwise.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if e := As(err); e != nil {
		return e.ExitCode()
	}
	return ExitInternal
}

// IsRetryable reports whether err carries one of the codes a step executor
// may retry: EXECUTION_TIMEOUT is excluded by the executor itself (a step
// timeout is terminal), but adapter errors and resource exhaustion returned
// by handlers opt in to the retry loop.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeExecutionTimeout, CodeAdapterError, CodeResourceExhausted:
		return true
	default:
		return false
	}
}
