package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orbyt-dev/orbyt/internal/errs"
	"github.com/orbyt-dev/orbyt/internal/value"
)

// coreHandler implements the built-in core.* actions that ship with the
// engine: control-flow and debugging primitives that need no external
// resources.
type coreHandler struct{}

// RegisterBuiltins installs the built-in handlers into the registry.
func RegisterBuiltins(r *Registry) {
	r.Register(&coreHandler{})
}

func (h *coreHandler) Name() string    { return "core" }
func (h *coreHandler) Version() string { return "1.0.0" }

func (h *coreHandler) SupportedActions() []string {
	return []string{"core.noop", "core.echo", "core.sleep", "core.fail", "core.log"}
}

func (h *coreHandler) Capabilities() Capabilities {
	return Capabilities{
		Concurrent: true,
		Cacheable:  false,
		Idempotent: true,
		Cost:       "free",
	}
}

func (h *coreHandler) Execute(ctx context.Context, action string, input map[string]any, actx *Context) (*Result, error) {
	start := time.Now()
	var (
		res *Result
		err error
	)
	switch action {
	case "core.noop":
		res = &Result{Success: true, Output: map[string]any{}}
	case "core.echo":
		res = &Result{Success: true, Output: value.DeepCopy(input)}
	case "core.sleep":
		res, err = h.sleep(ctx, input)
	case "core.fail":
		res = h.fail(input)
	case "core.log":
		res = h.log(input, actx)
	default:
		return nil, errs.Newf(errs.CodeUnknownAdapter, "core handler has no action %q", action)
	}
	if res != nil {
		res.Metrics = &Metrics{DurationMs: time.Since(start).Milliseconds()}
	}
	return res, err
}

// sleep blocks for the requested duration or until the step is cancelled.
// Accepts "duration" as a Go duration string or a number of milliseconds.
func (h *coreHandler) sleep(ctx context.Context, input map[string]any) (*Result, error) {
	d, err := sleepDuration(input["duration"])
	if err != nil {
		return &Result{Success: false, Error: &ResultError{
			Message: err.Error(),
			Code:    string(errs.CodeSchemaParse),
		}}, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return &Result{Success: true, Output: map[string]any{"sleptMs": d.Milliseconds()}}, nil
	}
}

// fail always fails, with a configurable message and code. Used by test
// workflows to exercise retry and continue-on-error paths.
func (h *coreHandler) fail(input map[string]any) *Result {
	msg := "core.fail invoked"
	if m, ok := input["message"].(string); ok && m != "" {
		msg = m
	}
	code := string(errs.CodeStepFailed)
	if c, ok := input["code"].(string); ok && c != "" {
		code = c
	}
	return &Result{Success: false, Error: &ResultError{Message: msg, Code: code}}
}

// log writes the message to the step logger and echoes it in the result's
// log lines.
func (h *coreHandler) log(input map[string]any, actx *Context) *Result {
	msg := value.Stringify(input["message"])
	level := "info"
	if l, ok := input["level"].(string); ok && l != "" {
		level = strings.ToLower(l)
	}

	if actx != nil && actx.Logger != nil {
		switch level {
		case "debug":
			actx.Logger.Debug(msg)
		case "warn", "warning":
			actx.Logger.Warn(msg)
		case "error":
			actx.Logger.Error(msg)
		default:
			actx.Logger.Info(msg)
		}
	}
	return &Result{
		Success: true,
		Output:  map[string]any{"message": msg, "level": level},
		Logs:    []string{msg},
	}
}

func sleepDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, fmt.Errorf("core.sleep requires a duration input")
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("core.sleep: invalid duration %q", d)
		}
		if parsed < 0 {
			return 0, fmt.Errorf("core.sleep: duration must not be negative")
		}
		return parsed, nil
	case int:
		return time.Duration(d) * time.Millisecond, nil
	case int64:
		return time.Duration(d) * time.Millisecond, nil
	case float64:
		return time.Duration(d * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("core.sleep: unsupported duration type %T", v)
	}
}
