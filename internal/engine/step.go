package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/orbyt-dev/orbyt/internal/action"
	"github.com/orbyt-dev/orbyt/internal/errs"
	"github.com/orbyt-dev/orbyt/internal/resolve"
	"github.com/orbyt-dev/orbyt/internal/state"
	"github.com/orbyt-dev/orbyt/internal/value"
	"github.com/orbyt-dev/orbyt/internal/workflow"
)

var errCancelledBetweenRetries = errs.New(errs.CodeCancelled, "workflow cancelled between retry attempts")

// stepRunner executes one step within an execution: the when-condition
// gate, per-attempt input resolution, the retry loop with backoff, the
// timeout race, and output mapping back into the resolution scope.
type stepRunner struct {
	plan        *workflow.ValidatedPlan
	scope       *resolve.Scope
	store       *state.Store
	registry    *action.Registry
	bus         *Bus
	logger      *log.Logger
	executionID string
	baseEnv     map[string]string
	fallback    time.Duration // step timeout of last resort
}

// run drives a single step to a resting state. The returned error is the
// step's failure cause; nil means SUCCESS or SKIPPED. State-store
// transitions, scope writes, and lifecycle events are its only side
// effects.
func (r *stepRunner) run(ctx context.Context, s *workflow.Step) error {
	skip, err := r.evaluateWhen(s)
	if err != nil {
		return r.fail(s, err)
	}
	if skip {
		if uerr := r.store.UpdateStep(r.executionID, s.ID, state.StepSkipped, state.StepUpdate{}); uerr != nil {
			return uerr
		}
		r.emitStep(StepCompleted, s.ID, string(state.StepSkipped), "step skipped by condition", "")
		r.log("step skipped", "step", s.ID, "when", s.When)
		return nil
	}

	maxAttempts := s.Retry.Max
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	timeout := r.plan.Workflow.EffectiveTimeout(s, r.fallback)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt == 1 {
			r.emitStep(StepStarted, s.ID, string(state.StepRunning), "step started", "")
		}
		if err := r.store.UpdateStep(r.executionID, s.ID, state.StepRunning, state.StepUpdate{Attempts: attempt}); err != nil {
			return err
		}

		// Inputs are re-resolved each attempt so expressions that read
		// builtins or late step outputs see current values.
		input, resErr := r.resolveInputs(s)
		if resErr != nil {
			return r.fail(s, resErr)
		}

		result, timedOut, invokeErr := r.invoke(ctx, s, input, timeout, attempt)

		switch {
		case timedOut:
			toErr := errs.Newf(errs.CodeExecutionTimeout, "step %q timed out after %s", s.ID, timeout).
				WithContext("step", s.ID).
				WithContext("timeout", timeout.String())
			if uerr := r.store.UpdateStep(r.executionID, s.ID, state.StepTimeout, state.StepUpdate{Error: toErr}); uerr != nil {
				return uerr
			}
			r.emitStep(StepFailed, s.ID, string(state.StepTimeout), "step timed out", toErr.Message)
			r.log("step timed out", "step", s.ID, "timeout", timeout)
			return toErr

		case ctx.Err() != nil:
			// Workflow-level cancellation, not a local timeout.
			cErr := errs.Wrap(errs.CodeCancelled, ctx.Err(), fmt.Sprintf("step %q cancelled", s.ID))
			if uerr := r.store.UpdateStep(r.executionID, s.ID, state.StepCancelled, state.StepUpdate{Error: cErr}); uerr != nil {
				return uerr
			}
			r.emitStep(StepFailed, s.ID, string(state.StepCancelled), "step cancelled", cErr.Message)
			return cErr

		case invokeErr != nil || result == nil || !result.Success:
			stepErr := r.stepError(s, result, invokeErr)
			if errs.IsRetryable(stepErr) && attempt < maxAttempts {
				if err := r.beginRetry(ctx, s, attempt, stepErr); err != nil {
					return err
				}
				continue
			}
			return r.failFrom(s, stepErr)

		default:
			return r.succeed(s, result)
		}
	}
	return nil
}

// evaluateWhen resolves the step's condition and applies truthiness.
// Returns skip=true when the step must not run.
func (r *stepRunner) evaluateWhen(s *workflow.Step) (bool, error) {
	if s.When == "" {
		return false, nil
	}
	v, err := resolve.ResolveString(s.When, r.scope)
	if err != nil {
		return false, err
	}
	return !value.Truthy(v), nil
}

func (r *stepRunner) resolveInputs(s *workflow.Step) (map[string]any, error) {
	if s.With == nil {
		return map[string]any{}, nil
	}
	resolved, err := resolve.Resolve(s.With, r.scope)
	if err != nil {
		return nil, err
	}
	m, ok := resolved.(map[string]any)
	if !ok {
		return nil, errs.Newf(errs.CodeInternal, "step %q: resolved inputs are not a mapping", s.ID)
	}
	return m, nil
}

// invoke races the handler call against the step timeout. The handler's
// context is cancelled when the timeout fires, but the call itself is not
// forcibly killed; it is left to finish on its own goroutine.
func (r *stepRunner) invoke(ctx context.Context, s *workflow.Step, input map[string]any, timeout time.Duration, attempt int) (result *action.Result, timedOut bool, err error) {
	stepCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	actx := r.actionContext(s, attempt, timeout)

	type outcome struct {
		result *action.Result
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, ierr := r.registry.Invoke(stepCtx, s.Uses, input, actx)
		ch <- outcome{res, ierr}
	}()

	select {
	case out := <-ch:
		if out.err != nil && stepCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, true, nil
		}
		return out.result, false, out.err
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			// Parent cancelled; the caller distinguishes this from a local
			// timeout via ctx.Err().
			return nil, false, stepCtx.Err()
		}
		return nil, true, nil
	}
}

func (r *stepRunner) actionContext(s *workflow.Step, attempt int, timeout time.Duration) *action.Context {
	env := make(map[string]string, len(r.baseEnv)+len(s.Env))
	for k, v := range r.baseEnv {
		env[k] = v
	}
	for k, expr := range s.Env {
		resolved, err := resolve.ResolveString(expr, r.scope)
		if err != nil {
			r.log("step env resolution failed", "step", s.ID, "key", k, "error", err)
			continue
		}
		env[k] = value.Stringify(resolved)
	}

	return &action.Context{
		WorkflowName:    r.scope.Workflow.Name,
		StepID:          s.ID,
		ExecutionID:     r.executionID,
		Attempt:         attempt,
		Logger:          r.stepLogger(s),
		Secrets:         r.scope.Secrets,
		Timeout:         timeout,
		Env:             env,
		StepOutputs:     r.scope.StepOutputs(),
		Inputs:          r.scope.Inputs,
		WorkflowContext: r.scope.Context,
	}
}

// stepError normalizes the two failure shapes — a hard error from the
// registry and a failed Result — into one structured error with the step
// id present in the message.
func (r *stepRunner) stepError(s *workflow.Step, result *action.Result, invokeErr error) *errs.Error {
	var e *errs.Error
	switch {
	case invokeErr != nil:
		e = errs.Classify(invokeErr)
	case result != nil && result.Error != nil:
		code := errs.Code(result.Error.Code)
		if !code.Known() {
			code = errs.CodeAdapterError
		}
		e = errs.New(code, result.Error.Message)
		if result.Error.Stack != "" {
			e.WithContext("stack", result.Error.Stack)
		}
	default:
		e = errs.Newf(errs.CodeAdapterError, "action %q reported failure without detail", s.Uses)
	}

	if !strings.Contains(e.Message, s.ID) {
		e.Message = fmt.Sprintf("step %q: %s", s.ID, e.Message)
	}
	return e.WithContext("step", s.ID)
}

// beginRetry records FAILED -> RETRYING and sleeps the backoff, observing
// workflow cancellation.
func (r *stepRunner) beginRetry(ctx context.Context, s *workflow.Step, attempt int, stepErr *errs.Error) error {
	if err := r.store.UpdateStep(r.executionID, s.ID, state.StepFailed, state.StepUpdate{Error: stepErr}); err != nil {
		return err
	}
	if err := r.store.UpdateStep(r.executionID, s.ID, state.StepRetrying, state.StepUpdate{}); err != nil {
		return err
	}

	delay := backoffDelay(s.Retry.Backoff, s.Retry.Delay, attempt)
	r.log("step retrying", "step", s.ID, "attempt", attempt, "delay", delay, "error", stepErr.Message)
	return sleepOrCancel(ctx.Done(), delay)
}

func (r *stepRunner) succeed(s *workflow.Step, result *action.Result) error {
	output := mapOutputs(s, result.Output)
	r.scope.SetStepOutput(s.ID, output)

	if err := r.store.UpdateStep(r.executionID, s.ID, state.StepSuccess, state.StepUpdate{Output: output}); err != nil {
		return err
	}
	r.emitStep(StepCompleted, s.ID, string(state.StepSuccess), "step completed", "")
	r.log("step completed", "step", s.ID)
	return nil
}

func (r *stepRunner) fail(s *workflow.Step, cause error) error {
	e := errs.Classify(cause)
	if !strings.Contains(e.Message, s.ID) {
		e.Message = fmt.Sprintf("step %q: %s", s.ID, e.Message)
	}
	return r.failFrom(s, e)
}

func (r *stepRunner) failFrom(s *workflow.Step, e *errs.Error) error {
	snap, serr := r.store.StepState(r.executionID, s.ID)
	if serr == nil && snap.Status == state.StepPending {
		// The step never started (e.g. when-condition blew up); it still
		// has to reach RUNNING before FAILED is legal.
		if uerr := r.store.UpdateStep(r.executionID, s.ID, state.StepRunning, state.StepUpdate{Attempts: 1}); uerr != nil {
			return uerr
		}
	}
	if uerr := r.store.UpdateStep(r.executionID, s.ID, state.StepFailed, state.StepUpdate{Error: e}); uerr != nil {
		return uerr
	}
	r.emitStep(StepFailed, s.ID, string(state.StepFailed), "step failed", e.Message)
	r.log("step failed", "step", s.ID, "error", e.Message)
	return e
}

// mapOutputs projects the raw action output through the step's declared
// alias -> dotted-path mapping. Undefined paths map to nil rather than
// failing; with no declared outputs the raw output is recorded as-is.
func mapOutputs(s *workflow.Step, raw any) any {
	if len(s.Outputs) == 0 {
		return raw
	}
	mapped := make(map[string]any, len(s.Outputs))
	for alias, path := range s.Outputs {
		v, _ := value.Get(raw, path)
		mapped[alias] = v
	}
	return mapped
}

func (r *stepRunner) emitStep(t EventType, stepID, status, msg, errMsg string) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(Event{
		Type:         t,
		ExecutionID:  r.executionID,
		WorkflowName: r.scope.Workflow.Name,
		StepID:       stepID,
		Status:       status,
		Message:      fmt.Sprintf("%s: %s", stepID, msg),
		Error:        errMsg,
	})
}

func (r *stepRunner) stepLogger(s *workflow.Step) *log.Logger {
	if r.logger == nil {
		return log.New(io.Discard)
	}
	return r.logger.With("step", s.ID)
}

func (r *stepRunner) log(msg string, kvs ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Debug(msg, kvs...)
}
