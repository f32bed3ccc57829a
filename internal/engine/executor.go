package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/orbyt-dev/orbyt/internal/action"
	"github.com/orbyt-dev/orbyt/internal/errs"
	"github.com/orbyt-dev/orbyt/internal/resolve"
	"github.com/orbyt-dev/orbyt/internal/state"
	"github.com/orbyt-dev/orbyt/internal/value"
	"github.com/orbyt-dev/orbyt/internal/workflow"
)

const defaultStepTimeout = 5 * time.Minute

// Executor drives ValidatedPlans phase by phase. It owns the execution
// records in its state store; everything else reads through store
// accessors.
type Executor struct {
	registry *action.Registry
	store    *state.Store
	bus      *Bus
	logger   *log.Logger

	stepTimeout    time.Duration
	maxConcurrency int
}

// ExecutorOption configures the Executor.
type ExecutorOption func(*Executor)

// WithLogger attaches a structured logger. When nil the executor runs
// silently.
func WithLogger(logger *log.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithBus sets the lifecycle event bus. When nil no events are emitted.
func WithBus(bus *Bus) ExecutorOption {
	return func(e *Executor) { e.bus = bus }
}

// WithStore overrides the execution state store, letting embedders share
// one store across executors.
func WithStore(store *state.Store) ExecutorOption {
	return func(e *Executor) { e.store = store }
}

// WithDefaultStepTimeout sets the step timeout of last resort, used when
// neither the step nor the workflow defaults declare one.
func WithDefaultStepTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.stepTimeout = d }
}

// WithMaxConcurrency caps in-flight steps per phase regardless of workflow
// policy. Zero means no executor-level cap.
func WithMaxConcurrency(n int) ExecutorOption {
	return func(e *Executor) { e.maxConcurrency = n }
}

// NewExecutor creates an executor over the given action registry.
func NewExecutor(registry *action.Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:    registry,
		stepTimeout: defaultStepTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = state.NewStore()
	}
	return e
}

// Store exposes the execution state store for read access.
func (e *Executor) Store() *state.Store { return e.store }

// RunOptions are the caller-supplied parameters of one execution.
type RunOptions struct {
	// Inputs are the values for the workflow's declared inputs.
	Inputs map[string]any

	// Env is copied into the scope's env namespace and the handlers'
	// process environment view.
	Env map[string]string

	// Secrets are the resolved secret values for the declared keys.
	Secrets map[string]any

	// Context merges over the workflow's context block. Reserved keys are
	// stripped, not rejected.
	Context map[string]any

	// Timeout bounds the whole execution. Zero means no workflow deadline.
	Timeout time.Duration

	// ContinueOnError makes every step failure non-fatal, regardless of
	// workflow policy.
	ContinueOnError bool

	// TriggeredBy names the actor that started the run.
	TriggeredBy string
}

// StepResult is the per-step slice of a workflow Result.
type StepResult struct {
	Status   string        `json:"status"`
	Attempts int           `json:"attempts,omitempty"`
	Duration time.Duration `json:"duration"`
	Output   any           `json:"output,omitempty"`
	Error    *errs.Error   `json:"error,omitempty"`
}

// ResultMetadata aggregates step counts.
type ResultMetadata struct {
	TotalSteps      int `json:"totalSteps"`
	SuccessfulSteps int `json:"successfulSteps"`
	FailedSteps     int `json:"failedSteps"`
	SkippedSteps    int `json:"skippedSteps"`
	Phases          int `json:"phases"`
}

// Result is the aggregate outcome of one execution.
type Result struct {
	WorkflowName string                `json:"workflowName"`
	ExecutionID  string                `json:"executionId"`
	Status       state.WorkflowStatus  `json:"status"`
	StepResults  map[string]StepResult `json:"-"`
	StartedAt    time.Time             `json:"startedAt"`
	CompletedAt  time.Time             `json:"completedAt"`
	Duration     time.Duration         `json:"duration"`
	Error        *errs.Error           `json:"error,omitempty"`
	Outputs      map[string]any        `json:"outputs,omitempty"`
	Metadata     ResultMetadata        `json:"metadata"`

	// stepOrder preserves declared order for serialization.
	stepOrder []string
}

// Run executes a validated plan to a terminal workflow status. The
// returned Result is non-nil even on failure, unless setup itself (scope
// construction, store init) broke; the error mirrors Result.Error so
// callers can use either.
func (e *Executor) Run(ctx context.Context, plan *workflow.ValidatedPlan, opts RunOptions) (*Result, error) {
	executionID := uuid.NewString()
	def := plan.Workflow

	scope, err := e.buildScope(def, executionID, opts)
	if err != nil {
		return nil, err
	}

	if err := e.store.Init(executionID, def.Metadata.Name, def.StepIDs(), value.DeepCopy(scope.Context).(map[string]any)); err != nil {
		return nil, err
	}
	if err := e.store.UpdateWorkflow(executionID, state.WorkflowRunning, nil); err != nil {
		return nil, err
	}
	e.emit(Event{
		Type:         WorkflowStarted,
		ExecutionID:  executionID,
		WorkflowName: def.Metadata.Name,
		Status:       string(state.WorkflowRunning),
		Message:      fmt.Sprintf("workflow %q started", def.Metadata.Name),
	})
	e.log("workflow started", "workflow", def.Metadata.Name, "execution", executionID, "phases", len(plan.Phases()))

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	runner := &stepRunner{
		plan:        plan,
		scope:       scope,
		store:       e.store,
		registry:    e.registry,
		bus:         e.bus,
		logger:      e.logger,
		executionID: executionID,
		baseEnv:     opts.Env,
		fallback:    e.stepTimeout,
	}

	var firstFatal *errs.Error
phases:
	for _, phase := range plan.Phases() {
		if runCtx.Err() != nil {
			break
		}

		g, phaseCtx := errgroup.WithContext(runCtx)
		g.SetLimit(e.phaseLimit(def, len(phase)))
		for _, stepID := range phase {
			step := plan.Step(stepID)
			g.Go(func() error {
				// Step failures are recorded in the store; returning nil
				// keeps siblings in the phase running (all-settled).
				_ = runner.run(phaseCtx, step)
				return nil
			})
		}
		_ = g.Wait()

		for _, stepID := range phase {
			snap, serr := e.store.StepState(executionID, stepID)
			if serr != nil {
				return nil, serr
			}
			if snap.Status != state.StepFailed && snap.Status != state.StepTimeout {
				continue
			}
			if e.continueAllowed(def, plan.Step(stepID), opts) {
				e.log("step failure tolerated", "step", stepID, "status", snap.Status)
				continue
			}
			firstFatal = snap.Error
			if firstFatal == nil {
				firstFatal = errs.Newf(errs.CodeStepFailed, "step %q failed", stepID)
			}
			cancel()
			break phases
		}
	}

	externalCancel := ctx.Err() != nil && firstFatal == nil
	return e.finish(runCtx, plan, executionID, scope, firstFatal, externalCancel)
}

// finish settles never-started steps, computes the terminal workflow
// status, emits the closing event, and assembles the aggregate result.
func (e *Executor) finish(runCtx context.Context, plan *workflow.ValidatedPlan, executionID string, scope *resolve.Scope, firstFatal *errs.Error, externalCancel bool) (*Result, error) {
	def := plan.Workflow
	deadlineFired := runCtx.Err() == context.DeadlineExceeded

	// Steps the cancel reached before they started.
	for _, id := range def.StepIDs() {
		snap, err := e.store.StepState(executionID, id)
		if err != nil {
			return nil, err
		}
		if snap.Status == state.StepPending {
			if err := e.store.UpdateStep(executionID, id, state.StepCancelled, state.StepUpdate{}); err != nil {
				return nil, err
			}
		}
	}

	counters, err := e.store.CountersOf(executionID)
	if err != nil {
		return nil, err
	}

	var status state.WorkflowStatus
	var wfErr *errs.Error
	switch {
	case deadlineFired:
		status = state.WorkflowTimeout
		wfErr = errs.Newf(errs.CodeExecutionTimeout, "workflow %q exceeded its deadline", def.Metadata.Name)
	case firstFatal != nil:
		status = state.WorkflowFailed
		wfErr = firstFatal
	case externalCancel:
		status = state.WorkflowCancelled
		wfErr = errs.Newf(errs.CodeCancelled, "workflow %q was cancelled", def.Metadata.Name)
	case counters.Failed > 0:
		status = state.WorkflowPartial
	default:
		status = state.WorkflowCompleted
	}

	if err := e.store.UpdateWorkflow(executionID, status, wfErr); err != nil {
		return nil, err
	}

	eventType := WorkflowCompleted
	if status == state.WorkflowFailed || status == state.WorkflowTimeout {
		eventType = WorkflowFailed
	}
	ev := Event{
		Type:         eventType,
		ExecutionID:  executionID,
		WorkflowName: def.Metadata.Name,
		Status:       string(status),
		Message:      fmt.Sprintf("workflow %q finished with status %s", def.Metadata.Name, status),
	}
	if wfErr != nil {
		ev.Error = wfErr.Message
	}
	e.emit(ev)
	e.log("workflow finished", "workflow", def.Metadata.Name, "execution", executionID, "status", status)

	return e.buildResult(plan, executionID, scope, status, wfErr, counters)
}

func (e *Executor) buildResult(plan *workflow.ValidatedPlan, executionID string, scope *resolve.Scope, status state.WorkflowStatus, wfErr *errs.Error, counters state.Counters) (*Result, error) {
	def := plan.Workflow
	start, end, err := e.store.Times(executionID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		WorkflowName: def.Metadata.Name,
		ExecutionID:  executionID,
		Status:       status,
		StepResults:  make(map[string]StepResult, len(def.Steps)),
		StartedAt:    start,
		CompletedAt:  end,
		Duration:     end.Sub(start),
		Error:        wfErr,
		Metadata: ResultMetadata{
			TotalSteps:      counters.Total,
			SuccessfulSteps: counters.Completed,
			FailedSteps:     counters.Failed,
			SkippedSteps:    counters.Skipped,
			Phases:          len(plan.Phases()),
		},
		stepOrder: def.StepIDs(),
	}

	for _, id := range res.stepOrder {
		snap, err := e.store.StepState(executionID, id)
		if err != nil {
			return nil, err
		}
		res.StepResults[id] = StepResult{
			Status:   string(snap.Status),
			Attempts: snap.Attempts,
			Duration: snap.Duration,
			Output:   snap.Output,
			Error:    snap.Error,
		}
	}

	if len(def.Outputs) > 0 && (status == state.WorkflowCompleted || status == state.WorkflowPartial) {
		res.Outputs = make(map[string]any, len(def.Outputs))
		for alias, expr := range def.Outputs {
			v, rerr := resolve.ResolveString(expr, scope)
			if rerr != nil {
				e.log("workflow output resolution failed", "output", alias, "error", rerr)
				continue
			}
			res.Outputs[alias] = v
		}
	}

	if res.Error != nil {
		return res, res.Error
	}
	return res, nil
}

// buildScope assembles the resolution scope: declared inputs with defaults
// applied, env, secrets, workflow/run identity, and the context block with
// caller overrides merged key by key after sanitization.
func (e *Executor) buildScope(def *workflow.Definition, executionID string, opts RunOptions) (*resolve.Scope, error) {
	scope := resolve.NewScope()

	for name, spec := range def.Inputs {
		v, supplied := opts.Inputs[name]
		switch {
		case supplied:
			scope.Inputs[name] = value.DeepCopy(v)
		case spec.Default != nil:
			scope.Inputs[name] = value.DeepCopy(spec.Default)
		case spec.Required:
			return nil, errs.Newf(errs.CodeMissingField, "required input %q was not supplied", name).
				WithPath("inputs." + name).
				WithContext("input", name)
		}
	}

	for k, v := range opts.Env {
		scope.Env[k] = v
	}
	for k, v := range opts.Secrets {
		scope.Secrets[k] = v
	}

	for k, v := range def.Context {
		scope.Context[k] = value.DeepCopy(v)
	}
	refused := value.MergeSanitized(scope.Context, opts.Context, func(key string) bool {
		return isReservedContextKey(key)
	})
	for _, key := range refused {
		e.log("caller context key stripped", "key", key)
	}

	// Engine-internal execution record. It lives in the metadata namespace
	// under the reserved prefix, which the validator refuses in documents
	// and the context merge strips from caller input, so workflow authors
	// cannot shadow it.
	scope.Metadata[workflow.ReservedPrefix+"execution"] = map[string]any{
		"identity":    opts.TriggeredBy,
		"ownership":   def.Metadata.Owner,
		"executionId": executionID,
		"startedAt":   time.Now().UTC().Format(time.RFC3339),
	}

	scope.Workflow = resolve.WorkflowInfo{
		ID:          def.Metadata.Name,
		Name:        def.Metadata.Name,
		Version:     def.Metadata.Version,
		Description: def.Metadata.Description,
		Tags:        def.Metadata.Tags,
		Owner:       def.Metadata.Owner,
	}
	scope.Run = resolve.RunInfo{
		ID:          executionID,
		Timestamp:   time.Now().UTC(),
		Attempt:     1,
		TriggeredBy: opts.TriggeredBy,
	}
	return scope, nil
}

func isReservedContextKey(key string) bool {
	return len(key) > 0 && (key[0] == '_' || hasReservedPrefix(key))
}

func hasReservedPrefix(key string) bool {
	const prefix = workflow.ReservedPrefix
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

// continueAllowed applies the three continue-on-error levels: run option,
// workflow failure policy, then the step's own flag.
func (e *Executor) continueAllowed(def *workflow.Definition, s *workflow.Step, opts RunOptions) bool {
	if opts.ContinueOnError {
		return true
	}
	if def.Policies.Failure == workflow.FailureContinue || def.Policies.Failure == workflow.FailureIsolate {
		return true
	}
	return s != nil && s.ContinueOnError
}

func (e *Executor) phaseLimit(def *workflow.Definition, phaseSize int) int {
	limit := phaseSize
	if def.Policies.Concurrency > 0 && def.Policies.Concurrency < limit {
		limit = def.Policies.Concurrency
	}
	if e.maxConcurrency > 0 && e.maxConcurrency < limit {
		limit = e.maxConcurrency
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (e *Executor) emit(ev Event) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(ev)
}

func (e *Executor) log(msg string, kvs ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Info(msg, kvs...)
}

// MarshalJSON serializes stepResults as an ordered object keyed by stepId,
// in declared step order.
func (r *Result) MarshalJSON() ([]byte, error) {
	type alias Result
	base, err := json.Marshal((*alias)(r))
	if err != nil {
		return nil, err
	}

	var steps bytes.Buffer
	steps.WriteByte('{')
	for i, id := range r.stepOrder {
		if i > 0 {
			steps.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.StepResults[id])
		if err != nil {
			return nil, err
		}
		steps.Write(key)
		steps.WriteByte(':')
		steps.Write(val)
	}
	steps.WriteByte('}')

	// Splice the ordered stepResults into the base object.
	out := bytes.TrimSuffix(base, []byte("}"))
	var buf bytes.Buffer
	buf.Write(out)
	if !bytes.HasSuffix(out, []byte("{")) {
		buf.WriteByte(',')
	}
	buf.WriteString(`"stepResults":`)
	buf.Write(steps.Bytes())
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
