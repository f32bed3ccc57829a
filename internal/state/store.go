package state

import (
	"sync"
	"time"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

// StepSnapshot is the read view of a single step's state entry.
type StepSnapshot struct {
	Status    StepStatus
	Attempts  int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     *errs.Error
	Output    any
	UpdatedAt time.Time
}

// Counters aggregates step outcomes for an execution. Recomputed on every
// step transition.
type Counters struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
}

// StepUpdate carries the optional fields of an UpdateStep call. Zero values
// leave the corresponding entry field untouched.
type StepUpdate struct {
	Error    *errs.Error
	Output   any
	Attempts int
}

// stepEntry pairs a step's machine with its mutable record.
type stepEntry struct {
	machine   *StepMachine
	attempts  int
	startTime time.Time
	endTime   time.Time
	err       *errs.Error
	output    any
	updatedAt time.Time
}

// record is the per-execution mutable state: the workflow machine, one
// entry per step, aggregate counters and timestamps.
type record struct {
	workflowID string
	workflow   *WorkflowMachine
	steps      map[string]*stepEntry
	stepOrder  []string
	counters   Counters
	startTime  time.Time
	endTime    time.Time
	wfErr      *errs.Error
	snapshot   map[string]any
}

// Store holds the execution records, keyed by execution id. All mutations
// funnel through the workflow executor; concurrent step completions within
// a phase are serialized here by a single lock (single-writer discipline).
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

// Init creates the record for an execution with every step PENDING and the
// workflow QUEUED. snapshot is an opaque copy of the initial resolution
// context, kept for post-mortem inspection. Re-initializing an existing
// execution id is an internal error.
func (s *Store) Init(executionID, workflowID string, stepIDs []string, snapshot map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[executionID]; exists {
		return errs.Newf(errs.CodeInternal, "execution %q already initialized", executionID)
	}

	rec := &record{
		workflowID: workflowID,
		workflow:   NewWorkflowMachine(),
		steps:      make(map[string]*stepEntry, len(stepIDs)),
		stepOrder:  append([]string(nil), stepIDs...),
		counters:   Counters{Total: len(stepIDs)},
		snapshot:   snapshot,
	}
	for _, id := range stepIDs {
		rec.steps[id] = &stepEntry{machine: NewStepMachine(), updatedAt: time.Now()}
	}
	s.records[executionID] = rec
	return nil
}

// UpdateWorkflow transitions the execution's workflow machine. The start
// timestamp is set on the first RUNNING transition and the end timestamp on
// the first terminal one.
func (s *Store) UpdateWorkflow(executionID string, status WorkflowStatus, wfErr *errs.Error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(executionID)
	if err != nil {
		return err
	}
	if err := rec.workflow.Transition(status, ""); err != nil {
		return err
	}
	now := time.Now()
	if status == WorkflowRunning && rec.startTime.IsZero() {
		rec.startTime = now
	}
	if workflowTerminal[status] && rec.endTime.IsZero() {
		rec.endTime = now
	}
	if wfErr != nil {
		rec.wfErr = wfErr
	}
	return nil
}

// UpdateStep transitions a step's machine and applies the update fields.
// Timestamps follow the lifecycle: startTime is set on the first RUNNING,
// endTime when the step comes to rest (terminal or FAILED) and cleared
// again when a retry re-enters RUNNING. Counters are recomputed on every
// call.
func (s *Store) UpdateStep(executionID, stepID string, status StepStatus, update StepUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(executionID)
	if err != nil {
		return err
	}
	entry, ok := rec.steps[stepID]
	if !ok {
		return errs.Newf(errs.CodeInternal, "execution %q has no step %q", executionID, stepID)
	}

	reason := ""
	if update.Error != nil {
		reason = update.Error.Message
	}
	if err := entry.machine.Transition(status, reason); err != nil {
		return err
	}

	now := time.Now()
	entry.updatedAt = now
	switch {
	case status == StepRunning:
		if entry.startTime.IsZero() {
			entry.startTime = now
		}
		entry.endTime = time.Time{}
	case stepTerminal[status] || status == StepFailed:
		if entry.endTime.IsZero() {
			entry.endTime = now
		}
	}

	if update.Error != nil {
		entry.err = update.Error
	}
	if update.Output != nil {
		entry.output = update.Output
	}
	if update.Attempts > 0 {
		entry.attempts = update.Attempts
	}

	rec.recount()
	return nil
}

// StepState returns the snapshot for one step.
func (s *Store) StepState(executionID, stepID string) (StepSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(executionID)
	if err != nil {
		return StepSnapshot{}, err
	}
	entry, ok := rec.steps[stepID]
	if !ok {
		return StepSnapshot{}, errs.Newf(errs.CodeInternal, "execution %q has no step %q", executionID, stepID)
	}
	return entry.snapshot(), nil
}

// StepHistory returns the transition history for one step.
func (s *Store) StepHistory(executionID, stepID string) ([]Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(executionID)
	if err != nil {
		return nil, err
	}
	entry, ok := rec.steps[stepID]
	if !ok {
		return nil, errs.Newf(errs.CodeInternal, "execution %q has no step %q", executionID, stepID)
	}
	return entry.machine.History(), nil
}

// IsStepTerminal reports whether the step has reached a terminal state.
// Unknown executions or steps report false.
func (s *Store) IsStepTerminal(executionID, stepID string) bool {
	snap, err := s.StepState(executionID, stepID)
	return err == nil && stepTerminal[snap.Status]
}

// IsStepSuccess reports whether the step finished in SUCCESS.
func (s *Store) IsStepSuccess(executionID, stepID string) bool {
	snap, err := s.StepState(executionID, stepID)
	return err == nil && snap.Status == StepSuccess
}

// FailedSteps returns the ids of steps in FAILED or TIMEOUT, in declared
// order.
func (s *Store) FailedSteps(executionID string) []string {
	return s.stepsWhere(executionID, func(st StepStatus) bool {
		return st == StepFailed || st == StepTimeout
	})
}

// CompletedSteps returns the ids of steps in SUCCESS, in declared order.
func (s *Store) CompletedSteps(executionID string) []string {
	return s.stepsWhere(executionID, func(st StepStatus) bool {
		return st == StepSuccess
	})
}

// WorkflowStatusOf returns the current workflow status for the execution.
func (s *Store) WorkflowStatusOf(executionID string) (WorkflowStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(executionID)
	if err != nil {
		return "", err
	}
	return rec.workflow.Current(), nil
}

// CountersOf returns the aggregate counters for the execution.
func (s *Store) CountersOf(executionID string) (Counters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(executionID)
	if err != nil {
		return Counters{}, err
	}
	return rec.counters, nil
}

// Times returns the workflow start and end timestamps. The end time is zero
// until a terminal workflow transition.
func (s *Store) Times(executionID string) (start, end time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, rerr := s.record(executionID)
	if rerr != nil {
		return time.Time{}, time.Time{}, rerr
	}
	return rec.startTime, rec.endTime, nil
}

// ExecutionIDs enumerates all known execution ids, in no particular order.
func (s *Store) ExecutionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) stepsWhere(executionID string, match func(StepStatus) bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(executionID)
	if err != nil {
		return nil
	}
	var out []string
	for _, id := range rec.stepOrder {
		if match(rec.steps[id].machine.Current()) {
			out = append(out, id)
		}
	}
	return out
}

// record must be called with the lock held.
func (s *Store) record(executionID string) (*record, error) {
	rec, ok := s.records[executionID]
	if !ok {
		return nil, errs.Newf(errs.CodeInternal, "unknown execution %q", executionID)
	}
	return rec, nil
}

func (r *record) recount() {
	c := Counters{Total: len(r.steps)}
	for _, entry := range r.steps {
		switch entry.machine.Current() {
		case StepSuccess:
			c.Completed++
		case StepFailed, StepTimeout:
			c.Failed++
		case StepSkipped:
			c.Skipped++
		}
	}
	r.counters = c
}

func (e *stepEntry) snapshot() StepSnapshot {
	snap := StepSnapshot{
		Status:    e.machine.Current(),
		Attempts:  e.attempts,
		StartTime: e.startTime,
		EndTime:   e.endTime,
		Error:     e.err,
		Output:    e.output,
		UpdatedAt: e.updatedAt,
	}
	if !e.startTime.IsZero() && !e.endTime.IsZero() {
		snap.Duration = e.endTime.Sub(e.startTime)
	}
	return snap
}
