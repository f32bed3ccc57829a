// Package state enforces the step and workflow lifecycles. Status fields
// are never mutated directly: every change goes through a state machine
// that rejects transitions outside its table and records an append-only
// history, making illegal histories unrepresentable.
package state

import (
	"time"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

// StepStatus enumerates the step lifecycle states.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepSuccess   StepStatus = "SUCCESS"
	StepFailed    StepStatus = "FAILED"
	StepTimeout   StepStatus = "TIMEOUT"
	StepCancelled StepStatus = "CANCELLED"
	StepSkipped   StepStatus = "SKIPPED"
	StepRetrying  StepStatus = "RETRYING"
)

// WorkflowStatus enumerates the workflow lifecycle states.
type WorkflowStatus string

const (
	WorkflowQueued    WorkflowStatus = "QUEUED"
	WorkflowRunning   WorkflowStatus = "RUNNING"
	WorkflowCompleted WorkflowStatus = "COMPLETED"
	WorkflowFailed    WorkflowStatus = "FAILED"
	WorkflowPartial   WorkflowStatus = "PARTIAL"
	WorkflowTimeout   WorkflowStatus = "TIMEOUT"
	WorkflowCancelled WorkflowStatus = "CANCELLED"
	WorkflowPaused    WorkflowStatus = "PAUSED"
)

// stepTransitions is the legal step transition table. FAILED is deliberately
// not terminal: it may re-enter the retry loop via RETRYING.
var stepTransitions = map[StepStatus][]StepStatus{
	StepPending:  {StepRunning, StepSkipped, StepCancelled},
	StepRunning:  {StepSuccess, StepFailed, StepTimeout, StepCancelled, StepSkipped},
	StepFailed:   {StepRetrying},
	StepRetrying: {StepRunning},
}

// workflowTransitions is the legal workflow transition table. PAUSED exists
// for embedders that drive the machine directly; the executor itself never
// enters it.
var workflowTransitions = map[WorkflowStatus][]WorkflowStatus{
	WorkflowQueued:  {WorkflowRunning, WorkflowCancelled},
	WorkflowRunning: {WorkflowCompleted, WorkflowFailed, WorkflowPartial, WorkflowTimeout, WorkflowCancelled, WorkflowPaused},
	WorkflowPaused:  {WorkflowRunning, WorkflowCancelled},
}

// stepTerminal is the terminal subset of step states: no outgoing
// transitions, ever.
var stepTerminal = map[StepStatus]bool{
	StepSuccess:   true,
	StepSkipped:   true,
	StepTimeout:   true,
	StepCancelled: true,
}

// workflowTerminal is the terminal subset of workflow states.
var workflowTerminal = map[WorkflowStatus]bool{
	WorkflowCompleted: true,
	WorkflowFailed:    true,
	WorkflowPartial:   true,
	WorkflowTimeout:   true,
	WorkflowCancelled: true,
}

// IsStepTerminal reports whether s is a terminal step state.
func IsStepTerminal(s StepStatus) bool { return stepTerminal[s] }

// IsWorkflowTerminal reports whether s is a terminal workflow state.
func IsWorkflowTerminal(s WorkflowStatus) bool { return workflowTerminal[s] }

// Transition records one applied state change for post-mortem inspection.
type Transition struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// StepMachine tracks a single step's status through the legal transition
// table. The zero value is not usable; construct with NewStepMachine.
type StepMachine struct {
	current StepStatus
	history []Transition
}

// NewStepMachine returns a machine in PENDING.
func NewStepMachine() *StepMachine {
	return &StepMachine{current: StepPending}
}

// Current returns the current step status.
func (m *StepMachine) Current() StepStatus { return m.current }

// Terminal reports whether the machine has reached a terminal state.
func (m *StepMachine) Terminal() bool { return stepTerminal[m.current] }

// Transition moves the machine to next, or fails with
// EXECUTION_ILLEGAL_TRANSITION when next is not reachable from the current
// state. reason is recorded in the history and may be empty.
func (m *StepMachine) Transition(next StepStatus, reason string) error {
	if !allowedStep(m.current, next) {
		return errs.Newf(errs.CodeIllegalTransition,
			"step transition %s -> %s is not legal", m.current, next).
			WithContext("from", string(m.current)).
			WithContext("to", string(next))
	}
	m.history = append(m.history, Transition{
		From:      string(m.current),
		To:        string(next),
		Timestamp: time.Now(),
		Reason:    reason,
	})
	m.current = next
	return nil
}

// History returns a copy of the append-only transition history.
func (m *StepMachine) History() []Transition {
	return append([]Transition(nil), m.history...)
}

// WorkflowMachine tracks a workflow's status. Construct with
// NewWorkflowMachine, which starts in QUEUED.
type WorkflowMachine struct {
	current WorkflowStatus
	history []Transition
}

// NewWorkflowMachine returns a machine in QUEUED.
func NewWorkflowMachine() *WorkflowMachine {
	return &WorkflowMachine{current: WorkflowQueued}
}

// Current returns the current workflow status.
func (m *WorkflowMachine) Current() WorkflowStatus { return m.current }

// Terminal reports whether the machine has reached a terminal state.
func (m *WorkflowMachine) Terminal() bool { return workflowTerminal[m.current] }

// Transition moves the machine to next, rejecting transitions outside the
// table with EXECUTION_ILLEGAL_TRANSITION.
func (m *WorkflowMachine) Transition(next WorkflowStatus, reason string) error {
	if !allowedWorkflow(m.current, next) {
		return errs.Newf(errs.CodeIllegalTransition,
			"workflow transition %s -> %s is not legal", m.current, next).
			WithContext("from", string(m.current)).
			WithContext("to", string(next))
	}
	m.history = append(m.history, Transition{
		From:      string(m.current),
		To:        string(next),
		Timestamp: time.Now(),
		Reason:    reason,
	})
	m.current = next
	return nil
}

// History returns a copy of the append-only transition history.
func (m *WorkflowMachine) History() []Transition {
	return append([]Transition(nil), m.history...)
}

func allowedStep(from, to StepStatus) bool {
	for _, next := range stepTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func allowedWorkflow(from, to WorkflowStatus) bool {
	for _, next := range workflowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
