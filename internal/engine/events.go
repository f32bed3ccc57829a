// Package engine drives validated workflow plans: the phase-ordered
// workflow executor, the per-step retry loop, the lifecycle event bus, and
// the public planner façade.
package engine

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// EventType names a lifecycle milestone.
type EventType string

const (
	EngineStarted     EventType = "engine.started"
	EngineStopped     EventType = "engine.stopped"
	WorkflowStarted   EventType = "workflow.started"
	WorkflowCompleted EventType = "workflow.completed"
	WorkflowFailed    EventType = "workflow.failed"
	StepStarted       EventType = "step.started"
	StepCompleted     EventType = "step.completed"
	StepFailed        EventType = "step.failed"
)

// Event is a structured lifecycle message. Events are consumed by the TUI
// dashboard and by structured log output; the executor never depends on a
// subscriber having seen one.
type Event struct {
	// Type is the lifecycle milestone.
	Type EventType `json:"type"`

	// ExecutionID scopes the event to one workflow execution. Empty for
	// engine-level events.
	ExecutionID string `json:"executionId,omitempty"`

	// WorkflowName and StepID identify the source. StepID is empty for
	// workflow-level events.
	WorkflowName string `json:"workflowName,omitempty"`
	StepID       string `json:"stepId,omitempty"`

	// Status is the step or workflow status after the milestone.
	Status string `json:"status,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Error holds the error message for failure events.
	Error string `json:"error,omitempty"`

	// Timestamp records when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}

// Subscriber receives events. Subscribers run on the bus's dispatch
// goroutine; a slow subscriber delays later subscribers but never the
// executor.
type Subscriber func(Event)

const defaultMailbox = 256

// Bus is a publish-subscribe fan-out for lifecycle events. Emission is
// non-blocking: events are posted to a bounded mailbox and delivered by a
// single dispatch goroutine, in subscriber registration order, with
// per-subscriber panic isolation. When the mailbox is full the event is
// dropped rather than stalling execution.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]Subscriber
	any    []Subscriber
	closed bool

	mailbox chan Event
	done    chan struct{}
	logger  *log.Logger
}

// NewBus creates a bus and starts its dispatch goroutine. The logger may
// be nil.
func NewBus(logger *log.Logger) *Bus {
	b := &Bus{
		subs:    make(map[EventType][]Subscriber),
		mailbox: make(chan Event, defaultMailbox),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go b.dispatch()
	return b
}

// Subscribe registers fn for one event type. Subscribers for a type are
// invoked in registration order.
func (b *Bus) Subscribe(t EventType, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], fn)
}

// SubscribeAll registers fn for every event type, after type-specific
// subscribers.
func (b *Bus) SubscribeAll(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.any = append(b.any, fn)
}

// Emit posts ev to the mailbox without blocking. Emitting on a closed bus
// or into a full mailbox drops the event.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	select {
	case b.mailbox <- ev:
	default:
		b.log("event dropped, mailbox full", "type", ev.Type, "execution", ev.ExecutionID)
	}
}

// Close stops accepting events, drains the mailbox, and waits for the
// dispatch goroutine to finish. Safe to call once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.mailbox)
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for ev := range b.mailbox {
		b.deliver(ev)
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.subs[ev.Type])+len(b.any))
	targets = append(targets, b.subs[ev.Type]...)
	targets = append(targets, b.any...)
	b.mu.RUnlock()

	for _, fn := range targets {
		b.invoke(fn, ev)
	}
}

// invoke isolates subscriber panics so one broken consumer cannot take
// down delivery for the rest.
func (b *Bus) invoke(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log("event subscriber panicked", "type", ev.Type, "panic", r)
		}
	}()
	fn(ev)
}

func (b *Bus) log(msg string, kvs ...any) {
	if b.logger == nil {
		return
	}
	b.logger.Warn(msg, kvs...)
}
