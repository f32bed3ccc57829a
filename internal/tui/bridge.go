package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/orbyt-dev/orbyt/internal/engine"
	"github.com/orbyt-dev/orbyt/internal/workflow"
)

// AttachBus subscribes the Bubble Tea program to every event on the bus.
// Deliveries arrive on the bus's dispatch goroutine; p.Send is safe to call
// from there, so no additional channel plumbing is needed.
func AttachBus(p *tea.Program, bus *engine.Bus) {
	bus.SubscribeAll(func(ev engine.Event) {
		p.Send(EngineEventMsg{Event: ev})
	})
}

// StartRun executes the plan on a background goroutine and posts a
// RunDoneMsg to the program when it finishes. The context carries the
// caller's cancellation (interrupt signals, deadlines).
func StartRun(ctx context.Context, p *tea.Program, planner *engine.Planner, plan *workflow.ValidatedPlan, opts engine.RunOptions) {
	go func() {
		result, err := planner.RunPlan(ctx, plan, opts)
		p.Send(RunDoneMsg{Result: result, Err: err})
	}()
}
