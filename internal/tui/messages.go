package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/orbyt-dev/orbyt/internal/engine"
)

// EngineEventMsg wraps one lifecycle event from the engine's event bus.
// The bridge converts bus deliveries into this message type so the Bubble
// Tea runtime can dispatch them to the App model.
type EngineEventMsg struct {
	Event engine.Event
}

// RunDoneMsg signals that the background execution finished. Result is
// non-nil unless setup itself failed; Err mirrors Result.Error when the
// run ended in a failure status.
type RunDoneMsg struct {
	Result *engine.Result
	Err    error
}

// TickMsg is sent periodically to advance the elapsed-time display.
type TickMsg struct {
	// Time is the wall-clock time at which the tick fired.
	Time time.Time
}

// TickEvery returns a tea.Cmd that sends a TickMsg after duration d.
// The caller's Update handler should call TickEvery again upon receiving a
// TickMsg to create recurring ticks via the recursive scheduling pattern:
//
//	case TickMsg:
//	    // update state...
//	    return m, TickEvery(interval)
func TickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
