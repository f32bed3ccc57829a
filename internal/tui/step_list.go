package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/orbyt-dev/orbyt/internal/engine"
	"github.com/orbyt-dev/orbyt/internal/state"
	"github.com/orbyt-dev/orbyt/internal/workflow"
)

// stepRow holds the display state of one workflow step.
type stepRow struct {
	id       string
	uses     string
	status   state.StepStatus
	started  time.Time
	duration time.Duration
}

// StepListModel is the Bubble Tea sub-model for the step status panel. It
// shows every step in declared order with a live status indicator and, once
// finished, the step duration.
type StepListModel struct {
	theme  Theme
	width  int
	height int
	rows   []stepRow
	index  map[string]int
}

// NewStepListModel creates a StepListModel seeded with the plan's steps,
// all in PENDING state.
func NewStepListModel(theme Theme, def *workflow.Definition) StepListModel {
	rows := make([]stepRow, len(def.Steps))
	index := make(map[string]int, len(def.Steps))
	for i, s := range def.Steps {
		rows[i] = stepRow{id: s.ID, uses: s.Uses, status: state.StepPending}
		index[s.ID] = i
	}
	return StepListModel{theme: theme, rows: rows, index: index}
}

// SetDimensions updates the panel width and height.
func (sl *StepListModel) SetDimensions(width, height int) {
	sl.width = width
	sl.height = height
}

// Update processes engine events and advances the per-step display state.
func (sl StepListModel) Update(msg tea.Msg) StepListModel {
	ev, ok := msg.(EngineEventMsg)
	if !ok || ev.Event.StepID == "" {
		return sl
	}

	i, known := sl.index[ev.Event.StepID]
	if !known {
		return sl
	}
	row := &sl.rows[i]

	switch ev.Event.Type {
	case engine.StepStarted:
		row.status = state.StepRunning
		row.started = ev.Event.Timestamp

	case engine.StepCompleted, engine.StepFailed:
		row.status = state.StepStatus(ev.Event.Status)
		if !row.started.IsZero() {
			row.duration = ev.Event.Timestamp.Sub(row.started)
		}
	}

	return sl
}

// Done returns the number of steps in a terminal state.
func (sl StepListModel) Done() int {
	n := 0
	for _, row := range sl.rows {
		if state.IsStepTerminal(row.status) {
			n++
		}
	}
	return n
}

// Total returns the number of steps.
func (sl StepListModel) Total() int { return len(sl.rows) }

// View renders the step panel: a header, a progress bar, and one line per
// step. Lines beyond the panel height are dropped from the top so the
// active region stays visible.
func (sl StepListModel) View() string {
	if sl.width <= 0 || sl.height <= 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(sl.theme.StepHeader.Render("Steps"))
	sb.WriteString("\n")

	barWidth := sl.width - 12
	if barWidth > 40 {
		barWidth = 40
	}
	if barWidth > 0 && sl.Total() > 0 {
		filled := float64(sl.Done()) / float64(sl.Total())
		sb.WriteString(sl.theme.ProgressBar(filled, barWidth))
		sb.WriteString(fmt.Sprintf(" %d/%d", sl.Done(), sl.Total()))
		sb.WriteString("\n")
	}

	lines := make([]string, 0, len(sl.rows))
	for _, row := range sl.rows {
		lines = append(lines, sl.formatRow(row))
	}

	// Keep the most recent lines when the panel is shorter than the list.
	// Two rows are reserved for the header and progress bar.
	visible := sl.height - 2
	if visible > 0 && len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	sb.WriteString(strings.Join(lines, "\n"))

	return sl.theme.StepContainer.
		Width(sl.width).
		Render(sb.String())
}

// formatRow renders one step line: indicator, id, action, and duration.
func (sl StepListModel) formatRow(row stepRow) string {
	line := fmt.Sprintf("%s %s", sl.theme.StatusIndicator(row.status), sl.theme.StepID.Render(fmt.Sprintf("%-20s", row.id)))
	detail := row.uses
	if row.duration > 0 {
		detail = fmt.Sprintf("%s  %s", row.uses, row.duration.Round(time.Millisecond))
	}
	return line + " " + sl.theme.StepDetail.Render(detail)
}
