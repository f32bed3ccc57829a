package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/orbyt-dev/orbyt/internal/engine"
)

// StatusBarModel manages the bottom status bar display in the dashboard.
// It tracks the workflow name, the active step, completed step counts, and
// elapsed time. The view renders all fields in a single line with styled
// separators. The elapsed timer is computed from the start time on each
// TickMsg.
//
// StatusBarModel follows Bubble Tea's Elm architecture: Update returns a new
// value, and View is a pure function of the model state.
type StatusBarModel struct {
	theme Theme
	width int

	// Dynamic state updated by incoming messages.
	workflow  string
	step      string
	done      int
	total     int
	startTime time.Time
	elapsed   time.Duration
	mode      string // "running", "done", "failed", "idle"
}

// NewStatusBarModel creates a StatusBarModel with the given theme and the
// plan's total step count. The mode defaults to "idle" and no start time is
// set until a workflow.started event initialises it.
func NewStatusBarModel(theme Theme, total int) StatusBarModel {
	return StatusBarModel{
		theme: theme,
		total: total,
		mode:  "idle",
	}
}

// SetWidth updates the status bar width. This should be called whenever the
// parent App processes a tea.WindowSizeMsg.
func (sb *StatusBarModel) SetWidth(width int) {
	sb.width = width
}

// SetProgress updates the completed step count.
func (sb *StatusBarModel) SetProgress(done, total int) {
	sb.done = done
	sb.total = total
}

// Update processes messages that affect status bar content and returns the
// updated model.
//
// Handled messages:
//   - EngineEventMsg — updates workflow name, active step, and mode, and
//     initialises the start time on the workflow.started event.
//   - RunDoneMsg     — switches the mode to its terminal value.
//   - TickMsg        — advances the elapsed timer while running.
func (sb StatusBarModel) Update(msg tea.Msg) StatusBarModel {
	switch m := msg.(type) {
	case EngineEventMsg:
		sb = sb.handleEngineEvent(m.Event)

	case RunDoneMsg:
		switch {
		case m.Result == nil || m.Err != nil:
			sb.mode = "failed"
		default:
			sb.mode = "done"
		}

	case TickMsg:
		if sb.mode == "running" && !sb.startTime.IsZero() {
			elapsed := m.Time.Sub(sb.startTime)
			if elapsed < 0 {
				elapsed = 0
			}
			sb.elapsed = elapsed
		}
	}

	return sb
}

// handleEngineEvent extracts workflow and step information from a lifecycle
// event and updates the model accordingly.
func (sb StatusBarModel) handleEngineEvent(ev engine.Event) StatusBarModel {
	if ev.WorkflowName != "" {
		sb.workflow = ev.WorkflowName
	}

	switch ev.Type {
	case engine.WorkflowStarted:
		if sb.startTime.IsZero() {
			if !ev.Timestamp.IsZero() {
				sb.startTime = ev.Timestamp
			} else {
				sb.startTime = time.Now()
			}
		}
		sb.mode = "running"

	case engine.WorkflowCompleted:
		sb.mode = "done"

	case engine.WorkflowFailed:
		sb.mode = "failed"

	case engine.StepStarted:
		sb.step = ev.StepID
	}

	return sb
}

// View renders the status bar as a single-line string spanning the full
// terminal width. Segments are left-aligned, separated by styled dividers.
// A "q quit" hint is right-aligned. If the total segment width exceeds the
// available width, rightmost optional segments are omitted to ensure the
// bar fits exactly in one line.
//
// Rendered format (approximate):
//
//	[mode] | {workflow} | Step {step} | {done}/{total} | {elapsed} | q quit
func (sb StatusBarModel) View() string {
	if sb.width <= 0 {
		return ""
	}

	sep := sb.theme.StatusSeparator.Render(" | ")

	// --- Build individual segment strings ---

	modeStr := sb.modeSegment()
	workflowStr := sb.workflowSegment()
	stepStr := sb.stepSegment()
	countStr := sb.countSegment()
	timerStr := sb.timerSegment()
	helpStr := sb.theme.HelpKey.Render("q") + " " + sb.theme.HelpDesc.Render("quit")

	// Mandatory segments (always shown if they fit): mode + step.
	// Optional segments (hidden first when narrow): workflow, count, timer.
	type segment struct {
		text     string
		optional bool
	}

	segments := []segment{
		{text: modeStr, optional: false},
		{text: sep + workflowStr, optional: true},
		{text: sep + stepStr, optional: false},
		{text: sep + countStr, optional: true},
		{text: sep + timerStr, optional: true},
	}

	// StatusBar theme style has Padding(0,1), i.e. 1 column on each side = 2
	// total columns consumed by padding.
	const barPadding = 2
	innerWidth := sb.width - barPadding
	if innerWidth < 0 {
		innerWidth = 0
	}

	// Reserve space inside innerWidth for the right-aligned quit hint
	// (including its leading separator).
	helpSepStr := sep + helpStr
	helpSegWidth := lipgloss.Width(helpSepStr)

	// Compute mandatory-only width to know how much optional budget we have.
	mandatoryWidth := 0
	for _, seg := range segments {
		if !seg.optional {
			mandatoryWidth += lipgloss.Width(seg.text)
		}
	}

	optionalBudget := innerWidth - mandatoryWidth - helpSegWidth
	if optionalBudget < 0 {
		optionalBudget = 0
	}

	// Build the ordered segment list: always include mandatory segments,
	// greedily include optional segments while they fit within the budget.
	var leftParts []string
	optionalUsed := 0

	for _, seg := range segments {
		w := lipgloss.Width(seg.text)
		if !seg.optional {
			leftParts = append(leftParts, seg.text)
		} else if optionalUsed+w <= optionalBudget {
			leftParts = append(leftParts, seg.text)
			optionalUsed += w
		}
		// Optional segments that exceed the budget are skipped.
	}

	leftContent := strings.Join(leftParts, "")

	// Fill the gap between the left content and the right-aligned hint.
	leftWidth := lipgloss.Width(leftContent)
	gap := innerWidth - leftWidth - helpSegWidth
	if gap < 0 {
		gap = 0
	}
	padding := strings.Repeat(" ", gap)

	barContent := leftContent + padding + helpSepStr

	// Width(sb.width) sets the total rendered width (lipgloss uses the
	// border-box model where Width includes padding). MaxHeight(1) ensures
	// no line wrapping.
	return sb.theme.StatusBar.
		Width(sb.width).
		MaxHeight(1).
		Render(barContent)
}

// modeSegment returns the styled mode label (e.g., "[running]" or "[done]").
func (sb StatusBarModel) modeSegment() string {
	label := sb.mode
	if label == "" {
		label = "idle"
	}
	return sb.theme.StatusKey.Render("[" + label + "]")
}

// workflowSegment returns the styled workflow name.
func (sb StatusBarModel) workflowSegment() string {
	name := sb.workflow
	if name == "" {
		name = "--"
	}
	return sb.theme.StatusValue.Render(name)
}

// stepSegment returns the styled active step label.
// Returns "Step --" when no step has started yet.
func (sb StatusBarModel) stepSegment() string {
	step := sb.step
	if step == "" {
		step = "--"
	}
	return sb.theme.StatusKey.Render("Step") + " " + sb.theme.StatusValue.Render(step)
}

// countSegment returns the styled completed/total counter.
func (sb StatusBarModel) countSegment() string {
	return sb.theme.StatusValue.Render(fmt.Sprintf("%d/%d", sb.done, sb.total))
}

// timerSegment returns the styled elapsed time in HH:MM:SS format.
func (sb StatusBarModel) timerSegment() string {
	return sb.theme.StatusKey.Render("Time") + " " +
		sb.theme.StatusValue.Render(formatElapsed(sb.elapsed))
}

// formatElapsed converts a duration to "HH:MM:SS" format.
// Negative durations are treated as zero.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, mins, secs)
}
