package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/orbyt-dev/orbyt/internal/buildinfo"
	"github.com/orbyt-dev/orbyt/internal/engine"
	"github.com/orbyt-dev/orbyt/internal/logging"
	"github.com/orbyt-dev/orbyt/internal/workflow"
)

// tickInterval drives the elapsed-time display in the status bar.
const tickInterval = time.Second

// minWidth and minHeight are the smallest terminal dimensions the dashboard
// supports. Below these the view shows a resize warning instead of panels.
const (
	minWidth  = 80
	minHeight = 24
)

// App is the top-level Bubble Tea model for the Orbyt run dashboard. It
// composes the step list, the event log, and the status bar, and holds the
// final run outcome once the background execution posts a RunDoneMsg.
type App struct {
	theme    Theme
	version  string
	workflow string

	width    int
	height   int
	ready    bool // true after first WindowSizeMsg
	quitting bool
	done     bool

	steps     StepListModel
	events    EventLogModel
	statusBar StatusBarModel

	// Outcome captured from RunDoneMsg, read back after p.Run returns.
	result *engine.Result
	runErr error
}

// NewApp constructs an App for the given validated plan. All sub-models are
// seeded from the plan's definition; dimensions are set on the first
// WindowSizeMsg.
func NewApp(plan *workflow.ValidatedPlan) App {
	theme := DefaultTheme()
	def := plan.Workflow

	return App{
		theme:     theme,
		version:   buildinfo.GetInfo().Version,
		workflow:  def.Metadata.Name,
		steps:     NewStepListModel(theme, def),
		events:    NewEventLogModel(theme),
		statusBar: NewStatusBarModel(theme, len(def.Steps)),
	}
}

// Init starts the elapsed-time ticker. Bubble Tea v1.x sends the initial
// WindowSizeMsg automatically, so no explicit size query is needed.
func (a App) Init() tea.Cmd {
	return TickEvery(tickInterval)
}

// Update dispatches incoming messages to the sub-models and handles window
// resizing, quit keys, and run completion.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.height = m.Height
		a.ready = true
		a.layout()
		return a, nil

	case tea.KeyMsg:
		switch m.Type {
		case tea.KeyCtrlC:
			a.quitting = true
			return a, tea.Quit
		case tea.KeyRunes:
			if string(m.Runes) == "q" {
				a.quitting = true
				return a, tea.Quit
			}
		}
		// Navigation keys go to the event log viewport.
		var cmd tea.Cmd
		a.events, cmd = a.events.Update(m)
		return a, cmd

	case EngineEventMsg:
		a.steps = a.steps.Update(m)
		var cmd tea.Cmd
		a.events, cmd = a.events.Update(m)
		a.statusBar = a.statusBar.Update(m)
		a.statusBar.SetProgress(a.steps.Done(), a.steps.Total())
		return a, cmd

	case RunDoneMsg:
		a.result = m.Result
		a.runErr = m.Err
		a.done = true
		a.statusBar = a.statusBar.Update(m)
		a.statusBar.SetProgress(a.steps.Done(), a.steps.Total())
		return a, nil

	case TickMsg:
		a.statusBar = a.statusBar.Update(m)
		if a.done {
			// Run is finished; stop ticking. The user exits with q.
			return a, nil
		}
		return a, TickEvery(tickInterval)
	}

	return a, nil
}

// layout distributes the available terminal area among the panels:
// one row for the title bar, one for the status bar, and the remainder
// split between the step list (upper) and the event log (lower).
func (a *App) layout() {
	bodyHeight := a.height - 2
	if bodyHeight < 2 {
		bodyHeight = 2
	}

	stepHeight := bodyHeight / 2
	eventHeight := bodyHeight - stepHeight

	// Panel containers carry a normal border (2 rows, 2 cols) plus 1 col of
	// horizontal padding on each side. Content dimensions exclude those.
	const frameH = 4
	const frameV = 2

	contentWidth := a.width - frameH
	if contentWidth < 0 {
		contentWidth = 0
	}

	a.steps.SetDimensions(contentWidth, max(stepHeight-frameV, 0))
	a.events.SetDimensions(contentWidth, max(eventHeight-frameV, 0))
	a.statusBar.SetWidth(a.width)
}

// View renders the complete dashboard.
//
//   - If quitting, return an empty string to clear the screen on exit.
//   - If not yet ready (no WindowSizeMsg received), show an initializing line.
//   - If the terminal is below 80x24, show a resize warning.
//   - Otherwise, render title bar, step panel, event log, and status bar.
func (a App) View() string {
	if a.quitting {
		return ""
	}

	if !a.ready {
		return "Initializing Orbyt..."
	}

	if a.width < minWidth || a.height < minHeight {
		return terminalTooSmallView()
	}

	title := a.renderTitleBar()
	steps := a.steps.View()
	events := a.events.View()
	status := a.statusBar.View()

	return lipgloss.JoinVertical(lipgloss.Left, title, steps, events, status)
}

// renderTitleBar builds the full-width title bar with the version and the
// workflow name.
func (a App) renderTitleBar() string {
	title := fmt.Sprintf("Orbyt v%s", a.version)
	if a.workflow != "" {
		title = fmt.Sprintf("%s  |  %s", title, a.workflow)
	}
	return a.theme.TitleBar.Width(a.width).Render(title)
}

// terminalTooSmallView returns a warning shown when the terminal is below
// the minimum supported dimensions.
func terminalTooSmallView() string {
	msg := fmt.Sprintf("Terminal too small. Please resize to at least %dx%d.", minWidth, minHeight)
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorWarning).
		Render(msg)
}

// Result returns the run outcome captured from RunDoneMsg. The second value
// is false if the dashboard was quit before the run finished.
func (a App) Result() (*engine.Result, error, bool) {
	return a.result, a.runErr, a.done
}

// RunDashboard executes the plan while rendering the live dashboard. It
// blocks until the user quits the dashboard, then returns the run outcome.
// Quitting the dashboard cancels the run via the derived context; the engine
// marks in-flight steps cancelled and still produces a Result.
//
// Use tea.WithMouseCellMotion (not WithMouseAllMotion) so that the user can
// still select and copy text from the terminal.
func RunDashboard(ctx context.Context, planner *engine.Planner, bus *engine.Bus, plan *workflow.ValidatedPlan, opts engine.RunOptions) (*engine.Result, error) {
	logger := logging.New("tui")
	logger.Info("starting dashboard", "workflow", plan.Workflow.Metadata.Name)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(
		NewApp(plan),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	AttachBus(p, bus)
	StartRun(runCtx, p, planner, plan, opts)

	// Quit the dashboard when the surrounding context is cancelled (e.g.
	// Ctrl-C delivered as a signal rather than a key event).
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running dashboard: %w", err)
	}

	app, ok := final.(App)
	if !ok {
		return nil, fmt.Errorf("unexpected final model type %T", final)
	}

	result, runErr, done := app.Result()
	if !done {
		// The user quit mid-run. The deferred cancel stops the engine; the
		// caller sees a cancellation rather than a partial result.
		return nil, context.Canceled
	}
	return result, runErr
}
