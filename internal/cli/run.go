package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/orbyt-dev/orbyt/internal/config"
	"github.com/orbyt-dev/orbyt/internal/engine"
	"github.com/orbyt-dev/orbyt/internal/logging"
	"github.com/orbyt-dev/orbyt/internal/state"
	"github.com/orbyt-dev/orbyt/internal/tui"
	"github.com/orbyt-dev/orbyt/internal/workflow"
)

// Flag values for the run subcommand.
var (
	runInputs          []string
	runEnv             []string
	runContext         []string
	runSecrets         []string
	runTimeout         string
	runContinueOnError bool
	runJSON            bool
	runWatch           bool
)

// runCmd implements "orbyt run <workflow.yaml>".
var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Validate and execute a workflow",
	Long: `Validate a workflow file and execute it to completion.

Inputs, environment variables, context values, and secrets are supplied as
repeatable KEY=VALUE flags and layered over the [run] section of orbyt.toml.

Examples:
  orbyt run release.yaml
  orbyt run release.yaml --input tag=v1.2.0 --secret TOKEN=abc
  orbyt run release.yaml --watch             # live dashboard
  orbyt run release.yaml --json > result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "Workflow input as KEY=VALUE (repeatable)")
	runCmd.Flags().StringArrayVarP(&runEnv, "env", "e", nil, "Environment variable as KEY=VALUE (repeatable)")
	runCmd.Flags().StringArrayVar(&runContext, "context", nil, "Context value as KEY=VALUE (repeatable)")
	runCmd.Flags().StringArrayVar(&runSecrets, "secret", nil, "Secret value as KEY=VALUE (repeatable)")
	runCmd.Flags().StringVar(&runTimeout, "timeout", "", "Workflow deadline, e.g. 30m (overrides engine.workflow_timeout)")
	runCmd.Flags().BoolVar(&runContinueOnError, "continue-on-error", false, "Treat every step failure as non-fatal")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Write the execution result as JSON to stdout")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Watch the execution in a live dashboard")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}
	cfg := resolved.Config
	logging.SetupNamed(cfg.Logging.Level, cfg.Logging.Format)

	doc, err := loadWorkflowDoc(args[0])
	if err != nil {
		return err
	}

	opts, err := buildRunOptions(cfg)
	if err != nil {
		return err
	}

	bus := engine.NewBus(logging.New("events"))
	defer bus.Close()
	planner := newPlanner(cfg, bus)

	plan, verrs := planner.LoadAndValidate(doc)
	if len(verrs) > 0 {
		printWorkflowErrors(cmd, verrs)
		return engine.JoinErrors(verrs)
	}

	// Interrupt cancels the run; the engine marks in-flight steps
	// CANCELLED and still produces a result.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var result *engine.Result
	if runWatch {
		result, err = tui.RunDashboard(ctx, planner, bus, plan, opts)
	} else {
		result, err = planner.RunPlan(ctx, plan, opts)
	}
	if result == nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
	} else if !runWatch {
		printRunResult(cmd, plan.Workflow, result)
	}

	if result.Error != nil {
		return result.Error
	}
	return err
}

// buildRunOptions layers the command-line KEY=VALUE flags over the [run]
// section of the resolved configuration.
func buildRunOptions(cfg *config.Config) (engine.RunOptions, error) {
	inputs, err := parseKeyValues(runInputs, "input")
	if err != nil {
		return engine.RunOptions{}, err
	}
	env, err := parseKeyValues(runEnv, "env")
	if err != nil {
		return engine.RunOptions{}, err
	}
	wfContext, err := parseKeyValues(runContext, "context")
	if err != nil {
		return engine.RunOptions{}, err
	}
	secrets, err := parseKeyValues(runSecrets, "secret")
	if err != nil {
		return engine.RunOptions{}, err
	}

	opts := engine.RunOptions{
		Inputs:          toAnyMap(inputs),
		Env:             mergeStringMaps(cfg.Run.Env, env),
		Context:         toAnyMap(mergeStringMaps(cfg.Run.Context, wfContext)),
		Secrets:         toAnyMap(secrets),
		ContinueOnError: runContinueOnError,
		TriggeredBy:     "cli",
	}

	if runTimeout != "" {
		d, parseErr := time.ParseDuration(runTimeout)
		if parseErr != nil {
			return engine.RunOptions{}, fmt.Errorf("invalid --timeout value %q: %w", runTimeout, parseErr)
		}
		opts.Timeout = d
	} else {
		opts.Timeout = cfg.WorkflowTimeout()
	}

	return opts, nil
}

// printRunResult writes a human-readable execution summary in declared
// step order.
func printRunResult(cmd *cobra.Command, def *workflow.Definition, result *engine.Result) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s %s\n", styleHeader.Render("Workflow:"), result.WorkflowName)
	fmt.Fprintf(out, "Status:   %s\n", statusStyle(result.Status).Render(string(result.Status)))
	fmt.Fprintf(out, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintln(out)

	for _, s := range def.Steps {
		sr, ok := result.StepResults[s.ID]
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %-20s %-10s %s", s.ID, sr.Status, sr.Duration.Round(time.Millisecond))
		if sr.Attempts > 1 {
			line += fmt.Sprintf(" (%d attempts)", sr.Attempts)
		}
		fmt.Fprintln(out, line)
		if sr.Error != nil {
			fmt.Fprintf(out, "    %s\n", styleErrorLbl.Render(sr.Error.Error()))
		}
	}

	if len(result.Outputs) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, styleSection.Render("Outputs:"))
		keys := make([]string, 0, len(result.Outputs))
		for k := range result.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s = %v\n", k, result.Outputs[k])
		}
	}

	if result.Error != nil {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%s %s\n", styleErrorLbl.Render("Error:"), result.Error.Error())
	}
}

// statusStyle maps a terminal workflow status to a display style.
func statusStyle(s state.WorkflowStatus) lipgloss.Style {
	switch s {
	case state.WorkflowCompleted:
		return styleSuccess
	case state.WorkflowPartial:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")) // red
	}
}
