package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orbyt-dev/orbyt/internal/engine"
	"github.com/orbyt-dev/orbyt/internal/errs"
	"github.com/orbyt-dev/orbyt/internal/logging"
)

var validateJSON bool

// validateCmd implements "orbyt validate <workflow.yaml>".
// It runs the full validation pipeline (schema, security, graph) without
// executing anything.
var validateCmd = &cobra.Command{
	Use:   "validate <workflow.yaml>",
	Short: "Validate a workflow file without executing it",
	Long: `Parse and validate a workflow file: document shape, reserved-field
security checks, step references, action resolution, and dependency graph
construction. All errors are collected and reported in one pass.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output the validation report as JSON")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}
	logging.SetupNamed(resolved.Config.Logging.Level, resolved.Config.Logging.Format)

	doc, err := loadWorkflowDoc(args[0])
	if err != nil {
		return err
	}

	planner := newPlanner(resolved.Config, nil)
	report := planner.Validate(doc)

	if validateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return encErr
		}
	} else {
		printValidationReport(cmd, args[0], report)
	}

	if !report.Valid {
		return engine.JoinErrors(report.Errors)
	}
	return nil
}

// printValidationReport writes the human-readable validation report.
func printValidationReport(cmd *cobra.Command, path string, report engine.ValidationReport) {
	out := cmd.OutOrStdout()

	header := styleHeader.Render("Workflow Validation")
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, strings.Repeat("=", len("Workflow Validation")))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "File: %s\n", path)
	fmt.Fprintln(out)

	if report.Valid {
		fmt.Fprintln(out, styleSuccess.Render("Workflow is valid."))
		return
	}

	printWorkflowErrors(cmd, report.Errors)
}

// printWorkflowErrors writes structured workflow errors with their code,
// path, and corrective hint. Shared by validate and run.
func printWorkflowErrors(cmd *cobra.Command, verrs []*errs.Error) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s\n", styleErrorLbl.Render(fmt.Sprintf("%d error(s):", len(verrs))))
	for _, e := range verrs {
		fmt.Fprintf(out, "  [%s] %s\n", e.Code, e.Message)
		if e.Path != "" {
			fmt.Fprintf(out, "      at %s\n", e.Path)
		}
		if e.Hint != "" {
			fmt.Fprintf(out, "      hint: %s\n", e.Hint)
		}
	}
}
