package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/orbyt-dev/orbyt/internal/engine"
	"github.com/orbyt-dev/orbyt/internal/explain"
	"github.com/orbyt-dev/orbyt/internal/logging"
	"github.com/orbyt-dev/orbyt/internal/workflow"
)

var explainJSON bool

// explainCmd implements "orbyt explain <workflow.yaml>".
// It renders the execution plan, data flow, and duration estimate without
// running anything. Broken dependency graphs are reported, not fatal.
var explainCmd = &cobra.Command{
	Use:   "explain <workflow.yaml>",
	Short: "Show the execution plan without running anything",
	Long: `Analyze a workflow and report its execution phases, per-step data
flow, conditional paths, critical path, and estimated duration.

Duration estimates come from the [estimates.*] sections of orbyt.toml,
keyed by action name prefix; unconfigured actions use built-in bands.`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().BoolVar(&explainJSON, "json", false, "Output the explanation as JSON")
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
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

	// The loader must succeed; the graph may still be cyclic, which the
	// explanation reports instead of failing.
	def, loadErrs := workflow.Load(doc)
	if len(loadErrs) > 0 {
		printWorkflowErrors(cmd, loadErrs)
		return engine.JoinErrors(loadErrs)
	}

	ex := explain.Generate(def, cfg.Bands())

	if explainJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ex)
	}

	renderer := explain.NewRenderer(cmd.OutOrStdout(), !flagNoColor)
	renderer.Render(ex)
	return nil
}
