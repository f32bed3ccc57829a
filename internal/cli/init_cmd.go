package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/orbyt-dev/orbyt/internal/config"
	"github.com/orbyt-dev/orbyt/internal/logging"
)

// Flag values for the init subcommand.
var (
	initFlagName        string
	initFlagWorkflow    string
	initFlagDescription string
	initFlagForce       bool
	initFlagInteractive bool
)

// initCmd implements "orbyt init [template]".
// It scaffolds a new Orbyt project from an embedded template without requiring
// an existing orbyt.toml -- making it safe to run in a fresh directory.
var initCmd = &cobra.Command{
	Use:   "init [template]",
	Short: "Initialize a new Orbyt project from a template",
	Long: `Initialize a new Orbyt project directory by rendering an embedded
project template. Existing files are preserved unless --force is supplied.

Examples:
  orbyt init                          # scaffold starter template in current directory
  orbyt init starter --name my-proj   # scaffold with explicit project name
  orbyt init --interactive            # prompt for project details
  orbyt init starter --force          # overwrite existing files`,
	Args: cobra.MaximumNArgs(1),

	// Override PersistentPreRunE so the init command never attempts to load
	// an orbyt.toml. We still replicate the env-var checks, logging setup,
	// color disable, and --dir handling from the root PersistentPreRunE.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Check env vars for flags not explicitly set on the command line.
		if !cmd.Root().PersistentFlags().Changed("verbose") && os.Getenv("ORBYT_VERBOSE") != "" {
			flagVerbose = true
		}
		if !cmd.Root().PersistentFlags().Changed("quiet") && os.Getenv("ORBYT_QUIET") != "" {
			flagQuiet = true
		}
		if !cmd.Root().PersistentFlags().Changed("no-color") &&
			(os.Getenv("NO_COLOR") != "" || os.Getenv("ORBYT_NO_COLOR") != "") {
			flagNoColor = true
		}

		// Initialize logging.
		jsonFormat := os.Getenv("ORBYT_LOG_FORMAT") == "json"
		logging.Setup(flagVerbose, flagQuiet, jsonFormat)

		// Handle --no-color: disable coloured output.
		if flagNoColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}

		// Handle --dir (change working directory).
		if flagDir != "" {
			if err := os.Chdir(flagDir); err != nil {
				return fmt.Errorf("changing directory to %s: %w", flagDir, err)
			}
		}

		return nil
	},

	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initFlagName, "name", "n", "", "Project name (defaults to current directory name)")
	initCmd.Flags().StringVar(&initFlagWorkflow, "workflow", "", "Name of the scaffolded workflow (defaults to the project name)")
	initCmd.Flags().StringVar(&initFlagDescription, "description", "", "Workflow description")
	initCmd.Flags().BoolVar(&initFlagForce, "force", false, "Overwrite existing files")
	initCmd.Flags().BoolVarP(&initFlagInteractive, "interactive", "i", false, "Prompt for project details")
	rootCmd.AddCommand(initCmd)
}

// runInit is the RunE handler for the init command.
func runInit(cmd *cobra.Command, args []string) error {
	// Resolve the template name (default: starter).
	templateName := "starter"
	if len(args) > 0 {
		templateName = args[0]
	}

	// Validate that the requested template exists.
	if !config.TemplateExists(templateName) {
		available, listErr := config.ListTemplates()
		if listErr != nil {
			return fmt.Errorf("listing available templates: %w", listErr)
		}
		return fmt.Errorf("template %q not found; available templates: %s",
			templateName, strings.Join(available, ", "))
	}

	// Resolve the destination directory (current working directory after any
	// --dir change applied in PersistentPreRunE).
	destDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	vars := config.TemplateVars{
		ProjectName:  initFlagName,
		WorkflowName: initFlagWorkflow,
		Description:  initFlagDescription,
	}
	if vars.ProjectName == "" {
		vars.ProjectName = filepath.Base(destDir)
	}

	if initFlagInteractive {
		if err := runInitWizard(&vars); err != nil {
			return err
		}
	}
	if vars.WorkflowName == "" {
		vars.WorkflowName = vars.ProjectName
	}

	// Reject path traversal in project name.
	if strings.Contains(vars.ProjectName, "../") || strings.Contains(vars.ProjectName, "..\\") {
		return fmt.Errorf("invalid project name %q: must not contain path traversal sequences", vars.ProjectName)
	}

	// Guard against overwriting an existing orbyt.toml unless --force is set.
	orbytToml := filepath.Join(destDir, config.ConfigFileName)
	if _, statErr := os.Stat(orbytToml); statErr == nil && !initFlagForce {
		return fmt.Errorf("%s already exists in %s; use --force to overwrite", config.ConfigFileName, destDir)
	}

	// Render the template.
	created, err := config.RenderTemplate(templateName, destDir, vars, initFlagForce)
	if err != nil {
		return fmt.Errorf("rendering template %q: %w", templateName, err)
	}

	// --- Success output (all to stderr) ---
	stderr := os.Stderr

	fmt.Fprintf(stderr, "Initialized project %q from template %q\n\n", vars.ProjectName, templateName)

	if len(created) > 0 {
		fmt.Fprintln(stderr, "Created files:")
		for _, f := range created {
			// Print relative paths when possible for readability.
			rel, relErr := filepath.Rel(destDir, f)
			if relErr != nil {
				rel = f
			}
			fmt.Fprintf(stderr, "  %s\n", rel)
		}
		fmt.Fprintln(stderr)
	}

	fmt.Fprintln(stderr, "Next steps:")
	fmt.Fprintf(stderr, "  1. Edit %s to configure timeouts and estimates\n", orbytToml)
	fmt.Fprintln(stderr, "  2. Edit workflows/ to describe your steps")
	fmt.Fprintf(stderr, "  3. Run: orbyt run workflows/%s.yaml\n", templateName)

	return nil
}
