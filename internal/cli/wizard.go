package cli

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/charmbracelet/huh"

	"github.com/orbyt-dev/orbyt/internal/config"
)

// ErrWizardCancelled is returned when the user cancels the interactive init
// wizard (either by pressing Ctrl+C or declining the confirmation).
var ErrWizardCancelled = errors.New("wizard cancelled by user")

// wizardWidth is the fixed form width used by the wizard. 80 columns is the
// minimum terminal width the dashboard assumes as well.
const wizardWidth = 80

// namePattern restricts project and workflow names to identifier-safe
// shapes so they are usable in file names and step references.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// runInitWizard prompts for the template variables, pre-filling whatever
// the flags already supplied, and asks for confirmation before scaffolding.
//
// Returns ErrWizardCancelled if the user presses Ctrl+C or declines the
// confirmation.
func runInitWizard(vars *config.TemplateVars) error {
	if vars.WorkflowName == "" {
		vars.WorkflowName = vars.ProjectName
	}

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project name:").
				Description("Used in the generated orbyt.toml.").
				Value(&vars.ProjectName).
				Validate(validateName),
			huh.NewInput().
				Title("Workflow name:").
				Description("Name of the scaffolded workflow file's metadata block.").
				Value(&vars.WorkflowName).
				Validate(validateName),
			huh.NewInput().
				Title("Description:").
				Description("Optional one-line workflow description.").
				Value(&vars.Description),
		),
	).
		WithTheme(huh.ThemeCharm()).
		WithWidth(wizardWidth).
		Run()
	if err != nil {
		return mapWizardErr(err)
	}

	confirmed := false
	summary := fmt.Sprintf("Project:   %s\nWorkflow:  %s\nDescription: %s\n",
		vars.ProjectName, vars.WorkflowName, vars.Description)
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Scaffold project?").
				Description(summary).
				Affirmative("Scaffold").
				Negative("Cancel").
				Value(&confirmed),
		),
	).
		WithTheme(huh.ThemeCharm()).
		WithWidth(wizardWidth).
		Run()
	if err != nil {
		return mapWizardErr(err)
	}
	if !confirmed {
		return ErrWizardCancelled
	}

	return nil
}

// mapWizardErr converts huh-specific errors into ErrWizardCancelled so
// callers do not need to import the huh package.
func mapWizardErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrWizardCancelled
	}
	return fmt.Errorf("wizard: %w", err)
}

// validateName checks that a name is identifier-safe.
func validateName(s string) error {
	if !namePattern.MatchString(s) {
		return errors.New("must start with a letter or underscore and contain only letters, digits, _ or -")
	}
	return nil
}
