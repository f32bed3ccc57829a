package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validWorkflowYAML is a minimal two-step workflow exercising the builtin
// echo and noop actions.
const validWorkflowYAML = `version: "1"
kind: Workflow
metadata:
  name: smoke
workflow:
  steps:
    - id: say
      uses: core.echo
      with:
        message: hello
      outputs:
        said: message
    - id: after
      uses: core.noop
      needs: [say]
`

// invalidWorkflowYAML references a step that does not exist.
const invalidWorkflowYAML = `version: "1"
kind: Workflow
metadata:
  name: broken
workflow:
  steps:
    - id: a
      uses: core.noop
      needs: [missing]
`

// writeWorkflow writes a workflow document to a temp file and returns its
// path.
func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// resetValidateFlags resets validate's local flag state between tests.
func resetValidateFlags(t *testing.T) {
	t.Helper()
	resetRootCmd(t)
	validateJSON = false
	validateCmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
	})
}

func TestValidateCmd_ValidWorkflow(t *testing.T) {
	resetValidateFlags(t)
	t.Chdir(t.TempDir())

	path := writeWorkflow(t, validWorkflowYAML)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"validate", path})

	code := Execute()
	assert.Equal(t, 0, code, "valid workflow must exit 0: %s", out.String())
	assert.Contains(t, out.String(), "Workflow is valid.")
	assert.Contains(t, out.String(), path, "report must name the file")
}

func TestValidateCmd_InvalidWorkflow(t *testing.T) {
	resetValidateFlags(t)
	t.Chdir(t.TempDir())

	path := writeWorkflow(t, invalidWorkflowYAML)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"validate", path})

	code := Execute()
	assert.Equal(t, 2, code, "validation failures exit with code 2")
	assert.Contains(t, out.String(), "error(s):")
	assert.Contains(t, out.String(), "missing", "unknown dependency must be named")
}

func TestValidateCmd_JSON(t *testing.T) {
	resetValidateFlags(t)
	t.Chdir(t.TempDir())

	path := writeWorkflow(t, validWorkflowYAML)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"validate", "--json", path})

	code := Execute()
	assert.Equal(t, 0, code)

	var report struct {
		Valid  bool  `json:"valid"`
		Errors []any `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report), "output must be valid JSON")
	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
}

func TestValidateCmd_MissingFile(t *testing.T) {
	resetValidateFlags(t)
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"validate", "does-not-exist.yaml"})

	// Capture stderr; Execute prints the final error there.
	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w
	t.Cleanup(func() { os.Stderr = oldStderr })

	code := Execute()

	w.Close()
	var stderr bytes.Buffer
	_, _ = stderr.ReadFrom(r)
	os.Stderr = oldStderr

	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr.String(), "reading workflow file")
}

func TestValidateCmd_RequiresExactlyOneArg(t *testing.T) {
	resetValidateFlags(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"validate"})

	code := Execute()
	assert.NotEqual(t, 0, code, "validate without a file must fail")
}
