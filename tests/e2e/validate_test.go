package e2e_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	path := tp.writeWorkflow("smoke.yaml", passingWorkflow())

	out := tp.runExpectSuccess("validate", path)
	assert.Contains(t, out, "Workflow is valid.")
}

func TestValidateReportsUnknownDependency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	path := tp.writeWorkflow("broken.yaml", invalidWorkflow())

	out, exitCode := tp.runExpectFailure("validate", path)
	assert.Equal(t, 2, exitCode)
	assert.Contains(t, out, "missing")
}

func TestValidateJSONReport(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	path := tp.writeWorkflow("broken.yaml", invalidWorkflow())

	cmd := tp.run("validate", path, "--json")
	out, _ := cmd.Output()

	var report struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Code string `json:"code"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(out, &report),
		"validate --json must emit a JSON report: %s", string(out))
	assert.False(t, report.Valid)
	assert.NotEmpty(t, report.Errors)
}

func TestValidateMissingFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	out, exitCode := tp.runExpectFailure("validate", "no-such-file.yaml")
	assert.NotEqual(t, 0, exitCode)
	assert.Contains(t, out, "reading workflow file")
}
