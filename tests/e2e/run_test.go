package e2e_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWorkflowSucceeds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	path := tp.writeWorkflow("smoke.yaml", passingWorkflow())

	out := tp.runExpectSuccess("run", path)
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "say")
	assert.Contains(t, out, "after")
}

func TestRunWorkflowJSONResult(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	path := tp.writeWorkflow("smoke.yaml", passingWorkflow())

	out := tp.runStdout("run", path, "--json")

	var result struct {
		WorkflowName string `json:"workflowName"`
		ExecutionID  string `json:"executionId"`
		Status       string `json:"status"`
		StepResults  []struct {
			StepID string `json:"stepId"`
			Status string `json:"status"`
		} `json:"stepResults"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result),
		"run --json must emit a JSON document: %s", out)

	assert.Equal(t, "smoke", result.WorkflowName)
	assert.NotEmpty(t, result.ExecutionID)
	assert.Equal(t, "COMPLETED", result.Status)
	require.Len(t, result.StepResults, 2)
	assert.Equal(t, "say", result.StepResults[0].StepID)
}

func TestRunWorkflowWithInputs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	path := tp.writeWorkflow("greet.yaml", `version: "1"
kind: Workflow
metadata:
  name: greet
inputs:
  who:
    type: string
    required: true
workflow:
  steps:
    - id: hello
      uses: core.echo
      with:
        message: "hi ${inputs.who}"
`)

	out := tp.runStdout("run", path, "--input", "who=e2e", "--json")
	assert.Contains(t, out, `"COMPLETED"`)
}

func TestRunContinueOnErrorFlag(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	path := tp.writeWorkflow("mixed.yaml", `version: "1"
kind: Workflow
metadata:
  name: mixed
workflow:
  steps:
    - id: boom
      uses: core.fail
      with:
        message: "expected"
    - id: still-runs
      uses: core.noop
`)

	// With --continue-on-error the failing step must not abort the run; the
	// workflow finishes in a partial state and the process still reports the
	// failure via its exit code.
	cmd := tp.run("run", path, "--continue-on-error", "--json")
	out, _ := cmd.CombinedOutput()
	assert.Contains(t, string(out), "still-runs",
		"sibling steps must execute despite the failure: %s", string(out))
}
