package e2e_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplainRendersPlan(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	path := tp.writeWorkflow("smoke.yaml", passingWorkflow())

	out := tp.runExpectSuccess("explain", path)
	assert.Contains(t, out, "smoke")
	assert.Contains(t, out, "say")
	assert.Contains(t, out, "after")
}

func TestExplainJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	path := tp.writeWorkflow("smoke.yaml", passingWorkflow())

	out := tp.runStdout("explain", path, "--json")

	var explanation struct {
		Summary struct {
			Name      string `json:"name"`
			StepCount int    `json:"stepCount"`
		} `json:"summary"`
		Phases []struct {
			Steps []string `json:"steps"`
		} `json:"phases"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &explanation),
		"explain --json must emit a JSON document: %s", out)

	assert.Equal(t, "smoke", explanation.Summary.Name)
	assert.Equal(t, 2, explanation.Summary.StepCount)
	require.Len(t, explanation.Phases, 2)
	assert.Equal(t, []string{"say"}, explanation.Phases[0].Steps)
}

func TestExplainRejectsMalformedWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	path := tp.writeWorkflow("empty.yaml", `version: "1"
kind: Workflow
metadata:
  name: empty
`)

	_, exitCode := tp.runExpectFailure("explain", path)
	assert.Equal(t, 2, exitCode)
}
