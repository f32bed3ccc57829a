package e2e_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionsListsBuiltins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	out := tp.runExpectSuccess("actions")

	for _, name := range []string{"core.echo", "core.noop", "core.sleep", "core.fail", "core.log"} {
		assert.Contains(t, out, name)
	}
}

func TestActionsJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	out := tp.runStdout("actions", "--json")

	var handlers []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &handlers),
		"actions --json must emit a JSON array: %s", out)
	assert.NotEmpty(t, handlers)
}
