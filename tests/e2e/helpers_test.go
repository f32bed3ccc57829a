package e2e_test

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// testProject creates an isolated project directory with a built orbyt binary.
type testProject struct {
	Dir        string
	BinaryPath string
	t          *testing.T
}

// newTestProject builds the orbyt binary into a fresh temp directory and
// returns a testProject ready for use. Must be called from a test function;
// uses t.Helper() to mark itself accordingly.
func newTestProject(t *testing.T) *testProject {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("E2E tests are not supported on Windows")
	}

	dir := t.TempDir()

	binary := filepath.Join(dir, "orbyt")
	build := exec.Command("go", "build", "-o", binary, "./cmd/orbyt")
	build.Dir = projectRoot()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "building orbyt: %s", string(out))

	return &testProject{Dir: dir, BinaryPath: binary, t: t}
}

// projectRoot returns the absolute path to the root of the orbyt repository.
// It uses runtime.Caller(0) to find this source file's location and navigates
// two directories up (tests/e2e/ -> tests/ -> repo root).
func projectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	// thisFile is <repo>/tests/e2e/helpers_test.go; root is two dirs up.
	return filepath.Join(filepath.Dir(thisFile), "..", "..")
}

// writeConfig writes content to orbyt.toml in tp.Dir.
func (tp *testProject) writeConfig(content string) {
	tp.t.Helper()
	err := os.WriteFile(filepath.Join(tp.Dir, "orbyt.toml"), []byte(content), 0o644)
	require.NoError(tp.t, err)
}

// writeWorkflow writes a workflow file under tp.Dir and returns its path.
func (tp *testProject) writeWorkflow(name, content string) string {
	tp.t.Helper()
	path := filepath.Join(tp.Dir, name)
	require.NoError(tp.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tp.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run creates an exec.Cmd for orbyt rooted in the project directory.
func (tp *testProject) run(args ...string) *exec.Cmd {
	cmd := exec.Command(tp.BinaryPath, args...)
	cmd.Dir = tp.Dir
	cmd.Env = append(os.Environ(),
		"NO_COLOR=1",            // disable ANSI color in output
		"ORBYT_LOG_FORMAT=json", // structured logs for easier parsing
	)
	return cmd
}

// runExpectSuccess runs orbyt and asserts exit code 0.
// Returns combined stdout+stderr output.
func (tp *testProject) runExpectSuccess(args ...string) string {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.NoError(tp.t, err, "orbyt %v failed:\n%s", args, string(out))
	return string(out)
}

// runStdout runs orbyt, asserts exit code 0, and returns stdout alone so
// callers can parse machine-readable output without stderr log lines mixed in.
func (tp *testProject) runStdout(args ...string) string {
	tp.t.Helper()
	cmd := tp.run(args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	require.NoError(tp.t, err, "orbyt %v failed:\nstdout: %s\nstderr: %s",
		args, string(out), stderr.String())
	return string(out)
}

// runExpectFailure runs orbyt and asserts a non-zero exit code.
// Returns combined output and the exit code.
func (tp *testProject) runExpectFailure(args ...string) (string, int) {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.Error(tp.t, err, "orbyt %v expected to fail but succeeded:\n%s", args, string(out))
	var exitErr *exec.ExitError
	require.True(tp.t, errors.As(err, &exitErr), "expected *exec.ExitError, got %T: %v", err, err)
	return string(out), exitErr.ExitCode()
}

// passingWorkflow returns a two-step workflow whose steps always succeed.
func passingWorkflow() string {
	return `version: "1"
kind: Workflow
metadata:
  name: smoke
workflow:
  steps:
    - id: say
      uses: core.echo
      with:
        message: "hello from e2e"
      outputs:
        greeting: "${result.message}"
    - id: after
      uses: core.noop
      needs: [say]
`
}

// failingWorkflow returns a workflow whose single step always fails.
func failingWorkflow() string {
	return `version: "1"
kind: Workflow
metadata:
  name: doomed
workflow:
  steps:
    - id: boom
      uses: core.fail
      with:
        message: "intentional failure"
`
}

// invalidWorkflow returns a workflow referencing a step that does not exist,
// which must be rejected at validation time.
func invalidWorkflow() string {
	return `version: "1"
kind: Workflow
metadata:
  name: broken
workflow:
  steps:
    - id: only
      uses: core.noop
      needs: [missing]
`
}
