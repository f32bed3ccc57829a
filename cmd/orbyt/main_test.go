package main_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// projectRoot returns the absolute path to the project root directory.
func projectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "failed to get working directory")

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (no go.mod found in any parent directory)")
		}
		dir = parent
	}
}

// buildBinary compiles the orbyt binary into a temp dir and returns its path.
func buildBinary(t *testing.T) string {
	t.Helper()

	root := projectRoot(t)
	binPath := filepath.Join(t.TempDir(), "orbyt")

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/orbyt/")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "go build failed: %s", string(output))
	return binPath
}

func TestBuild_Compiles(t *testing.T) {
	binPath := buildBinary(t)

	info, err := os.Stat(binPath)
	require.NoError(t, err, "binary was not created at %s", binPath)
	assert.Greater(t, info.Size(), int64(0), "binary must not be empty")
}

func TestBinary_NoArgsShowsHelp(t *testing.T) {
	binPath := buildBinary(t)

	// With no arguments the root command prints its help and exits 0.
	output, err := exec.Command(binPath).CombinedOutput()
	require.NoError(t, err, "binary execution failed with output: %s", string(output))

	outputStr := string(output)
	assert.Contains(t, outputStr, "orbyt", "help must mention the binary name")
	assert.Contains(t, outputStr, "Usage:", "help must include a usage section")
	assert.Contains(t, outputStr, "run", "help must list the run command")
	assert.Contains(t, outputStr, "validate", "help must list the validate command")
}

func TestBinary_Version(t *testing.T) {
	binPath := buildBinary(t)

	output, err := exec.Command(binPath, "version").CombinedOutput()
	require.NoError(t, err, "version command failed: %s", string(output))
	assert.Contains(t, string(output), "orbyt", "version output must mention the binary name")
}

func TestBinary_ValidationFailureExitCode(t *testing.T) {
	binPath := buildBinary(t)

	// A workflow with an unknown dependency must exit with the validation
	// exit code (2).
	dir := t.TempDir()
	wf := filepath.Join(dir, "bad.yaml")
	doc := strings.Join([]string{
		"version: \"1\"",
		"kind: Workflow",
		"metadata:",
		"  name: bad",
		"workflow:",
		"  steps:",
		"    - id: a",
		"      uses: core.noop",
		"      needs: [missing]",
	}, "\n")
	require.NoError(t, os.WriteFile(wf, []byte(doc), 0o644))

	cmd := exec.Command(binPath, "validate", wf)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	require.Error(t, err, "validate must fail for an invalid workflow")

	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "error must be an ExitError, got %T (output: %s)", err, output)
	assert.Equal(t, 2, exitErr.ExitCode(), "validation failures exit with code 2")
}

func TestGoVet_Passes(t *testing.T) {
	root := projectRoot(t)

	cmd := exec.Command("go", "vet", "./...")
	cmd.Dir = root

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "go vet failed with output: %s", string(output))
}

func TestGoModTidy_NoChanges(t *testing.T) {
	root := projectRoot(t)

	goModBefore, err := os.ReadFile(filepath.Join(root, "go.mod"))
	require.NoError(t, err, "failed to read go.mod before tidy")

	goSumBefore, err := os.ReadFile(filepath.Join(root, "go.sum"))
	require.NoError(t, err, "failed to read go.sum before tidy")

	cmd := exec.Command("go", "mod", "tidy")
	cmd.Dir = root

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "go mod tidy failed: %s", string(output))

	goModAfter, err := os.ReadFile(filepath.Join(root, "go.mod"))
	require.NoError(t, err, "failed to read go.mod after tidy")

	goSumAfter, err := os.ReadFile(filepath.Join(root, "go.sum"))
	require.NoError(t, err, "failed to read go.sum after tidy")

	assert.Equal(t, string(goModBefore), string(goModAfter),
		"go mod tidy should not change go.mod (modules are clean)")
	assert.Equal(t, string(goSumBefore), string(goSumAfter),
		"go mod tidy should not change go.sum (modules are clean)")
}
