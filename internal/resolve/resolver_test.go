package resolve

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

// newTestScope builds a scope with a representative population of every
// active namespace.
func newTestScope() *Scope {
	s := NewScope()
	s.Env = map[string]any{"HOME": "/home/u", "EMPTY": ""}
	s.Inputs = map[string]any{"port": float64(8080), "host": "db.local", "flag": true}
	s.Secrets = map[string]any{"token": "s3cr3t"}
	s.Context = map[string]any{"region": "eu-west-1"}
	s.Metadata = map[string]any{"team": "platform"}
	s.Workflow = WorkflowInfo{ID: "wf-1", Name: "deploy", Version: "2", Owner: "ops", Tags: []string{"ci"}}
	s.Run = RunInfo{ID: "run-9", Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), Attempt: 2, TriggeredBy: "cli"}
	s.SetStepOutput("build", map[string]any{"artifact": "app.tar", "size": float64(123)})
	return s
}

// ---------------------------------------------------------------------------
// Round-trip and exact-expression typing
// ---------------------------------------------------------------------------

func TestResolve_RoundTripWithoutExpressions(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	for _, v := range []any{"plain", float64(7), true, nil, []any{"a", float64(1)}, map[string]any{"k": "v"}} {
		got, err := Resolve(v, s)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestResolve_ExactExpressionKeepsType(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	got, err := Resolve("${inputs.port}", s)
	require.NoError(t, err)
	assert.Equal(t, float64(8080), got)

	got, err = Resolve("${inputs.flag}", s)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = Resolve("${steps.build.size}", s)
	require.NoError(t, err)
	assert.Equal(t, float64(123), got)
}

func TestResolve_TextualSubstitution(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	got, err := Resolve("http://${inputs.host}:${inputs.port}/x", s)
	require.NoError(t, err)
	assert.Equal(t, "http://db.local:8080/x", got)

	// Missing and null substitutions become the empty string.
	got, err = Resolve("<${env.MISSING}>", s)
	require.NoError(t, err)
	assert.Equal(t, "<>", got)
}

func TestResolve_Structural(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	in := map[string]any{
		"url":  "${inputs.host}",
		"list": []any{"${inputs.port}", "static"},
		"deep": map[string]any{"token": "${secrets.token}"},
	}
	got, err := Resolve(in, s)
	require.NoError(t, err)

	m := got.(map[string]any)
	assert.Equal(t, "db.local", m["url"])
	assert.Equal(t, []any{float64(8080), "static"}, m["list"])
	assert.Equal(t, "s3cr3t", m["deep"].(map[string]any)["token"])
}

// ---------------------------------------------------------------------------
// Default operator
// ---------------------------------------------------------------------------

func TestResolve_DefaultOperator(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	tests := []struct {
		name string
		expr string
		want any
	}{
		{"absent uses default", "${env.MISSING || 'd'}", "d"},
		{"empty string uses default", "${env.EMPTY || 'd'}", "d"},
		{"present wins", "${env.HOME || 'd'}", "/home/u"},
		{"typed left preserved", "${inputs.port || 9090}", float64(8080)},
		{"numeric literal default", "${env.MISSING || 42}", 42},
		{"boolean literal default", "${env.MISSING || false}", false},
		{"null literal default", "${env.MISSING || null}", nil},
		{"chained defaults", "${env.MISSING || env.EMPTY || 'last'}", "last"},
		{"missing step absorbed", "${steps.nope.out || 'fallback'}", "fallback"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(tt.expr, s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_DefaultDoesNotAbsorbHardErrors(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	_, err := Resolve("${telemetry.cpu || 'x'}", s)
	require.Error(t, err)
	assert.Equal(t, errs.CodeReservedNamespace, errs.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

func TestResolve_Builtins(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	got, err := Resolve("${uuid()}", s)
	require.NoError(t, err)
	_, parseErr := uuid.Parse(got.(string))
	assert.NoError(t, parseErr)

	got, err = Resolve("${now()}", s)
	require.NoError(t, err)
	_, parseErr = time.Parse(time.RFC3339, got.(string))
	assert.NoError(t, parseErr)

	got, err = Resolve("${timestamp()}", s)
	require.NoError(t, err)
	assert.IsType(t, int64(0), got)

	for expr, want := range map[string]any{
		"${workflowId()}":   "wf-1",
		"${workflowName()}": "deploy",
		"${runId()}":        "run-9",
		"${attempt()}":      2,
		"${triggeredBy()}":  "cli",
	} {
		got, err := Resolve(expr, s)
		require.NoError(t, err, expr)
		assert.Equal(t, want, got, expr)
	}

	_, err = Resolve("${nonsense()}", s)
	require.Error(t, err)
	assert.Equal(t, errs.CodeResolution, errs.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Namespace rules
// ---------------------------------------------------------------------------

func TestResolve_WorkflowAndRunNamespaces(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	got, err := Resolve("${workflow.name}/${run.id}", s)
	require.NoError(t, err)
	assert.Equal(t, "deploy/run-9", got)

	got, err = Resolve("${run.attempt}", s)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestResolve_ReservedNamespaces(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	for _, ns := range []string{"telemetry", "resources", "compliance"} {
		_, err := Resolve("${"+ns+".anything}", s)
		require.Error(t, err, ns)
		assert.Equal(t, errs.CodeReservedNamespace, errs.CodeOf(err), ns)
	}
}

func TestResolve_UnknownNamespace(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	_, err := Resolve("${bogus.key}", s)
	require.Error(t, err)
	assert.Equal(t, errs.CodeUnknownNamespace, errs.CodeOf(err))
	assert.Contains(t, err.Error(), "steps")
}

func TestResolve_MissingStepListsAvailable(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	_, err := Resolve("${steps.deploy.url}", s)
	require.Error(t, err)
	e := errs.As(err)
	require.NotNil(t, e)
	assert.Equal(t, errs.CodeResolution, e.Code)
	assert.Contains(t, e.Message, "build")
	assert.Equal(t, []string{"build"}, e.Context["available"])
}

// ---------------------------------------------------------------------------
// Depth cap
// ---------------------------------------------------------------------------

func TestResolve_DepthCapOnCircularReference(t *testing.T) {
	t.Parallel()
	s := newTestScope()
	s.Context["loop"] = "${context.loop}"

	_, err := Resolve("${context.loop}", s)
	require.Error(t, err)
	assert.Equal(t, errs.CodeDepthExceeded, errs.CodeOf(err))
}

func TestResolve_IndirectExpressionWithinBudget(t *testing.T) {
	t.Parallel()
	s := newTestScope()
	s.Context["indirect"] = "${inputs.host}"

	got, err := Resolve("${context.indirect}", s)
	require.NoError(t, err)
	assert.Equal(t, "db.local", got)
}

// ---------------------------------------------------------------------------
// Parser edges
// ---------------------------------------------------------------------------

func TestResolve_QuotedBraceInsideExpression(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	got, err := Resolve("${env.MISSING || '}'}", s)
	require.NoError(t, err)
	assert.Equal(t, "}", got)
}

func TestResolve_MalformedExpressions(t *testing.T) {
	t.Parallel()
	s := newTestScope()

	for _, expr := range []string{"${}", "${a..b}", "${'open}", "${1 2}", "${env.X ||}"} {
		_, err := Resolve(expr, s)
		assert.Error(t, err, expr)
	}

	_, err := Resolve("prefix ${unterminated", s)
	require.Error(t, err)
	assert.Equal(t, errs.CodeResolution, errs.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Static reference extraction
// ---------------------------------------------------------------------------

func TestStepRefs(t *testing.T) {
	t.Parallel()

	v := map[string]any{
		"a": "${steps.build.artifact}",
		"b": []any{"${steps.test.report || steps.build.log}", "${inputs.x}"},
		"c": "${steps.build.size}",
	}
	assert.ElementsMatch(t, []string{"build", "test"}, StepRefs(v))
}

func TestNamespaceRefs(t *testing.T) {
	t.Parallel()

	v := map[string]any{
		"x": "${inputs.port}",
		"y": "${inputs.host || 'h'}",
		"z": "${secrets.token}",
	}
	assert.ElementsMatch(t, []string{"port", "host"}, NamespaceRefs(v, NSInputs))
	assert.Equal(t, []string{"token"}, NamespaceRefs(v, NSSecrets))
}

func TestRefs_ReportsParseErrors(t *testing.T) {
	t.Parallel()

	_, errors := Refs("${a..b}")
	assert.NotEmpty(t, errors)
}

// ---------------------------------------------------------------------------
// Scope step outputs
// ---------------------------------------------------------------------------

func TestScope_StepOutputsAreCopies(t *testing.T) {
	t.Parallel()

	s := NewScope()
	s.SetStepOutput("a", map[string]any{"k": "v"})

	snap := s.StepOutputs()
	snap["a"].(map[string]any)["k"] = "mutated"

	out, ok := s.StepOutput("a")
	require.True(t, ok)
	assert.Equal(t, "v", out.(map[string]any)["k"])
}
