package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// ControlFor
// ---------------------------------------------------------------------------

func TestControlFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		severity Severity
		want     Control
	}{
		{SeverityCritical, ControlStopWorkflow},
		{SeverityFatal, ControlStopWorkflow},
		{SeverityError, ControlStopWorkflow},
		{SeverityMedium, ControlStopStep},
		{SeverityLow, ControlContinue},
		{SeverityWarning, ControlContinue},
		{SeverityInfo, ControlContinue},
		{Severity("BOGUS"), ControlStopWorkflow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ControlFor(tt.severity), "severity %s", tt.severity)
	}
}

// ---------------------------------------------------------------------------
// Code registry
// ---------------------------------------------------------------------------

func TestCodeTable_EveryCodeHasNameAndExit(t *testing.T) {
	t.Parallel()

	for code, info := range codeTable {
		assert.NotEmpty(t, info.name, "code %s has no symbolic name", code)
		assert.NotEmpty(t, info.severity, "code %s has no severity", code)
		// Exit codes must be in the documented range; 0 is success only.
		assert.GreaterOrEqual(t, info.exitCode, ExitValidation, "code %s", code)
		assert.LessOrEqual(t, info.exitCode, ExitSecurity, "code %s", code)
	}
}

func TestCode_Category(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CategorySchema, CodeSchemaParse.Category())
	assert.Equal(t, CategoryValidation, CodeDuplicateID.Category())
	assert.Equal(t, CategoryExecution, CodeExecutionTimeout.Category())
	assert.Equal(t, CategoryRuntime, CodePermissionDenied.Category())
	assert.Equal(t, CategoryRuntime, Code("garbage").Category())
}

func TestExitCodes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExitValidation, CodeDuplicateID.ExitCode())
	assert.Equal(t, ExitFailed, CodeCircularDependency.ExitCode())
	assert.Equal(t, ExitTimeout, CodeExecutionTimeout.ExitCode())
	assert.Equal(t, ExitSecurity, CodePermissionDenied.ExitCode())
	assert.Equal(t, ExitInternal, CodeInternal.ExitCode())
}

// ---------------------------------------------------------------------------
// Error construction and wrapping
// ---------------------------------------------------------------------------

func TestNew_TakesSeverityAndHintFromRegistry(t *testing.T) {
	t.Parallel()

	e := New(CodeAdapterError, "boom")
	assert.Equal(t, SeverityMedium, e.Severity)
	assert.NotEmpty(t, e.Hint)
	assert.Equal(t, ControlStopStep, e.Control())
	assert.Equal(t, "[ORB-E-002] boom", e.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	e := Wrap(CodeAdapterError, cause, "calling http handler")

	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "connection refused")
}

func TestAs_UnwrapsThroughFmtErrorf(t *testing.T) {
	t.Parallel()

	inner := New(CodeUnknownStep, "no such step")
	wrapped := fmt.Errorf("validating: %w", inner)

	got := As(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeUnknownStep, got.Code)
	assert.Nil(t, As(errors.New("plain")))
}

func TestWithContext_And_ContextKeys(t *testing.T) {
	t.Parallel()

	e := New(CodeUnknownField, "x").
		WithContext("zebra", 1).
		WithContext("alpha", 2).
		WithPath("workflow.steps[0]")

	assert.Equal(t, []string{"alpha", "zebra"}, e.ContextKeys())
	assert.Equal(t, "workflow.steps[0]", e.Path)
}

// ---------------------------------------------------------------------------
// Detect
// ---------------------------------------------------------------------------

func TestDetect_UnknownFieldSuggestion(t *testing.T) {
	t.Parallel()

	e := Detect(ErrorContext{
		Type:     DetectUnknownField,
		Field:    "timout",
		Location: "workflow.steps[2]",
		Data:     map[string]any{"valid": []string{"timeout", "retry", "needs"}},
	})

	assert.Equal(t, CodeUnknownField, e.Code)
	assert.Equal(t, "timeout", e.Context["suggestion"])
	assert.Equal(t, "workflow.steps[2]", e.Path)
	assert.Contains(t, e.Message, "did you mean")
}

func TestDetect_CycleCarriesPath(t *testing.T) {
	t.Parallel()

	e := Detect(ErrorContext{
		Type: DetectCycle,
		Data: map[string]any{"cycle": []string{"a", "b", "c", "a"}},
	})

	assert.Equal(t, CodeCircularDependency, e.Code)
	assert.Equal(t, []string{"a", "b", "c", "a"}, e.Context["cycle"])
	assert.Contains(t, e.Message, "a -> b -> c -> a")
}

func TestDetect_PermissionInfersFieldType(t *testing.T) {
	t.Parallel()

	e := Detect(ErrorContext{Type: DetectPermission, Field: "_billing_tier"})
	assert.Equal(t, CodePermissionDenied, e.Code)
	assert.Equal(t, "billing", e.Context["fieldType"])
	assert.Equal(t, ExitSecurity, e.ExitCode())
}

// ---------------------------------------------------------------------------
// Classify
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"yaml", errors.New("yaml: line 4: mapping values"), CodeSchemaParse},
		{"unknown field", errors.New(`unknown field "stpes"`), CodeUnknownField},
		{"missing", errors.New("field version is required"), CodeMissingField},
		{"cycle", errors.New("circular dependency between a and b"), CodeCircularDependency},
		{"duplicate", errors.New("duplicate id x"), CodeDuplicateID},
		{"timeout", errors.New("context deadline exceeded: timeout"), CodeExecutionTimeout},
		{"permission", errors.New("permission denied: /etc/shadow"), CodePermissionDenied},
		{"type", errors.New("expected string, got int"), CodeTypeMismatch},
		{"fallback", errors.New("socket hangup"), CodeAdapterError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.err)
			if tt.err == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Code)
			// Cause must be preserved for post-mortem inspection.
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_PassesThroughStructuredErrors(t *testing.T) {
	t.Parallel()

	orig := New(CodeResourceExhausted, "pool drained")
	assert.Same(t, orig, Classify(orig))
}

// ---------------------------------------------------------------------------
// Suggest
// ---------------------------------------------------------------------------

func TestSuggest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		candidates []string
		want       string
		found      bool
	}{
		{"close match", "timout", []string{"timeout", "retry"}, "timeout", true},
		{"case insensitive", "NEEDS", []string{"needs"}, "needs", true},
		{"no match", "zzzzzz", []string{"timeout", "retry"}, "", false},
		{"empty input", "", []string{"timeout"}, "", false},
		{"no candidates", "timeout", nil, "", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, found := Suggest(tt.input, tt.candidates)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ---------------------------------------------------------------------------
// Retryability and exit-code helpers
// ---------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(New(CodeExecutionTimeout, "x")))
	assert.True(t, IsRetryable(New(CodeAdapterError, "x")))
	assert.True(t, IsRetryable(New(CodeResourceExhausted, "x")))
	assert.False(t, IsRetryable(New(CodeStepFailed, "x")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExitOK, ExitCodeFor(nil))
	assert.Equal(t, ExitTimeout, ExitCodeFor(New(CodeExecutionTimeout, "x")))
	assert.Equal(t, ExitInternal, ExitCodeFor(errors.New("plain")))
}
