package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbyt-dev/orbyt/internal/action"
	"github.com/orbyt-dev/orbyt/internal/errs"
)

func newValidator() *Validator {
	reg := action.NewRegistry()
	action.RegisterBuiltins(reg)
	return NewValidator(reg)
}

func validatePlan(t *testing.T, src string) *ValidatedPlan {
	t.Helper()
	plan, errors := newValidator().Validate(parseDoc(t, src))
	require.Empty(t, errors)
	require.NotNil(t, plan)
	return plan
}

func validateErrors(t *testing.T, src string) []*errs.Error {
	t.Helper()
	plan, errors := newValidator().Validate(parseDoc(t, src))
	require.Nil(t, plan)
	require.NotEmpty(t, errors)
	return errors
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

func TestValidate_ProducesPlan(t *testing.T) {
	t.Parallel()
	plan := validatePlan(t, validDoc)

	assert.Equal(t, [][]string{{"build"}, {"publish"}}, plan.Phases())
	assert.Equal(t, plan.Workflow.Steps[1], plan.Step("publish"))
	assert.NotEmpty(t, plan.Fingerprint)
}

func TestValidate_FingerprintTracksStructure(t *testing.T) {
	t.Parallel()

	base := validatePlan(t, validDoc)
	same := validatePlan(t, validDoc)
	assert.Equal(t, base.Fingerprint, same.Fingerprint)

	reordered := validatePlan(t, `
version: "1"
kind: Workflow
metadata:
  name: release
workflow:
  steps:
    - id: publish
      uses: core.echo
    - id: build
      uses: core.echo
`)
	assert.NotEqual(t, base.Fingerprint, reordered.Fingerprint)
}

// ---------------------------------------------------------------------------
// Phase 1: security
// ---------------------------------------------------------------------------

func TestValidate_ReservedKeysRejected(t *testing.T) {
	t.Parallel()

	errors := validateErrors(t, `
version: "1"
kind: Workflow
context:
  _billingAccount: acme
annotations:
  orbyt.executionId: forged
workflow:
  steps:
    - id: a
      uses: core.noop
      with:
        _ownerId: someone
`)
	require.Len(t, errors, 3)
	for _, e := range errors {
		assert.Equal(t, errs.CodePermissionDenied, e.Code)
	}

	// Sorted walk order makes the report deterministic.
	assert.Equal(t, "annotations.orbyt.executionId", errors[0].Path)
	assert.Equal(t, "billing", errors[1].Context["fieldType"])
	assert.Equal(t, "ownership", errors[2].Context["fieldType"])
}

func TestValidate_SecurityRunsBeforeShape(t *testing.T) {
	t.Parallel()

	// The document is also missing version/kind, but the security phase
	// reports alone.
	errors := validateErrors(t, `
_internal: true
workflow:
  steps: []
`)
	require.Len(t, errors, 1)
	assert.Equal(t, errs.CodePermissionDenied, errors[0].Code)
}

// ---------------------------------------------------------------------------
// Phase 3: steps
// ---------------------------------------------------------------------------

func TestValidate_EmptyWorkflow(t *testing.T) {
	t.Parallel()

	errors := validateErrors(t, `
version: "1"
kind: Workflow
workflow:
  steps: []
`)
	require.Len(t, errors, 1)
	assert.Equal(t, errs.CodeEmptyWorkflow, errors[0].Code)
}

func TestValidate_DuplicateID(t *testing.T) {
	t.Parallel()

	errors := validateErrors(t, `
version: "1"
kind: Workflow
workflow:
  steps:
    - id: twice
      uses: core.noop
    - id: twice
      uses: core.noop
`)
	require.Len(t, errors, 1)
	assert.Equal(t, errs.CodeDuplicateID, errors[0].Code)
	assert.Equal(t, "workflow.steps[1].id", errors[0].Path)
}

func TestValidate_UnknownNeedWithSuggestion(t *testing.T) {
	t.Parallel()

	errors := validateErrors(t, `
version: "1"
kind: Workflow
workflow:
  steps:
    - id: build
      uses: core.noop
    - id: deploy
      uses: core.noop
      needs: [biuld]
`)
	require.Len(t, errors, 1)
	assert.Equal(t, errs.CodeUnknownStep, errors[0].Code)
	assert.Equal(t, "build", errors[0].Context["suggestion"])
}

func TestValidate_UnknownAdapter(t *testing.T) {
	t.Parallel()

	errors := validateErrors(t, `
version: "1"
kind: Workflow
workflow:
  steps:
    - id: a
      uses: core.ecoh
`)
	require.Len(t, errors, 1)
	assert.Equal(t, errs.CodeUnknownAdapter, errors[0].Code)
	assert.Equal(t, "core.echo", errors[0].Context["suggestion"])
	assert.Equal(t, "workflow.steps[0].uses", errors[0].Path)
}

func TestValidate_ForwardReference(t *testing.T) {
	t.Parallel()

	errors := validateErrors(t, `
version: "1"
kind: Workflow
workflow:
  steps:
    - id: early
      uses: core.echo
      with:
        peek: ${steps.late.value}
    - id: late
      uses: core.noop
`)
	require.Len(t, errors, 1)
	assert.Equal(t, errs.CodeForwardReference, errors[0].Code)
	assert.Equal(t, "late", errors[0].Context["reference"])
}

func TestValidate_SelfReferenceIsForward(t *testing.T) {
	t.Parallel()

	errors := validateErrors(t, `
version: "1"
kind: Workflow
workflow:
  steps:
    - id: loop
      uses: core.echo
      with:
        me: ${steps.loop.value}
`)
	require.Len(t, errors, 1)
	assert.Equal(t, errs.CodeForwardReference, errors[0].Code)
}

func TestValidate_ReferenceToUnknownStepOutput(t *testing.T) {
	t.Parallel()

	errors := validateErrors(t, `
version: "1"
kind: Workflow
workflow:
  steps:
    - id: a
      uses: core.echo
      with:
        v: ${steps.ghost.value}
`)
	require.Len(t, errors, 1)
	assert.Equal(t, errs.CodeUnknownStep, errors[0].Code)
}

func TestValidate_CollectsAllStepErrors(t *testing.T) {
	t.Parallel()

	errors := validateErrors(t, `
version: "1"
kind: Workflow
workflow:
  steps:
    - id: a
      uses: not.registered
      needs: [ghost]
    - id: b
      uses: also.missing
`)
	codes := make(map[errs.Code]int)
	for _, e := range errors {
		codes[e.Code]++
	}
	assert.Equal(t, 1, codes[errs.CodeUnknownStep])
	assert.Equal(t, 2, codes[errs.CodeUnknownAdapter])
}

// ---------------------------------------------------------------------------
// Phase 4: graph
// ---------------------------------------------------------------------------

func TestValidate_CycleReported(t *testing.T) {
	t.Parallel()

	errors := validateErrors(t, `
version: "1"
kind: Workflow
workflow:
  steps:
    - id: a
      uses: core.noop
      needs: [c]
    - id: b
      uses: core.noop
      needs: [a]
    - id: c
      uses: core.noop
      needs: [b]
`)
	require.Len(t, errors, 1)
	assert.Equal(t, errs.CodeCircularDependency, errors[0].Code)

	cycle, ok := errors[0].Context["cycle"].([]string)
	require.True(t, ok)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
	assert.Contains(t, errors[0].Message, " -> ")
}

func TestValidate_DiamondPhases(t *testing.T) {
	t.Parallel()

	plan := validatePlan(t, `
version: "1"
kind: Workflow
workflow:
  steps:
    - id: fetch
      uses: core.noop
    - id: lint
      uses: core.noop
      needs: [fetch]
    - id: test
      uses: core.noop
      needs: [fetch]
    - id: package
      uses: core.noop
      needs: [lint, test]
`)
	assert.Equal(t, [][]string{{"fetch"}, {"lint", "test"}, {"package"}}, plan.Phases())
	assert.Equal(t, 2, plan.Plan.MaxParallelism())
}
