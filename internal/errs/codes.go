package errs

// Code is the stable ORB-<cat>-<n> identifier of an error condition.
// Codes are string-typed (not iota) so they round-trip cleanly through JSON
// results and can be switched on by embedders without importing this package.
type Code string

// Schema codes: structural problems in the raw workflow object.
const (
	CodeSchemaParse      Code = "ORB-S-001"
	CodeUnknownField     Code = "ORB-S-002"
	CodeMissingField     Code = "ORB-S-003"
	CodeTypeMismatch     Code = "ORB-S-004"
	CodeInvalidEnum      Code = "ORB-S-005"
	CodeInvalidDuration  Code = "ORB-S-006"
	CodeInvalidStepID    Code = "ORB-S-007"
	CodeUnsupportedShape Code = "ORB-S-008"
)

// Validation codes: cross-reference problems detected at plan time.
const (
	CodeDuplicateID        Code = "ORB-V-001"
	CodeUnknownStep        Code = "ORB-V-002"
	CodeUnknownAdapter     Code = "ORB-V-003"
	CodeEmptyWorkflow      Code = "ORB-V-004"
	CodeForwardReference   Code = "ORB-V-005"
	CodeCircularDependency Code = "ORB-V-006"
	CodeAmbiguousAdapter   Code = "ORB-V-007"
	CodeResolution         Code = "ORB-V-008"
)

// Execution codes: failures raised while steps run.
const (
	CodeExecutionTimeout Code = "ORB-E-001"
	CodeAdapterError     Code = "ORB-E-002"
	CodeStepFailed       Code = "ORB-E-003"
	CodeCancelled        Code = "ORB-E-004"
	CodeIllegalTransition Code = "ORB-E-005"
)

// Runtime codes: engine-level faults.
const (
	CodePermissionDenied  Code = "ORB-R-001"
	CodeResourceExhausted Code = "ORB-R-002"
	CodeReservedNamespace Code = "ORB-R-003"
	CodeDepthExceeded     Code = "ORB-R-004"
	CodeUnknownNamespace  Code = "ORB-R-005"
	CodeInternal          Code = "ORB-R-006"
)

// Process exit codes for CLI embedding. Every error code maps to exactly
// one of these via the code registry.
const (
	ExitOK         = 0
	ExitValidation = 1
	ExitFailed     = 2 // cycle detected, or a partial/failed workflow
	ExitTimeout    = 3
	ExitInternal   = 4
	ExitUsage      = 5
	ExitSecurity   = 6
)

// codeInfo is the registration record for a single code: its symbolic name,
// default severity, canonical hint, and process exit code.
type codeInfo struct {
	name     string
	severity Severity
	hint     string
	exitCode int
}

// codeTable registers every known code. New codes must be added here; an
// unregistered code falls back to internalInfo.
var codeTable = map[Code]codeInfo{
	// Schema.
	CodeSchemaParse:      {"SCHEMA_PARSE", SeverityFatal, "fix the document syntax before resubmitting", ExitValidation},
	CodeUnknownField:     {"SCHEMA_UNKNOWN_FIELD", SeverityError, "remove the field or check its spelling against the schema", ExitValidation},
	CodeMissingField:     {"SCHEMA_MISSING_FIELD", SeverityError, "add the required field", ExitValidation},
	CodeTypeMismatch:     {"SCHEMA_TYPE_MISMATCH", SeverityError, "change the value to the expected type", ExitValidation},
	CodeInvalidEnum:      {"SCHEMA_INVALID_ENUM", SeverityError, "use one of the allowed values", ExitValidation},
	CodeInvalidDuration:  {"SCHEMA_INVALID_DURATION", SeverityError, "use <int>{ms|s|m|h}, e.g. 30s or 500ms", ExitValidation},
	CodeInvalidStepID:    {"SCHEMA_INVALID_ID", SeverityError, "step ids must match [A-Za-z_][A-Za-z0-9_-]*", ExitValidation},
	CodeUnsupportedShape: {"SCHEMA_UNSUPPORTED_SHAPE", SeverityError, "check the workflow object structure against the schema", ExitValidation},

	// Validation.
	CodeDuplicateID:        {"VALIDATION_DUPLICATE_ID", SeverityError, "rename one of the duplicated steps", ExitValidation},
	CodeUnknownStep:        {"VALIDATION_UNKNOWN_STEP", SeverityError, "reference an existing step id in needs", ExitValidation},
	CodeUnknownAdapter:     {"VALIDATION_UNKNOWN_ADAPTER", SeverityError, "register the action handler or fix the uses reference", ExitValidation},
	CodeEmptyWorkflow:      {"VALIDATION_EMPTY_WORKFLOW", SeverityError, "add at least one step to workflow.steps", ExitValidation},
	CodeForwardReference:   {"VALIDATION_FORWARD_REFERENCE", SeverityError, "steps may only reference outputs of steps declared before them", ExitValidation},
	CodeCircularDependency: {"VALIDATION_CIRCULAR_DEPENDENCY", SeverityError, "break the dependency cycle listed in the error context", ExitFailed},
	CodeAmbiguousAdapter:   {"VALIDATION_AMBIGUOUS_ADAPTER", SeverityError, "narrow the handlers' supported action patterns so only one matches", ExitValidation},
	CodeResolution:         {"VALIDATION_RESOLUTION", SeverityError, "check the variable expression and the namespaces it reads", ExitValidation},

	// Execution.
	CodeExecutionTimeout:  {"EXECUTION_TIMEOUT", SeverityError, "raise the step timeout or speed up the action", ExitTimeout},
	CodeAdapterError:      {"EXECUTION_ADAPTER_ERROR", SeverityMedium, "inspect the action handler's error output", ExitFailed},
	CodeStepFailed:        {"EXECUTION_STEP_FAILED", SeverityMedium, "inspect the failed step's recorded error", ExitFailed},
	CodeCancelled:         {"EXECUTION_CANCELLED", SeverityError, "", ExitFailed},
	CodeIllegalTransition: {"EXECUTION_ILLEGAL_TRANSITION", SeverityFatal, "this indicates an engine bug; report it with the transition history", ExitInternal},

	// Runtime.
	CodePermissionDenied:  {"RUNTIME_PERMISSION_DENIED", SeverityCritical, "remove reserved or underscore-prefixed fields from the workflow", ExitSecurity},
	CodeResourceExhausted: {"RUNTIME_RESOURCE_EXHAUSTED", SeverityMedium, "retry later or raise the relevant resource limit", ExitFailed},
	CodeReservedNamespace: {"RUNTIME_RESERVED_NAMESPACE", SeverityError, "the telemetry, resources and compliance namespaces are reserved for future use", ExitValidation},
	CodeDepthExceeded:     {"RUNTIME_DEPTH_EXCEEDED", SeverityError, "variable expressions recursed too deeply; check for circular references", ExitValidation},
	CodeUnknownNamespace:  {"RUNTIME_UNKNOWN_NAMESPACE", SeverityError, "use one of: env, inputs, secrets, metadata, context, workflow, run, steps", ExitValidation},
	CodeInternal:          {"RUNTIME_INTERNAL", SeverityCritical, "this indicates an engine bug; please report it", ExitInternal},
}

// internalInfo is the fallback registration for unregistered codes.
var internalInfo = codeInfo{"RUNTIME_INTERNAL", SeverityCritical, "", ExitInternal}

// Known reports whether the code is registered in the table. Action
// handlers may tag failures with an engine code string; unknown tags fall
// back to generic adapter errors.
func (c Code) Known() bool {
	_, ok := codeTable[c]
	return ok
}

func lookup(code Code) codeInfo {
	if info, ok := codeTable[code]; ok {
		return info
	}
	return internalInfo
}

// Name returns the symbolic name registered for the code, e.g.
// "VALIDATION_DUPLICATE_ID" for ORB-V-001.
func (c Code) Name() string { return lookup(c).name }

// Category extracts the category letter from the code string. Codes that do
// not follow the ORB-<cat>-<n> form report CategoryRuntime.
func (c Code) Category() Category {
	s := string(c)
	if len(s) >= 5 && s[:4] == "ORB-" {
		switch Category(s[4:5]) {
		case CategorySchema:
			return CategorySchema
		case CategoryValidation:
			return CategoryValidation
		case CategoryExecution:
			return CategoryExecution
		}
	}
	return CategoryRuntime
}

// Severity returns the default severity registered for the code.
func (c Code) Severity() Severity { return lookup(c).severity }

// ExitCode returns the process exit code registered for the code.
func (c Code) ExitCode() int { return lookup(c).exitCode }
