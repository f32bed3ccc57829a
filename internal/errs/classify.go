package errs

import (
	"fmt"
	"strings"
)

// DetectionType names the scenario an ErrorContext describes. Each type
// dispatches to a factory that produces the right code and severity.
type DetectionType string

const (
	DetectParse          DetectionType = "parse"
	DetectUnknownField   DetectionType = "unknown_field"
	DetectMissingField   DetectionType = "missing_field"
	DetectTypeMismatch   DetectionType = "type_mismatch"
	DetectInvalidEnum    DetectionType = "invalid_enum"
	DetectDuplicate      DetectionType = "duplicate"
	DetectCycle          DetectionType = "cycle"
	DetectTimeout        DetectionType = "timeout"
	DetectPermission     DetectionType = "permission"
	DetectAdapterFailure DetectionType = "adapter_failure"
)

// ErrorContext describes a detected error condition in a policy-neutral way.
// Detect turns it into a concrete *Error.
type ErrorContext struct {
	// Type selects the factory.
	Type DetectionType

	// Field is the offending field or key name, when applicable.
	Field string

	// Location is a path into the workflow object, e.g. "workflow.steps[2]".
	Location string

	// Expected and Actual describe a mismatch (expected type, allowed enum
	// values, etc.).
	Expected string
	Actual   string

	// Data carries scenario-specific payload (e.g. a cycle path, the set of
	// valid field names for suggestions).
	Data map[string]any
}

// Detect dispatches ctx to the factory for its type and returns the
// resulting structured error. Unknown detection types produce an internal
// error so they surface loudly rather than being silently dropped.
func Detect(ctx ErrorContext) *Error {
	var e *Error
	switch ctx.Type {
	case DetectParse:
		e = Newf(CodeSchemaParse, "cannot parse workflow document: %s", ctx.Actual)
	case DetectUnknownField:
		e = Newf(CodeUnknownField, "unknown field %q", ctx.Field)
		if valid, ok := ctx.Data["valid"].([]string); ok {
			if suggestion, found := Suggest(ctx.Field, valid); found {
				e.WithContext("suggestion", suggestion)
				e.Message = fmt.Sprintf("unknown field %q (did you mean %q?)", ctx.Field, suggestion)
			}
			e.WithContext("valid", valid)
		}
	case DetectMissingField:
		e = Newf(CodeMissingField, "required field %q is missing", ctx.Field)
	case DetectTypeMismatch:
		e = Newf(CodeTypeMismatch, "field %q: expected %s, got %s", ctx.Field, ctx.Expected, ctx.Actual)
	case DetectInvalidEnum:
		e = Newf(CodeInvalidEnum, "field %q: %q is not one of %s", ctx.Field, ctx.Actual, ctx.Expected)
	case DetectDuplicate:
		e = Newf(CodeDuplicateID, "duplicate step id %q", ctx.Field)
	case DetectCycle:
		e = New(CodeCircularDependency, "workflow contains a dependency cycle")
		if path, ok := ctx.Data["cycle"].([]string); ok {
			e.WithContext("cycle", path)
			e.Message = "dependency cycle: " + strings.Join(path, " -> ")
		}
	case DetectTimeout:
		e = Newf(CodeExecutionTimeout, "step %q timed out", ctx.Field)
	case DetectPermission:
		e = Newf(CodePermissionDenied, "field %q is reserved and cannot be set by workflow authors", ctx.Field).
			WithContext("fieldType", ReservedFieldType(ctx.Field))
	case DetectAdapterFailure:
		e = Newf(CodeAdapterError, "action handler failed: %s", ctx.Actual)
	default:
		e = Newf(CodeInternal, "unhandled error detection type %q", ctx.Type)
	}

	if ctx.Location != "" {
		e.WithPath(ctx.Location)
	}
	if ctx.Field != "" && e.Context["field"] == nil {
		e.WithContext("field", ctx.Field)
	}
	return e
}

// classifyTokens maps message substrings to detection types, checked in
// order. The first matching token set wins.
var classifyTokens = []struct {
	tokens []string
	typ    DetectionType
}{
	{[]string{"yaml", "parse", "syntax"}, DetectParse},
	{[]string{"unknown field"}, DetectUnknownField},
	{[]string{"missing", "required"}, DetectMissingField},
	{[]string{"circular", "cycle"}, DetectCycle},
	{[]string{"duplicate"}, DetectDuplicate},
	{[]string{"timeout"}, DetectTimeout},
	{[]string{"permission", "denied"}, DetectPermission},
	{[]string{"type", "expected"}, DetectTypeMismatch},
}

// Classify wraps a raw error (typically thrown by an action handler or a
// third-party parser) into a structured *Error by pattern-matching its
// message. Already-structured errors are returned unchanged; unmatched
// messages become adapter errors so they enter the retry policy rather than
// aborting the workflow outright.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e := As(err); e != nil {
		return e
	}

	msg := strings.ToLower(err.Error())
	for _, entry := range classifyTokens {
		for _, tok := range entry.tokens {
			if strings.Contains(msg, tok) {
				out := Detect(ErrorContext{Type: entry.typ, Actual: err.Error()})
				out.cause = err
				return out
			}
		}
	}

	return Wrap(CodeAdapterError, err, "unclassified action failure")
}

// ReservedFieldType infers which engine concern a reserved field name
// belongs to. Used as the fieldType context value on permission errors.
func ReservedFieldType(name string) string {
	lower := strings.ToLower(strings.TrimPrefix(name, "_"))
	switch {
	case strings.Contains(lower, "billing"), strings.Contains(lower, "cost"), strings.Contains(lower, "credit"):
		return "billing"
	case strings.Contains(lower, "execution"), strings.Contains(lower, "runtime"):
		return "execution"
	case strings.Contains(lower, "identity"), strings.Contains(lower, "user"), strings.Contains(lower, "account"):
		return "identity"
	case strings.Contains(lower, "owner"), strings.Contains(lower, "tenant"):
		return "ownership"
	case strings.Contains(lower, "usage"), strings.Contains(lower, "quota"), strings.Contains(lower, "meter"):
		return "usage"
	default:
		return "internal"
	}
}
