package resolve

import (
	"time"

	"github.com/google/uuid"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

// evalBuiltin evaluates one of the builtin functions against the scope.
// Scope-derived builtins pull from the workflow and run identity records;
// time-derived builtins re-evaluate on every call, which is why retried
// steps that interpolate now() see a fresh value on each attempt.
func evalBuiltin(name string, scope *Scope) (any, error) {
	switch name {
	case "now":
		return time.Now().UTC().Format(time.RFC3339), nil
	case "uuid":
		return uuid.NewString(), nil
	case "timestamp":
		return time.Now().UnixMilli(), nil
	case "workflowId":
		return scope.Workflow.ID, nil
	case "workflowName":
		return scope.Workflow.Name, nil
	case "runId":
		return scope.Run.ID, nil
	case "attempt":
		return scope.Run.Attempt, nil
	case "triggeredBy":
		return scope.Run.TriggeredBy, nil
	default:
		return nil, errs.Newf(errs.CodeResolution, "unknown builtin function %q()", name)
	}
}

// builtinNames lists every builtin for documentation and explain output.
var builtinNames = []string{
	"now", "uuid", "timestamp", "workflowId", "workflowName", "runId", "attempt", "triggeredBy",
}

// BuiltinNames returns the names of all builtin functions, in a fixed order.
func BuiltinNames() []string {
	out := make([]string, len(builtinNames))
	copy(out, builtinNames)
	return out
}
