package workflow

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

// Recognized key sets, used both for shape checking and for typo
// suggestions on unknown fields.
var (
	topLevelKeys = []string{
		"version", "kind", "workflow", "metadata", "annotations", "inputs",
		"secrets", "context", "defaults", "policies", "outputs",
	}
	workflowKeys = []string{"steps"}
	metadataKeys = []string{"name", "description", "version", "tags", "owner", "createdAt", "updatedAt"}
	stepKeys     = []string{
		"id", "uses", "name", "with", "when", "needs", "retry",
		"timeout", "continueOnError", "outputs", "env",
	}
	retryKeys    = []string{"max", "backoff", "delay"}
	inputKeys    = []string{"type", "required", "default", "description"}
	secretsKeys  = []string{"vault", "keys"}
	defaultsKeys = []string{"timeout", "adapter"}
	policiesKeys = []string{"failure", "concurrency", "sandbox"}

	inputTypes      = []string{"string", "number", "boolean", "object", "array"}
	failurePolicies = []string{FailureStop, FailureContinue, FailureIsolate}
	sandboxPolicies = []string{SandboxNone, SandboxBasic, SandboxStrict}
	backoffKinds    = []string{BackoffLinear, BackoffExponential}
)

// Parse unmarshals a YAML document into the untrusted object form the
// loader and validator consume.
func Parse(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Detect(errs.ErrorContext{
			Type:   errs.DetectParse,
			Actual: err.Error(),
		})
	}
	if doc == nil {
		return nil, errs.New(errs.CodeSchemaParse, "workflow document is empty")
	}
	return doc, nil
}

// loader accumulates shape errors while walking the untrusted document.
type loader struct {
	errors []*errs.Error
}

// Load builds a Definition from an untrusted object. Shape violations are
// collected rather than aborting on the first, so authors see every problem
// in one pass. The returned definition is only meaningful when the error
// slice is empty.
func Load(doc map[string]any) (*Definition, []*errs.Error) {
	l := &loader{}
	def := l.load(doc)
	return def, l.errors
}

func (l *loader) load(doc map[string]any) *Definition {
	l.checkKnownKeys(doc, topLevelKeys, "")

	def := &Definition{
		Version:     l.requireString(doc, "version", "version"),
		Annotations: l.stringMap(doc["annotations"], "annotations"),
		Context:     l.anyMap(doc["context"], "context"),
	}

	if def.Version != "" && !contains(SchemaVersions, def.Version) {
		l.enum("version", def.Version, SchemaVersions)
	}
	if kind := l.requireString(doc, "kind", "kind"); kind != "" && kind != Kind {
		l.enum("kind", kind, []string{Kind})
	}

	def.Metadata = l.metadata(doc["metadata"])
	def.Inputs = l.inputs(doc["inputs"])
	def.Secrets = l.secrets(doc["secrets"])
	def.Defaults = l.defaults(doc["defaults"])
	def.Policies = l.policies(doc["policies"])
	def.Outputs = l.stringMap(doc["outputs"], "outputs")
	def.Steps = l.steps(doc)
	return def
}

func (l *loader) steps(doc map[string]any) []*Step {
	wf, ok := doc["workflow"].(map[string]any)
	if !ok {
		l.missing("workflow")
		return nil
	}
	l.checkKnownKeys(wf, workflowKeys, "workflow")

	raw, ok := wf["steps"].([]any)
	if !ok {
		l.missing("workflow.steps")
		return nil
	}

	steps := make([]*Step, 0, len(raw))
	for i, item := range raw {
		loc := fmt.Sprintf("workflow.steps[%d]", i)
		m, ok := item.(map[string]any)
		if !ok {
			l.mismatch(loc, "mapping", typeName(item))
			continue
		}
		steps = append(steps, l.step(m, i, loc))
	}
	return steps
}

func (l *loader) step(m map[string]any, index int, loc string) *Step {
	l.checkKnownKeys(m, stepKeys, loc)

	s := &Step{
		Index:   index,
		ID:      l.requireString(m, "id", loc+".id"),
		Name:    l.optionalString(m, "name", loc+".name"),
		Uses:    l.requireString(m, "uses", loc+".uses"),
		When:    l.optionalString(m, "when", loc+".when"),
		With:    l.anyMap(m["with"], loc+".with"),
		Needs:   l.stringList(m["needs"], loc+".needs"),
		Outputs: l.stringMap(m["outputs"], loc+".outputs"),
		Env:     l.stringMap(m["env"], loc+".env"),
		Timeout: l.duration(m, "timeout", loc+".timeout"),
	}

	if s.ID != "" && !IDPattern.MatchString(s.ID) {
		l.errors = append(l.errors, errs.Newf(errs.CodeInvalidStepID,
			"step id %q does not match %s", s.ID, IDPattern.String()).
			WithPath(loc+".id").
			WithContext("id", s.ID))
	}

	if v, present := m["continueOnError"]; present {
		b, ok := v.(bool)
		if !ok {
			l.mismatch(loc+".continueOnError", "boolean", typeName(v))
		}
		s.ContinueOnError = b
	}

	if v, present := m["retry"]; present {
		s.Retry = l.retry(v, loc+".retry")
	}
	return s
}

func (l *loader) retry(v any, loc string) Retry {
	m, ok := v.(map[string]any)
	if !ok {
		l.mismatch(loc, "mapping", typeName(v))
		return Retry{}
	}
	l.checkKnownKeys(m, retryKeys, loc)

	r := Retry{
		Backoff: l.optionalString(m, "backoff", loc+".backoff"),
		Delay:   l.duration(m, "delay", loc+".delay"),
	}
	if r.Backoff != "" && !contains(backoffKinds, r.Backoff) {
		l.enum(loc+".backoff", r.Backoff, backoffKinds)
	}
	if v, present := m["max"]; present {
		n, ok := asInt(v)
		if !ok || n < 0 {
			l.mismatch(loc+".max", "non-negative integer", typeName(v))
		}
		r.Max = n
	}
	return r
}

func (l *loader) metadata(v any) Metadata {
	if v == nil {
		return Metadata{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		l.mismatch("metadata", "mapping", typeName(v))
		return Metadata{}
	}
	l.checkKnownKeys(m, metadataKeys, "metadata")
	return Metadata{
		Name:        l.optionalString(m, "name", "metadata.name"),
		Description: l.optionalString(m, "description", "metadata.description"),
		Version:     l.optionalString(m, "version", "metadata.version"),
		Owner:       l.optionalString(m, "owner", "metadata.owner"),
		CreatedAt:   l.optionalString(m, "createdAt", "metadata.createdAt"),
		UpdatedAt:   l.optionalString(m, "updatedAt", "metadata.updatedAt"),
		Tags:        l.stringList(m["tags"], "metadata.tags"),
	}
}

func (l *loader) inputs(v any) map[string]InputSpec {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		l.mismatch("inputs", "mapping", typeName(v))
		return nil
	}

	out := make(map[string]InputSpec, len(m))
	for name, raw := range m {
		loc := "inputs." + name
		spec, ok := raw.(map[string]any)
		if !ok {
			l.mismatch(loc, "mapping", typeName(raw))
			continue
		}
		l.checkKnownKeys(spec, inputKeys, loc)

		in := InputSpec{
			Type:        l.optionalString(spec, "type", loc+".type"),
			Description: l.optionalString(spec, "description", loc+".description"),
			Default:     spec["default"],
		}
		if in.Type != "" && !contains(inputTypes, in.Type) {
			l.enum(loc+".type", in.Type, inputTypes)
		}
		if r, present := spec["required"]; present {
			b, ok := r.(bool)
			if !ok {
				l.mismatch(loc+".required", "boolean", typeName(r))
			}
			in.Required = b
		}
		out[name] = in
	}
	return out
}

func (l *loader) secrets(v any) SecretsSpec {
	if v == nil {
		return SecretsSpec{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		l.mismatch("secrets", "mapping", typeName(v))
		return SecretsSpec{}
	}
	l.checkKnownKeys(m, secretsKeys, "secrets")
	return SecretsSpec{
		Vault: l.optionalString(m, "vault", "secrets.vault"),
		Keys:  l.stringList(m["keys"], "secrets.keys"),
	}
}

func (l *loader) defaults(v any) Defaults {
	if v == nil {
		return Defaults{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		l.mismatch("defaults", "mapping", typeName(v))
		return Defaults{}
	}
	l.checkKnownKeys(m, defaultsKeys, "defaults")
	return Defaults{
		Timeout: l.duration(m, "timeout", "defaults.timeout"),
		Adapter: l.optionalString(m, "adapter", "defaults.adapter"),
	}
}

func (l *loader) policies(v any) Policies {
	if v == nil {
		return Policies{Failure: FailureStop, Sandbox: SandboxNone}
	}
	m, ok := v.(map[string]any)
	if !ok {
		l.mismatch("policies", "mapping", typeName(v))
		return Policies{Failure: FailureStop, Sandbox: SandboxNone}
	}
	l.checkKnownKeys(m, policiesKeys, "policies")

	p := Policies{
		Failure: l.optionalString(m, "failure", "policies.failure"),
		Sandbox: l.optionalString(m, "sandbox", "policies.sandbox"),
	}
	if p.Failure == "" {
		p.Failure = FailureStop
	} else if !contains(failurePolicies, p.Failure) {
		l.enum("policies.failure", p.Failure, failurePolicies)
	}
	if p.Sandbox == "" {
		p.Sandbox = SandboxNone
	} else if !contains(sandboxPolicies, p.Sandbox) {
		l.enum("policies.sandbox", p.Sandbox, sandboxPolicies)
	}
	if v, present := m["concurrency"]; present {
		n, ok := asInt(v)
		if !ok || n < 1 {
			l.mismatch("policies.concurrency", "positive integer", typeName(v))
		}
		p.Concurrency = n
	}
	return p
}

// ---------------------------------------------------------------------------
// primitives
// ---------------------------------------------------------------------------

func (l *loader) checkKnownKeys(m map[string]any, valid []string, loc string) {
	for key := range m {
		if contains(valid, key) {
			continue
		}
		path := key
		if loc != "" {
			path = loc + "." + key
		}
		l.errors = append(l.errors, errs.Detect(errs.ErrorContext{
			Type:     errs.DetectUnknownField,
			Field:    key,
			Location: path,
			Data:     map[string]any{"valid": valid},
		}))
	}
}

func (l *loader) requireString(m map[string]any, key, loc string) string {
	v, present := m[key]
	if !present {
		l.missing(loc)
		return ""
	}
	s, ok := v.(string)
	if !ok {
		l.mismatch(loc, "string", typeName(v))
		return ""
	}
	return s
}

func (l *loader) optionalString(m map[string]any, key, loc string) string {
	v, present := m[key]
	if !present || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		l.mismatch(loc, "string", typeName(v))
		return ""
	}
	return s
}

func (l *loader) duration(m map[string]any, key, loc string) time.Duration {
	v, present := m[key]
	if !present || v == nil {
		return 0
	}
	s, ok := v.(string)
	if !ok {
		l.mismatch(loc, "duration string", typeName(v))
		return 0
	}
	if !DurationPattern.MatchString(s) {
		l.errors = append(l.errors, errs.Newf(errs.CodeInvalidDuration,
			"%s: %q is not a duration (expected <int>{ms|s|m|h})", loc, s).
			WithPath(loc).
			WithContext("value", s))
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		l.errors = append(l.errors, errs.Newf(errs.CodeInvalidDuration,
			"%s: cannot parse duration %q", loc, s).WithPath(loc))
		return 0
	}
	return d
}

func (l *loader) stringList(v any, loc string) []string {
	if v == nil {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		l.mismatch(loc, "sequence of strings", typeName(v))
		return nil
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			l.mismatch(fmt.Sprintf("%s[%d]", loc, i), "string", typeName(item))
			continue
		}
		out = append(out, s)
	}
	return out
}

func (l *loader) stringMap(v any, loc string) map[string]string {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		l.mismatch(loc, "mapping of strings", typeName(v))
		return nil
	}
	out := make(map[string]string, len(m))
	for key, raw := range m {
		s, ok := raw.(string)
		if !ok {
			l.mismatch(loc+"."+key, "string", typeName(raw))
			continue
		}
		out[key] = s
	}
	return out
}

func (l *loader) anyMap(v any, loc string) map[string]any {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		l.mismatch(loc, "mapping", typeName(v))
		return nil
	}
	return m
}

func (l *loader) missing(loc string) {
	l.errors = append(l.errors, errs.Detect(errs.ErrorContext{
		Type:     errs.DetectMissingField,
		Field:    lastSegment(loc),
		Location: loc,
	}))
}

func (l *loader) mismatch(loc, expected, actual string) {
	l.errors = append(l.errors, errs.Detect(errs.ErrorContext{
		Type:     errs.DetectTypeMismatch,
		Field:    lastSegment(loc),
		Location: loc,
		Expected: expected,
		Actual:   actual,
	}))
}

func (l *loader) enum(loc, actual string, valid []string) {
	l.errors = append(l.errors, errs.Detect(errs.ErrorContext{
		Type:     errs.DetectInvalidEnum,
		Field:    lastSegment(loc),
		Location: loc,
		Expected: "{" + strings.Join(valid, "|") + "}",
		Actual:   actual,
	}))
}

func contains(set []string, s string) bool {
	for _, item := range set {
		if item == s {
			return true
		}
	}
	return false
}

func lastSegment(loc string) string {
	if i := strings.LastIndex(loc, "."); i >= 0 {
		return loc[i+1:]
	}
	return loc
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, float64:
		return "number"
	case []any:
		return "sequence"
	case map[string]any:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
