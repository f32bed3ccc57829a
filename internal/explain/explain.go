// Package explain produces the read-only dry-run analysis of a workflow
// document: phased plan, per-step breakdown, data-flow prediction,
// conditional paths, time estimation, and cycle reporting. It never
// executes anything and never fails on a broken graph; it reports.
package explain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/orbyt-dev/orbyt/internal/graph"
	"github.com/orbyt-dev/orbyt/internal/resolve"
	"github.com/orbyt-dev/orbyt/internal/workflow"
)

// Band is a duration estimate band for one handler family.
type Band struct {
	Min time.Duration `json:"min"`
	Avg time.Duration `json:"avg"`
	Max time.Duration `json:"max"`
}

// Bands maps an action-name prefix (e.g. "core", "http") to its band.
// Lookup picks the longest matching prefix; the "" key is the fallback.
type Bands map[string]Band

// DefaultBands is used when no configuration supplies estimates.
var DefaultBands = Bands{
	"":     {Min: 50 * time.Millisecond, Avg: 500 * time.Millisecond, Max: 5 * time.Second},
	"core": {Min: time.Millisecond, Avg: 5 * time.Millisecond, Max: 50 * time.Millisecond},
}

// bandFor resolves the band for an action name by longest prefix.
func (b Bands) bandFor(uses string) Band {
	best, bestLen := b[""], -1
	for prefix, band := range b {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(uses, prefix) && len(prefix) > bestLen {
			best, bestLen = band, len(prefix)
		}
	}
	return best
}

// bottleneckFactor flags critical-path steps whose average estimate
// dominates the path mean.
const bottleneckFactor = 1.5

// Summary is the workflow-level header of an explanation.
type Summary struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	StepCount   int               `json:"stepCount"`
	Adapters    []string          `json:"adapters"`
	Policies    workflow.Policies `json:"policies"`
}

// Phase is one scheduling round.
type Phase struct {
	Index       int      `json:"index"`
	Steps       []string `json:"steps"`
	Parallelism int      `json:"parallelism"`
}

// Source classifies where a step input comes from.
type Source struct {
	// Kind is one of "workflow.inputs", "step.output", "context",
	// "secrets", "env", "static".
	Kind string `json:"kind"`

	// StepID is set when Kind is "step.output".
	StepID string `json:"stepId,omitempty"`
}

// StepDetail is the per-step breakdown.
type StepDetail struct {
	ID             string              `json:"id"`
	Uses           string              `json:"uses"`
	Needs          []string            `json:"needs,omitempty"`
	When           string              `json:"when,omitempty"`
	Timeout        time.Duration       `json:"timeout,omitempty"`
	Retry          workflow.Retry      `json:"retry"`
	InputsUsed     []string            `json:"inputsUsed,omitempty"`
	SecretsUsed    []string            `json:"secretsUsed,omitempty"`
	Sources        []Source            `json:"sources,omitempty"`
	Consumers      map[string][]string `json:"consumers,omitempty"` // output alias -> consuming step ids
	Estimate       Band                `json:"estimate"`
	OnCriticalPath bool                `json:"onCriticalPath"`
	Bottleneck     bool                `json:"bottleneck"`
}

// Path is one conditional execution path.
type Path struct {
	Name     string   `json:"name"`
	Executed []string `json:"executed"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Estimate is the aggregate time prediction along the critical path.
type Estimate struct {
	Min          time.Duration `json:"min"`
	Avg          time.Duration `json:"avg"`
	Max          time.Duration `json:"max"`
	CriticalPath []string      `json:"criticalPath,omitempty"`
	Bottlenecks  []string      `json:"bottlenecks,omitempty"`
}

// Explanation is the complete analysis.
type Explanation struct {
	Summary  Summary      `json:"summary"`
	Phases   []Phase      `json:"phases,omitempty"`
	Steps    []StepDetail `json:"steps"`
	Paths    []Path       `json:"paths,omitempty"`
	Estimate Estimate     `json:"estimate"`

	// Cycles lists dependency cycles when the graph is not executable.
	// Phases and Estimate are empty in that case.
	Cycles [][]string `json:"cycles,omitempty"`
}

// Generate analyzes a loaded definition. It builds its own graph so that
// cyclic workflows still produce a useful report instead of an error.
func Generate(def *workflow.Definition, bands Bands) *Explanation {
	if bands == nil {
		bands = DefaultBands
	}

	ex := &Explanation{
		Summary: Summary{
			Name:        def.Metadata.Name,
			Description: def.Metadata.Description,
			Version:     def.Metadata.Version,
			StepCount:   len(def.Steps),
			Adapters:    def.Adapters(),
			Policies:    def.Policies,
		},
	}

	needs := make(map[string][]string, len(def.Steps))
	for _, s := range def.Steps {
		needs[s.ID] = s.Needs
	}
	g, err := graph.Build(def.StepIDs(), needs)
	if err != nil {
		// Unknown needs targets; report what we can without a graph.
		ex.Steps = stepDetails(def, nil, bands)
		ex.Paths = conditionalPaths(def)
		return ex
	}

	if graph.FindCycle(g) != nil {
		// Report every cyclic component rather than just the first path.
		ex.Cycles = graph.StronglyConnected(g)
		ex.Steps = stepDetails(def, nil, bands)
		ex.Paths = conditionalPaths(def)
		return ex
	}

	plan, perr := graph.Phases(g)
	if perr != nil {
		ex.Steps = stepDetails(def, nil, bands)
		return ex
	}

	for i, phase := range plan.Phases {
		ex.Phases = append(ex.Phases, Phase{Index: i, Steps: phase, Parallelism: len(phase)})
	}

	timing := graph.Analyze(g, plan, func(id string) time.Duration {
		if s := stepByID(def, id); s != nil {
			return bands.bandFor(s.Uses).Avg
		}
		return bands.bandFor("").Avg
	})

	critical := make(map[string]bool, len(timing.CriticalPath))
	for _, id := range timing.CriticalPath {
		critical[id] = true
	}

	ex.Steps = stepDetails(def, critical, bands)
	ex.Paths = conditionalPaths(def)
	ex.Estimate = estimate(def, timing, bands)

	for i := range ex.Steps {
		d := &ex.Steps[i]
		if d.OnCriticalPath && d.Bottleneck {
			ex.Estimate.Bottlenecks = append(ex.Estimate.Bottlenecks, d.ID)
		}
	}
	return ex
}

func stepByID(def *workflow.Definition, id string) *workflow.Step {
	for _, s := range def.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func stepDetails(def *workflow.Definition, critical map[string]bool, bands Bands) []StepDetail {
	// Mean of critical-path averages, for bottleneck flagging.
	var pathMean time.Duration
	if len(critical) > 0 {
		var total time.Duration
		for id := range critical {
			if s := stepByID(def, id); s != nil {
				total += bands.bandFor(s.Uses).Avg
			}
		}
		pathMean = total / time.Duration(len(critical))
	}

	details := make([]StepDetail, 0, len(def.Steps))
	for _, s := range def.Steps {
		band := bands.bandFor(s.Uses)
		d := StepDetail{
			ID:             s.ID,
			Uses:           s.Uses,
			Needs:          s.Needs,
			When:           s.When,
			Timeout:        def.EffectiveTimeout(s, 0),
			Retry:          s.Retry,
			InputsUsed:     namespaceRefs(s, resolve.NSInputs),
			SecretsUsed:    namespaceRefs(s, resolve.NSSecrets),
			Sources:        sources(s),
			Consumers:      consumers(def, s),
			Estimate:       band,
			OnCriticalPath: critical[s.ID],
		}
		if d.OnCriticalPath && pathMean > 0 &&
			float64(band.Avg) > bottleneckFactor*float64(pathMean) {
			d.Bottleneck = true
		}
		details = append(details, d)
	}
	return details
}

// namespaceRefs collects the distinct references a step makes into one
// namespace, across with, env, and when.
func namespaceRefs(s *workflow.Step, ns string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(refs []string) {
		for _, r := range refs {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	add(resolve.NamespaceRefs(s.With, ns))
	add(resolve.NamespaceRefs(s.When, ns))
	for _, expr := range s.Env {
		add(resolve.NamespaceRefs(expr, ns))
	}
	sort.Strings(out)
	return out
}

// sources predicts where each step's inputs come from.
func sources(s *workflow.Step) []Source {
	var out []Source
	seen := map[string]bool{}
	add := func(kind, stepID string) {
		key := kind + "\x00" + stepID
		if !seen[key] {
			seen[key] = true
			out = append(out, Source{Kind: kind, StepID: stepID})
		}
	}

	refs, _ := resolve.Refs(s.With)
	envAny := make(map[string]any, len(s.Env))
	for k, v := range s.Env {
		envAny[k] = v
	}
	envRefs, _ := resolve.Refs(envAny)
	refs = append(refs, envRefs...)

	for _, ref := range refs {
		switch ref.Namespace {
		case resolve.NSInputs:
			add("workflow.inputs", "")
		case resolve.NSSteps:
			if len(ref.Parts) > 1 {
				add("step.output", ref.Parts[1])
			}
		case resolve.NSContext:
			add("context", "")
		case resolve.NSSecrets:
			add("secrets", "")
		case resolve.NSEnv:
			add("env", "")
		}
	}

	if hasStaticValues(s.With) {
		add("static", "")
	}
	return out
}

// hasStaticValues reports whether any leaf in the mapping carries no
// variable expression at all.
func hasStaticValues(v any) bool {
	switch node := v.(type) {
	case map[string]any:
		for _, item := range node {
			if hasStaticValues(item) {
				return true
			}
		}
		return false
	case []any:
		for _, item := range node {
			if hasStaticValues(item) {
				return true
			}
		}
		return false
	case string:
		return !strings.Contains(node, "${")
	case nil:
		return false
	default:
		return true
	}
}

// consumers finds, for each declared output alias of s, the later steps
// whose with/env mention steps.<id>.<alias>.
func consumers(def *workflow.Definition, s *workflow.Step) map[string][]string {
	if len(s.Outputs) == 0 {
		return nil
	}

	out := make(map[string][]string, len(s.Outputs))
	for alias := range s.Outputs {
		needle := fmt.Sprintf("steps.%s.%s", s.ID, alias)
		var consumersOf []string
		for _, other := range def.Steps {
			if other.ID == s.ID {
				continue
			}
			if mentions(other.With, needle) || mentionsEnv(other.Env, needle) {
				consumersOf = append(consumersOf, other.ID)
			}
		}
		out[alias] = consumersOf
	}
	return out
}

func mentions(v any, needle string) bool {
	switch node := v.(type) {
	case map[string]any:
		for _, item := range node {
			if mentions(item, needle) {
				return true
			}
		}
	case []any:
		for _, item := range node {
			if mentions(item, needle) {
				return true
			}
		}
	case string:
		return strings.Contains(node, needle)
	}
	return false
}

func mentionsEnv(env map[string]string, needle string) bool {
	for _, v := range env {
		if strings.Contains(v, needle) {
			return true
		}
	}
	return false
}

// conditionalPaths enumerates the two boundary paths: every condition
// true and every condition false. Skipping does not cascade to dependents;
// that mirrors execution semantics.
func conditionalPaths(def *workflow.Definition) []Path {
	var conditional, unconditional []string
	for _, s := range def.Steps {
		if s.When != "" {
			conditional = append(conditional, s.ID)
		} else {
			unconditional = append(unconditional, s.ID)
		}
	}

	all := def.StepIDs()
	paths := []Path{
		{Name: "all-conditions-true", Executed: all},
	}
	if len(conditional) > 0 {
		paths = append(paths, Path{
			Name:     "all-conditions-false",
			Executed: unconditional,
			Skipped:  conditional,
		})
	}
	return paths
}

func estimate(def *workflow.Definition, timing *graph.Timing, bands Bands) Estimate {
	est := Estimate{CriticalPath: timing.CriticalPath}
	for _, id := range timing.CriticalPath {
		if s := stepByID(def, id); s != nil {
			band := bands.bandFor(s.Uses)
			est.Min += band.Min
			est.Avg += band.Avg
			est.Max += band.Max
		}
	}
	return est
}
