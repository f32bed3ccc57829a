package workflow

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/orbyt-dev/orbyt/internal/graph"
)

// ValidatedPlan is the immutable product of validation: the definition,
// its dependency graph, the phase plan, and an id-keyed step index. It is
// safe to share across executions and goroutines.
type ValidatedPlan struct {
	Workflow *Definition
	Graph    *graph.Graph
	Plan     *graph.Plan
	StepByID map[string]*Step

	// Fingerprint identifies the plan's structure: two documents that
	// produce the same steps, wiring, and adapters hash identically.
	Fingerprint string
}

func newPlan(def *Definition, g *graph.Graph, plan *graph.Plan) *ValidatedPlan {
	byID := make(map[string]*Step, len(def.Steps))
	for _, s := range def.Steps {
		byID[s.ID] = s
	}
	return &ValidatedPlan{
		Workflow:    def,
		Graph:       g,
		Plan:        plan,
		StepByID:    byID,
		Fingerprint: fingerprint(def),
	}
}

// Step returns the step for an id, or nil.
func (p *ValidatedPlan) Step(id string) *Step { return p.StepByID[id] }

// Phases returns the execution phases.
func (p *ValidatedPlan) Phases() [][]string { return p.Plan.Phases }

// fingerprint hashes the structural identity of the definition: version,
// workflow name, and each step's id, uses, and needs in declared order.
// Cosmetic fields (names, descriptions, annotations) do not participate.
func fingerprint(def *Definition) string {
	h := xxhash.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.WriteString(p)
			h.WriteString("\x00")
		}
	}

	write("v1", def.Version, def.Metadata.Name)
	for _, s := range def.Steps {
		write(s.ID, s.Uses, strings.Join(s.Needs, ","), s.When)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
