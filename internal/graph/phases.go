package graph

import (
	"strings"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

// Plan is the phased execution order produced by Kahn's algorithm. Each
// phase is a set of step ids whose dependencies are fully contained in the
// union of prior phases; members of a phase may run in parallel.
type Plan struct {
	// Phases holds step ids per phase, each phase in declaration order.
	Phases [][]string

	// PhaseOf maps every step id to its phase index.
	PhaseOf map[string]int
}

// Phases computes the phased plan. Each round emits every not-yet-emitted
// node whose remaining in-degree is zero; if a round finds no such node
// while nodes remain, the graph contains a cycle. That case is a safety net
// only: validation runs FindCycle first and reports the actual path.
func Phases(g *Graph) (*Plan, error) {
	remaining := make(map[string]int, len(g.nodes))
	for _, id := range g.nodes {
		remaining[id] = len(g.dependsOn[id])
	}

	plan := &Plan{PhaseOf: make(map[string]int, len(g.nodes))}
	emitted := 0

	for emitted < len(g.nodes) {
		var phase []string
		for _, id := range g.nodes {
			if _, done := plan.PhaseOf[id]; done {
				continue
			}
			if remaining[id] == 0 {
				phase = append(phase, id)
			}
		}
		if len(phase) == 0 {
			var stuck []string
			for _, id := range g.nodes {
				if _, done := plan.PhaseOf[id]; !done {
					stuck = append(stuck, id)
				}
			}
			return nil, errs.Newf(errs.CodeCircularDependency,
				"cannot order steps %s: dependency cycle", strings.Join(stuck, ", ")).
				WithContext("steps", stuck)
		}

		idx := len(plan.Phases)
		plan.Phases = append(plan.Phases, phase)
		for _, id := range phase {
			plan.PhaseOf[id] = idx
			emitted++
			for _, dependent := range g.dependents[id] {
				remaining[dependent]--
			}
		}
	}

	return plan, nil
}

// MaxParallelism returns the size of the largest phase.
func (p *Plan) MaxParallelism() int {
	max := 0
	for _, phase := range p.Phases {
		if len(phase) > max {
			max = len(phase)
		}
	}
	return max
}

// CriticalPathLength returns the number of phases: the length of the longest
// dependency chain.
func (p *Plan) CriticalPathLength() int { return len(p.Phases) }
