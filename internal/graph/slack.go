package graph

import "time"

// Timing is the per-step earliest-start / latest-start / slack analysis for
// a given duration estimate. It is consumed by the explanation generator,
// never by the executor: estimates have no effect on actual scheduling.
type Timing struct {
	// Earliest maps step id to its earliest possible start offset.
	Earliest map[string]time.Duration

	// Latest maps step id to the latest start that does not delay the
	// workflow's minimum completion time.
	Latest map[string]time.Duration

	// Slack is Latest minus Earliest. Zero-slack steps form the critical
	// path.
	Slack map[string]time.Duration

	// CriticalPath lists the zero-slack steps in topological order.
	CriticalPath []string

	// Total is the minimum wall-clock time for the whole workflow under
	// the estimate, assuming unlimited parallelism.
	Total time.Duration
}

// Analyze computes start-time bounds and slack for every step, given an
// estimated duration per step. plan must come from Phases on the same
// graph; it provides the topological order for both sweeps.
func Analyze(g *Graph, plan *Plan, estimate func(id string) time.Duration) *Timing {
	t := &Timing{
		Earliest: make(map[string]time.Duration, len(g.nodes)),
		Latest:   make(map[string]time.Duration, len(g.nodes)),
		Slack:    make(map[string]time.Duration, len(g.nodes)),
	}

	// Forward sweep: earliest[s] = max(earliest[d] + dur(d)) over needs.
	for _, phase := range plan.Phases {
		for _, id := range phase {
			var earliest time.Duration
			for _, dep := range g.dependsOn[id] {
				if finish := t.Earliest[dep] + estimate(dep); finish > earliest {
					earliest = finish
				}
			}
			t.Earliest[id] = earliest
			if finish := earliest + estimate(id); finish > t.Total {
				t.Total = finish
			}
		}
	}

	// Backward sweep: latest[s] = min(latest[dep]) - dur(s) over dependents;
	// exit steps may start as late as Total - dur(s).
	for i := len(plan.Phases) - 1; i >= 0; i-- {
		for _, id := range plan.Phases[i] {
			latest := t.Total - estimate(id)
			for _, dependent := range g.dependents[id] {
				if bound := t.Latest[dependent] - estimate(id); bound < latest {
					latest = bound
				}
			}
			t.Latest[id] = latest
			t.Slack[id] = latest - t.Earliest[id]
		}
	}

	// Zero-slack steps, in topological (phase) order.
	for _, phase := range plan.Phases {
		for _, id := range phase {
			if t.Slack[id] == 0 {
				t.CriticalPath = append(t.CriticalPath, id)
			}
		}
	}

	return t
}
