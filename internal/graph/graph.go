// Package graph builds and analyzes the step dependency graph: adjacency in
// both directions, cycle detection with path reporting, Kahn phase planning,
// and critical-path slack analysis.
package graph

import (
	"github.com/orbyt-dev/orbyt/internal/errs"
)

// Graph is the dependency graph over step ids. Edges follow `needs`
// declarations: dependsOn[s] lists what s needs (out-edges), dependents[s]
// is the inverted index (in-edges). The graph is immutable after Build.
type Graph struct {
	nodes      []string // declaration order, preserved for determinism
	nodeSet    map[string]bool
	dependsOn  map[string][]string
	dependents map[string][]string
}

// Build constructs the graph in a single pass over the declared step order
// and each step's needs list. Every edge target must be a declared step;
// an unknown target fails with VALIDATION_UNKNOWN_STEP.
func Build(order []string, needs map[string][]string) (*Graph, error) {
	g := &Graph{
		nodes:      append([]string(nil), order...),
		nodeSet:    make(map[string]bool, len(order)),
		dependsOn:  make(map[string][]string, len(order)),
		dependents: make(map[string][]string, len(order)),
	}
	for _, id := range order {
		g.nodeSet[id] = true
	}

	for _, id := range order {
		for _, dep := range needs[id] {
			if !g.nodeSet[dep] {
				return nil, errs.Newf(errs.CodeUnknownStep,
					"step %q needs unknown step %q", id, dep).
					WithContext("step", id).
					WithContext("missing", dep)
			}
			g.dependsOn[id] = append(g.dependsOn[id], dep)
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	return g, nil
}

// Nodes returns all step ids in declaration order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool { return g.nodeSet[id] }

// DependsOn returns the steps id needs, in declared order.
func (g *Graph) DependsOn(id string) []string {
	return append([]string(nil), g.dependsOn[id]...)
}

// Dependents returns the steps that need id.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// InDegree returns the number of dependencies id declares.
func (g *Graph) InDegree(id string) int { return len(g.dependsOn[id]) }

// Entries returns the entry set: steps with no dependencies, in declaration
// order. These form phase 0 of any plan.
func (g *Graph) Entries() []string {
	var out []string
	for _, id := range g.nodes {
		if len(g.dependsOn[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Exits returns the exit set: steps nothing depends on.
func (g *Graph) Exits() []string {
	var out []string
	for _, id := range g.nodes {
		if len(g.dependents[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }
