package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

// build is a test helper that fails the test on construction errors.
func build(t *testing.T, order []string, needs map[string][]string) *Graph {
	t.Helper()
	g, err := Build(order, needs)
	require.NoError(t, err)
	return g
}

// diamond: a -> (b, c) -> d
func diamond(t *testing.T) *Graph {
	t.Helper()
	return build(t,
		[]string{"a", "b", "c", "d"},
		map[string][]string{
			"b": {"a"},
			"c": {"a"},
			"d": {"b", "c"},
		})
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

func TestBuild_Adjacency(t *testing.T) {
	t.Parallel()
	g := diamond(t)

	assert.Equal(t, []string{"a", "b", "c", "d"}, g.Nodes())
	assert.Equal(t, []string{"a"}, g.DependsOn("b"))
	assert.ElementsMatch(t, []string{"b", "c"}, g.Dependents("a"))
	assert.Equal(t, 2, g.InDegree("d"))
	assert.Equal(t, []string{"a"}, g.Entries())
	assert.Equal(t, []string{"d"}, g.Exits())
}

func TestBuild_UnknownTarget(t *testing.T) {
	t.Parallel()

	_, err := Build([]string{"a"}, map[string][]string{"a": {"ghost"}})
	require.Error(t, err)
	assert.Equal(t, errs.CodeUnknownStep, errs.CodeOf(err))
}

// ---------------------------------------------------------------------------
// FindCycle
// ---------------------------------------------------------------------------

func TestFindCycle_Acyclic(t *testing.T) {
	t.Parallel()
	assert.Nil(t, FindCycle(diamond(t)))
}

func TestFindCycle_ReportsPath(t *testing.T) {
	t.Parallel()

	g := build(t,
		[]string{"a", "b", "c"},
		map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}})

	cycle := FindCycle(g)
	require.NotNil(t, cycle)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
	assert.Len(t, cycle, 4)

	// Consecutive elements must be connected by a needs edge.
	for i := 0; i < len(cycle)-1; i++ {
		assert.Contains(t, g.DependsOn(cycle[i]), cycle[i+1],
			"%s must need %s", cycle[i], cycle[i+1])
	}
}

func TestFindCycle_SelfLoop(t *testing.T) {
	t.Parallel()

	g := build(t, []string{"a"}, map[string][]string{"a": {"a"}})
	assert.Equal(t, []string{"a", "a"}, FindCycle(g))
}

func TestFindCycle_CycleInDisconnectedSubgraph(t *testing.T) {
	t.Parallel()

	g := build(t,
		[]string{"ok", "x", "y"},
		map[string][]string{"x": {"y"}, "y": {"x"}})

	cycle := FindCycle(g)
	require.NotNil(t, cycle)
	assert.NotContains(t, cycle, "ok")
}

// ---------------------------------------------------------------------------
// StronglyConnected
// ---------------------------------------------------------------------------

func TestStronglyConnected(t *testing.T) {
	t.Parallel()

	g := build(t,
		[]string{"a", "b", "c", "solo", "loop"},
		map[string][]string{
			"a":    {"b"},
			"b":    {"c"},
			"c":    {"a"},
			"loop": {"loop"},
		})

	comps := StronglyConnected(g)
	require.Len(t, comps, 2)

	var sizes []int
	for _, c := range comps {
		sizes = append(sizes, len(c))
	}
	assert.ElementsMatch(t, []int{3, 1}, sizes)
}

func TestStronglyConnected_AcyclicIsEmpty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, StronglyConnected(diamond(t)))
}

// ---------------------------------------------------------------------------
// Phases
// ---------------------------------------------------------------------------

func TestPhases_Diamond(t *testing.T) {
	t.Parallel()

	plan, err := Phases(diamond(t))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, plan.Phases)
	assert.Equal(t, 0, plan.PhaseOf["a"])
	assert.Equal(t, 1, plan.PhaseOf["b"])
	assert.Equal(t, 2, plan.PhaseOf["d"])
	assert.Equal(t, 2, plan.MaxParallelism())
	assert.Equal(t, 3, plan.CriticalPathLength())
}

func TestPhases_TopologicalProperty(t *testing.T) {
	t.Parallel()

	g := build(t,
		[]string{"e1", "e2", "m1", "m2", "x"},
		map[string][]string{
			"m1": {"e1"},
			"m2": {"e1", "e2"},
			"x":  {"m1", "m2"},
		})
	plan, err := Phases(g)
	require.NoError(t, err)

	// Phase 0 is exactly the entry set.
	assert.Equal(t, []string{"e1", "e2"}, plan.Phases[0])

	// Every step is in exactly one phase and strictly after its needs.
	seen := map[string]int{}
	for _, phase := range plan.Phases {
		for _, id := range phase {
			seen[id]++
		}
	}
	for _, id := range g.Nodes() {
		assert.Equal(t, 1, seen[id], "step %s appears once", id)
		for _, dep := range g.DependsOn(id) {
			assert.Greater(t, plan.PhaseOf[id], plan.PhaseOf[dep])
		}
	}
}

func TestPhases_CycleSafetyNet(t *testing.T) {
	t.Parallel()

	g := build(t, []string{"a", "b"}, map[string][]string{"a": {"b"}, "b": {"a"}})
	_, err := Phases(g)
	require.Error(t, err)
	assert.Equal(t, errs.CodeCircularDependency, errs.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Analyze (slack)
// ---------------------------------------------------------------------------

func TestAnalyze_CriticalPath(t *testing.T) {
	t.Parallel()

	// a(10) -> b(50) -> d(10), a -> c(5) -> d; critical chain is a,b,d.
	g := diamond(t)
	plan, err := Phases(g)
	require.NoError(t, err)

	durations := map[string]time.Duration{
		"a": 10 * time.Millisecond,
		"b": 50 * time.Millisecond,
		"c": 5 * time.Millisecond,
		"d": 10 * time.Millisecond,
	}
	timing := Analyze(g, plan, func(id string) time.Duration { return durations[id] })

	assert.Equal(t, 70*time.Millisecond, timing.Total)
	assert.Equal(t, []string{"a", "b", "d"}, timing.CriticalPath)
	assert.Equal(t, time.Duration(0), timing.Slack["b"])
	assert.Equal(t, 45*time.Millisecond, timing.Slack["c"])
	assert.Equal(t, 10*time.Millisecond, timing.Earliest["b"])
	assert.Equal(t, 60*time.Millisecond, timing.Earliest["d"])
	assert.Equal(t, 55*time.Millisecond, timing.Latest["c"])
}

func TestAnalyze_SingleStep(t *testing.T) {
	t.Parallel()

	g := build(t, []string{"only"}, nil)
	plan, err := Phases(g)
	require.NoError(t, err)

	timing := Analyze(g, plan, func(string) time.Duration { return time.Second })
	assert.Equal(t, time.Second, timing.Total)
	assert.Equal(t, []string{"only"}, timing.CriticalPath)
}
