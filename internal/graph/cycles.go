package graph

// Cycle detection. The primary entry point is FindCycle (three-color DFS,
// first cycle with its path); StronglyConnected (Tarjan) provides the
// richer all-components view used only by the explanation generator.

const (
	colorWhite = iota // unvisited
	colorGray         // on the current DFS path
	colorBlack        // fully processed
)

// FindCycle returns the path of the first dependency cycle found, as a step
// id sequence whose last element repeats the first (e.g. [a b c a]), or nil
// when the graph is acyclic. Traversal follows dependsOn edges in declared
// order starting from each node in declaration order, so the reported cycle
// is deterministic for a given definition.
func FindCycle(g *Graph) []string {
	color := make(map[string]int, len(g.nodes))
	parent := make(map[string]string, len(g.nodes))

	var cycle []string
	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = colorGray
		for _, dep := range g.dependsOn[node] {
			switch color[dep] {
			case colorGray:
				// Back-edge: walk parent pointers from node back to the
				// reopened node to reconstruct the path.
				path := []string{dep}
				for cur := node; ; cur = parent[cur] {
					path = append(path, cur)
					if cur == dep {
						break
					}
				}
				// path is [dep, node, ..., dep] in reverse walk order;
				// reverse it so edges follow needs direction.
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				cycle = path
				return true
			case colorWhite:
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = colorBlack
		return false
	}

	for _, id := range g.nodes {
		if color[id] == colorWhite {
			if dfs(id) {
				return cycle
			}
		}
	}
	return nil
}

// StronglyConnected returns every strongly connected component that forms a
// cycle: components with more than one node, plus single nodes that depend
// on themselves. Components are returned in discovery order; nodes within a
// component keep Tarjan's stack order.
func StronglyConnected(g *Graph) [][]string {
	index := 0
	indices := make(map[string]int, len(g.nodes))
	lowlink := make(map[string]int, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var stack []string
	var components [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.dependsOn[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indices[w] < lowlink[v] {
				lowlink[v] = indices[w]
			}
		}

		if lowlink[v] == indices[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			if len(comp) > 1 || selfLoop(g, v) {
				components = append(components, comp)
			}
		}
	}

	for _, id := range g.nodes {
		if _, seen := indices[id]; !seen {
			strongconnect(id)
		}
	}
	return components
}

func selfLoop(g *Graph, id string) bool {
	for _, dep := range g.dependsOn[id] {
		if dep == id {
			return true
		}
	}
	return false
}
