package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rulepack/internal/ir"
)

// Cycle is a loop found in a rule flow's connection graph.
type Cycle struct {
	Process string   `json:"process"` // Rule flow id
	Path    []string `json:"path"`    // Node ids: ["a", "b", "a"]
}

// Message returns the human-readable form used as a package error summary.
func (c Cycle) Message() string {
	return fmt.Sprintf("cycle in ruleflow %s: %s", c.Process, strings.Join(c.Path, " → "))
}

// AnalyzeCycles finds every cycle in the connection graph of proc.
//
// The algorithm:
//  1. Build node → successors from the connections, in connection order
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1, or a single node with a self-loop
//
// Output is deterministic: nodes are visited in sorted order and each path
// starts at the smallest node id of its component.
func AnalyzeCycles(proc *ir.Process) []Cycle {
	if proc == nil || len(proc.Connections) == 0 {
		return nil
	}

	graph := buildFlowGraph(proc)
	var cycles []Cycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			slices.Sort(scc)
			cycles = append(cycles, Cycle{
				Process: proc.ID,
				Path:    reconstructCyclePath(scc, graph),
			})
		}
	}
	slices.SortFunc(cycles, func(a, b Cycle) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return cycles
}

// flowGraph maps node id → successor node ids.
type flowGraph map[string][]string

func buildFlowGraph(proc *ir.Process) flowGraph {
	graph := make(flowGraph)
	for _, n := range proc.Nodes {
		if graph[n.ID] == nil {
			graph[n.ID] = []string{}
		}
	}
	for _, c := range proc.Connections {
		graph[c.From] = append(graph[c.From], c.To)
		if graph[c.To] == nil {
			graph[c.To] = []string{}
		}
	}
	return graph
}

func hasSelfLoop(node string, graph flowGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph flowGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC.
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath returns the shortest cycle through the first SCC
// member. It searches breadth-first over edges that stay inside the SCC,
// taking successors in connection order, so the path always closes at
// the start.
func reconstructCyclePath(scc []string, graph flowGraph) []string {
	start := scc[0]
	if len(scc) == 1 {
		return []string{start, start}
	}

	inSCC := make(map[string]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range graph[current] {
			if !inSCC[next] {
				continue
			}
			if next == start {
				path := []string{start}
				for n := current; n != start; n = parent[n] {
					path = append(path, n)
				}
				path = append(path, start)
				slices.Reverse(path)
				return path
			}
			if _, seen := parent[next]; !seen {
				parent[next] = current
				queue = append(queue, next)
			}
		}
	}

	// A strongly connected component always has a way back to start.
	return []string{start}
}
