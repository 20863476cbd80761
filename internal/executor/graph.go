package executor

import (
	"sort"

	"github.com/harrison/agentflow/internal/learning"
	"github.com/harrison/agentflow/internal/models"
)

// DependencyGraph is the agent dependency graph of a plan set.
type DependencyGraph struct {
	Agents   []string            // insertion order
	Deps     map[string][]string // agent -> agents it waits for
	Edges    map[string][]string // agent -> agents waiting for it
	InDegree map[string]int
}

// BuildDependencyGraph constructs the graph. Dependencies on agents without
// a plan are left out of Edges and InDegree.
func BuildDependencyGraph(plans []*models.AgentExecutionPlan) *DependencyGraph {
	g := &DependencyGraph{
		Deps:     make(map[string][]string),
		Edges:    make(map[string][]string),
		InDegree: make(map[string]int),
	}
	ordered := append([]*models.AgentExecutionPlan(nil), plans...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	for _, p := range ordered {
		g.Agents = append(g.Agents, p.AgentName)
		g.InDegree[p.AgentName] = 0
	}
	for _, p := range ordered {
		g.Deps[p.AgentName] = append([]string(nil), p.Dependencies...)
		for _, dep := range p.Dependencies {
			if _, ok := g.InDegree[dep]; !ok {
				continue
			}
			g.Edges[dep] = append(g.Edges[dep], p.AgentName)
			g.InDegree[p.AgentName]++
		}
	}
	return g
}

// HasCycle reports whether the graph contains a cycle.
func (g *DependencyGraph) HasCycle() bool {
	return len(g.FindCycle()) > 0
}

// FindCycle returns the agents of one cycle, first agent repeated at the end,
// or nil. The search is a DFS with white/gray/black marking.
func (g *DependencyGraph) FindCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(g.Agents))
	var stack []string
	var cycle []string

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		stack = append(stack, node)
		for _, next := range g.Edges[node] {
			switch colors[next] {
			case gray:
				for i, s := range stack {
					if s == next {
						cycle = append(append([]string(nil), stack[i:]...), next)
						return true
					}
				}
			case white:
				if dfs(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[node] = black
		return false
	}

	for _, a := range g.Agents {
		if colors[a] == white && dfs(a) {
			return cycle
		}
	}
	return nil
}

// Waves lays the graph out into dispatchable batches, each within one
// topological layer and within the maxWeight resource budget.
func (g *DependencyGraph) Waves(maxWeight int) learning.ParallelPlan {
	return learning.OptimizeParallelExecution(g.Agents, g.Deps, maxWeight)
}
