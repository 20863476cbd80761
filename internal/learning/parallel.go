package learning

// Resource weights per agent class.
const (
	WeightLight  = 1
	WeightMedium = 2
	WeightHeavy  = 3
)

// DefaultMaxBatchWeight bounds the summed weight of one parallel batch.
const DefaultMaxBatchWeight = 6

var agentWeights = map[string]int{
	"architect":             WeightHeavy,
	"project-architect":     WeightHeavy,
	"builder":               WeightHeavy,
	"ai-specialist":         WeightHeavy,
	"performance-optimizer": WeightHeavy,
	"frontend":              WeightMedium,
	"backend-developer":     WeightMedium,
	"api-integrator":        WeightMedium,
	"database-expert":       WeightMedium,
	"devops-engineer":       WeightMedium,
	"security-specialist":   WeightMedium,
	"debugger":              WeightMedium,
	"tester":                WeightLight,
	"test-engineer":         WeightLight,
	"code-reviewer":         WeightLight,
	"documentation":         WeightLight,
	"technical-writer":      WeightLight,
}

// Weight classifies agent; unknown agents are medium.
func Weight(agent string) int {
	if w, ok := agentWeights[agent]; ok {
		return w
	}
	return WeightMedium
}

// ParallelPlan is the output of OptimizeParallelExecution.
type ParallelPlan struct {
	Batches [][]string
	// Cycle lists the agents that could not be layered topologically.
	Cycle []string
}

// OptimizeParallelExecution groups agents into batches whose summed Weight
// stays within maxWeight. An agent heavier than maxWeight runs alone.
// When deps is non-nil agents are first split into topological layers and
// every batch lies inside one layer; agents stuck on a cycle are reported
// and treated as one final ready layer.
func OptimizeParallelExecution(agents []string, deps map[string][]string, maxWeight int) ParallelPlan {
	if maxWeight <= 0 {
		maxWeight = DefaultMaxBatchWeight
	}
	if deps == nil {
		return ParallelPlan{Batches: groupByWeight(agents, maxWeight)}
	}

	layers, cycle := layer(agents, deps)
	plan := ParallelPlan{Cycle: cycle}
	for _, l := range layers {
		plan.Batches = append(plan.Batches, groupByWeight(l, maxWeight)...)
	}
	return plan
}

func groupByWeight(agents []string, maxWeight int) [][]string {
	var batches [][]string
	var current []string
	weight := 0
	for _, a := range agents {
		w := Weight(a)
		if len(current) > 0 && weight+w > maxWeight {
			batches = append(batches, current)
			current, weight = nil, 0
		}
		current = append(current, a)
		weight += w
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// layer runs Kahn's algorithm over agents, ignoring dependencies on agents
// outside the list. Layer members keep their input order.
func layer(input []string, deps map[string][]string) ([][]string, []string) {
	present := make(map[string]bool, len(input))
	var agents []string
	for _, a := range input {
		if !present[a] {
			present[a] = true
			agents = append(agents, a)
		}
	}

	inDegree := make(map[string]int, len(agents))
	dependants := make(map[string][]string)
	for _, a := range agents {
		for _, d := range deps[a] {
			if !present[d] || d == a {
				continue
			}
			inDegree[a]++
			dependants[d] = append(dependants[d], a)
		}
	}

	done := make(map[string]bool, len(agents))
	var layers [][]string
	for len(done) < len(agents) {
		var ready []string
		for _, a := range agents {
			if !done[a] && inDegree[a] == 0 {
				ready = append(ready, a)
			}
		}
		if len(ready) == 0 {
			var rest []string
			for _, a := range agents {
				if !done[a] {
					rest = append(rest, a)
				}
			}
			return append(layers, rest), rest
		}
		for _, a := range ready {
			done[a] = true
			for _, dep := range dependants[a] {
				inDegree[dep]--
			}
		}
		layers = append(layers, ready)
	}
	return layers, nil
}
