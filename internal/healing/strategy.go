package healing

import (
	"fmt"
	"strings"
)

// Strategy is a rung on the recovery ladder. The numeric value is the tier.
type Strategy int

// Recovery strategies, in escalation order.
const (
	RetrySame Strategy = iota + 1
	RetryWithContext
	TriggerDebugger
	UseAlternativeAgent
	ManualIntervention
)

// String returns the wire name of the strategy.
func (s Strategy) String() string {
	switch s {
	case RetrySame:
		return "retry_same"
	case RetryWithContext:
		return "retry_with_context"
	case TriggerDebugger:
		return "trigger_debugger"
	case UseAlternativeAgent:
		return "use_alternative_agent"
	case ManualIntervention:
		return "manual_intervention"
	default:
		return "unknown"
	}
}

// ParseStrategy is the inverse of String.
func ParseStrategy(name string) (Strategy, error) {
	for s := RetrySame; s <= ManualIntervention; s++ {
		if s.String() == strings.ToLower(strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

// Ladder holds the minimum occurrence count at which each strategy applies.
type Ladder struct {
	RetrySame           int `yaml:"retry_same" toml:"retry_same"`
	RetryWithContext    int `yaml:"retry_with_context" toml:"retry_with_context"`
	TriggerDebugger     int `yaml:"trigger_debugger" toml:"trigger_debugger"`
	UseAlternativeAgent int `yaml:"use_alternative_agent" toml:"use_alternative_agent"`
	ManualIntervention  int `yaml:"manual_intervention" toml:"manual_intervention"`
}

// DefaultLadder escalates one tier per occurrence.
func DefaultLadder() Ladder {
	return Ladder{
		RetrySame:           1,
		RetryWithContext:    2,
		TriggerDebugger:     3,
		UseAlternativeAgent: 4,
		ManualIntervention:  5,
	}
}

// Validate requires strictly increasing thresholds starting at 1.
func (l Ladder) Validate() error {
	steps := l.thresholds()
	if steps[0] != 1 {
		return fmt.Errorf("retry_same threshold must be 1, got %d", steps[0])
	}
	for i := 1; i < len(steps); i++ {
		if steps[i] <= steps[i-1] {
			return fmt.Errorf("%s threshold %d must exceed %s threshold %d",
				Strategy(i+1), steps[i], Strategy(i), steps[i-1])
		}
	}
	return nil
}

func (l Ladder) thresholds() []int {
	return []int{l.RetrySame, l.RetryWithContext, l.TriggerDebugger, l.UseAlternativeAgent, l.ManualIntervention}
}

// StrategyFor returns the highest strategy whose threshold the count has reached.
func (l Ladder) StrategyFor(count int) Strategy {
	chosen := RetrySame
	for i, threshold := range l.thresholds() {
		if threshold > 0 && count >= threshold {
			chosen = Strategy(i + 1)
		}
	}
	return chosen
}

// alternativeAgents is the fixed per-agent substitution table.
var alternativeAgents = map[string][]string{
	"architect":             {"project-architect", "builder"},
	"builder":               {"backend-developer", "frontend"},
	"frontend":              {"builder", "ui-designer"},
	"backend-developer":     {"builder", "api-integrator"},
	"api-integrator":        {"backend-developer", "builder"},
	"database-expert":       {"backend-developer", "builder"},
	"ai-specialist":         {"builder", "backend-developer"},
	"devops-engineer":       {"builder"},
	"security-specialist":   {"code-reviewer", "builder"},
	"performance-optimizer": {"builder", "backend-developer"},
	"tester":                {"test-engineer", "builder"},
	"test-engineer":         {"tester", "builder"},
	"code-reviewer":         {"tester"},
	"documentation":         {"technical-writer", "builder"},
	"technical-writer":      {"documentation"},
}

// Alternatives returns the fallback agents for agent in preference order.
func Alternatives(agent string) []string {
	return append([]string(nil), alternativeAgents[agent]...)
}

// PickAlternative returns the first fallback for agent that is available and
// not excluded. available == nil places no restriction.
func PickAlternative(agent string, available []string, exclude ...string) (string, bool) {
	var avail map[string]bool
	if available != nil {
		avail = make(map[string]bool, len(available))
		for _, a := range available {
			avail[a] = true
		}
	}
	skip := map[string]bool{agent: true}
	for _, e := range exclude {
		skip[e] = true
	}
	for _, alt := range alternativeAgents[agent] {
		if skip[alt] {
			continue
		}
		if avail == nil || avail[alt] {
			return alt, true
		}
	}
	return "", false
}
