package learning

import (
	"time"

	"github.com/harrison/agentflow/internal/requirements"
)

// HistorySelector picks, for every matching rule, the available agent with
// the best recorded score. Agents without history score neutrally.
type HistorySelector struct {
	Tracker *Tracker
	Rules   []requirements.Rule
}

// SelectOptimalAgents implements requirements.Selector.
func (s *HistorySelector) SelectOptimalAgents(description string, available []string) []string {
	rules := s.Rules
	if rules == nil {
		rules = requirements.DefaultRules
	}
	avail := requirements.AgentSetOf(available)

	var out []string
	for _, r := range requirements.MatchRules(rules, description) {
		best, bestScore := "", -1.0
		for _, agent := range r.Agents {
			if !avail.Has(agent) {
				continue
			}
			if score := s.Tracker.Score(agent); score > bestScore {
				best, bestScore = agent, score
			}
		}
		if best != "" && !contains(out, best) {
			out = append(out, best)
		}
	}
	return out
}

// NewSelector returns the learned selector when tracker has enough history,
// and the rule-table selector otherwise.
func NewSelector(tracker *Tracker, rules []requirements.Rule) requirements.Selector {
	if rules == nil {
		rules = requirements.DefaultRules
	}
	if tracker != nil && tracker.HasSufficientHistory() {
		return &HistorySelector{Tracker: tracker, Rules: rules}
	}
	return &requirements.RuleSelector{Rules: rules}
}

// Timeout bounds for DynamicTimeout.
const (
	MinTimeout = 60 * time.Second
	MaxTimeout = 3600 * time.Second
)

const (
	degradingFactor = 1.5
	improvingFactor = 0.9
)

// DynamicTimeout is twice the agent's average execution time, stretched
// when its scores are degrading and tightened when they improve, clamped to
// [MinTimeout, MaxTimeout]. Without history it returns def.
func (t *Tracker) DynamicTimeout(agent string, def time.Duration) time.Duration {
	m, ok := t.Metrics(agent)
	if !ok || m.TotalExecutions == 0 || m.AverageExecutionTime <= 0 {
		return def
	}

	seconds := 2 * m.AverageExecutionTime
	switch m.Trend() {
	case TrendDegrading:
		seconds *= degradingFactor
	case TrendImproving:
		seconds *= improvingFactor
	}

	timeout := time.Duration(seconds * float64(time.Second))
	if timeout < MinTimeout {
		return MinTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
