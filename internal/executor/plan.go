package executor

import (
	"sort"

	"github.com/harrison/agentflow/internal/models"
)

// Tier is a stage of the fixed ordering policy. Agents in a tier depend on
// the agents present in the nearest earlier non-empty tier.
type Tier int

// Ordering policy tiers, earliest first.
const (
	TierSetup Tier = iota
	TierBuild
	TierQuality
	TierDocs
)

func (t Tier) String() string {
	switch t {
	case TierSetup:
		return "setup"
	case TierBuild:
		return "build"
	case TierQuality:
		return "quality"
	case TierDocs:
		return "docs"
	default:
		return "unknown"
	}
}

var agentTiers = map[string]Tier{
	"architect":             TierSetup,
	"project-architect":     TierSetup,
	"setup":                 TierSetup,
	"planner":               TierSetup,
	"builder":               TierBuild,
	"frontend":              TierBuild,
	"backend-developer":     TierBuild,
	"api-integrator":        TierBuild,
	"database-expert":       TierBuild,
	"ai-specialist":         TierBuild,
	"devops-engineer":       TierBuild,
	"mobile-developer":      TierBuild,
	"tester":                TierQuality,
	"test-engineer":         TierQuality,
	"security-specialist":   TierQuality,
	"performance-optimizer": TierQuality,
	"reviewer":              TierQuality,
	"code-reviewer":         TierQuality,
	"documentation":         TierDocs,
	"doc-writer":            TierDocs,
	"technical-writer":      TierDocs,
}

// TierOf classifies agent. Unknown agents are build agents.
func TierOf(agent string) Tier {
	if t, ok := agentTiers[agent]; ok {
		return t
	}
	return TierBuild
}

// BuildExecutionPlan creates one plan per distinct agent referenced by reqs,
// in first-reference order. When registered is non-nil, agents missing from
// it start BLOCKED and take no part in dependency computation; a nil
// registered list accepts every agent.
func BuildExecutionPlan(reqs []*models.RequirementItem, registered []string) []*models.AgentExecutionPlan {
	var known map[string]bool
	if registered != nil {
		known = make(map[string]bool, len(registered))
		for _, n := range registered {
			known[n] = true
		}
	}

	byName := make(map[string]*models.AgentExecutionPlan)
	var plans []*models.AgentExecutionPlan
	for _, req := range reqs {
		for _, name := range req.AssignedAgents {
			p, ok := byName[name]
			if !ok {
				p = &models.AgentExecutionPlan{
					AgentName: name,
					Priority:  req.Priority,
					Status:    models.AgentPending,
					Order:     len(plans),
				}
				byName[name] = p
				plans = append(plans, p)
			}
			p.Requirements = appendUnique(p.Requirements, req.ID)
			if req.Priority < p.Priority {
				p.Priority = req.Priority
			}
		}
	}

	tiers := make(map[Tier][]string)
	for _, p := range plans {
		if known != nil && !known[p.AgentName] {
			continue
		}
		t := TierOf(p.AgentName)
		tiers[t] = append(tiers[t], p.AgentName)
	}

	for _, p := range plans {
		if known != nil && !known[p.AgentName] {
			p.Status = models.AgentBlocked
			p.LastError = "agent not found in registry"
			continue
		}
		for t := TierOf(p.AgentName) - 1; t >= TierSetup; t-- {
			if preds := tiers[t]; len(preds) > 0 {
				p.Dependencies = append([]string(nil), preds...)
				break
			}
		}
		if len(p.Dependencies) == 0 {
			p.Status = models.AgentReady
		}
	}
	return plans
}

// sortPlans orders plans by priority, then insertion order.
func sortPlans(plans []*models.AgentExecutionPlan) {
	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].Priority != plans[j].Priority {
			return plans[i].Priority < plans[j].Priority
		}
		return plans[i].Order < plans[j].Order
	})
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		if !containsString(dst, item) {
			dst = append(dst, item)
		}
	}
	return dst
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
