package requirements

import (
	"fmt"
	"strings"

	"github.com/harrison/agentflow/internal/models"
)

// IDPrefix is prepended to the zero-padded requirement sequence number.
const IDPrefix = "REQ"

// Option configures Parse.
type Option func(*parser)

type parser struct {
	selector Selector
	rules    []Rule
}

// WithSelector replaces the rule-table specialist selector.
func WithSelector(s Selector) Option {
	return func(p *parser) {
		if s != nil {
			p.selector = s
		}
	}
}

// WithRules replaces the keyword table used for priorities and the default selector.
func WithRules(rules []Rule) Option {
	return func(p *parser) {
		p.rules = rules
		p.selector = &RuleSelector{Rules: rules}
	}
}

// FormatID returns the stable id for the n-th (1-based) feature.
func FormatID(n int) string {
	return fmt.Sprintf("%s-%03d", IDPrefix, n)
}

// Parse validates doc and produces one RequirementItem per feature, in input order.
//
// available lists the agents known to the registry. Rule-table agents that are
// not registered are dropped; agents named explicitly by a structured feature
// are kept even when unregistered so the plan can surface them as BLOCKED.
func Parse(doc *Document, available []string, opts ...Option) ([]*models.RequirementItem, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	p := &parser{rules: DefaultRules}
	p.selector = &RuleSelector{Rules: p.rules}
	for _, opt := range opts {
		opt(p)
	}

	avail := AgentSetOf(available)
	items := make([]*models.RequirementItem, 0, len(doc.Features))
	for i, feature := range doc.Features {
		text := feature.Text()
		items = append(items, &models.RequirementItem{
			ID:             FormatID(i + 1),
			Description:    text,
			Priority:       p.priority(feature, text),
			AssignedAgents: p.assign(feature, text, doc.Project.Type, available, avail),
			Status:         models.RequirementPending,
		})
	}
	return items, nil
}

func (p *parser) priority(f Feature, text string) int {
	if f.Priority != 0 {
		return f.Priority
	}
	return RulePriority(p.rules, text)
}

// assign orders agents as: setup agent, explicit agents, specialists,
// project-type agents, implementer.
func (p *parser) assign(f Feature, text, projectType string, available []string, avail AgentSet) []string {
	var agents []string
	if avail.Has(SetupAgent) {
		agents = appendUnique(agents, SetupAgent)
	}
	for _, a := range f.Agents {
		agents = appendUnique(agents, strings.TrimSpace(a))
	}
	agents = appendUnique(agents, p.selector.SelectOptimalAgents(text, available)...)
	for _, a := range ProjectTypeAgents(projectType) {
		if avail.Has(a) {
			agents = appendUnique(agents, a)
		}
	}
	if avail.Has(ImplementerAgent) {
		agents = appendUnique(agents, ImplementerAgent)
	}
	return agents
}
