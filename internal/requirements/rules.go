package requirements

import (
	"strings"
	"unicode"
)

// Priority bounds. Lower values are more urgent.
const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 3
)

// Agents every requirement is routed through when they are registered.
const (
	SetupAgent       = "architect"
	ImplementerAgent = "builder"
)

// Rule maps requirement keywords to the agents able to satisfy them.
type Rule struct {
	Category string
	Keywords []string
	Agents   []string
	Priority int
}

// DefaultRules is the fixed keyword table. Order matters: it is the order in
// which matched specialists are listed on a requirement.
var DefaultRules = []Rule{
	{
		Category: "security",
		Keywords: []string{"auth", "authentication", "login", "password", "security", "permission", "oauth", "encrypt", "encryption"},
		Agents:   []string{"security-specialist"},
		Priority: 1,
	},
	{
		Category: "payment",
		Keywords: []string{"payment", "payments", "checkout", "billing", "stripe", "invoice", "subscription"},
		Agents:   []string{"api-integrator", "backend-developer"},
		Priority: 1,
	},
	{
		Category: "backend",
		Keywords: []string{"api", "backend", "server", "endpoint", "rest", "graphql", "webhook", "integration"},
		Agents:   []string{"api-integrator", "backend-developer"},
		Priority: 2,
	},
	{
		Category: "database",
		Keywords: []string{"database", "storage", "sql", "schema", "data model", "persist"},
		Agents:   []string{"database-expert"},
		Priority: 2,
	},
	{
		Category: "frontend",
		Keywords: []string{"ui", "ux", "frontend", "interface", "dashboard", "page", "form", "responsive"},
		Agents:   []string{"frontend"},
		Priority: 3,
	},
	{
		Category: "ai",
		Keywords: []string{"ai", "ml", "machine learning", "recommendation", "llm", "prediction", "classifier"},
		Agents:   []string{"ai-specialist"},
		Priority: 3,
	},
	{
		Category: "devops",
		Keywords: []string{"deploy", "docker", "kubernetes", "ci", "cd", "pipeline", "infrastructure", "monitoring"},
		Agents:   []string{"devops-engineer"},
		Priority: 3,
	},
	{
		Category: "performance",
		Keywords: []string{"performance", "cache", "caching", "optimize", "optimization", "scalability", "latency"},
		Agents:   []string{"performance-optimizer"},
		Priority: 4,
	},
	{
		Category: "testing",
		Keywords: []string{"test", "tests", "testing", "qa", "quality", "coverage"},
		Agents:   []string{"tester"},
		Priority: 4,
	},
	{
		Category: "documentation",
		Keywords: []string{"doc", "docs", "documentation", "guide", "readme", "manual"},
		Agents:   []string{"documentation"},
		Priority: 5,
	},
}

// projectTypeAgents adds agents implied by the kind of project being built.
var projectTypeAgents = map[string][]string{
	"web_app":     {"frontend"},
	"webapp":      {"frontend"},
	"web":         {"frontend"},
	"mobile_app":  {"mobile-developer"},
	"mobile":      {"mobile-developer"},
	"api":         {"backend-developer", "api-integrator"},
	"api_service": {"backend-developer", "api-integrator"},
	"backend":     {"backend-developer", "api-integrator"},
	"ml_pipeline": {"ai-specialist"},
	"ai_app":      {"ai-specialist"},
}

// ProjectTypeAgents returns the agents implied by a project type.
func ProjectTypeAgents(projectType string) []string {
	key := strings.ToLower(strings.TrimSpace(projectType))
	key = strings.ReplaceAll(key, "-", "_")
	return projectTypeAgents[key]
}

// tokenize lowercases text and splits it on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Matches reports whether the rule applies to text. Single words match whole
// tokens; phrases must appear as consecutive tokens.
func (r Rule) Matches(text string) bool {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return false
	}
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	joined := " " + strings.Join(tokens, " ") + " "

	for _, kw := range r.Keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(joined, " "+kw+" ") {
				return true
			}
			continue
		}
		if set[kw] {
			return true
		}
	}
	return false
}

// MatchRules returns the rules that apply to text, in table order.
func MatchRules(rules []Rule, text string) []Rule {
	var matched []Rule
	for _, r := range rules {
		if r.Matches(text) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Categorize returns the categories text falls into.
func Categorize(text string) []string {
	var cats []string
	for _, r := range MatchRules(DefaultRules, text) {
		cats = append(cats, r.Category)
	}
	return cats
}

// RulePriority returns the most urgent priority among the rules matching text.
func RulePriority(rules []Rule, text string) int {
	priority := 0
	for _, r := range MatchRules(rules, text) {
		if priority == 0 || r.Priority < priority {
			priority = r.Priority
		}
	}
	if priority == 0 {
		return DefaultPriority
	}
	return priority
}

// Selector picks the specialist agents for one requirement.
type Selector interface {
	SelectOptimalAgents(description string, available []string) []string
}

// RuleSelector is the deterministic keyword-table selector. It needs no history.
type RuleSelector struct {
	Rules []Rule
}

// NewRuleSelector returns a selector over DefaultRules.
func NewRuleSelector() *RuleSelector {
	return &RuleSelector{Rules: DefaultRules}
}

// SelectOptimalAgents lists every available agent named by a matching rule.
// An empty available list places no restriction on the result.
func (s *RuleSelector) SelectOptimalAgents(description string, available []string) []string {
	rules := s.Rules
	if rules == nil {
		rules = DefaultRules
	}
	avail := AgentSetOf(available)
	var out []string
	for _, r := range MatchRules(rules, description) {
		for _, agent := range r.Agents {
			if avail.Has(agent) {
				out = appendUnique(out, agent)
			}
		}
	}
	return out
}

// AgentSet is a membership set over agent names. A nil set contains everything.
type AgentSet map[string]bool

// Has reports membership.
func (s AgentSet) Has(name string) bool {
	if s == nil {
		return true
	}
	return s[name]
}

// AgentSetOf builds a set from names; an empty list yields the unrestricted nil set.
func AgentSetOf(names []string) AgentSet {
	if len(names) == 0 {
		return nil
	}
	set := make(AgentSet, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		dup := false
		for _, d := range dst {
			if d == item {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, item)
		}
	}
	return dst
}
