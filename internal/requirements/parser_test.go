package requirements

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shopAgents = []string{"architect", "builder", "frontend", "api-integrator"}

func TestParseShopScenario(t *testing.T) {
	doc := NewDocument("Shop", "web_app", "user auth", "payment checkout")

	items, err := Parse(doc, shopAgents)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "REQ-001", items[0].ID)
	assert.Equal(t, "REQ-002", items[1].ID)
	assert.Equal(t, []string{"architect", "frontend", "builder"}, items[0].AssignedAgents)
	assert.Contains(t, items[1].AssignedAgents, "api-integrator")
	assert.Equal(t, "architect", items[1].AssignedAgents[0])
	assert.Equal(t, 1, items[1].Priority, "payment is top priority")
}

func TestParseIsDeterministic(t *testing.T) {
	doc := NewDocument("Lab", "ai_app",
		"recommendation engine with machine learning",
		"admin dashboard",
		"deploy with docker",
		"write the user guide",
	)
	available := []string{"architect", "builder", "frontend", "ai-specialist", "devops-engineer", "documentation"}

	first, err := Parse(doc, available)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Parse(doc, available)
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
			assert.Equal(t, first[j].AssignedAgents, again[j].AssignedAgents)
			assert.Equal(t, first[j].Priority, again[j].Priority)
		}
	}
}

func TestParseValidationIsExhaustive(t *testing.T) {
	tests := []struct {
		name     string
		doc      *Document
		problems []string
	}{
		{
			name:     "nil document",
			doc:      nil,
			problems: []string{"document is empty"},
		},
		{
			name:     "missing everything",
			doc:      &Document{},
			problems: []string{"project section is required", "features must be a non-empty list"},
		},
		{
			name: "project fields and bad features",
			doc: &Document{
				Project: &Project{},
				Features: []Feature{
					{Name: "  "},
					{Name: "ok", Priority: 9},
				},
			},
			problems: []string{
				"project.name is required",
				"project.type is required",
				"features[0]: name or description is required",
				"features[1]: priority 9 out of range 1-5",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc, shopAgents)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.problems, verr.Problems)
		})
	}
}

func TestParseStructuredFeature(t *testing.T) {
	doc := &Document{
		Project: &Project{Name: "Svc", Type: "cli"},
		Features: []Feature{
			{Name: "billing export", Description: "nightly CSV", Priority: 4, Agents: []string{"data-wrangler"}},
		},
	}

	items, err := Parse(doc, shopAgents)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "billing export: nightly CSV", item.Description)
	assert.Equal(t, 4, item.Priority, "explicit priority overrides the rule table")
	assert.Equal(t, []string{"architect", "data-wrangler", "api-integrator", "builder"}, item.AssignedAgents,
		"explicit agents are kept even when unregistered")
}

func TestParseWithoutRegistryAcceptsAllRuleAgents(t *testing.T) {
	items, err := Parse(NewDocument("X", "service", "secure login"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"architect", "security-specialist", "builder"}, items[0].AssignedAgents)
}

type fixedSelector []string

func (f fixedSelector) SelectOptimalAgents(string, []string) []string { return f }

func TestParseWithSelector(t *testing.T) {
	items, err := Parse(NewDocument("X", "cli", "anything"), shopAgents, WithSelector(fixedSelector{"frontend"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"architect", "frontend", "builder"}, items[0].AssignedAgents)
}

func TestRuleMatching(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"user auth", []string{"security"}},
		{"email detail maintenance", nil},
		{"AI powered search UI", []string{"frontend", "ai"}},
		{"machine learning data model", []string{"database", "ai"}},
		{"REST api for payments", []string{"payment", "backend"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.text))
		})
	}
}

func TestRulePriorityDefault(t *testing.T) {
	assert.Equal(t, DefaultPriority, RulePriority(DefaultRules, "something unusual"))
	assert.Equal(t, 1, RulePriority(DefaultRules, "login page"))
}
