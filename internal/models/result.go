package models

import "time"

// AgentSummary is the final report line for one agent.
type AgentSummary struct {
	Agent      string        `json:"agent"`
	ExecutedBy string        `json:"executed_by,omitempty"`
	Status     AgentStatus   `json:"status"`
	Retries    int           `json:"retries"`
	Duration   time.Duration `json:"duration"`
	LastError  string        `json:"last_error,omitempty"`
}

// RequirementSummary is the final report line for one requirement.
type RequirementSummary struct {
	ID                   string            `json:"id"`
	Description          string            `json:"description"`
	Status               RequirementStatus `json:"status"`
	CompletionPercentage float64           `json:"completion_percentage"`
}

// WorkflowSummary is produced at the end of every run, successful or not.
type WorkflowSummary struct {
	WorkflowID   string               `json:"workflow_id"`
	Success      bool                 `json:"success"`
	TotalAgents  int                  `json:"total_agents"`
	Completed    int                  `json:"completed"`
	Failed       int                  `json:"failed"`
	Blocked      int                  `json:"blocked"`
	Progress     float64              `json:"progress"`
	Duration     time.Duration        `json:"duration"`
	Agents       []AgentSummary       `json:"agents"`
	Requirements []RequirementSummary `json:"requirements"`

	UnresolvedAgents       []string `json:"unresolved_agents,omitempty"`
	UnresolvedRequirements []string `json:"unresolved_requirements,omitempty"`
	ManualIntervention     []string `json:"manual_intervention,omitempty"`
}

// CompletionRatio returns completed agents over total agents.
func (s *WorkflowSummary) CompletionRatio() float64 {
	if s.TotalAgents == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.TotalAgents)
}
