package models

// RequirementStatus tracks a requirement through a workflow run.
type RequirementStatus string

// Requirement status constants
const (
	RequirementPending    RequirementStatus = "PENDING"
	RequirementInProgress RequirementStatus = "IN_PROGRESS"
	RequirementCompleted  RequirementStatus = "COMPLETED"
	RequirementFailed     RequirementStatus = "FAILED"
	RequirementBlocked    RequirementStatus = "BLOCKED"
)

// RequirementItem is a uniquely identified, agent-assignable unit of project work.
// ID is assigned once at parse time and never changes.
type RequirementItem struct {
	ID                   string            `json:"id"`
	Description          string            `json:"description"`
	Priority             int               `json:"priority"`
	AssignedAgents       []string          `json:"assigned_agents"`
	Status               RequirementStatus `json:"status"`
	CompletionPercentage float64           `json:"completion_percentage"`
	CompletedBy          []string          `json:"completed_by,omitempty"`
}

// IsTerminal returns true if the requirement can no longer change state.
func (r *RequirementItem) IsTerminal() bool {
	switch r.Status {
	case RequirementCompleted, RequirementFailed, RequirementBlocked:
		return true
	}
	return false
}

// HasAgent reports whether agent is one of the requirement's assigned agents.
func (r *RequirementItem) HasAgent(agent string) bool {
	for _, a := range r.AssignedAgents {
		if a == agent {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the requirement.
func (r *RequirementItem) Clone() *RequirementItem {
	c := *r
	c.AssignedAgents = append([]string(nil), r.AssignedAgents...)
	c.CompletedBy = append([]string(nil), r.CompletedBy...)
	return &c
}

// IndexRequirements builds an id -> item lookup.
func IndexRequirements(items []*RequirementItem) map[string]*RequirementItem {
	idx := make(map[string]*RequirementItem, len(items))
	for _, item := range items {
		idx[item.ID] = item
	}
	return idx
}
