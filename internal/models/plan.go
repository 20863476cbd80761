package models

import "time"

// AgentStatus is the scheduling state of an AgentExecutionPlan.
type AgentStatus string

// Agent status constants
const (
	AgentPending   AgentStatus = "PENDING"
	AgentReady     AgentStatus = "READY"
	AgentRunning   AgentStatus = "RUNNING"
	AgentCompleted AgentStatus = "COMPLETED"
	AgentFailed    AgentStatus = "FAILED"
	AgentBlocked   AgentStatus = "BLOCKED"
)

// AgentExecutionPlan is the per-agent scheduling record for a workflow run.
type AgentExecutionPlan struct {
	AgentName     string        `json:"agent_name"`
	Requirements  []string      `json:"requirements"`
	Dependencies  []string      `json:"dependencies"`
	Priority      int           `json:"priority"`
	Status        AgentStatus   `json:"status"`
	CurrentRetry  int           `json:"current_retry"`
	ExecutionTime time.Duration `json:"execution_time"`

	// Order is the insertion position used as the final scheduling tie-break.
	Order int `json:"order"`

	// Skippable plans satisfy their dependants even when they terminally fail.
	Skippable bool `json:"skippable,omitempty"`

	// ExecutedBy names the substitute agent when the original was replaced.
	ExecutedBy string `json:"executed_by,omitempty"`

	// Terminal marks a FAILED plan that will not be retried this run.
	Terminal bool `json:"terminal,omitempty"`

	// Halted is set when a human decision is required before the agent may run again.
	Halted bool `json:"halted,omitempty"`

	LastError      string    `json:"last_error,omitempty"`
	LastStrategy   string    `json:"last_strategy,omitempty"`
	FailureContext []string  `json:"failure_context,omitempty"`
	DebugPending   bool      `json:"debug_pending,omitempty"`
	NotBefore      time.Time `json:"not_before,omitempty"`
}

// Runner returns the agent that actually executes this plan.
func (p *AgentExecutionPlan) Runner() string {
	if p.ExecutedBy != "" {
		return p.ExecutedBy
	}
	return p.AgentName
}

// IsTerminal reports whether the plan has reached a state it will not leave this run.
func (p *AgentExecutionPlan) IsTerminal() bool {
	switch p.Status {
	case AgentCompleted, AgentBlocked:
		return true
	case AgentFailed:
		return p.Terminal
	}
	return false
}

// SatisfiesDependants reports whether dependants of this plan may start.
func (p *AgentExecutionPlan) SatisfiesDependants() bool {
	if p.Status == AgentCompleted {
		return true
	}
	return p.Skippable && p.Status == AgentFailed && p.Terminal
}

// Clone returns a deep copy of the plan.
func (p *AgentExecutionPlan) Clone() *AgentExecutionPlan {
	c := *p
	c.Requirements = append([]string(nil), p.Requirements...)
	c.Dependencies = append([]string(nil), p.Dependencies...)
	c.FailureContext = append([]string(nil), p.FailureContext...)
	return &c
}
