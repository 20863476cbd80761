package models

import "time"

// CheckpointVersion is the current on-disk checkpoint format.
const CheckpointVersion = 1

// Progress is the aggregate progress snapshot stored with a checkpoint.
type Progress struct {
	Overall   float64 `json:"overall"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Blocked   int     `json:"blocked"`
	Total     int     `json:"total"`
}

// Checkpoint is a self-contained snapshot of workflow state.
type Checkpoint struct {
	Version      int                   `json:"version"`
	WorkflowID   string                `json:"workflow_id"`
	Timestamp    time.Time             `json:"timestamp"`
	Requirements []*RequirementItem    `json:"requirements"`
	Plans        []*AgentExecutionPlan `json:"plans"`
	Context      *AgentContext         `json:"context"`
	Progress     Progress              `json:"progress"`
}
