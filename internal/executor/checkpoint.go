package executor

import (
	"errors"
	"fmt"
	"os"

	"github.com/harrison/agentflow/internal/filelock"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/notify"
)

// Snapshot captures the complete engine state.
func (e *Engine) Snapshot() *models.Checkpoint {
	return &models.Checkpoint{
		Version:      models.CheckpointVersion,
		WorkflowID:   e.workflowID,
		Timestamp:    e.now(),
		Requirements: e.Requirements(),
		Plans:        e.Plans(),
		Context:      e.Context(),
		Progress:     e.Progress(),
	}
}

// SaveCheckpoint atomically writes the engine state to path.
func (e *Engine) SaveCheckpoint(path string) error {
	cp := e.Snapshot()
	if err := filelock.WriteJSON(path, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	e.logger.Debugf("Checkpoint saved to %s (%.1f%%)", path, cp.Progress.Overall)
	e.notify(notify.Event{Type: notify.CheckpointSaved, Message: path, Progress: cp.Progress.Overall})
	return nil
}

// LoadCheckpoint replaces the engine state with the checkpoint at path.
// It returns false when the file does not exist, and false with an error
// when it is unreadable or invalid; in both cases no state is changed.
func (e *Engine) LoadCheckpoint(path string) (bool, error) {
	cp, err := ReadCheckpoint(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := e.Restore(cp); err != nil {
		return false, err
	}
	e.logger.Infof("Resumed workflow %s from %s (%.1f%%)", e.workflowID, path, cp.Progress.Overall)
	return true, nil
}

// ReadCheckpoint reads and validates a checkpoint file.
func ReadCheckpoint(path string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	if err := filelock.ReadJSON(path, &cp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	if cp.Version != models.CheckpointVersion {
		return nil, fmt.Errorf("checkpoint %s: unsupported version %d", path, cp.Version)
	}
	if cp.WorkflowID == "" {
		return nil, fmt.Errorf("checkpoint %s: missing workflow id", path)
	}
	return &cp, nil
}

// Restore applies a checkpoint. State is validated before anything is replaced.
func (e *Engine) Restore(cp *models.Checkpoint) error {
	probe := &Engine{}
	reqs := make([]*models.RequirementItem, len(cp.Requirements))
	for i, r := range cp.Requirements {
		if r == nil {
			return fmt.Errorf("checkpoint: nil requirement at %d", i)
		}
		reqs[i] = r.Clone()
	}
	plans := make([]*models.AgentExecutionPlan, len(cp.Plans))
	for i, p := range cp.Plans {
		if p == nil {
			return fmt.Errorf("checkpoint: nil execution plan at %d", i)
		}
		plans[i] = p.Clone()
	}
	if err := probe.SetState(reqs, plans, cp.Context.Clone()); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	e.workflowID = cp.WorkflowID
	e.requirements = probe.requirements
	e.reqIndex = probe.reqIndex
	e.plans = probe.plans
	e.planIndex = probe.planIndex
	e.shared = probe.shared
	e.globalBlocked = false
	e.sinceCheckpoint = 0
	return nil
}
