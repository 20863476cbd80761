package executor

import (
	"time"

	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/notify"
)

// refreshRequirements recomputes completion and status of every
// requirement from the plans of its assigned agents.
func (e *Engine) refreshRequirements() {
	for _, r := range e.requirements {
		total := len(r.AssignedAgents)
		done, active, terminal, blocked := 0, 0, 0, 0
		for _, name := range r.AssignedAgents {
			p, ok := e.planIndex[name]
			if !ok {
				terminal++
				blocked++
				continue
			}
			switch {
			case p.Status == models.AgentCompleted:
				done++
				terminal++
			case p.Status == models.AgentBlocked:
				terminal++
				blocked++
			case p.IsTerminal():
				terminal++
			case p.Status == models.AgentRunning || p.CurrentRetry > 0:
				active++
			}
		}

		pct := 0.0
		if total > 0 {
			pct = float64(done) / float64(total) * 100
		}
		if pct > r.CompletionPercentage {
			r.CompletionPercentage = pct
		}

		status := models.RequirementPending
		switch {
		case total > 0 && done == total:
			status = models.RequirementCompleted
		case total > 0 && terminal == total && blocked > 0:
			status = models.RequirementBlocked
		case total > 0 && terminal == total:
			status = models.RequirementFailed
		case done > 0 || active > 0:
			status = models.RequirementInProgress
		}
		if status != r.Status {
			r.Status = status
			e.notify(notify.Event{
				Type:        notify.RequirementStatusChanged,
				Requirement: r.ID,
				Status:      string(status),
			})
		}
	}
}

// Progress returns the aggregate progress. Overall is the mean requirement
// completion, or the completed agent share when there are no requirements.
func (e *Engine) Progress() models.Progress {
	p := models.Progress{Total: len(e.plans)}
	for _, plan := range e.plans {
		switch {
		case plan.Status == models.AgentCompleted:
			p.Completed++
		case plan.Status == models.AgentBlocked:
			p.Blocked++
		case plan.Status == models.AgentFailed && plan.Terminal:
			p.Failed++
		}
	}
	switch {
	case len(e.requirements) > 0:
		sum := 0.0
		for _, r := range e.requirements {
			sum += r.CompletionPercentage
		}
		p.Overall = sum / float64(len(e.requirements))
	case p.Total > 0:
		p.Overall = float64(p.Completed) / float64(p.Total) * 100
	}
	return p
}

func (e *Engine) reportProgress() {
	p := e.Progress()
	e.logger.Debugf("Progress %.1f%%: %d/%d agents completed, %d failed, %d blocked",
		p.Overall, p.Completed, p.Total, p.Failed, p.Blocked)
	if pl, ok := e.logger.(ProgressLogger); ok {
		pl.LogProgress(p)
	}
}

// Success reports whether the completed share of agents reaches the
// configured threshold and the run was not globally blocked.
func (e *Engine) Success() bool {
	if e.globalBlocked || len(e.plans) == 0 {
		return false
	}
	p := e.Progress()
	return float64(p.Completed) >= e.cfg.SuccessThreshold*float64(p.Total)-1e-9
}

// Summary reports the per-agent and per-requirement outcome of the run.
func (e *Engine) Summary(elapsed time.Duration) *models.WorkflowSummary {
	p := e.Progress()
	s := &models.WorkflowSummary{
		WorkflowID:  e.workflowID,
		Success:     e.Success(),
		TotalAgents: p.Total,
		Completed:   p.Completed,
		Failed:      p.Failed,
		Blocked:     p.Blocked,
		Progress:    p.Overall,
		Duration:    elapsed,
	}
	for _, plan := range e.plans {
		s.Agents = append(s.Agents, models.AgentSummary{
			Agent:      plan.AgentName,
			ExecutedBy: plan.ExecutedBy,
			Status:     plan.Status,
			Retries:    plan.CurrentRetry,
			Duration:   plan.ExecutionTime,
			LastError:  plan.LastError,
		})
		if plan.Status != models.AgentCompleted {
			s.UnresolvedAgents = append(s.UnresolvedAgents, plan.AgentName)
		}
		if plan.Halted {
			s.ManualIntervention = append(s.ManualIntervention, plan.AgentName)
		}
	}
	for _, r := range e.requirements {
		s.Requirements = append(s.Requirements, models.RequirementSummary{
			ID:                   r.ID,
			Description:          r.Description,
			Status:               r.Status,
			CompletionPercentage: r.CompletionPercentage,
		})
		if r.Status != models.RequirementCompleted {
			s.UnresolvedRequirements = append(s.UnresolvedRequirements, r.ID)
		}
	}
	return s
}
