package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/agentflow/internal/healing"
	"github.com/harrison/agentflow/internal/learning"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/notify"
)

// apply folds one outcome into engine state. It runs on the coordinating
// goroutine after the whole batch has resolved.
func (e *Engine) apply(ctx context.Context, o outcome) {
	p := e.planIndex[o.job.plan]
	if p == nil {
		return
	}

	if o.err != nil && ctx.Err() != nil && errors.Is(o.err, ctx.Err()) {
		// Interrupted, not failed: leave it for the next run. A pending
		// debugger pass is kept so the resumed attempt runs it again.
		p.Status = models.AgentReady
		return
	}

	if o.debugRan {
		e.applyDebug(p, o)
	}

	success := o.err == nil && o.result.Success
	msg := failureMessage(o)
	e.lastOutput[p.AgentName] = o.result.Output

	if o.result.Output != "" {
		if ol, ok := e.logger.(OutputLogger); ok {
			ol.LogAgentOutput(o.job.runner, p.CurrentRetry+1, o.result.Output)
		}
	}
	e.recordExecution(ctx, o, success, msg)

	if success {
		e.complete(p, o)
		return
	}
	e.fail(p, msg)
}

func failureMessage(o outcome) string {
	switch {
	case o.err != nil:
		return o.err.Error()
	case o.result.Success:
		return ""
	case o.result.Error != "":
		return o.result.Error
	case strings.TrimSpace(o.result.Output) != "":
		return "agent reported failure: " + lastLine(o.result.Output)
	default:
		return "agent reported failure"
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func (e *Engine) recordExecution(ctx context.Context, o outcome, success bool, msg string) {
	if e.tracker == nil {
		return
	}
	exec := learning.Execution{
		WorkflowID:   e.workflowID,
		Agent:        o.job.runner,
		Success:      success,
		Duration:     o.duration,
		QualityScore: o.result.QualityScore,
		TokensUsed:   o.result.TokensUsed,
		Cost:         o.result.Cost,
		Timestamp:    e.now(),
	}
	if !success {
		exec.FailureReason = healing.Normalize(msg)
	}
	if err := e.tracker.Record(ctx, exec); err != nil {
		e.logger.Warnf("Recording history for %s failed: %v", o.job.runner, err)
	}
}

func (e *Engine) applyDebug(p *models.AgentExecutionPlan, o outcome) {
	p.DebugPending = false
	switch {
	case o.debugErr != nil:
		e.logger.Warnf("Debugger for %s failed: %v", p.AgentName, o.debugErr)
	case !o.debugResult.Success:
		e.logger.Warnf("Debugger for %s reported failure", p.AgentName)
	default:
		e.shared.Merge(o.debugResult.Context)
	}
	if out := strings.TrimSpace(o.debugResult.Output); out != "" {
		p.FailureContext = append(p.FailureContext, "Debugger analysis: "+out)
	}
}

func (e *Engine) complete(p *models.AgentExecutionPlan, o outcome) {
	p.Status = models.AgentCompleted
	p.ExecutionTime = o.duration
	p.FailureContext = nil
	p.NotBefore = time.Time{}
	e.shared.Merge(o.result.Context)
	e.shared.AddCompletedTask(p.AgentName)
	for _, id := range p.Requirements {
		if r := e.reqIndex[id]; r != nil && !containsString(r.CompletedBy, p.AgentName) {
			r.CompletedBy = append(r.CompletedBy, p.AgentName)
		}
	}
	e.sinceCheckpoint++
	e.logger.Infof("Agent %s completed in %s", describe(p), o.duration.Round(time.Millisecond))
	e.notifyAgent(p, "")
}

// fail consults the detector and either schedules a recovery attempt or
// makes the failure terminal.
func (e *Engine) fail(p *models.AgentExecutionPlan, msg string) {
	p.LastError = msg
	count, strategy := e.detector.RecordError(p.AgentName, msg)
	p.LastStrategy = strategy.String()

	if strategy == healing.ManualIntervention {
		e.halt(p, count, msg)
		return
	}
	if p.CurrentRetry >= e.cfg.MaxRetries {
		p.Status = models.AgentFailed
		p.Terminal = true
		e.logger.Errorf("Agent %s failed after %d retries: %s", describe(p), p.CurrentRetry, msg)
		e.notifyAgent(p, "retries exhausted: "+msg)
		return
	}

	p.CurrentRetry++
	p.Status = models.AgentFailed
	e.notifyAgent(p, fmt.Sprintf("%s (occurrence %d): %s", strategy, count, msg))

	switch strategy {
	case healing.RetrySame:
		e.logger.Infof("Agent %s failed, retrying: %s", describe(p), msg)
		if kb := e.detector.KnowledgeBase(); kb != nil {
			if _, known := kb.Lookup(msg); known {
				h := e.detector.ApplyAutoHealing(msg)
				p.FailureContext = append(p.FailureContext, "Known fix: "+h.Solution)
			}
		}
	case healing.RetryWithContext:
		e.logger.Infof("Agent %s failed again, retrying with failure context", describe(p))
		e.addFailureContext(p, msg)
	case healing.TriggerDebugger:
		if e.isAvailable(e.cfg.DebuggerAgent) {
			e.logger.Warnf("Agent %s keeps failing (%d times), running %s first", describe(p), count, e.cfg.DebuggerAgent)
			p.DebugPending = true
		} else {
			e.logger.Warnf("Agent %s keeps failing (%d times) and no %s agent is available, retrying with context", describe(p), count, e.cfg.DebuggerAgent)
			e.addFailureContext(p, msg)
		}
	case healing.UseAlternativeAgent:
		alt, ok := healing.PickAlternative(p.AgentName, e.availableAgents(), p.AgentName, p.Runner())
		if ok {
			e.logger.Warnf("Agent %s keeps failing (%d times), substituting %s", describe(p), count, alt)
			p.FailureContext = append(p.FailureContext,
				fmt.Sprintf("You are taking over from %s, which failed repeatedly: %s", p.Runner(), msg))
			p.ExecutedBy = alt
		} else {
			e.logger.Warnf("Agent %s keeps failing (%d times) and has no available alternative, retrying with context", describe(p), count)
			e.addFailureContext(p, msg)
		}
	}

	p.Status = models.AgentReady
	if e.cfg.RetryBackoff > 0 {
		p.NotBefore = e.now().Add(e.cfg.RetryBackoff * time.Duration(p.CurrentRetry))
	}
}

func (e *Engine) addFailureContext(p *models.AgentExecutionPlan, msg string) {
	h := e.detector.ApplyAutoHealing(msg)
	p.FailureContext = append(p.FailureContext, "Previous attempt failed: "+msg)
	if h.Solution != "" {
		p.FailureContext = append(p.FailureContext, "Suggested fix: "+h.Solution)
	}
}

func (e *Engine) halt(p *models.AgentExecutionPlan, count int, msg string) {
	p.Status = models.AgentFailed
	p.Terminal = true
	p.Halted = true
	e.logger.Errorf("Manual intervention required for %s after %d occurrences: %s", describe(p), count, msg)
	e.notifyAgent(p, msg)
	e.notify(notify.Event{
		Type:    notify.ManualInterventionRequested,
		Agent:   p.AgentName,
		Status:  string(p.Status),
		Message: msg,
	})
}
