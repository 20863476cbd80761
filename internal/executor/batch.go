package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harrison/agentflow/internal/agent"
	"github.com/harrison/agentflow/internal/models"
)

// job is everything a dispatched goroutine needs; it never touches engine state.
type job struct {
	index       int
	plan        string
	runner      string
	prompt      string
	view        *models.AgentContext
	timeout     time.Duration
	debugger    string
	debugPrompt string
}

type outcome struct {
	job      job
	result   agent.Result
	err      error
	duration time.Duration

	debugRan    bool
	debugResult agent.Result
	debugErr    error
}

// dispatch runs the batch concurrently and returns outcomes in batch order.
// It returns only after every agent in the batch has resolved.
func (e *Engine) dispatch(ctx context.Context, batch []*models.AgentExecutionPlan) []outcome {
	jobs := make([]job, len(batch))
	for i, p := range batch {
		p.Status = models.AgentRunning
		e.notifyAgent(p, fmt.Sprintf("attempt %d", p.CurrentRetry+1))
		e.logger.Infof("Dispatching %s (attempt %d)", describe(p), p.CurrentRetry+1)

		j := job{
			index:   i,
			plan:    p.AgentName,
			runner:  p.Runner(),
			prompt:  BuildPrompt(p, e.reqIndex, e.shared, e.instructions(p.Runner())),
			view:    e.shared.Clone(),
			timeout: e.timeoutFor(p.Runner()),
		}
		if p.DebugPending {
			report := e.detector.Report(p.AgentName, p.LastError, e.lastOutput[p.AgentName])
			j.debugger = e.cfg.DebuggerAgent
			j.debugPrompt = report.Prompt()
		}
		jobs[i] = j
	}

	resultsCh := make(chan outcome, len(jobs))
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			resultsCh <- e.runJob(ctx, j)
		}(j)
	}
	wg.Wait()
	close(resultsCh)

	outcomes := make([]outcome, len(jobs))
	for o := range resultsCh {
		outcomes[o.job.index] = o
	}
	return outcomes
}

func (e *Engine) runJob(ctx context.Context, j job) (o outcome) {
	o.job = j
	defer func() {
		if r := recover(); r != nil {
			o.err = NewAgentError(j.runner, "panicked", fmt.Errorf("%v", r))
		}
	}()

	if j.debugPrompt != "" {
		o.debugRan = true
		o.debugResult, o.debugErr = e.execute(ctx, j.debugger, j.debugPrompt, j.view, j.timeout)
	}

	started := time.Now()
	o.result, o.err = e.execute(ctx, j.runner, j.prompt, j.view, j.timeout)
	o.duration = time.Since(started)
	return o
}

// execute runs one agent under its own timeout. A runner error caused by
// that timeout becomes a TimeoutError.
func (e *Engine) execute(ctx context.Context, name, prompt string, view *models.AgentContext, timeout time.Duration) (agent.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := e.runner.Execute(cctx, agent.Request{
		Agent:   name,
		Prompt:  prompt,
		Context: view.Clone(),
		Timeout: timeout,
	})
	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		err = NewTimeoutError(name, timeout)
	}
	return res, err
}

func (e *Engine) timeoutFor(name string) time.Duration {
	if e.tracker == nil {
		return e.cfg.DefaultTimeout
	}
	return e.tracker.DynamicTimeout(name, e.cfg.DefaultTimeout)
}

func (e *Engine) instructions(name string) string {
	if src, ok := e.registry.(InstructionSource); ok {
		return src.Instructions(name)
	}
	return ""
}

func describe(p *models.AgentExecutionPlan) string {
	if p.ExecutedBy != "" && p.ExecutedBy != p.AgentName {
		return fmt.Sprintf("%s (via %s)", p.AgentName, p.ExecutedBy)
	}
	return p.AgentName
}
