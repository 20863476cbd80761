// Package executor builds agent execution plans and drives them to
// completion: dependency-aware batch dispatch, escalating recovery and
// checkpointing.
package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/agentflow/internal/agent"
	"github.com/harrison/agentflow/internal/healing"
	"github.com/harrison/agentflow/internal/learning"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/notify"
)

// Engine defaults.
const (
	DefaultMaxParallel      = 3
	DefaultSuccessThreshold = 0.8
	DefaultMaxRetries       = 4
	DefaultCheckpointEvery  = 2
	DefaultIdleWait         = 250 * time.Millisecond
	DefaultMaxIdlePolls     = 1000
	DefaultTimeout          = 10 * time.Minute
	DefaultDebuggerAgent    = "debugger"
)

// Config tunes the scheduling loop.
type Config struct {
	MaxParallel      int
	SuccessThreshold float64
	MaxRetries       int
	CheckpointEvery  int
	// CheckpointPath enables periodic checkpoints when set.
	CheckpointPath string
	// IdleWait is the longest single sleep taken while every runnable plan
	// is waiting out a retry backoff.
	IdleWait time.Duration
	// MaxIdlePolls bounds consecutive idle polls during which the clock
	// does not advance. A run that exceeds it is treated as blocked.
	MaxIdlePolls   int
	DefaultTimeout time.Duration
	MaxBatchWeight int
	// RetryBackoff delays retry n by n*RetryBackoff.
	RetryBackoff  time.Duration
	DebuggerAgent string
	// SkippableAgents do not block their dependants when they terminally fail.
	SkippableAgents []string
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxParallel:      DefaultMaxParallel,
		SuccessThreshold: DefaultSuccessThreshold,
		MaxRetries:       DefaultMaxRetries,
		CheckpointEvery:  DefaultCheckpointEvery,
		IdleWait:         DefaultIdleWait,
		MaxIdlePolls:     DefaultMaxIdlePolls,
		DefaultTimeout:   DefaultTimeout,
		MaxBatchWeight:   learning.DefaultMaxBatchWeight,
		DebuggerAgent:    DefaultDebuggerAgent,
	}
}

// normalized fills fields whose zero value is unusable. MaxRetries and
// RetryBackoff keep zero; a negative MaxRetries takes the default.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxParallel <= 0 {
		c.MaxParallel = d.MaxParallel
	}
	if c.SuccessThreshold <= 0 || c.SuccessThreshold > 1 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = d.CheckpointEvery
	}
	if c.IdleWait <= 0 {
		c.IdleWait = d.IdleWait
	}
	if c.MaxIdlePolls <= 0 {
		c.MaxIdlePolls = d.MaxIdlePolls
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	if c.MaxBatchWeight <= 0 {
		c.MaxBatchWeight = d.MaxBatchWeight
	}
	if c.DebuggerAgent == "" {
		c.DebuggerAgent = d.DebuggerAgent
	}
	return c
}

// Logger is the logging surface the engine needs.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ProgressLogger is implemented by loggers that render progress.
type ProgressLogger interface {
	LogProgress(p models.Progress)
}

// OutputLogger is implemented by loggers that keep raw agent output.
type OutputLogger interface {
	LogAgentOutput(agent string, attempt int, output string)
}

// InstructionSource is implemented by registries that carry agent instructions.
type InstructionSource interface {
	Instructions(name string) string
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg.normalized() }
}

// WithRegistry restricts dispatch to the registry's agents.
func WithRegistry(r agent.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithDetector sets the error pattern detector.
func WithDetector(d *healing.Detector) Option {
	return func(e *Engine) {
		if d != nil {
			e.detector = d
		}
	}
}

// WithTracker enables performance tracking, adaptive timeouts and history.
func WithTracker(t *learning.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithNotifier sets the progress event sink.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithLogger sets the logger. A nil logger silences output.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithWorkflowID fixes the workflow id instead of generating one.
func WithWorkflowID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.workflowID = id
		}
	}
}

// WithClock replaces time.Now for scheduling decisions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine is the single coordinator of a workflow run. Only the goroutine
// calling Run mutates plan, requirement and context state.
type Engine struct {
	cfg      Config
	runner   agent.Runner
	registry agent.Registry
	detector *healing.Detector
	tracker  *learning.Tracker
	notifier notify.Notifier
	logger   Logger
	now      func() time.Time

	workflowID   string
	requirements []*models.RequirementItem
	reqIndex     map[string]*models.RequirementItem
	plans        []*models.AgentExecutionPlan
	planIndex    map[string]*models.AgentExecutionPlan
	shared       *models.AgentContext

	lastOutput      map[string]string
	sinceCheckpoint int
	globalBlocked   bool
}

// NewEngine creates an engine that dispatches agents through runner.
// The runner is required; NewEngine panics when it is nil.
// Without options the engine uses DefaultConfig, a fresh error pattern
// detector, no registry (every agent name is accepted), no performance
// tracker and a discarding logger and notifier. Call Initialize or SetState
// before Run.
func NewEngine(runner agent.Runner, opts ...Option) *Engine {
	if runner == nil {
		panic("agent runner cannot be nil")
	}
	e := &Engine{
		cfg:        DefaultConfig(),
		runner:     runner,
		detector:   healing.NewDetector(),
		notifier:   notify.Nop,
		logger:     nopLogger{},
		now:        time.Now,
		workflowID: uuid.NewString(),
		shared:     models.NewAgentContext(),
		reqIndex:   make(map[string]*models.RequirementItem),
		planIndex:  make(map[string]*models.AgentExecutionPlan),
		lastOutput: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WorkflowID returns the id of the run.
func (e *Engine) WorkflowID() string { return e.workflowID }

// Detector returns the engine's error pattern detector.
func (e *Engine) Detector() *healing.Detector { return e.detector }

// Tracker returns the performance tracker, or nil.
func (e *Engine) Tracker() *learning.Tracker { return e.tracker }

// Initialize builds execution plans for reqs against the registry.
func (e *Engine) Initialize(reqs []*models.RequirementItem) error {
	cloned := make([]*models.RequirementItem, len(reqs))
	for i, r := range reqs {
		cloned[i] = r.Clone()
	}
	plans := BuildExecutionPlan(cloned, e.availableAgents())
	for _, p := range plans {
		p.Skippable = containsString(e.cfg.SkippableAgents, p.AgentName)
		if p.Status == models.AgentBlocked {
			e.logger.Warnf("Agent %s is not registered; its requirements cannot complete", p.AgentName)
		}
	}
	return e.SetState(cloned, plans, nil)
}

// SetState replaces requirements, plans and the shared context. Plans left
// RUNNING by an interrupted run are reset to READY.
func (e *Engine) SetState(reqs []*models.RequirementItem, plans []*models.AgentExecutionPlan, shared *models.AgentContext) error {
	reqIndex := make(map[string]*models.RequirementItem, len(reqs))
	for _, r := range reqs {
		if r == nil || r.ID == "" {
			return fmt.Errorf("requirement without id")
		}
		if _, dup := reqIndex[r.ID]; dup {
			return fmt.Errorf("duplicate requirement %s", r.ID)
		}
		reqIndex[r.ID] = r
	}
	planIndex := make(map[string]*models.AgentExecutionPlan, len(plans))
	ordered := make([]*models.AgentExecutionPlan, 0, len(plans))
	for _, p := range plans {
		if p == nil || p.AgentName == "" {
			return fmt.Errorf("execution plan without agent name")
		}
		if _, dup := planIndex[p.AgentName]; dup {
			return fmt.Errorf("duplicate execution plan for %s", p.AgentName)
		}
		if !validStatus(p.Status) {
			return fmt.Errorf("execution plan %s: invalid status %q", p.AgentName, p.Status)
		}
		if p.Status == models.AgentRunning {
			p.Status = models.AgentReady
		}
		planIndex[p.AgentName] = p
		ordered = append(ordered, p)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	if shared == nil {
		shared = models.NewAgentContext()
	}
	e.requirements = reqs
	e.reqIndex = reqIndex
	e.plans = ordered
	e.planIndex = planIndex
	e.shared = shared
	e.globalBlocked = false
	return nil
}

func validStatus(s models.AgentStatus) bool {
	switch s {
	case models.AgentPending, models.AgentReady, models.AgentRunning,
		models.AgentCompleted, models.AgentFailed, models.AgentBlocked:
		return true
	}
	return false
}

// Plans returns copies of the execution plans in insertion order.
func (e *Engine) Plans() []*models.AgentExecutionPlan {
	out := make([]*models.AgentExecutionPlan, len(e.plans))
	for i, p := range e.plans {
		out[i] = p.Clone()
	}
	return out
}

// Requirements returns copies of the requirements in parse order.
func (e *Engine) Requirements() []*models.RequirementItem {
	out := make([]*models.RequirementItem, len(e.requirements))
	for i, r := range e.requirements {
		out[i] = r.Clone()
	}
	return out
}

// Context returns a copy of the shared agent context.
func (e *Engine) Context() *models.AgentContext { return e.shared.Clone() }

// availableAgents returns nil when there is no registry, which places no
// restriction on dispatch.
func (e *Engine) availableAgents() []string {
	if e.registry == nil {
		return nil
	}
	return e.registry.ListAgentNames()
}

func (e *Engine) isAvailable(name string) bool {
	if e.registry == nil {
		return true
	}
	_, ok := e.registry.Capabilities(name)
	return ok
}

// ReadySet returns the agents that would be dispatched next, in dispatch
// order, ignoring the batch size.
func (e *Engine) ReadySet() []string {
	ready := e.readyPlans(e.now())
	names := make([]string, len(ready))
	for i, p := range ready {
		names[i] = p.AgentName
	}
	return names
}

func (e *Engine) dependenciesSatisfied(p *models.AgentExecutionPlan) bool {
	for _, d := range p.Dependencies {
		dp, ok := e.planIndex[d]
		if !ok || !dp.SatisfiesDependants() {
			return false
		}
	}
	return true
}

func schedulable(p *models.AgentExecutionPlan) bool {
	return (p.Status == models.AgentPending || p.Status == models.AgentReady) && !p.Halted
}

func (e *Engine) readyPlans(now time.Time) []*models.AgentExecutionPlan {
	var ready []*models.AgentExecutionPlan
	for _, p := range e.plans {
		if !schedulable(p) || now.Before(p.NotBefore) || !e.dependenciesSatisfied(p) {
			continue
		}
		ready = append(ready, p)
	}
	sortPlans(ready)
	return ready
}

// nextBackoff returns how long until the nearest plan in retry backoff
// becomes ready.
func (e *Engine) nextBackoff(now time.Time) (time.Duration, bool) {
	var wait time.Duration
	found := false
	for _, p := range e.plans {
		if !schedulable(p) || !now.Before(p.NotBefore) || !e.dependenciesSatisfied(p) {
			continue
		}
		if d := p.NotBefore.Sub(now); !found || d < wait {
			wait, found = d, true
		}
	}
	return wait, found
}

func (e *Engine) finished() bool {
	for _, p := range e.plans {
		if !p.IsTerminal() {
			return false
		}
	}
	return true
}

// propagateBlocked marks plans whose dependencies can never be satisfied.
func (e *Engine) propagateBlocked() {
	for changed := true; changed; {
		changed = false
		for _, p := range e.plans {
			if p.IsTerminal() || p.Status == models.AgentRunning {
				continue
			}
			for _, d := range p.Dependencies {
				dp, ok := e.planIndex[d]
				var reason string
				switch {
				case !ok:
					reason = fmt.Sprintf("dependency %s has no execution plan", d)
				case dp.Status == models.AgentBlocked:
					reason = fmt.Sprintf("dependency %s is blocked", d)
				case dp.Status == models.AgentFailed && dp.Terminal && !dp.Skippable:
					reason = fmt.Sprintf("dependency %s failed", d)
				default:
					continue
				}
				p.Status = models.AgentBlocked
				p.LastError = reason
				e.logger.Warnf("Agent %s blocked: %s", p.AgentName, reason)
				e.notifyAgent(p, reason)
				changed = true
				break
			}
		}
	}
}

// promoteReady moves PENDING plans whose dependencies are satisfied to READY.
func (e *Engine) promoteReady() {
	for _, p := range e.plans {
		if p.Status == models.AgentPending && e.dependenciesSatisfied(p) {
			p.Status = models.AgentReady
			e.notifyAgent(p, "dependencies satisfied")
		}
	}
}

// globalBlock marks every remaining plan BLOCKED and describes why.
func (e *Engine) globalBlock() *BlockedError {
	var remaining []*models.AgentExecutionPlan
	for _, p := range e.plans {
		if !p.IsTerminal() {
			remaining = append(remaining, p)
		}
	}
	cycle := BuildDependencyGraph(remaining).FindCycle()

	berr := &BlockedError{Cycle: cycle}
	for _, p := range remaining {
		p.Status = models.AgentBlocked
		p.LastError = "no forward progress possible"
		berr.Agents = append(berr.Agents, p.AgentName)
		e.notifyAgent(p, p.LastError)
	}
	e.globalBlocked = true
	e.refreshRequirements()
	for _, r := range e.requirements {
		if r.Status != models.RequirementCompleted {
			berr.Requirements = append(berr.Requirements, r.ID)
		}
	}
	return berr
}

// Run drives the workflow until every plan is terminal, the graph is
// globally blocked, or ctx is cancelled. The summary is always returned.
//
// Each iteration dispatches at most MaxParallel ready plans, bounded by
// MaxBatchWeight, and waits for the whole batch before scheduling again.
// When nothing is ready but a failed agent is waiting out its retry backoff,
// Run sleeps until the backoff expires. A checkpoint is written every
// CheckpointEvery completions and once more before returning when
// CheckpointPath is set.
//
// The error wraps ErrGlobalBlock, ErrManualIntervention or the context error.
// A nil error does not imply success; check the summary against the
// success threshold.
func (e *Engine) Run(ctx context.Context) (*models.WorkflowSummary, error) {
	start := e.now()
	e.notify(notify.Event{Type: notify.WorkflowStarted, Message: fmt.Sprintf("%d agents, %d requirements", len(e.plans), len(e.requirements))})
	e.logger.Infof("Workflow %s started: %d agents, %d requirements", e.workflowID, len(e.plans), len(e.requirements))
	e.refreshRequirements()

	var runErr error
	idlePolls := 0
	var lastIdle time.Time
	for {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("workflow interrupted: %w", err)
			break
		}
		e.propagateBlocked()
		e.promoteReady()

		now := e.now()
		ready := e.readyPlans(now)
		if len(ready) == 0 {
			if e.finished() {
				break
			}
			if wait, ok := e.nextBackoff(now); ok {
				// A backoff deadline always arrives unless the clock is
				// stuck, so only polls that see no time pass are counted.
				if now.After(lastIdle) {
					idlePolls = 0
				}
				lastIdle = now
				idlePolls++
				if idlePolls <= e.cfg.MaxIdlePolls {
					if wait > e.cfg.IdleWait {
						wait = e.cfg.IdleWait
					}
					if err := sleepContext(ctx, wait); err != nil {
						runErr = fmt.Errorf("workflow interrupted: %w", err)
						break
					}
					continue
				}
				e.logger.Warnf("Clock did not advance over %d idle polls", e.cfg.MaxIdlePolls)
			}
			berr := e.globalBlock()
			e.logger.Errorf("%v", berr)
			runErr = berr
			break
		}
		idlePolls = 0
		lastIdle = time.Time{}

		batch := e.selectBatch(ready)
		outcomes := e.dispatch(ctx, batch)
		for _, o := range outcomes {
			e.apply(ctx, o)
		}
		e.refreshRequirements()
		e.reportProgress()
		e.maybeCheckpoint()
	}

	if e.cfg.CheckpointPath != "" {
		if err := e.SaveCheckpoint(e.cfg.CheckpointPath); err != nil {
			e.logger.Warnf("Final checkpoint failed: %v", err)
		}
	}

	summary := e.Summary(e.now().Sub(start))
	if runErr == nil && len(summary.ManualIntervention) > 0 {
		runErr = &InterventionError{Agents: summary.ManualIntervention}
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	e.notify(notify.Event{Type: notify.WorkflowCompleted, Success: summary.Success, Progress: summary.Progress, Message: msg})
	return summary, runErr
}

// selectBatch takes ready plans in order until MaxParallel or the resource
// weight budget is reached. The first plan is always taken.
func (e *Engine) selectBatch(ready []*models.AgentExecutionPlan) []*models.AgentExecutionPlan {
	var batch []*models.AgentExecutionPlan
	weight := 0
	for _, p := range ready {
		if len(batch) == e.cfg.MaxParallel {
			break
		}
		w := learning.Weight(p.Runner())
		if len(batch) > 0 && weight+w > e.cfg.MaxBatchWeight {
			break
		}
		batch = append(batch, p)
		weight += w
	}
	return batch
}

func (e *Engine) maybeCheckpoint() {
	if e.cfg.CheckpointPath == "" || e.sinceCheckpoint < e.cfg.CheckpointEvery {
		return
	}
	if err := e.SaveCheckpoint(e.cfg.CheckpointPath); err != nil {
		e.logger.Warnf("Checkpoint failed: %v", err)
		return
	}
	e.sinceCheckpoint = 0
}

func (e *Engine) notify(ev notify.Event) {
	ev.WorkflowID = e.workflowID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	if ev.Progress == 0 {
		ev.Progress = e.Progress().Overall
	}
	e.notifier.Notify(ev)
}

func (e *Engine) notifyAgent(p *models.AgentExecutionPlan, msg string) {
	e.notify(notify.Event{
		Type:    notify.AgentStatusChanged,
		Agent:   p.AgentName,
		Status:  string(p.Status),
		Message: msg,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
