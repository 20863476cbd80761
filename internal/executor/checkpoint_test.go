package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/agentflow/internal/agent"
	"github.com/harrison/agentflow/internal/healing"
	"github.com/harrison/agentflow/internal/learning"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/notify"
)

func midRunEngine(t *testing.T) *Engine {
	t.Helper()
	reqs := shopRequirements(t)
	plans := BuildExecutionPlan(reqs, shopAgents)
	arch := planByName(plans, "architect")
	arch.Status = models.AgentCompleted
	arch.ExecutionTime = 3 * time.Second
	front := planByName(plans, "frontend")
	front.Status = models.AgentReady
	front.CurrentRetry = 2
	front.FailureContext = []string{"Previous attempt failed: timeout"}
	planByName(plans, "builder").Status = models.AgentRunning

	shared := models.NewAgentContext()
	shared.Decisions = []string{"use postgres"}
	shared.AddCompletedTask("architect")

	e := NewEngine(newFakeRunner(), WithWorkflowID("wf-shop"))
	require.NoError(t, e.SetState(reqs, plans, shared))
	e.refreshRequirements()
	return e
}

func statuses(plans []*models.AgentExecutionPlan) map[string]models.AgentStatus {
	out := make(map[string]models.AgentStatus, len(plans))
	for _, p := range plans {
		out[p.AgentName] = p.Status
	}
	return out
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints", "wf-shop.json")
	rec := &notify.Recorder{}
	e := midRunEngine(t)
	e.notifier = rec
	before := e.ReadySet()
	require.NotEmpty(t, before)

	require.NoError(t, e.SaveCheckpoint(path))
	assert.Len(t, rec.OfType(notify.CheckpointSaved), 1)

	restored := NewEngine(newFakeRunner())
	ok, err := restored.LoadCheckpoint(path)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "wf-shop", restored.WorkflowID())
	assert.Equal(t, before, restored.ReadySet())
	assert.Equal(t, statuses(e.Plans()), statuses(restored.Plans()))
	assert.Equal(t, models.AgentReady, planByName(restored.Plans(), "builder").Status, "running plans resume as ready")
	front := planByName(restored.Plans(), "frontend")
	assert.Equal(t, 2, front.CurrentRetry)
	assert.Equal(t, []string{"Previous attempt failed: timeout"}, front.FailureContext)
	assert.Len(t, restored.Requirements(), len(e.Requirements()))
	assert.Equal(t, []string{"use postgres"}, restored.Context().Decisions)
	assert.InDelta(t, e.Progress().Overall, restored.Progress().Overall, 1e-9)
}

func TestLoadCheckpointMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	e := midRunEngine(t)
	plansBefore := e.Plans()

	ok, err := e.LoadCheckpoint(filepath.Join(dir, "absent.json"))
	assert.False(t, ok)
	assert.NoError(t, err)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte(`{"version": 1, "plans": [`), 0644))
	ok, err = e.LoadCheckpoint(corrupt)
	assert.False(t, ok)
	assert.Error(t, err)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version": 99, "workflow_id": "x"}`), 0644))
	_, err = e.LoadCheckpoint(future)
	assert.ErrorContains(t, err, "unsupported version")

	dup := filepath.Join(dir, "dup.json")
	require.NoError(t, os.WriteFile(dup, []byte(`{"version": 1, "workflow_id": "x",
		"plans": [{"agent_name": "a", "status": "READY"}, {"agent_name": "a", "status": "READY"}]}`), 0644))
	_, err = e.LoadCheckpoint(dup)
	assert.ErrorContains(t, err, "duplicate execution plan")

	assert.Equal(t, "wf-shop", e.WorkflowID())
	assert.Equal(t, statuses(plansBefore), statuses(e.Plans()), "failed loads leave state untouched")
}

func TestResumeAfterInterrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.json")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := make(map[string]int)
	interrupting := agent.RunnerFunc(func(ctx context.Context, req agent.Request) (agent.Result, error) {
		mu.Lock()
		calls[req.Agent]++
		mu.Unlock()
		if req.Agent == "architect" {
			return agent.Result{Success: true}, nil
		}
		cancel()
		<-ctx.Done()
		return agent.Result{}, ctx.Err()
	})

	cfg := testConfig()
	cfg.CheckpointPath = path
	first := NewEngine(interrupting, WithConfig(cfg), WithWorkflowID("wf-resume"), WithRegistry(agent.NewStaticRegistry(shopAgents...)))
	require.NoError(t, first.Initialize(shopRequirements(t)))

	summary, err := first.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, summary.Success)

	cp, err := ReadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, models.AgentCompleted, planByName(cp.Plans, "architect").Status)
	for _, name := range []string{"builder", "frontend", "api-integrator"} {
		p := planByName(cp.Plans, name)
		assert.Equal(t, models.AgentReady, p.Status, name)
		assert.Zero(t, p.CurrentRetry, "an interrupted attempt is not a retry")
	}

	runner := newFakeRunner()
	second := NewEngine(runner, WithConfig(cfg))
	ok, err := second.LoadCheckpoint(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wf-resume", second.WorkflowID())

	summary, err = second.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Zero(t, runner.Calls("architect"), "completed work is not repeated")
	assert.Equal(t, 1, runner.Calls("builder"))
}

func TestPeriodicCheckpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.json")
	rec := &notify.Recorder{}
	cfg := testConfig()
	cfg.CheckpointPath = path
	cfg.CheckpointEvery = 2
	e := NewEngine(newFakeRunner(), WithConfig(cfg), WithNotifier(rec))
	require.NoError(t, e.Initialize(independentRequirements(6)))

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	// 6 agents in batches of 3: one checkpoint per batch plus the final one.
	assert.Len(t, rec.OfType(notify.CheckpointSaved), 3)
	cp, err := ReadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, 100.0, cp.Progress.Overall)
	assert.Equal(t, models.CheckpointVersion, cp.Version)
}

type summaryRecorder struct {
	summaries []models.WorkflowSummary
}

func (s *summaryRecorder) LogSummary(sum models.WorkflowSummary) {
	s.summaries = append(s.summaries, sum)
}

func TestOrchestratorPersistsCrossRunState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tracker, err := learning.NewTracker(ctx, learning.NewJSONRepository(filepath.Join(dir, "history.json")))
	require.NoError(t, err)
	kb, err := healing.OpenKnowledgeBase(filepath.Join(dir, "knowledge.json"), 0)
	require.NoError(t, err)
	detector := healing.NewDetector(healing.WithKnowledgeBase(kb), healing.WithSignificanceThreshold(1))

	runner := newFakeRunner()
	runner.failures["builder"] = 2
	e := NewEngine(runner, WithConfig(testConfig()), WithTracker(tracker), WithDetector(detector))
	require.NoError(t, e.Initialize([]*models.RequirementItem{{ID: "REQ-001", AssignedAgents: []string{"builder"}}}))

	summaries := &summaryRecorder{}
	summary, err := NewOrchestrator(e, summaries, nil).Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Success)
	require.Len(t, summaries.summaries, 1)

	again, err := learning.NewTracker(ctx, learning.NewJSONRepository(filepath.Join(dir, "history.json")))
	require.NoError(t, err)
	m, ok := again.Metrics("builder")
	require.True(t, ok)
	assert.Equal(t, 3, m.TotalExecutions)

	reopened, err := healing.OpenKnowledgeBase(filepath.Join(dir, "knowledge.json"), 0)
	require.NoError(t, err)
	_, known := reopened.Lookup(missingContent)
	assert.True(t, known, "significant patterns survive the run")
}
