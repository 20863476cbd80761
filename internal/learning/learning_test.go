package learning

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/agentflow/internal/requirements"
)

func exec(agent string, success bool, d time.Duration) Execution {
	return Execution{Agent: agent, Success: success, Duration: d, Timestamp: time.Unix(1700000000, 0)}
}

func TestMetricsUpdate(t *testing.T) {
	m := NewAgentPerformanceMetrics("builder")
	m.Update(exec("builder", true, 10*time.Second))
	fail := exec("builder", false, 30*time.Second)
	fail.FailureReason = "timeout"
	fail.TokensUsed = 300
	fail.Cost = 0.5
	m.Update(fail)

	assert.Equal(t, 2, m.TotalExecutions)
	assert.Equal(t, 1, m.SuccessfulExecutions)
	assert.Equal(t, 1, m.FailedExecutions)
	assert.InDelta(t, 20.0, m.AverageExecutionTime, 1e-9)
	assert.InDelta(t, 0.5, m.SuccessRate(), 1e-9)
	assert.Equal(t, map[string]int{"timeout": 1}, m.FailurePatterns)
	assert.Equal(t, []float64{1, 0}, m.RecentScores)
	assert.InDelta(t, 150.0, m.AverageTokens(), 1e-9)
	assert.InDelta(t, 0.25, m.AverageCost(), 1e-9)
	assert.Zero(t, NewAgentPerformanceMetrics("idle").AverageCost())
}

func TestRecentScoresWindow(t *testing.T) {
	m := NewAgentPerformanceMetrics("tester")
	for i := 0; i < 15; i++ {
		m.Update(exec("tester", true, time.Second))
	}
	assert.Len(t, m.RecentScores, recentWindow)
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name    string
		results []bool
		want    Trend
	}{
		{"too few points", []bool{true, false}, TrendInsufficientData},
		{"improving", []bool{false, false, true, true}, TrendImproving},
		{"degrading", []bool{true, true, false, false}, TrendDegrading},
		{"stable", []bool{true, true, true, true}, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAgentPerformanceMetrics("a")
			for _, ok := range tt.results {
				m.Update(exec("a", ok, time.Second))
			}
			assert.Equal(t, tt.want, m.Trend())
		})
	}
}

func TestDynamicTimeout(t *testing.T) {
	ctx := context.Background()
	tracker, err := NewTracker(ctx, nil)
	require.NoError(t, err)

	def := 10 * time.Minute
	assert.Equal(t, def, tracker.DynamicTimeout("builder", def), "no history uses default")

	require.NoError(t, tracker.Record(ctx, exec("builder", true, 100*time.Second)))
	require.NoError(t, tracker.Record(ctx, exec("builder", true, 100*time.Second)))
	assert.Equal(t, 200*time.Second, tracker.DynamicTimeout("builder", def), "stable: twice the average")

	require.NoError(t, tracker.Record(ctx, exec("fast", true, time.Second)))
	assert.Equal(t, MinTimeout, tracker.DynamicTimeout("fast", def))

	require.NoError(t, tracker.Record(ctx, exec("slow", true, 2*time.Hour)))
	assert.Equal(t, MaxTimeout, tracker.DynamicTimeout("slow", def))

	for _, ok := range []bool{true, true, false, false} {
		require.NoError(t, tracker.Record(ctx, exec("flaky", ok, 100*time.Second)))
	}
	assert.Equal(t, 300*time.Second, tracker.DynamicTimeout("flaky", def), "degrading stretches by half")

	for _, ok := range []bool{false, false, true, true} {
		require.NoError(t, tracker.Record(ctx, exec("learner", ok, 100*time.Second)))
	}
	assert.Equal(t, 180*time.Second, tracker.DynamicTimeout("learner", def), "improving tightens by a tenth")
}

func TestNewSelectorFallsBackToRules(t *testing.T) {
	ctx := context.Background()
	tracker, err := NewTracker(ctx, nil, WithMinExecutions(3))
	require.NoError(t, err)

	available := []string{"api-integrator", "backend-developer"}
	sel := NewSelector(tracker, nil)
	_, isRule := sel.(*requirements.RuleSelector)
	assert.True(t, isRule, "cold start uses the rule table")
	assert.Equal(t, []string{"api-integrator", "backend-developer"},
		sel.SelectOptimalAgents("payment checkout", available))

	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.Record(ctx, exec("backend-developer", true, time.Second)))
		require.NoError(t, tracker.Record(ctx, exec("api-integrator", false, time.Second)))
	}
	sel = NewSelector(tracker, nil)
	_, isHistory := sel.(*HistorySelector)
	require.True(t, isHistory)
	assert.Equal(t, []string{"backend-developer"}, sel.SelectOptimalAgents("payment checkout", available))
}

func TestHistorySelectorNeutralPrior(t *testing.T) {
	ctx := context.Background()
	tracker, err := NewTracker(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, tracker.Record(ctx, exec("api-integrator", false, time.Second)))

	sel := &HistorySelector{Tracker: tracker}
	assert.Equal(t, []string{"backend-developer"},
		sel.SelectOptimalAgents("payment checkout", []string{"api-integrator", "backend-developer"}),
		"an unknown agent outranks one that has only failed")
}

func TestTrackerSavesEveryN(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	tracker, err := NewTracker(ctx, repo, WithSaveEvery(2))
	require.NoError(t, err)

	require.NoError(t, tracker.Record(ctx, exec("builder", true, time.Second)))
	stored, _ := repo.Load(ctx)
	assert.Empty(t, stored)

	require.NoError(t, tracker.Record(ctx, exec("builder", true, time.Second)))
	stored, _ = repo.Load(ctx)
	require.Contains(t, stored, "builder")
	assert.Equal(t, 2, stored["builder"].TotalExecutions)

	require.NoError(t, tracker.Record(ctx, exec("tester", true, time.Second)))
	require.NoError(t, tracker.Close(ctx))
	stored, _ = repo.Load(ctx)
	assert.Contains(t, stored, "tester")
}

func TestJSONRepositoryMergesAcrossWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")

	a, err := NewTracker(ctx, NewJSONRepository(path))
	require.NoError(t, err)
	b, err := NewTracker(ctx, NewJSONRepository(path))
	require.NoError(t, err)

	require.NoError(t, a.Record(ctx, exec("builder", true, time.Second)))
	require.NoError(t, b.Record(ctx, exec("tester", false, time.Second)))
	require.NoError(t, a.Close(ctx))
	require.NoError(t, b.Close(ctx))

	again, err := NewTracker(ctx, NewJSONRepository(path))
	require.NoError(t, err)
	all := again.All()
	require.Len(t, all, 2)
	assert.Equal(t, "builder", all[0].AgentName)
	assert.Equal(t, "tester", all[1].AgentName)
	assert.Equal(t, 1, all[1].FailedExecutions)
}

func TestSQLiteRepository(t *testing.T) {
	ctx := context.Background()
	repo, err := NewSQLiteRepository(":memory:")
	require.NoError(t, err)

	versions, err := repo.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Len(t, versions, len(migrations))

	tracker, err := NewTracker(ctx, repo, WithSaveEvery(1))
	require.NoError(t, err)
	fail := exec("builder", false, 2*time.Second)
	fail.FailureReason = "rate_limit"
	fail.WorkflowID = "wf-1"
	require.NoError(t, tracker.Record(ctx, exec("builder", true, 4*time.Second)))
	require.NoError(t, tracker.Record(ctx, fail))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	m := loaded["builder"]
	require.NotNil(t, m)
	assert.Equal(t, 2, m.TotalExecutions)
	assert.InDelta(t, 3.0, m.AverageExecutionTime, 1e-9)
	assert.Equal(t, map[string]int{"rate_limit": 1}, m.FailurePatterns)
	assert.Equal(t, []float64{1, 0}, m.RecentScores)

	recent, err := repo.RecentExecutions(ctx, "builder", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 2*time.Second, recent[0].Duration)
	assert.Equal(t, "rate_limit", recent[0].FailureReason)

	require.NoError(t, repo.ApplyMigrations(ctx), "migrations are idempotent")
	require.NoError(t, tracker.Close(ctx))
}

func TestOpenBackends(t *testing.T) {
	dir := t.TempDir()
	repo, err := Open("json", filepath.Join(dir, "h.json"))
	require.NoError(t, err)
	assert.IsType(t, &JSONRepository{}, repo)

	repo, err = Open("sqlite", filepath.Join(dir, "h.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteRepository{}, repo)
	require.NoError(t, repo.Close())

	_, err = Open("mongo", "")
	assert.Error(t, err)
}

func TestOptimizeParallelExecutionByWeight(t *testing.T) {
	plan := OptimizeParallelExecution(
		[]string{"architect", "builder", "tester", "documentation", "frontend", "ai-specialist"}, nil, 6)
	assert.Equal(t, [][]string{
		{"architect", "builder"},
		{"tester", "documentation", "frontend"},
		{"ai-specialist"},
	}, plan.Batches)
	assert.Empty(t, plan.Cycle)

	for _, batch := range plan.Batches {
		sum := 0
		for _, a := range batch {
			sum += Weight(a)
		}
		assert.LessOrEqual(t, sum, 6)
	}
}

func TestOptimizeParallelExecutionLayers(t *testing.T) {
	deps := map[string][]string{
		"builder":  {"architect"},
		"frontend": {"architect"},
		"tester":   {"builder", "frontend"},
	}
	plan := OptimizeParallelExecution([]string{"tester", "frontend", "builder", "architect"}, deps, 6)
	assert.Equal(t, [][]string{
		{"architect"},
		{"frontend", "builder"},
		{"tester"},
	}, plan.Batches)
}

func TestOptimizeParallelExecutionCycle(t *testing.T) {
	deps := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}
	plan := OptimizeParallelExecution([]string{"root", "a", "b"}, deps, 6)
	assert.Equal(t, []string{"a", "b"}, plan.Cycle)
	assert.Equal(t, [][]string{{"root"}, {"a", "b"}}, plan.Batches)
}
