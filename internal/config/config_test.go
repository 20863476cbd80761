package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/agentflow/internal/executor"
	"github.com/harrison/agentflow/internal/healing"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxParallelAgents)
	assert.Equal(t, 0.8, cfg.SuccessThreshold)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, healing.DefaultLadder(), cfg.StrategyThresholds)
	assert.Equal(t, 2, cfg.CheckpointEvery)
	assert.Equal(t, Duration(10*time.Minute), cfg.DefaultTimeout)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.IdleWait)
	assert.Equal(t, "json", cfg.History.Backend)
	assert.Equal(t, 10, cfg.History.SaveEvery)
	assert.Equal(t, 5, cfg.History.MinExecutionsForLearning)
	assert.Equal(t, 3, cfg.Knowledge.SignificanceThreshold)
	assert.Equal(t, 0.6, cfg.Knowledge.SimilarityThreshold)
	assert.Equal(t, 6, cfg.Resources.MaxBatchWeight)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "config.yaml"), `
max_parallel_agents: 5
success_threshold: 0.9
default_timeout: 30m
idle_wait: 50ms
log_level: debug
skippable_agents: [documentation]
strategy_thresholds:
  manual_intervention: 8
history:
  backend: sqlite
  path: /tmp/history.db
notify:
  nats_url: nats://localhost:4222
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxParallelAgents)
	assert.Equal(t, 0.9, cfg.SuccessThreshold)
	assert.Equal(t, Duration(30*time.Minute), cfg.DefaultTimeout)
	assert.Equal(t, Duration(50*time.Millisecond), cfg.IdleWait)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"documentation"}, cfg.SkippableAgents)
	assert.Equal(t, 8, cfg.StrategyThresholds.ManualIntervention)
	assert.Equal(t, 4, cfg.StrategyThresholds.UseAlternativeAgent, "unset keys keep defaults")
	assert.Equal(t, "sqlite", cfg.History.Backend)
	assert.Equal(t, 10, cfg.History.SaveEvery)
	assert.Equal(t, "nats://localhost:4222", cfg.Notify.NATSURL)
	assert.Equal(t, "agentflow.events", cfg.Notify.NATSSubject)
	assert.Equal(t, 4, cfg.MaxRetries)
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "config.toml"), `
max_parallel_agents = 2
default_timeout = "90s"
checkpoint_dir = "/var/agentflow"

[strategy_thresholds]
trigger_debugger = 3
use_alternative_agent = 6
manual_intervention = 7

[resources]
max_batch_weight = 4
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxParallelAgents)
	assert.Equal(t, Duration(90*time.Second), cfg.DefaultTimeout)
	assert.Equal(t, 6, cfg.StrategyThresholds.UseAlternativeAgent)
	assert.Equal(t, 4, cfg.Resources.MaxBatchWeight)
	assert.Equal(t, "/var/agentflow/wf-1.json", cfg.CheckpointPath("wf-1"))
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err, "missing file falls back to defaults")
	assert.Equal(t, DefaultConfig(), cfg)

	bad := writeFile(t, filepath.Join(dir, "bad.yaml"), "max_parallel_agents: [\n")
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	dur := writeFile(t, filepath.Join(dir, "dur.yaml"), "default_timeout: soon\n")
	_, err = LoadConfig(dur)
	assert.ErrorContains(t, err, `invalid duration "soon"`)
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	writeFile(t, filepath.Join(dir, HomeDir, "config.toml"), "max_retries = 1\n")
	cfg, err = LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxRetries)

	writeFile(t, filepath.Join(dir, HomeDir, "config.yaml"), "max_retries: 2\n")
	cfg, err = LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxRetries, "yaml wins over toml")
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	parallel := 7
	timeout := time.Minute
	level := "warn"
	nats := "nats://bus:4222"

	cfg.MergeWithFlags(Flags{MaxParallel: &parallel, DefaultTimeout: &timeout, LogLevel: &level, NATSURL: &nats})
	assert.Equal(t, 7, cfg.MaxParallelAgents)
	assert.Equal(t, Duration(time.Minute), cfg.DefaultTimeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "nats://bus:4222", cfg.Notify.NATSURL)
	assert.Equal(t, DefaultConfig().LogDir, cfg.LogDir, "nil flags change nothing")
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxParallelAgents = 0
	cfg.SuccessThreshold = 1.5
	cfg.LogLevel = "loud"
	cfg.History.Backend = "mongo"
	cfg.StrategyThresholds.TriggerDebugger = 1

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"max_parallel_agents must be >= 1",
		"success_threshold must be in (0, 1]",
		`invalid log_level "loud"`,
		`history.backend must be json or sqlite, got "mongo"`,
		"strategy_thresholds:",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestExecutorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryBackoff = Duration(time.Second)
	cfg.SkippableAgents = []string{"documentation"}
	got := cfg.ExecutorConfig("/tmp/cp.json")

	want := executor.DefaultConfig()
	want.CheckpointPath = "/tmp/cp.json"
	want.RetryBackoff = time.Second
	want.SkippableAgents = []string{"documentation"}
	assert.Equal(t, want, got)

	assert.Len(t, cfg.DetectorOptions(nil), 2)
	assert.Len(t, cfg.TrackerOptions(), 2)
}
