// Package config loads agentflow settings from .agentflow/config.yaml (or a
// TOML file) and turns them into engine, history and knowledge options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/harrison/agentflow/internal/agent"
	"github.com/harrison/agentflow/internal/executor"
	"github.com/harrison/agentflow/internal/healing"
	"github.com/harrison/agentflow/internal/learning"
	"github.com/harrison/agentflow/internal/logger"
	"github.com/harrison/agentflow/internal/notify"
)

// HomeDir is the per-project state directory.
const HomeDir = ".agentflow"

// Duration is a time.Duration written as "250ms", "10m" in config files.
type Duration time.Duration

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText accepts a duration string; TOML decodes through this.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// HistoryConfig configures the agent performance history.
type HistoryConfig struct {
	// Backend is "json" or "sqlite"
	Backend                  string `yaml:"backend" toml:"backend"`
	Path                     string `yaml:"path" toml:"path"`
	SaveEvery                int    `yaml:"save_every" toml:"save_every"`
	MinExecutionsForLearning int    `yaml:"min_executions_for_learning" toml:"min_executions_for_learning"`
}

// KnowledgeConfig configures the error knowledge base.
type KnowledgeConfig struct {
	Path                  string  `yaml:"path" toml:"path"`
	SignificanceThreshold int     `yaml:"significance_threshold" toml:"significance_threshold"`
	SimilarityThreshold   float64 `yaml:"similarity_threshold" toml:"similarity_threshold"`
}

// ResourcesConfig bounds how much work runs at once.
type ResourcesConfig struct {
	MaxBatchWeight int `yaml:"max_batch_weight" toml:"max_batch_weight"`
}

// NotifyConfig configures event sinks. Empty values disable a sink.
type NotifyConfig struct {
	NATSURL     string `yaml:"nats_url" toml:"nats_url"`
	NATSSubject string `yaml:"nats_subject" toml:"nats_subject"`
	Buffer      int    `yaml:"buffer" toml:"buffer"`
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"`
}

// Config represents agentflow configuration options
type Config struct {
	MaxParallelAgents  int            `yaml:"max_parallel_agents" toml:"max_parallel_agents"`
	SuccessThreshold   float64        `yaml:"success_threshold" toml:"success_threshold"`
	MaxRetries         int            `yaml:"max_retries" toml:"max_retries"`
	StrategyThresholds healing.Ladder `yaml:"strategy_thresholds" toml:"strategy_thresholds"`

	// CheckpointEvery is the number of completed agents between checkpoints
	CheckpointEvery int    `yaml:"checkpoint_every" toml:"checkpoint_every"`
	CheckpointDir   string `yaml:"checkpoint_dir" toml:"checkpoint_dir"`

	IdleWait       Duration `yaml:"idle_wait" toml:"idle_wait"`
	MaxIdlePolls   int      `yaml:"max_idle_polls" toml:"max_idle_polls"`
	DefaultTimeout Duration `yaml:"default_timeout" toml:"default_timeout"`
	RetryBackoff   Duration `yaml:"retry_backoff" toml:"retry_backoff"`

	AgentsDir     string `yaml:"agents_dir" toml:"agents_dir"`
	AgentCommand  string `yaml:"agent_command" toml:"agent_command"`
	DebuggerAgent string `yaml:"debugger_agent" toml:"debugger_agent"`

	// SkippableAgents may fail terminally without blocking their dependants
	SkippableAgents []string `yaml:"skippable_agents" toml:"skippable_agents"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level" toml:"log_level"`
	LogDir   string `yaml:"log_dir" toml:"log_dir"`

	History   HistoryConfig   `yaml:"history" toml:"history"`
	Knowledge KnowledgeConfig `yaml:"knowledge" toml:"knowledge"`
	Resources ResourcesConfig `yaml:"resources" toml:"resources"`
	Notify    NotifyConfig    `yaml:"notify" toml:"notify"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		MaxParallelAgents:  executor.DefaultMaxParallel,
		SuccessThreshold:   executor.DefaultSuccessThreshold,
		MaxRetries:         executor.DefaultMaxRetries,
		StrategyThresholds: healing.DefaultLadder(),
		CheckpointEvery:    executor.DefaultCheckpointEvery,
		CheckpointDir:      filepath.Join(HomeDir, "checkpoints"),
		IdleWait:           Duration(executor.DefaultIdleWait),
		MaxIdlePolls:       executor.DefaultMaxIdlePolls,
		DefaultTimeout:     Duration(executor.DefaultTimeout),
		AgentsDir:          agent.DefaultAgentsDir,
		DebuggerAgent:      executor.DefaultDebuggerAgent,
		LogLevel:           "info",
		LogDir:             filepath.Join(HomeDir, "logs"),
		History: HistoryConfig{
			Backend:                  "json",
			Path:                     filepath.Join(HomeDir, "history.json"),
			SaveEvery:                learning.DefaultSaveEvery,
			MinExecutionsForLearning: learning.DefaultMinExecutionsForLearning,
		},
		Knowledge: KnowledgeConfig{
			Path:                  filepath.Join(HomeDir, "knowledge.json"),
			SignificanceThreshold: healing.DefaultSignificanceThreshold,
			SimilarityThreshold:   healing.DefaultSimilarityThreshold,
		},
		Resources: ResourcesConfig{MaxBatchWeight: learning.DefaultMaxBatchWeight},
		Notify: NotifyConfig{
			NATSSubject: notify.DefaultSubject,
			Buffer:      notify.DefaultBuffer,
		},
	}
}

// LoadConfig loads configuration from path, decoding TOML for a .toml
// extension and YAML otherwise. Values absent from the file keep their
// defaults. A missing file returns the defaults without error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigFromDir loads .agentflow/config.yaml, or .agentflow/config.toml
// when no YAML file exists, from dir.
func LoadConfigFromDir(dir string) (*Config, error) {
	yamlPath := filepath.Join(dir, HomeDir, "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return LoadConfig(yamlPath)
	}
	tomlPath := filepath.Join(dir, HomeDir, "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		return LoadConfig(tomlPath)
	}
	return DefaultConfig(), nil
}

// Flags carries CLI overrides. Nil fields leave the config untouched.
type Flags struct {
	MaxParallel    *int
	DefaultTimeout *time.Duration
	LogLevel       *string
	LogDir         *string
	CheckpointDir  *string
	AgentsDir      *string
	AgentCommand   *string
	NATSURL        *string
	MetricsAddr    *string
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(f Flags) {
	if f.MaxParallel != nil {
		c.MaxParallelAgents = *f.MaxParallel
	}
	if f.DefaultTimeout != nil {
		c.DefaultTimeout = Duration(*f.DefaultTimeout)
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
	if f.CheckpointDir != nil {
		c.CheckpointDir = *f.CheckpointDir
	}
	if f.AgentsDir != nil {
		c.AgentsDir = *f.AgentsDir
	}
	if f.AgentCommand != nil {
		c.AgentCommand = *f.AgentCommand
	}
	if f.NATSURL != nil {
		c.Notify.NATSURL = *f.NATSURL
	}
	if f.MetricsAddr != nil {
		c.Notify.MetricsAddr = *f.MetricsAddr
	}
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if c.MaxParallelAgents < 1 {
		add("max_parallel_agents must be >= 1, got %d", c.MaxParallelAgents)
	}
	if c.SuccessThreshold <= 0 || c.SuccessThreshold > 1 {
		add("success_threshold must be in (0, 1], got %g", c.SuccessThreshold)
	}
	if c.MaxRetries < 0 {
		add("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if err := c.StrategyThresholds.Validate(); err != nil {
		add("strategy_thresholds: %w", err)
	}
	if c.CheckpointEvery < 1 {
		add("checkpoint_every must be >= 1, got %d", c.CheckpointEvery)
	}
	if c.IdleWait <= 0 {
		add("idle_wait must be > 0, got %v", time.Duration(c.IdleWait))
	}
	if c.MaxIdlePolls < 1 {
		add("max_idle_polls must be >= 1, got %d", c.MaxIdlePolls)
	}
	if c.DefaultTimeout <= 0 {
		add("default_timeout must be > 0, got %v", time.Duration(c.DefaultTimeout))
	}
	if c.RetryBackoff < 0 {
		add("retry_backoff must be >= 0, got %v", time.Duration(c.RetryBackoff))
	}
	if !logger.ValidLevel(c.LogLevel) {
		add("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	switch c.History.Backend {
	case "json", "sqlite":
	default:
		add("history.backend must be json or sqlite, got %q", c.History.Backend)
	}
	if c.History.Path == "" {
		add("history.path cannot be empty")
	}
	if c.History.SaveEvery < 1 {
		add("history.save_every must be >= 1, got %d", c.History.SaveEvery)
	}
	if c.History.MinExecutionsForLearning < 1 {
		add("history.min_executions_for_learning must be >= 1, got %d", c.History.MinExecutionsForLearning)
	}
	if c.Knowledge.SignificanceThreshold < 1 {
		add("knowledge.significance_threshold must be >= 1, got %d", c.Knowledge.SignificanceThreshold)
	}
	if c.Knowledge.SimilarityThreshold <= 0 || c.Knowledge.SimilarityThreshold > 1 {
		add("knowledge.similarity_threshold must be in (0, 1], got %g", c.Knowledge.SimilarityThreshold)
	}
	if c.Resources.MaxBatchWeight < 1 {
		add("resources.max_batch_weight must be >= 1, got %d", c.Resources.MaxBatchWeight)
	}
	for i, a := range c.SkippableAgents {
		if strings.TrimSpace(a) == "" {
			add("skippable_agents[%d] cannot be empty", i)
		}
	}
	if c.Notify.Buffer < 1 {
		add("notify.buffer must be >= 1, got %d", c.Notify.Buffer)
	}

	return errors.Join(problems...)
}

// CheckpointPath is where the checkpoint of workflowID lives.
func (c *Config) CheckpointPath(workflowID string) string {
	return filepath.Join(c.CheckpointDir, workflowID+".json")
}

// ExecutorConfig maps the file settings onto engine settings.
func (c *Config) ExecutorConfig(checkpointPath string) executor.Config {
	return executor.Config{
		MaxParallel:      c.MaxParallelAgents,
		SuccessThreshold: c.SuccessThreshold,
		MaxRetries:       c.MaxRetries,
		CheckpointEvery:  c.CheckpointEvery,
		CheckpointPath:   checkpointPath,
		IdleWait:         time.Duration(c.IdleWait),
		MaxIdlePolls:     c.MaxIdlePolls,
		DefaultTimeout:   time.Duration(c.DefaultTimeout),
		MaxBatchWeight:   c.Resources.MaxBatchWeight,
		RetryBackoff:     time.Duration(c.RetryBackoff),
		DebuggerAgent:    c.DebuggerAgent,
		SkippableAgents:  append([]string(nil), c.SkippableAgents...),
	}
}

// DetectorOptions configures the error pattern detector; kb may be nil.
func (c *Config) DetectorOptions(kb *healing.KnowledgeBase) []healing.DetectorOption {
	opts := []healing.DetectorOption{
		healing.WithLadder(c.StrategyThresholds),
		healing.WithSignificanceThreshold(c.Knowledge.SignificanceThreshold),
	}
	if kb != nil {
		opts = append(opts, healing.WithKnowledgeBase(kb))
	}
	return opts
}

// TrackerOptions configures the performance tracker.
func (c *Config) TrackerOptions() []learning.TrackerOption {
	return []learning.TrackerOption{
		learning.WithSaveEvery(c.History.SaveEvery),
		learning.WithMinExecutions(c.History.MinExecutionsForLearning),
	}
}
