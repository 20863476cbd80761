package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/agent"
	"github.com/harrison/agentflow/internal/config"
	"github.com/harrison/agentflow/internal/learning"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/requirements"
)

// loadConfig reads the config file named by --config, or the project default,
// and applies the persistent flags. Command specific flags are merged by the
// caller before Validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var flags config.Flags
	if cmd.Flags().Changed("log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		flags.LogLevel = &level
	}
	if cmd.Flags().Changed("agents-dir") {
		dir, _ := cmd.Flags().GetString("agents-dir")
		flags.AgentsDir = &dir
	}
	cfg.MergeWithFlags(flags)
	return cfg, nil
}

// discoverAgents loads the agent registry and returns it with the names it
// knows. An empty registry yields nil names, which means every agent named by
// the rule table is accepted.
func discoverAgents(cfg *config.Config, warn io.Writer) (*agent.DirectoryRegistry, []string, error) {
	registry := agent.NewDirectoryRegistry(cfg.AgentsDir)
	if err := registry.Discover(); err != nil {
		return nil, nil, fmt.Errorf("failed to discover agents in %s: %w", cfg.AgentsDir, err)
	}
	for _, w := range registry.Warnings() {
		fmt.Fprintf(warn, "Warning: skipped agent file %s\n", w)
	}
	names := registry.ListAgentNames()
	if len(names) == 0 {
		return registry, nil, nil
	}
	return registry, names, nil
}

// loadRequirements reads and parses a requirements document.
func loadRequirements(path string, available []string, selector requirements.Selector) (*requirements.Document, []*models.RequirementItem, error) {
	doc, err := requirements.LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load requirements: %w", err)
	}
	var opts []requirements.Option
	if selector != nil {
		opts = append(opts, requirements.WithSelector(selector))
	}
	reqs, err := requirements.Parse(doc, available, opts...)
	if err != nil {
		return nil, nil, err
	}
	return doc, reqs, nil
}

// openTracker opens the configured history backend.
func openTracker(ctx context.Context, cfg *config.Config) (*learning.Tracker, error) {
	repo, err := learning.Open(cfg.History.Backend, cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	tracker, err := learning.NewTracker(ctx, repo, cfg.TrackerOptions()...)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return tracker, nil
}
