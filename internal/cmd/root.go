package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for agentflow
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentflow",
		Short: "Adaptive multi-agent workflow orchestration",
		Long: `Agentflow turns a project description into prioritized requirements,
assigns specialist agents to each one, and runs those agents in dependency
order with bounded parallelism.

Failures are classified into recurring patterns and escalated through a
recovery ladder (retry, retry with context, debugger, alternative agent,
manual intervention). Progress is checkpointed so interrupted runs resume
where they stopped, and agent performance history shapes later runs.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .agentflow/config.yaml or config.toml)")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().String("agents-dir", "", "Directory of agent definition files")

	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewPlanCommand())
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewKnowledgeCommand())

	return cmd
}
