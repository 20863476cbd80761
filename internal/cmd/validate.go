package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/agent"
	"github.com/harrison/agentflow/internal/executor"
	"github.com/harrison/agentflow/internal/requirements"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <requirements-file>",
		Short: "Validate a requirements document",
		Long: `Parse and validate a requirements document (YAML, JSON or Markdown), checking for:
  - A project name and type
  - At least one feature, each with a description
  - Explicit priorities in the range 1-5
  - Every assigned agent exists in the agent registry
  - The resulting agent dependency graph has no cycle

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			registry, names, err := discoverAgents(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return validateRequirementsFile(args[0], registry, names, cmd.OutOrStdout())
		},
	}

	return cmd
}

// validateRequirementsFile prints a report for path and returns an error when
// anything is invalid. names is nil when the registry is empty, in which case
// agent existence is not checked.
func validateRequirementsFile(path string, registry agent.Registry, names []string, output io.Writer) error {
	fmt.Fprintf(output, "Validating requirements from %s\n", path)

	_, reqs, err := loadRequirements(path, names, nil)
	if err != nil {
		var verr *requirements.ValidationError
		if errors.As(err, &verr) {
			return reportProblems(output, verr.Problems)
		}
		fmt.Fprintf(output, "✗ %v\n", err)
		return err
	}
	fmt.Fprintf(output, "✓ Parsed %d requirements\n", len(reqs))

	var problems []string
	if names == nil {
		fmt.Fprintf(output, "- No agents registered; skipping agent existence check\n")
	} else {
		assignments := make([]agent.Assignment, 0, len(reqs))
		for _, r := range reqs {
			assignments = append(assignments, agent.Assignment{RequirementID: r.ID, Agents: r.AssignedAgents})
		}
		unknown := agent.ValidateAssignments(assignments, registry)
		for _, u := range unknown {
			problems = append(problems, u.Error())
		}
		if len(unknown) == 0 {
			fmt.Fprintf(output, "✓ All agents available\n")
		}
	}

	graph := executor.BuildDependencyGraph(executor.BuildExecutionPlan(reqs, names))
	if cycle := graph.FindCycle(); len(cycle) > 0 {
		problems = append(problems, fmt.Sprintf("circular agent dependency: %v", cycle))
	} else {
		fmt.Fprintf(output, "✓ No circular dependencies detected\n")
	}

	if len(problems) > 0 {
		return reportProblems(output, problems)
	}
	fmt.Fprintf(output, "\n✓ Requirements are valid!\n")
	return nil
}

func reportProblems(output io.Writer, problems []string) error {
	fmt.Fprintf(output, "\n✗ Validation failed\n")
	for _, p := range problems {
		fmt.Fprintf(output, "  ✗ %s\n", p)
	}
	fmt.Fprintf(output, "\nFound %d validation error(s)!\n", len(problems))
	return fmt.Errorf("validation failed with %d error(s)", len(problems))
}
