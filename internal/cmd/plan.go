package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/executor"
	"github.com/harrison/agentflow/internal/learning"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/requirements"
)

// NewPlanCommand creates the plan command
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <requirements-file>",
		Short: "Show the requirements and agent execution plan without running it",
		Long: `Parse a requirements document and print what a run would do:
the prioritized requirements with their assigned agents, each agent's
dependencies and initial status, and the parallel waves the agents fall
into under the configured resource budget.

Examples:
  agentflow plan project.yaml
  agentflow plan --history project.yaml   # select agents from performance history
  agentflow plan --json project.md        # machine-readable output`,
		Args: cobra.ExactArgs(1),
		RunE: runPlan,
	}

	cmd.Flags().Bool("history", false, "Use agent performance history for agent selection")
	cmd.Flags().Bool("json", false, "Print the execution plan as JSON")

	return cmd
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	_, names, err := discoverAgents(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var selector requirements.Selector
	if useHistory, _ := cmd.Flags().GetBool("history"); useHistory {
		tracker, err := openTracker(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer tracker.Close(context.Background())
		selector = learning.NewSelector(tracker, nil)
	}

	doc, reqs, err := loadRequirements(args[0], names, selector)
	if err != nil {
		return err
	}
	plans := executor.BuildExecutionPlan(reqs, names)
	waves := executor.BuildDependencyGraph(plans).Waves(cfg.Resources.MaxBatchWeight)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writePlanJSON(cmd.OutOrStdout(), reqs, plans, waves)
	}
	printPlan(cmd.OutOrStdout(), doc, reqs, plans, waves, cfg.Resources.MaxBatchWeight)
	return nil
}

func writePlanJSON(w io.Writer, reqs []*models.RequirementItem, plans []*models.AgentExecutionPlan, waves learning.ParallelPlan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Requirements []*models.RequirementItem    `json:"requirements"`
		Plans        []*models.AgentExecutionPlan `json:"plans"`
		Waves        [][]string                   `json:"waves"`
		Cycle        []string                     `json:"cycle,omitempty"`
	}{reqs, plans, waves.Batches, waves.Cycle})
}

func printPlan(w io.Writer, doc *requirements.Document, reqs []*models.RequirementItem, plans []*models.AgentExecutionPlan, waves learning.ParallelPlan, budget int) {
	fmt.Fprintf(w, "Project: %s (%s)\n", doc.Project.Name, doc.Project.Type)

	fmt.Fprintf(w, "\nRequirements:\n")
	for _, r := range reqs {
		fmt.Fprintf(w, "  %s  P%d  %s\n", r.ID, r.Priority, r.Description)
		fmt.Fprintf(w, "         agents: %s\n", strings.Join(r.AssignedAgents, ", "))
	}

	fmt.Fprintf(w, "\nExecution plan:\n")
	for _, p := range plans {
		deps := "-"
		if len(p.Dependencies) > 0 {
			deps = strings.Join(p.Dependencies, ", ")
		}
		line := fmt.Sprintf("  %-22s %-8s %-8s P%d  after: %s", p.AgentName, executor.TierOf(p.AgentName), p.Status, p.Priority, deps)
		if p.LastError != "" {
			line += "  (" + p.LastError + ")"
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nParallel waves (weight budget %d, heaviest %d):\n", budget, heaviestWave(waves))
	for i, batch := range waves.Batches {
		fmt.Fprintf(w, "  Wave %d: %s\n", i+1, strings.Join(batch, ", "))
	}
	if len(waves.Cycle) > 0 {
		fmt.Fprintf(w, "  ✗ Agents in a dependency cycle: %s\n", strings.Join(waves.Cycle, ", "))
	}
}

func heaviestWave(waves learning.ParallelPlan) int {
	heaviest := 0
	for _, batch := range waves.Batches {
		total := 0
		for _, a := range batch {
			total += learning.Weight(a)
		}
		if total > heaviest {
			heaviest = total
		}
	}
	return heaviest
}
