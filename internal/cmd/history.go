package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/learning"
)

// recentLister is implemented by history backends that keep individual executions.
type recentLister interface {
	RecentExecutions(ctx context.Context, agent string, limit int) ([]learning.Execution, error)
}

// NewHistoryCommand creates the 'agentflow history' command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [agent]",
		Short: "Show agent performance history",
		Long: `Display the performance history agentflow keeps across runs.

Without an argument every agent is listed with its execution count,
success rate, average duration and trend. With an agent name the
detailed metrics are shown, including the most common failure patterns
and, for the sqlite backend, the most recent executions.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().Int("limit", 10, "Number of recent executions to show for one agent")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	repo, err := learning.Open(cfg.History.Backend, cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer repo.Close()

	tracker, err := learning.NewTracker(ctx, repo, cfg.TrackerOptions()...)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	output := cmd.OutOrStdout()
	defaultTimeout := time.Duration(cfg.DefaultTimeout)
	if len(args) == 0 {
		printHistory(output, tracker, defaultTimeout)
		return nil
	}

	m, ok := tracker.Metrics(args[0])
	if !ok {
		fmt.Fprintf(output, "No history recorded for agent %s\n", args[0])
		return nil
	}
	limit, _ := cmd.Flags().GetInt("limit")
	var recent []learning.Execution
	if lister, ok := repo.(recentLister); ok {
		recent, err = lister.RecentExecutions(ctx, args[0], limit)
		if err != nil {
			return fmt.Errorf("failed to load executions: %w", err)
		}
	}
	printAgentHistory(output, m, recent)
	return nil
}

func rateColor(rate float64) *color.Color {
	switch {
	case rate >= 0.7:
		return color.New(color.FgGreen)
	case rate >= 0.4:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func printHistory(w io.Writer, tracker *learning.Tracker, defaultTimeout time.Duration) {
	metrics := tracker.All()
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintf(w, "\n=== Agent Performance History ===\n\n")
	if len(metrics) == 0 {
		fmt.Fprintf(w, "No executions recorded yet.\n")
		return
	}

	fmt.Fprintf(w, "  %-24s %6s %9s %10s %8s %9s %10s  %s\n", "AGENT", "RUNS", "SUCCESS", "AVG", "TOKENS", "COST", "TIMEOUT", "TREND")
	for _, m := range metrics {
		rate := m.SuccessRate()
		fmt.Fprintf(w, "  %-24s %6d ", m.AgentName, m.TotalExecutions)
		rateColor(rate).Fprintf(w, "%8.1f%%", rate*100)
		avg := time.Duration(m.AverageExecutionTime * float64(time.Second)).Round(100 * time.Millisecond)
		timeout := tracker.DynamicTimeout(m.AgentName, defaultTimeout)
		fmt.Fprintf(w, " %10s %8.0f %9.4f %10s  %s\n", avg, m.AverageTokens(), m.AverageCost(), timeout, m.Trend())
	}
}

func printAgentHistory(w io.Writer, m *learning.AgentPerformanceMetrics, recent []learning.Execution) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(w, "\n=== History for %s ===\n\n", m.AgentName)
	fmt.Fprintf(w, "  Executions: %d\n", m.TotalExecutions)
	fmt.Fprintf(w, "  Successful: ")
	green.Fprintf(w, "%d\n", m.SuccessfulExecutions)
	fmt.Fprintf(w, "  Failed: ")
	red.Fprintf(w, "%d\n", m.FailedExecutions)
	fmt.Fprintf(w, "  Success rate: ")
	rateColor(m.SuccessRate()).Fprintf(w, "%.1f%%\n", m.SuccessRate()*100)
	fmt.Fprintf(w, "  Average duration: %.1f seconds\n", m.AverageExecutionTime)
	fmt.Fprintf(w, "  Score: %.2f\n", m.Score())
	fmt.Fprintf(w, "  Trend: %s\n", m.Trend())
	if m.TotalTokens > 0 || m.TotalCost > 0 {
		fmt.Fprintf(w, "  Average tokens: %.0f (total %d)\n", m.AverageTokens(), m.TotalTokens)
		fmt.Fprintf(w, "  Average cost: %.4f (total %.4f)\n", m.AverageCost(), m.TotalCost)
	}

	if failures := m.TopFailures(5); len(failures) > 0 {
		fmt.Fprintf(w, "\n")
		cyan.Fprintf(w, "Common failures:\n")
		for _, f := range failures {
			fmt.Fprintf(w, "  - %s (%d)\n", f, m.FailurePatterns[f])
		}
	}

	if len(recent) > 0 {
		fmt.Fprintf(w, "\n")
		cyan.Fprintf(w, "Recent executions:\n")
		for _, e := range recent {
			verdict := green.Sprint("ok")
			if !e.Success {
				verdict = red.Sprint("failed")
			}
			line := fmt.Sprintf("  %s  %-6s %8s", e.Timestamp.Format("2006-01-02 15:04:05"), verdict, e.Duration.Round(time.Millisecond))
			if e.FailureReason != "" {
				line += "  " + gray.Sprint(e.FailureReason)
			}
			fmt.Fprintln(w, line)
		}
	}
}
