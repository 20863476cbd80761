package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/healing"
)

// NewKnowledgeCommand creates the 'agentflow knowledge' command
func NewKnowledgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge [error message]",
		Short: "Show the error knowledge base",
		Long: `Display the error patterns agentflow has learned across runs.

Without an argument every category is listed with its occurrence count,
the agents that hit it and the recorded solution. With an error message
the best matching entry is looked up the same way the recovery ladder
does during a run.`,
		Args: cobra.ArbitraryArgs,
		RunE: runKnowledge,
	}

	return cmd
}

func runKnowledge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	kb, err := healing.OpenKnowledgeBase(cfg.Knowledge.Path, cfg.Knowledge.SimilarityThreshold)
	if err != nil {
		return err
	}

	output := cmd.OutOrStdout()
	if len(args) == 0 {
		printKnowledge(output, kb.Entries())
		return nil
	}

	message := strings.Join(args, " ")
	entry, ok := kb.Lookup(message)
	if !ok {
		fmt.Fprintf(output, "No known fix for %q (category %s)\n", message, healing.Normalize(message))
		for _, fix := range healing.SuggestedFixes(healing.Normalize(message)) {
			fmt.Fprintf(output, "  - %s\n", fix)
		}
		return nil
	}
	printEntry(output, entry)
	return nil
}

func printKnowledge(w io.Writer, entries []healing.Entry) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintf(w, "\n=== Error Knowledge Base ===\n\n")
	if len(entries) == 0 {
		fmt.Fprintf(w, "No significant error patterns recorded yet.\n")
		return
	}
	for _, e := range entries {
		printEntry(w, e)
		fmt.Fprintln(w)
	}
}

func printEntry(w io.Writer, e healing.Entry) {
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	yellow.Fprintf(w, "%s", e.Category)
	fmt.Fprintf(w, "  occurrences=%d used=%d\n", e.Occurrences, e.UsageCount)
	fmt.Fprintf(w, "  sample: %s\n", gray.Sprint(e.ErrorSample))
	if len(e.Agents) > 0 {
		fmt.Fprintf(w, "  agents: %s\n", strings.Join(e.Agents, ", "))
	}
	fmt.Fprintf(w, "  solution: %s\n", e.Solution)
	for _, fix := range e.SuggestedFixes {
		if fix != e.Solution {
			fmt.Fprintf(w, "  - %s\n", fix)
		}
	}
}
