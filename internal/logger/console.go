package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/agentflow/internal/models"
)

// ConsoleLogger writes "[HH:MM:SS] [LEVEL] message" lines to a writer.
// Colors are used only when the writer is a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	level       Level
	mu          sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// logLevel is the minimum level written: trace, debug, info, warn or error,
// case-insensitive. An empty or unknown level means info.
// Colors are enabled only when writer is a terminal and NO_COLOR is unset.
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		level:       ParseLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal honours NO_COLOR through color.NoColor.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (cl *ConsoleLogger) Tracef(format string, args ...interface{}) {
	cl.log(LevelTrace, format, args...)
}

func (cl *ConsoleLogger) Debugf(format string, args ...interface{}) {
	cl.log(LevelDebug, format, args...)
}

func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.log(LevelInfo, format, args...)
}

func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.log(LevelWarn, format, args...)
}

func (cl *ConsoleLogger) Errorf(format string, args ...interface{}) {
	cl.log(LevelError, format, args...)
}

func (cl *ConsoleLogger) log(level Level, format string, args ...interface{}) {
	if cl.writer == nil || level < cl.level {
		return
	}
	msg := fmt.Sprintf(format, args...)

	cl.mu.Lock()
	defer cl.mu.Unlock()
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", timestamp(), cl.levelLabel(level), msg)
}

func (cl *ConsoleLogger) levelLabel(level Level) string {
	if !cl.colorOutput {
		return level.String()
	}
	switch level {
	case LevelTrace:
		return color.New(color.FgHiBlack).Sprint(level)
	case LevelDebug:
		return color.New(color.FgCyan).Sprint(level)
	case LevelInfo:
		return color.New(color.FgBlue).Sprint(level)
	case LevelWarn:
		return color.New(color.FgYellow).Sprint(level)
	default:
		return color.New(color.FgRed).Sprint(level)
	}
}

// LogProgress prints an overall progress bar at info level.
func (cl *ConsoleLogger) LogProgress(p models.Progress) {
	if cl.writer == nil || LevelInfo < cl.level {
		return
	}
	bar := NewProgressBar(100, 20, cl.colorOutput)
	bar.SetPrefix("Progress: ")
	bar.Update(int(p.Overall))
	line := fmt.Sprintf("%s agents %d/%d done", bar.Render(), p.Completed, p.Total)
	if p.Failed > 0 || p.Blocked > 0 {
		line += fmt.Sprintf(", %d failed, %d blocked", p.Failed, p.Blocked)
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	fmt.Fprintf(cl.writer, "[%s] %s\n", timestamp(), line)
}

// LogSummary prints the final workflow summary at info level.
func (cl *ConsoleLogger) LogSummary(s models.WorkflowSummary) {
	if cl.writer == nil || LevelInfo < cl.level {
		return
	}
	lines := summaryLines(s, cl.colorize)

	cl.mu.Lock()
	defer cl.mu.Unlock()
	ts := timestamp()
	for _, l := range lines {
		fmt.Fprintf(cl.writer, "[%s] %s\n", ts, l)
	}
}

// colorize keys on status strings, which agents and requirements share.
func (cl *ConsoleLogger) colorize(status, text string) string {
	if !cl.colorOutput {
		return text
	}
	switch status {
	case string(models.AgentCompleted), "success":
		return color.New(color.FgGreen).Sprint(text)
	case string(models.AgentFailed), "failure":
		return color.New(color.FgRed).Sprint(text)
	case string(models.AgentBlocked):
		return color.New(color.FgYellow).Sprint(text)
	case "header":
		return color.New(color.Bold).Sprint(text)
	default:
		return text
	}
}

// summaryLines renders s; paint decorates a fragment given its status key.
func summaryLines(s models.WorkflowSummary, paint func(status, text string) string) []string {
	outcome := paint("success", "SUCCESS")
	if !s.Success {
		outcome = paint("failure", "FAILURE")
	}

	lines := []string{
		paint("header", "=== Workflow Summary ==="),
		fmt.Sprintf("Workflow: %s (%s)", s.WorkflowID, outcome),
		fmt.Sprintf("Agents: %d total, %d completed, %d failed, %d blocked",
			s.TotalAgents, s.Completed, s.Failed, s.Blocked),
		fmt.Sprintf("Progress: %.0f%%", s.Progress),
		fmt.Sprintf("Duration: %s", formatDuration(s.Duration)),
	}

	if len(s.Requirements) > 0 {
		lines = append(lines, "Requirements:")
		for _, r := range s.Requirements {
			status := paint(string(r.Status), string(r.Status))
			lines = append(lines, fmt.Sprintf("  %s %-10s %5.1f%%  %s", r.ID, status, r.CompletionPercentage, r.Description))
		}
	}

	if len(s.Agents) > 0 {
		lines = append(lines, "Agents:")
		for _, a := range s.Agents {
			name := a.Agent
			if a.ExecutedBy != "" && a.ExecutedBy != a.Agent {
				name += " (via " + a.ExecutedBy + ")"
			}
			status := paint(string(a.Status), string(a.Status))
			line := fmt.Sprintf("  %-24s %-10s retries=%d duration=%s", name, status, a.Retries, formatDuration(a.Duration))
			if a.LastError != "" && a.Status != models.AgentCompleted {
				line += " error=" + truncate(a.LastError, 80)
			}
			lines = append(lines, line)
		}
	}

	if len(s.ManualIntervention) > 0 {
		lines = append(lines, paint("failure", "Manual intervention required: "+strings.Join(s.ManualIntervention, ", ")))
	}
	if len(s.UnresolvedAgents) > 0 {
		lines = append(lines, "Unresolved agents: "+strings.Join(s.UnresolvedAgents, ", "))
	}
	if len(s.UnresolvedRequirements) > 0 {
		lines = append(lines, "Unresolved requirements: "+strings.Join(s.UnresolvedRequirements, ", "))
	}
	return lines
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

// NewNoOpLogger returns a NoOpLogger.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (NoOpLogger) Tracef(string, ...interface{})     {}
func (NoOpLogger) Debugf(string, ...interface{})     {}
func (NoOpLogger) Infof(string, ...interface{})      {}
func (NoOpLogger) Warnf(string, ...interface{})      {}
func (NoOpLogger) Errorf(string, ...interface{})     {}
func (NoOpLogger) LogProgress(models.Progress)       {}
func (NoOpLogger) LogSummary(models.WorkflowSummary) {}
