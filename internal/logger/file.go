package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrison/agentflow/internal/models"
)

// DefaultLogDir is used when no log directory is configured.
var DefaultLogDir = filepath.Join(".agentflow", "logs")

// FileLogger writes one run-YYYYMMDD-HHMMSS.log per run, keeps latest.log
// pointing at it, and stores raw agent output under agents/.
type FileLogger struct {
	mu        sync.Mutex
	logDir    string
	agentsDir string
	runFile   string
	runLog    *os.File
	level     Level
}

// NewFileLogger opens a new run log in logDir.
func NewFileLogger(logDir, logLevel string) (*FileLogger, error) {
	if logDir == "" {
		logDir = DefaultLogDir
	}
	agentsDir := filepath.Join(logDir, "agents")
	if err := os.MkdirAll(agentsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	latest := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(latest); err == nil {
		if err := os.Remove(latest); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), latest); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	fl := &FileLogger{
		logDir:    logDir,
		agentsDir: agentsDir,
		runFile:   runFile,
		runLog:    file,
		level:     ParseLevel(logLevel),
	}
	fl.write(fmt.Sprintf("=== agentflow run log ===\nStarted at: %s\n\n", time.Now().Format(time.RFC3339)))
	return fl, nil
}

// Path returns the run log path.
func (fl *FileLogger) Path() string { return fl.runFile }

func (fl *FileLogger) Tracef(format string, args ...interface{}) { fl.log(LevelTrace, format, args...) }
func (fl *FileLogger) Debugf(format string, args ...interface{}) { fl.log(LevelDebug, format, args...) }
func (fl *FileLogger) Infof(format string, args ...interface{})  { fl.log(LevelInfo, format, args...) }
func (fl *FileLogger) Warnf(format string, args ...interface{})  { fl.log(LevelWarn, format, args...) }
func (fl *FileLogger) Errorf(format string, args ...interface{}) { fl.log(LevelError, format, args...) }

func (fl *FileLogger) log(level Level, format string, args ...interface{}) {
	if level < fl.level {
		return
	}
	fl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, fmt.Sprintf(format, args...)))
}

// LogProgress records a progress snapshot.
func (fl *FileLogger) LogProgress(p models.Progress) {
	fl.log(LevelInfo, "Progress: %.1f%% (%d/%d agents done, %d failed, %d blocked)",
		p.Overall, p.Completed, p.Total, p.Failed, p.Blocked)
}

// LogSummary writes the final summary without colors.
func (fl *FileLogger) LogSummary(s models.WorkflowSummary) {
	if LevelInfo < fl.level {
		return
	}
	ts := timestamp()
	plain := func(_, text string) string { return text }
	for _, l := range summaryLines(s, plain) {
		fl.write(fmt.Sprintf("[%s] %s\n", ts, l))
	}
}

// LogAgentOutput stores the raw output of one agent attempt in its own file.
func (fl *FileLogger) LogAgentOutput(agent string, attempt int, output string) {
	name := fmt.Sprintf("%s-attempt-%d.log", agent, attempt)
	path := filepath.Join(fl.agentsDir, filepath.Base(name))
	if err := os.WriteFile(path, []byte(output), 0644); err != nil {
		fl.log(LevelWarn, "failed to write agent output %s: %v", path, err)
	}
}

// Close syncs and closes the run log.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return nil
	}
	if err := fl.runLog.Sync(); err != nil {
		return fmt.Errorf("failed to sync run log: %w", err)
	}
	if err := fl.runLog.Close(); err != nil {
		return fmt.Errorf("failed to close run log: %w", err)
	}
	fl.runLog = nil
	return nil
}

func (fl *FileLogger) write(s string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog != nil {
		fl.runLog.WriteString(s)
	}
}

// Leveled is the method set shared by every logger in this package.
type Leveled interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	LogProgress(p models.Progress)
	LogSummary(s models.WorkflowSummary)
}

// MultiLogger fans every call out to several loggers.
type MultiLogger []Leveled

func (m MultiLogger) Tracef(format string, args ...interface{}) {
	for _, l := range m {
		l.Tracef(format, args...)
	}
}

func (m MultiLogger) Debugf(format string, args ...interface{}) {
	for _, l := range m {
		l.Debugf(format, args...)
	}
}

func (m MultiLogger) Infof(format string, args ...interface{}) {
	for _, l := range m {
		l.Infof(format, args...)
	}
}

func (m MultiLogger) Warnf(format string, args ...interface{}) {
	for _, l := range m {
		l.Warnf(format, args...)
	}
}

func (m MultiLogger) Errorf(format string, args ...interface{}) {
	for _, l := range m {
		l.Errorf(format, args...)
	}
}

func (m MultiLogger) LogProgress(p models.Progress) {
	for _, l := range m {
		l.LogProgress(p)
	}
}

func (m MultiLogger) LogSummary(s models.WorkflowSummary) {
	for _, l := range m {
		l.LogSummary(s)
	}
}

// LogAgentOutput forwards to every member that stores agent output.
func (m MultiLogger) LogAgentOutput(agent string, attempt int, output string) {
	for _, l := range m {
		if ol, ok := l.(interface {
			LogAgentOutput(string, int, string)
		}); ok {
			ol.LogAgentOutput(agent, attempt, output)
		}
	}
}
