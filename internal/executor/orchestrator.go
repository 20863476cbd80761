package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harrison/agentflow/internal/models"
)

// SummaryLogger renders the final workflow summary.
type SummaryLogger interface {
	LogSummary(s models.WorkflowSummary)
}

// Orchestrator wraps an Engine run with signal handling and the loading
// and saving of cross-run state.
type Orchestrator struct {
	engine  *Engine
	summary SummaryLogger
	logger  Logger
}

// NewOrchestrator creates an Orchestrator. summary and logger may be nil.
func NewOrchestrator(engine *Engine, summary SummaryLogger, logger Logger) *Orchestrator {
	if engine == nil {
		panic("engine cannot be nil")
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Orchestrator{engine: engine, summary: summary, logger: logger}
}

// Run executes the workflow. SIGINT and SIGTERM cancel the run, which still
// writes a final checkpoint. History and knowledge are saved afterwards;
// failures to do so are logged and never fail the run.
func (o *Orchestrator) Run(ctx context.Context) (*models.WorkflowSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			o.logger.Warnf("Received interrupt signal, cancelling running agents and checkpointing")
			cancel()
		case <-ctx.Done():
		}
	}()

	summary, err := o.engine.Run(ctx)
	o.persist()

	if o.summary != nil && summary != nil {
		o.summary.LogSummary(*summary)
	}
	return summary, err
}

func (o *Orchestrator) persist() {
	// The run context may already be cancelled; saving must still happen.
	ctx := context.Background()
	if t := o.engine.Tracker(); t != nil {
		if err := t.Save(ctx); err != nil {
			o.logger.Warnf("Saving performance history failed: %v", err)
		}
	}
	if kb := o.engine.Detector().KnowledgeBase(); kb != nil {
		if err := kb.Save(); err != nil {
			o.logger.Warnf("Saving knowledge base failed: %v", err)
		}
	}
}
