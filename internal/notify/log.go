package notify

// Logger is the subset of the agentflow loggers used by sinks.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// LogNotifier renders events as log lines.
type LogNotifier struct {
	Logger Logger
}

func (n LogNotifier) Notify(e Event) {
	if n.Logger == nil {
		return
	}
	switch e.Type {
	case WorkflowStarted:
		n.Logger.Infof("Workflow %s started", e.WorkflowID)
	case AgentStatusChanged:
		n.Logger.Infof("Agent %s -> %s (%.0f%% overall)", e.Agent, e.Status, e.Progress)
	case RequirementStatusChanged:
		n.Logger.Debugf("Requirement %s -> %s", e.Requirement, e.Status)
	case CheckpointSaved:
		n.Logger.Debugf("Checkpoint saved: %s", e.Message)
	case ManualInterventionRequested:
		n.Logger.Errorf("Manual intervention required for %s: %s", e.Agent, e.Message)
	case WorkflowCompleted:
		if e.Success {
			n.Logger.Infof("Workflow %s completed (%.0f%%)", e.WorkflowID, e.Progress)
		} else {
			n.Logger.Warnf("Workflow %s finished unsuccessfully (%.0f%%): %s", e.WorkflowID, e.Progress, e.Message)
		}
	}
}
