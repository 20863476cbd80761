package notify

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsNotifier exports workflow events as Prometheus metrics.
type MetricsNotifier struct {
	Events        *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	Progress      prometheus.Gauge
	Interventions prometheus.Counter
	Checkpoints   prometheus.Counter
	Workflows     *prometheus.CounterVec
}

// NewMetricsNotifier registers the agentflow metrics on reg.
func NewMetricsNotifier(reg prometheus.Registerer) (*MetricsNotifier, error) {
	m := &MetricsNotifier{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentflow_events_total",
			Help: "Progress events emitted, by type",
		}, []string{"type"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentflow_agent_transitions_total",
			Help: "Agent status transitions, by agent and new status",
		}, []string{"agent", "status"}),
		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentflow_workflow_progress_percent",
			Help: "Overall requirement completion of the current workflow",
		}),
		Interventions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentflow_manual_interventions_total",
			Help: "Agents halted pending a human decision",
		}),
		Checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentflow_checkpoints_total",
			Help: "Checkpoints written",
		}),
		Workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentflow_workflows_completed_total",
			Help: "Finished workflows, by outcome",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{m.Events, m.Transitions, m.Progress, m.Interventions, m.Checkpoints, m.Workflows} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsNotifier) Notify(e Event) {
	m.Events.WithLabelValues(string(e.Type)).Inc()
	switch e.Type {
	case AgentStatusChanged:
		m.Transitions.WithLabelValues(e.Agent, e.Status).Inc()
		m.Progress.Set(e.Progress)
	case RequirementStatusChanged:
		m.Progress.Set(e.Progress)
	case CheckpointSaved:
		m.Checkpoints.Inc()
	case ManualInterventionRequested:
		m.Interventions.Inc()
	case WorkflowStarted:
		m.Progress.Set(0)
	case WorkflowCompleted:
		m.Progress.Set(e.Progress)
		outcome := "failure"
		if e.Success {
			outcome = "success"
		}
		m.Workflows.WithLabelValues(outcome).Inc()
	}
}
