// Package learning keeps per-agent performance history across workflow runs
// and turns it into agent selection, timeout and batching decisions.
package learning

import (
	"sort"
	"time"
)

// Trend classifies the direction of an agent's recent scores.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDegrading        Trend = "degrading"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

const (
	recentWindow      = 10
	minTrendPoints    = 3
	trendThreshold    = 0.1
	neutralScore      = 0.5
	successWeight     = 0.7
	qualityWeight     = 0.3
	defaultQualityHit = 1.0
)

// Execution is one finished agent dispatch.
type Execution struct {
	WorkflowID    string        `json:"workflow_id,omitempty"`
	Agent         string        `json:"agent"`
	Success       bool          `json:"success"`
	Duration      time.Duration `json:"duration"`
	QualityScore  float64       `json:"quality_score"`
	TokensUsed    int           `json:"tokens_used"`
	Cost          float64       `json:"cost"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// score is the value an execution contributes to the recent-score window.
func (e Execution) score() float64 {
	if !e.Success {
		return 0
	}
	if e.QualityScore > 0 {
		return e.QualityScore
	}
	return defaultQualityHit
}

// AgentPerformanceMetrics aggregates an agent's execution history.
// Averages are running means; AverageExecutionTime is in seconds.
type AgentPerformanceMetrics struct {
	AgentName            string         `json:"agent_name"`
	TotalExecutions      int            `json:"total_executions"`
	SuccessfulExecutions int            `json:"successful_executions"`
	FailedExecutions     int            `json:"failed_executions"`
	AverageExecutionTime float64        `json:"average_execution_time"`
	AverageQualityScore  float64        `json:"average_quality_score"`
	TotalTokens          int            `json:"total_tokens"`
	TotalCost            float64        `json:"total_cost"`
	FailurePatterns      map[string]int `json:"failure_patterns"`
	RecentScores         []float64      `json:"recent_scores"`
	LastUpdated          time.Time      `json:"last_updated"`
}

// NewAgentPerformanceMetrics returns empty metrics for agent.
func NewAgentPerformanceMetrics(agent string) *AgentPerformanceMetrics {
	return &AgentPerformanceMetrics{
		AgentName:       agent,
		FailurePatterns: make(map[string]int),
	}
}

// Update folds one execution into the aggregates.
func (m *AgentPerformanceMetrics) Update(e Execution) {
	n := float64(m.TotalExecutions)
	m.TotalExecutions++
	if e.Success {
		m.SuccessfulExecutions++
	} else {
		m.FailedExecutions++
		if e.FailureReason != "" {
			if m.FailurePatterns == nil {
				m.FailurePatterns = make(map[string]int)
			}
			m.FailurePatterns[e.FailureReason]++
		}
	}

	m.AverageExecutionTime = (m.AverageExecutionTime*n + e.Duration.Seconds()) / (n + 1)
	m.AverageQualityScore = (m.AverageQualityScore*n + e.score()) / (n + 1)
	m.TotalTokens += e.TokensUsed
	m.TotalCost += e.Cost

	m.RecentScores = append(m.RecentScores, e.score())
	if len(m.RecentScores) > recentWindow {
		m.RecentScores = append([]float64(nil), m.RecentScores[len(m.RecentScores)-recentWindow:]...)
	}

	m.LastUpdated = e.Timestamp
	if m.LastUpdated.IsZero() {
		m.LastUpdated = time.Now()
	}
}

// SuccessRate is successful / total, or 0 without history.
func (m *AgentPerformanceMetrics) SuccessRate() float64 {
	if m.TotalExecutions == 0 {
		return 0
	}
	return float64(m.SuccessfulExecutions) / float64(m.TotalExecutions)
}

// AverageTokens is the mean token usage per execution.
func (m *AgentPerformanceMetrics) AverageTokens() float64 {
	if m.TotalExecutions == 0 {
		return 0
	}
	return float64(m.TotalTokens) / float64(m.TotalExecutions)
}

// AverageCost is the mean cost per execution.
func (m *AgentPerformanceMetrics) AverageCost() float64 {
	if m.TotalExecutions == 0 {
		return 0
	}
	return m.TotalCost / float64(m.TotalExecutions)
}

// Score weights success rate and quality into [0, 1]. Agents without
// history score neutrally.
func (m *AgentPerformanceMetrics) Score() float64 {
	if m == nil || m.TotalExecutions == 0 {
		return neutralScore
	}
	return successWeight*m.SuccessRate() + qualityWeight*m.AverageQualityScore
}

// Trend compares the older and newer halves of the recent-score window.
func (m *AgentPerformanceMetrics) Trend() Trend {
	if len(m.RecentScores) < minTrendPoints {
		return TrendInsufficientData
	}
	half := len(m.RecentScores) / 2
	older := mean(m.RecentScores[:half])
	newer := mean(m.RecentScores[half:])
	switch diff := newer - older; {
	case diff > trendThreshold:
		return TrendImproving
	case diff < -trendThreshold:
		return TrendDegrading
	default:
		return TrendStable
	}
}

// TopFailures returns failure reasons ordered by frequency.
func (m *AgentPerformanceMetrics) TopFailures(limit int) []string {
	reasons := make([]string, 0, len(m.FailurePatterns))
	for r := range m.FailurePatterns {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		ci, cj := m.FailurePatterns[reasons[i]], m.FailurePatterns[reasons[j]]
		if ci != cj {
			return ci > cj
		}
		return reasons[i] < reasons[j]
	})
	if limit > 0 && len(reasons) > limit {
		reasons = reasons[:limit]
	}
	return reasons
}

// Clone returns a deep copy.
func (m *AgentPerformanceMetrics) Clone() *AgentPerformanceMetrics {
	c := *m
	c.FailurePatterns = make(map[string]int, len(m.FailurePatterns))
	for k, v := range m.FailurePatterns {
		c.FailurePatterns[k] = v
	}
	c.RecentScores = append([]float64(nil), m.RecentScores...)
	return &c
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
