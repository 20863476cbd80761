package agent

import (
	"context"
	"time"

	"github.com/harrison/agentflow/internal/models"
)

// Request is a single agent invocation.
type Request struct {
	Agent   string               `json:"agent"`
	Prompt  string               `json:"prompt"`
	Context *models.AgentContext `json:"context"`
	Timeout time.Duration        `json:"-"`
}

// Result is what an agent hands back. Context is a delta that the engine
// merges into the shared context; it is never merged by the runner itself.
type Result struct {
	Success      bool                 `json:"success"`
	Output       string               `json:"output"`
	Error        string               `json:"error,omitempty"`
	Context      *models.AgentContext `json:"context,omitempty"`
	TokensUsed   int                  `json:"tokens_used,omitempty"`
	Cost         float64              `json:"cost,omitempty"`
	QualityScore float64              `json:"quality_score,omitempty"`
}

// Runner executes one agent. Implementations must honor ctx and
// req.Timeout by returning an error rather than hanging.
type Runner interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, req Request) (Result, error)

func (f RunnerFunc) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
