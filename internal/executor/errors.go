package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrGlobalBlock is returned when no remaining agent can ever become ready.
	ErrGlobalBlock = errors.New("no forward progress possible")

	// ErrManualIntervention is returned when at least one agent was halted
	// pending a human decision.
	ErrManualIntervention = errors.New("manual intervention required")
)

// AgentError is a failure reported by, or on behalf of, one agent run.
type AgentError struct {
	Agent     string
	Message   string
	Err       error
	Timestamp time.Time
}

// NewAgentError creates an AgentError stamped with the current time.
func NewAgentError(agent, msg string, err error) *AgentError {
	return &AgentError{Agent: agent, Message: msg, Err: err, Timestamp: time.Now()}
}

func (e *AgentError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "agent %s: %s", e.Agent, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when an agent exceeds its dispatch timeout.
type TimeoutError struct {
	Agent           string
	TimeoutDuration time.Duration
	Timestamp       time.Time
}

// NewTimeoutError creates a TimeoutError stamped with the current time.
func NewTimeoutError(agent string, d time.Duration) *TimeoutError {
	return &TimeoutError{Agent: agent, TimeoutDuration: d, Timestamp: time.Now()}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent %s: timeout after %v", e.Agent, e.TimeoutDuration)
}

// Unwrap returns context.DeadlineExceeded so errors.Is works on timeouts.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// BlockedError reports a global block together with what was left unresolved.
type BlockedError struct {
	Agents       []string
	Requirements []string
	Cycle        []string
}

func (e *BlockedError) Error() string {
	var sb strings.Builder
	sb.WriteString("workflow blocked: ")
	sb.WriteString(ErrGlobalBlock.Error())
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&sb, " (dependency cycle: %s)", strings.Join(e.Cycle, " -> "))
	}
	if len(e.Agents) > 0 {
		fmt.Fprintf(&sb, "; unresolved agents: %s", strings.Join(e.Agents, ", "))
	}
	if len(e.Requirements) > 0 {
		fmt.Fprintf(&sb, "; unresolved requirements: %s", strings.Join(e.Requirements, ", "))
	}
	return sb.String()
}

func (e *BlockedError) Unwrap() error {
	return ErrGlobalBlock
}

// InterventionError lists the agents halted for a human decision.
type InterventionError struct {
	Agents []string
}

func (e *InterventionError) Error() string {
	return fmt.Sprintf("%s for: %s", ErrManualIntervention, strings.Join(e.Agents, ", "))
}

func (e *InterventionError) Unwrap() error {
	return ErrManualIntervention
}

// IsTimeoutError reports whether err is or wraps a TimeoutError or
// context.DeadlineExceeded.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
