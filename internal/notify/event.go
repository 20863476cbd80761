// Package notify delivers workflow progress events to external sinks.
// Delivery is best effort: a slow or failing sink never stalls the engine.
package notify

import (
	"sync"
	"time"
)

// EventType names a progress event.
type EventType string

const (
	WorkflowStarted             EventType = "workflow_started"
	AgentStatusChanged          EventType = "agent_status_changed"
	RequirementStatusChanged    EventType = "requirement_status_changed"
	CheckpointSaved             EventType = "checkpoint_saved"
	ManualInterventionRequested EventType = "manual_intervention_requested"
	WorkflowCompleted           EventType = "workflow_completed"
)

// Event is one progress notification.
type Event struct {
	Type        EventType `json:"type"`
	WorkflowID  string    `json:"workflow_id"`
	Timestamp   time.Time `json:"timestamp"`
	Agent       string    `json:"agent,omitempty"`
	Requirement string    `json:"requirement,omitempty"`
	Status      string    `json:"status,omitempty"`
	Progress    float64   `json:"progress"`
	Success     bool      `json:"success,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// Notifier receives events. Implementations must not block for long.
type Notifier interface {
	Notify(e Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Nop drops every event.
var Nop Notifier = NotifierFunc(func(Event) {})

// Multi fans an event out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}

// Recorder keeps every event; used by tests and dry runs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
