package models

import "sort"

// AgentContext accumulates what agents have produced during a workflow run.
// Only the coordinating loop mutates it; agents receive a Clone and return a delta.
type AgentContext struct {
	Artifacts      map[string]string `json:"artifacts"`
	Decisions      []string          `json:"decisions"`
	CompletedTasks []string          `json:"completed_tasks"`
}

// NewAgentContext returns an empty context.
func NewAgentContext() *AgentContext {
	return &AgentContext{
		Artifacts: make(map[string]string),
	}
}

// Clone returns a deep copy suitable for handing to a running agent.
func (c *AgentContext) Clone() *AgentContext {
	if c == nil {
		return NewAgentContext()
	}
	out := &AgentContext{
		Artifacts:      make(map[string]string, len(c.Artifacts)),
		Decisions:      append([]string(nil), c.Decisions...),
		CompletedTasks: append([]string(nil), c.CompletedTasks...),
	}
	for k, v := range c.Artifacts {
		out.Artifacts[k] = v
	}
	return out
}

// Merge folds a delta returned by an agent into the context.
// Artifacts overwrite by key; decisions and completed tasks are appended once.
func (c *AgentContext) Merge(delta *AgentContext) {
	if delta == nil {
		return
	}
	if c.Artifacts == nil {
		c.Artifacts = make(map[string]string)
	}
	keys := make([]string, 0, len(delta.Artifacts))
	for k := range delta.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Artifacts[k] = delta.Artifacts[k]
	}
	c.Decisions = appendMissing(c.Decisions, delta.Decisions...)
	c.CompletedTasks = appendMissing(c.CompletedTasks, delta.CompletedTasks...)
}

// AddCompletedTask records a finished task name.
func (c *AgentContext) AddCompletedTask(name string) {
	c.CompletedTasks = appendMissing(c.CompletedTasks, name)
}

func appendMissing(dst []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range dst {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, item)
		}
	}
	return dst
}
