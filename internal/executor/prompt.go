package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harrison/agentflow/internal/models"
)

// xmlSection wraps content in <tag> markers. Empty content yields "".
func xmlSection(tag, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	return fmt.Sprintf("<%s>\n%s\n</%s>\n", tag, content, tag)
}

// xmlList renders items as a bulleted section.
func xmlList(tag string, items []string) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
	return xmlSection(tag, sb.String())
}

// BuildPrompt assembles the prompt for one dispatch of p: role, the agent's
// own instructions, its requirements, what earlier agents decided and
// produced, and failure context from previous attempts.
func BuildPrompt(p *models.AgentExecutionPlan, reqs map[string]*models.RequirementItem, shared *models.AgentContext, instructions string) string {
	var sb strings.Builder

	role := fmt.Sprintf("You are the %s agent.", p.Runner())
	if p.ExecutedBy != "" && p.ExecutedBy != p.AgentName {
		role = fmt.Sprintf("You are the %s agent, standing in for %s.", p.ExecutedBy, p.AgentName)
	}
	sb.WriteString(xmlSection("role", role))
	sb.WriteString(xmlSection("instructions", instructions))

	var lines []string
	for _, id := range p.Requirements {
		if r, ok := reqs[id]; ok {
			lines = append(lines, fmt.Sprintf("%s (priority %d): %s", r.ID, r.Priority, r.Description))
		}
	}
	sb.WriteString(xmlList("requirements", lines))

	if shared != nil {
		sb.WriteString(xmlList("decisions", shared.Decisions))
		sb.WriteString(xmlList("completed_tasks", shared.CompletedTasks))
		keys := make([]string, 0, len(shared.Artifacts))
		for k := range shared.Artifacts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(xmlList("artifacts", keys))
	}

	if len(p.FailureContext) > 0 {
		sb.WriteString(xmlSection("previous_attempts",
			fmt.Sprintf("This is attempt %d.\n", p.CurrentRetry+1)+bullets(p.FailureContext)))
	}
	return sb.String()
}

func bullets(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		fmt.Fprintf(&sb, "- %s\n", item)
	}
	return sb.String()
}
