package healing

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultSignificanceThreshold is the occurrence count a pattern must exceed
// before it is promoted into the knowledge base.
const DefaultSignificanceThreshold = 3

// Fix records one recovery attempt made against a pattern.
type Fix struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPattern groups failures of one agent that normalize to the same category.
type ErrorPattern struct {
	Key             string    `json:"key"`
	Category        string    `json:"category"`
	ErrorMessage    string    `json:"error_message"`
	AgentName       string    `json:"agent_name"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`
	Count           int       `json:"count"`
	AttemptedFixes  []Fix     `json:"attempted_fixes"`
}

func (p *ErrorPattern) clone() ErrorPattern {
	c := *p
	c.AttemptedFixes = append([]Fix(nil), p.AttemptedFixes...)
	return c
}

// Detector tracks error patterns for one session and picks recovery strategies.
type Detector struct {
	mu           sync.Mutex
	patterns     map[string]*ErrorPattern
	ladder       Ladder
	kb           *KnowledgeBase
	significance int
	now          func() time.Time
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithLadder sets the occurrence thresholds of each strategy.
func WithLadder(l Ladder) DetectorOption {
	return func(d *Detector) { d.ladder = l }
}

// WithKnowledgeBase enables promotion of significant patterns.
func WithKnowledgeBase(kb *KnowledgeBase) DetectorOption {
	return func(d *Detector) { d.kb = kb }
}

// WithSignificanceThreshold sets the promotion threshold.
func WithSignificanceThreshold(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.significance = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) DetectorOption {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a Detector with the default ladder.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		patterns:     make(map[string]*ErrorPattern),
		ladder:       DefaultLadder(),
		significance: DefaultSignificanceThreshold,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RecordError registers a failure and returns how often this (agent, category)
// pair has now been seen together with the strategy to apply.
func (d *Detector) RecordError(agent, message string) (int, Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()

	category := Normalize(message)
	key := PatternKey(agent, category)
	now := d.now()

	p, ok := d.patterns[key]
	if !ok {
		p = &ErrorPattern{
			Key:             key,
			Category:        category,
			ErrorMessage:    message,
			AgentName:       agent,
			FirstOccurrence: now,
		}
		d.patterns[key] = p
	}
	p.Count++
	p.LastOccurrence = now

	strategy := d.ladder.StrategyFor(p.Count)
	p.AttemptedFixes = append(p.AttemptedFixes, Fix{Type: strategy.String(), Timestamp: now})

	if d.kb != nil && p.Count > d.significance {
		delta := 1
		if p.Count == d.significance+1 {
			delta = p.Count
		}
		d.kb.Record(p.clone(), delta)
	}

	return p.Count, strategy
}

// Pattern returns a copy of the pattern the message would be counted against.
func (d *Detector) Pattern(agent, message string) (ErrorPattern, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.patterns[PatternKey(agent, Normalize(message))]
	if !ok {
		return ErrorPattern{}, false
	}
	return p.clone(), true
}

// Patterns returns copies of all patterns, most frequent first.
func (d *Detector) Patterns() []ErrorPattern {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ErrorPattern, 0, len(d.patterns))
	for _, p := range d.patterns {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// KnowledgeBase returns the attached knowledge base, if any.
func (d *Detector) KnowledgeBase() *KnowledgeBase {
	return d.kb
}

// Healing is a proposed fix for a failure.
type Healing struct {
	Category string
	Solution string
	Fixes    []string
	Source   string
}

// Healing sources.
const (
	SourceKnowledgeBase = "knowledge_base"
	SourceHeuristic     = "heuristic"
)

// ApplyAutoHealing proposes a fix for message. A sufficiently similar entry in
// the knowledge base wins and has its usage counted; otherwise the built-in
// heuristics for the category are returned.
func (d *Detector) ApplyAutoHealing(message string) Healing {
	category := Normalize(message)
	if d.kb != nil {
		if entry, ok := d.kb.Apply(message); ok {
			return Healing{
				Category: entry.Category,
				Solution: entry.Solution,
				Fixes:    entry.SuggestedFixes,
				Source:   SourceKnowledgeBase,
			}
		}
	}
	fixes := SuggestedFixes(category)
	return Healing{
		Category: category,
		Solution: fixes[0],
		Fixes:    fixes,
		Source:   SourceHeuristic,
	}
}

// SuggestedFixes returns the heuristic remedies for a category.
func SuggestedFixes(category string) []string {
	switch {
	case IsMissingParameter(category):
		param := strings.TrimSuffix(strings.TrimPrefix(category, "missing_"), "_parameter")
		return []string{
			fmt.Sprintf("Pass the required %q parameter explicitly in every tool call.", param),
			"Re-read the tool signature before invoking it.",
		}
	case category == CategoryRateLimit:
		return []string{
			"Wait before retrying and reduce request frequency.",
			"Batch tool calls to stay under the provider rate limit.",
		}
	case category == CategoryTimeout:
		return []string{
			"Split the work into smaller steps that finish within the timeout.",
			"Avoid long-running commands; stream partial results instead.",
		}
	case category == CategoryToolFailure:
		return []string{
			"Validate tool arguments before calling the tool.",
			"Fall back to an equivalent tool when one keeps failing.",
		}
	default:
		return []string{
			"Review the previous error output and address its root cause before continuing.",
		}
	}
}

// ErrorReport is the structured input handed to a debugging agent.
type ErrorReport struct {
	Agent          string
	Category       string
	Message        string
	Output         string
	Occurrences    int
	AttemptedFixes []string
	SuggestedFixes []string
}

// Report builds an ErrorReport for the pattern message falls into.
func (d *Detector) Report(agent, message, output string) ErrorReport {
	r := ErrorReport{
		Agent:    agent,
		Category: Normalize(message),
		Message:  message,
		Output:   output,
	}
	if p, ok := d.Pattern(agent, message); ok {
		r.Occurrences = p.Count
		for _, f := range p.AttemptedFixes {
			r.AttemptedFixes = append(r.AttemptedFixes, f.Type)
		}
	}
	r.SuggestedFixes = d.ApplyAutoHealing(message).Fixes
	return r
}

// Prompt renders the report as instructions for the debugger agent.
func (r ErrorReport) Prompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Agent %q keeps failing (%d occurrence(s), category %s).\n\n", r.Agent, r.Occurrences, r.Category)
	sb.WriteString("## Error\n\n")
	sb.WriteString(r.Message)
	sb.WriteString("\n")
	if r.Output != "" {
		sb.WriteString("\n## Output\n\n")
		sb.WriteString(r.Output)
		sb.WriteString("\n")
	}
	if len(r.AttemptedFixes) > 0 {
		sb.WriteString("\n## Already attempted\n\n")
		for _, f := range r.AttemptedFixes {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	if len(r.SuggestedFixes) > 0 {
		sb.WriteString("\n## Suggested fixes\n\n")
		for _, f := range r.SuggestedFixes {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	sb.WriteString("\nDiagnose the root cause, fix it, and report what the agent must do differently.\n")
	return sb.String()
}
