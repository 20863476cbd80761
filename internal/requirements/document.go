// Package requirements turns a raw project requirements document into
// uniquely identified, priority-ranked, agent-assignable RequirementItems.
//
// Parsing is a pure function of the document and the list of registered agents:
// identical input always yields identical ids, priorities and agent assignments.
package requirements

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Project is the project section of a requirements document.
type Project struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Feature is one desired piece of functionality. In a document it is either a
// bare string or a mapping with name/description/priority/agents.
type Feature struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Priority    int      `yaml:"priority,omitempty" json:"priority,omitempty"`
	Agents      []string `yaml:"agents,omitempty" json:"agents,omitempty"`
}

// Text returns the free text the feature is described by.
func (f Feature) Text() string {
	name := strings.TrimSpace(f.Name)
	desc := strings.TrimSpace(f.Description)
	switch {
	case name == "":
		return desc
	case desc == "":
		return name
	default:
		return name + ": " + desc
	}
}

// UnmarshalYAML accepts both a bare string and a structured mapping.
func (f *Feature) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*f = Feature{Name: s}
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("feature must be a string or a mapping")
	}
	type plain Feature
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = Feature(p)
	return nil
}

// Document is the raw requirements structure supplied by a Requirements Source.
type Document struct {
	Project  *Project  `yaml:"project" json:"project"`
	Features []Feature `yaml:"features" json:"features"`
}

// NewDocument is a convenience constructor for programmatic callers.
func NewDocument(name, projectType string, features ...string) *Document {
	doc := &Document{Project: &Project{Name: name, Type: projectType}}
	for _, f := range features {
		doc.Features = append(doc.Features, Feature{Name: f})
	}
	return doc
}

// ValidationError lists every problem found in a requirements document.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid requirements: %d problem(s)", len(e.Problems))
	for _, p := range e.Problems {
		sb.WriteString("\n  - ")
		sb.WriteString(p)
	}
	return sb.String()
}

// Validate checks the document and reports all problems at once.
func (d *Document) Validate() error {
	var problems []string
	if d == nil {
		return &ValidationError{Problems: []string{"document is empty"}}
	}

	if d.Project == nil {
		problems = append(problems, "project section is required")
	} else {
		if strings.TrimSpace(d.Project.Name) == "" {
			problems = append(problems, "project.name is required")
		}
		if strings.TrimSpace(d.Project.Type) == "" {
			problems = append(problems, "project.type is required")
		}
	}

	if len(d.Features) == 0 {
		problems = append(problems, "features must be a non-empty list")
	}
	for i, f := range d.Features {
		if f.Text() == "" {
			problems = append(problems, fmt.Sprintf("features[%d]: name or description is required", i))
		}
		if f.Priority != 0 && (f.Priority < MinPriority || f.Priority > MaxPriority) {
			problems = append(problems, fmt.Sprintf("features[%d]: priority %d out of range %d-%d", i, f.Priority, MinPriority, MaxPriority))
		}
		for j, a := range f.Agents {
			if strings.TrimSpace(a) == "" {
				problems = append(problems, fmt.Sprintf("features[%d].agents[%d]: agent name is empty", i, j))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
