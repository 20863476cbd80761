// Package agent discovers the agents available to a workflow and runs them.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Capabilities are the registry's hints about an agent. The engine computes
// final dependencies itself; DeclaredDependencies is informational.
type Capabilities struct {
	RequiresReasoning    bool     `json:"requires_reasoning"`
	DeclaredDependencies []string `json:"declared_dependencies,omitempty"`
}

// Registry lists the agents that can be dispatched.
type Registry interface {
	ListAgentNames() []string
	Capabilities(name string) (Capabilities, bool)
}

// Definition is an agent described by a Markdown file with YAML frontmatter.
type Definition struct {
	Name              string   `yaml:"name" json:"name"`
	Description       string   `yaml:"description" json:"description"`
	Tools             ToolList `yaml:"tools" json:"tools,omitempty"`
	RequiresReasoning bool     `yaml:"requires_reasoning" json:"requires_reasoning"`
	Dependencies      []string `yaml:"dependencies" json:"dependencies,omitempty"`
	Instructions      string   `yaml:"-" json:"-"`
	FilePath          string   `yaml:"-" json:"-"`
}

// ToolList accepts "Read, Write" or a YAML list.
type ToolList []string

func (t *ToolList) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err == nil {
		*t = nil
		for _, part := range strings.Split(str, ",") {
			if tool := strings.TrimSpace(part); tool != "" {
				*t = append(*t, tool)
			}
		}
		return nil
	}
	var arr []string
	if err := value.Decode(&arr); err == nil {
		*t = ToolList(arr)
		return nil
	}
	return fmt.Errorf("tools must be either a comma-separated string or an array")
}

// DirectoryRegistry holds the agents discovered in a directory tree.
type DirectoryRegistry struct {
	Dir string

	mu       sync.RWMutex
	agents   map[string]*Definition
	warnings []string
}

// DefaultAgentsDir is used when no directory is configured.
var DefaultAgentsDir = filepath.Join(".agentflow", "agents")

// NewDirectoryRegistry returns an empty registry rooted at dir.
func NewDirectoryRegistry(dir string) *DirectoryRegistry {
	if dir == "" {
		dir = DefaultAgentsDir
	}
	return &DirectoryRegistry{Dir: dir, agents: make(map[string]*Definition)}
}

// Discover parses every *.md agent file under Dir. A missing directory yields
// an empty registry. Unparseable files are skipped and recorded in Warnings.
// Directories named examples, transcripts or logs and README.md files are ignored.
func (r *DirectoryRegistry) Discover() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.Dir); os.IsNotExist(err) {
		return nil
	}

	return filepath.Walk(r.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			switch info.Name() {
			case "examples", "transcripts", "logs":
				if path != r.Dir {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !strings.HasSuffix(path, ".md") || info.Name() == "README.md" {
			return nil
		}

		def, err := ParseDefinitionFile(path)
		if err != nil {
			r.warnings = append(r.warnings, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		r.agents[def.Name] = def
		return nil
	})
}

// Warnings returns problems met during Discover.
func (r *DirectoryRegistry) Warnings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.warnings...)
}

// ListAgentNames returns the discovered names in sorted order.
func (r *DirectoryRegistry) ListAgentNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the definition of name.
func (r *DirectoryRegistry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.agents[name]
	return def, ok
}

func (r *DirectoryRegistry) Capabilities(name string) (Capabilities, bool) {
	def, ok := r.Get(name)
	if !ok {
		return Capabilities{}, false
	}
	return Capabilities{
		RequiresReasoning:    def.RequiresReasoning,
		DeclaredDependencies: append([]string(nil), def.Dependencies...),
	}, true
}

// Instructions returns the body of name's definition file.
func (r *DirectoryRegistry) Instructions(name string) string {
	if def, ok := r.Get(name); ok {
		return def.Instructions
	}
	return ""
}

// ParseDefinitionFile reads one agent file. The body after the frontmatter
// becomes the agent's Instructions.
func ParseDefinitionFile(path string) (*Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	frontmatter, body := extractFrontmatter(content)
	if frontmatter == nil {
		return nil, fmt.Errorf("no frontmatter found")
	}

	var def Definition
	if err := yaml.Unmarshal(frontmatter, &def); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	def.Instructions = strings.TrimSpace(string(body))
	def.FilePath = path
	return &def, nil
}

func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	if len(lines) < 3 || strings.TrimSpace(lines[0]) != "---" {
		return nil, content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return []byte(strings.Join(lines[1:i], "\n")), []byte(strings.Join(lines[i+1:], "\n"))
		}
	}
	return nil, content
}

// StaticRegistry is a fixed list of agent names.
type StaticRegistry struct {
	names []string
	caps  map[string]Capabilities
}

// NewStaticRegistry registers names with empty capabilities.
func NewStaticRegistry(names ...string) *StaticRegistry {
	r := &StaticRegistry{caps: make(map[string]Capabilities)}
	for _, n := range names {
		r.Register(n, Capabilities{})
	}
	return r
}

// Register adds or replaces an agent.
func (r *StaticRegistry) Register(name string, caps Capabilities) {
	if _, ok := r.caps[name]; !ok {
		r.names = append(r.names, name)
	}
	r.caps[name] = caps
}

func (r *StaticRegistry) ListAgentNames() []string {
	return append([]string(nil), r.names...)
}

func (r *StaticRegistry) Capabilities(name string) (Capabilities, bool) {
	c, ok := r.caps[name]
	return c, ok
}

// UnknownAgentError names an agent referenced by a requirement but missing
// from the registry.
type UnknownAgentError struct {
	Agent        string
	Requirements []string
	Available    []string
}

func (e *UnknownAgentError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "agent %q not found in registry (referenced by %s)", e.Agent, strings.Join(e.Requirements, ", "))
	if len(e.Available) > 0 {
		fmt.Fprintf(&sb, "; available agents: %s", strings.Join(e.Available, ", "))
	} else {
		sb.WriteString("; no agents registered")
	}
	return sb.String()
}

// Assignment is one requirement's agent list, as checked by ValidateAssignments.
type Assignment struct {
	RequirementID string
	Agents        []string
}

// ValidateAssignments reports every referenced agent the registry lacks,
// in first-reference order. A nil registry accepts everything.
func ValidateAssignments(assignments []Assignment, registry Registry) []*UnknownAgentError {
	if registry == nil {
		return nil
	}
	available := registry.ListAgentNames()
	known := make(map[string]bool, len(available))
	for _, n := range available {
		known[n] = true
	}

	var out []*UnknownAgentError
	index := make(map[string]*UnknownAgentError)
	for _, a := range assignments {
		for _, name := range a.Agents {
			if known[name] {
				continue
			}
			e, ok := index[name]
			if !ok {
				e = &UnknownAgentError{Agent: name, Available: available}
				index[name] = e
				out = append(out, e)
			}
			e.Requirements = append(e.Requirements, a.RequirementID)
		}
	}
	return out
}
