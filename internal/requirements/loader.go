package requirements

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a requirements document from disk. Markdown files (.md,
// .markdown) are parsed as prose documents; anything else is decoded as
// YAML, which also accepts JSON.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requirements file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return LoadMarkdown(data)
	default:
		return Decode(data)
	}
}

// Decode parses a YAML or JSON requirements document, reporting every
// structural problem rather than stopping at the first one.
func Decode(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse requirements: %w", err)
	}
	if problems := checkStructure(&root); len(problems) > 0 {
		if partial, ok := decodePartial(&root); ok {
			problems = append(problems, uncovered(partial, problems)...)
		}
		return nil, &ValidationError{Problems: problems}
	}

	var doc Document
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode requirements: %w", err)
	}
	return &doc, nil
}

// checkStructure walks the raw node tree and reports type mismatches.
func checkStructure(root *yaml.Node) []string {
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return []string{"document must be a mapping with project and features"}
	}

	var problems []string
	project := mappingValue(root, "project")
	switch {
	case project == nil:
		// reported by Validate with the other missing fields
	case project.Kind != yaml.MappingNode:
		problems = append(problems, "project must be a mapping")
	default:
		for _, key := range []string{"name", "type"} {
			if v := mappingValue(project, key); v != nil && v.Kind != yaml.ScalarNode {
				problems = append(problems, fmt.Sprintf("project.%s must be a string", key))
			}
		}
	}

	features := mappingValue(root, "features")
	if features != nil && features.Kind != yaml.SequenceNode {
		problems = append(problems, "features must be a list")
		return problems
	}
	if features == nil {
		return problems
	}
	for i, item := range features.Content {
		switch item.Kind {
		case yaml.ScalarNode:
		case yaml.MappingNode:
			if v := mappingValue(item, "priority"); v != nil {
				if _, err := strconv.Atoi(v.Value); err != nil || v.Kind != yaml.ScalarNode {
					problems = append(problems, fmt.Sprintf("features[%d].priority must be an integer", i))
				}
			}
			if v := mappingValue(item, "agents"); v != nil && v.Kind != yaml.SequenceNode {
				problems = append(problems, fmt.Sprintf("features[%d].agents must be a list", i))
			}
		default:
			problems = append(problems, fmt.Sprintf("features[%d] must be a string or a mapping", i))
		}
	}
	return problems
}

// decodePartial builds a document from the well-typed parts of root so that
// missing fields can be reported next to structural ones. Feature indexes
// are preserved.
func decodePartial(root *yaml.Node) (*Document, bool) {
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, false
	}

	doc := &Document{}
	if project := mappingValue(root, "project"); project != nil && project.Kind == yaml.MappingNode {
		doc.Project = &Project{
			Name:        scalarValue(project, "name"),
			Type:        scalarValue(project, "type"),
			Description: scalarValue(project, "description"),
		}
	}

	features := mappingValue(root, "features")
	if features == nil || features.Kind != yaml.SequenceNode {
		return doc, true
	}
	for _, item := range features.Content {
		var f Feature
		switch item.Kind {
		case yaml.ScalarNode:
			f.Name = item.Value
		case yaml.MappingNode:
			f.Name = scalarValue(item, "name")
			f.Description = scalarValue(item, "description")
			if v := mappingValue(item, "priority"); v != nil && v.Kind == yaml.ScalarNode {
				f.Priority, _ = strconv.Atoi(v.Value)
			}
			if v := mappingValue(item, "agents"); v != nil && v.Kind == yaml.SequenceNode {
				_ = v.Decode(&f.Agents)
			}
		}
		doc.Features = append(doc.Features, f)
	}
	return doc, true
}

// uncovered returns the validation problems of doc whose field is not
// already named by a structural problem.
func uncovered(doc *Document, structural []string) []string {
	verr, ok := doc.Validate().(*ValidationError)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range verr.Problems {
		field := problemField(p)
		covered := false
		for _, s := range structural {
			sf := problemField(s)
			if strings.HasPrefix(field, sf) && (len(field) == len(sf) || field[len(sf)] == '.' || field[len(sf)] == '[') {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}
	return out
}

// problemField returns the field path a problem message starts with.
func problemField(problem string) string {
	if i := strings.IndexAny(problem, " :"); i >= 0 {
		return problem[:i]
	}
	return problem
}

func scalarValue(m *yaml.Node, key string) string {
	if v := mappingValue(m, key); v != nil && v.Kind == yaml.ScalarNode {
		return v.Value
	}
	return ""
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

var (
	typeLineRegex = regexp.MustCompile(`(?i)^\s*(?:project\s+)?type\s*:\s*(\S+)\s*$`)
	priorityRegex = regexp.MustCompile(`^\[[Pp]([1-5])\]\s*`)
)

// LoadMarkdown reads a prose requirements document:
//
//	# Shop
//	Type: web_app
//
//	## Features
//	- user auth
//	- [P1] payment checkout
//
// An optional YAML frontmatter block may carry the project section instead.
func LoadMarkdown(content []byte) (*Document, error) {
	doc := &Document{}
	body, frontmatter := extractFrontmatter(content)
	if frontmatter != nil {
		var fm struct {
			Project *Project `yaml:"project"`
		}
		if err := yaml.Unmarshal(frontmatter, &fm); err != nil {
			return nil, fmt.Errorf("parse frontmatter: %w", err)
		}
		doc.Project = fm.Project
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(body))

	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && (doc.Project == nil || doc.Project.Name == "") {
				ensureProject(doc).Name = strings.TrimSpace(extractText(node, body))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			if _, isItem := node.Parent().(*ast.ListItem); isItem {
				return ast.WalkContinue, nil
			}
			for _, line := range strings.Split(extractText(node, body), "\n") {
				if m := typeLineRegex.FindStringSubmatch(line); m != nil {
					ensureProject(doc).Type = m[1]
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if item := strings.TrimSpace(extractText(node, body)); item != "" {
				doc.Features = append(doc.Features, markdownFeature(item))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}
	return doc, nil
}

func ensureProject(doc *Document) *Project {
	if doc.Project == nil {
		doc.Project = &Project{}
	}
	return doc.Project
}

func markdownFeature(item string) Feature {
	f := Feature{Name: item}
	if m := priorityRegex.FindStringSubmatch(item); m != nil {
		f.Priority, _ = strconv.Atoi(m[1])
		f.Name = strings.TrimSpace(item[len(m[0]):])
	}
	return f
}

// extractText concatenates every text segment below n. Soft line breaks
// become newlines so that line-oriented metadata survives.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(node ast.Node) {
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte('\n')
				}
				continue
			}
			if _, nested := c.(*ast.List); nested {
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

// extractFrontmatter splits a leading --- delimited YAML block from the body.
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))
	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}
	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			return bytes.Join(lines[i+1:], []byte("\n")), bytes.Join(lines[1:i], []byte("\n"))
		}
	}
	return content, nil
}
