package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopDoc = `project:
  name: Shop
  type: web_app
features:
  - user auth
  - payment checkout
`

type workspace struct {
	dir    string
	config string
}

// newWorkspace writes a config that keeps every agentflow file under a temp dir.
func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`log_level: info
log_dir: %[1]s/logs
checkpoint_dir: %[1]s/checkpoints
agents_dir: %[1]s/agents
idle_wait: 1ms
history:
  path: %[1]s/history.json
knowledge:
  path: %[1]s/knowledge.json
`, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return &workspace{dir: dir, config: path}
}

func (w *workspace) write(t *testing.T, name, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(w.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func (w *workspace) addAgents(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		w.write(t, filepath.Join("agents", n+".md"), fmt.Sprintf("---\nname: %s\ndescription: %s agent\n---\nYou are the %s.\n", n, n, n), 0644)
	}
}

// agentScript writes an agent executable that reads its request and prints body.
func (w *workspace) agentScript(t *testing.T, body string) string {
	t.Helper()
	return w.write(t, "agent.sh", "#!/bin/sh\ncat > /dev/null\n"+body+"\n", 0755)
}

func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append(args, "--config", w.config))
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"validate", "plan", "run", "history", "knowledge"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestValidateCommand(t *testing.T) {
	ws := newWorkspace(t)
	doc := ws.write(t, "shop.yaml", shopDoc, 0644)

	out, err := ws.run(t, "validate", doc)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Parsed 2 requirements")
	assert.Contains(t, out, "No agents registered")
	assert.Contains(t, out, "✓ Requirements are valid!")
}

func TestValidateCommandUnknownAgent(t *testing.T) {
	ws := newWorkspace(t)
	ws.addAgents(t, "architect", "builder")
	doc := ws.write(t, "shop.yaml", `project:
  name: Shop
  type: web_app
features:
  - name: reporting
    agents: [ghost]
`, 0644)

	out, err := ws.run(t, "validate", doc)
	require.Error(t, err)
	assert.Contains(t, out, `agent "ghost" not found in registry (referenced by REQ-001)`)
	assert.Contains(t, out, "available agents: architect, builder")
	assert.Contains(t, out, "Found 1 validation error(s)!")
}

func TestValidateCommandStructuralProblems(t *testing.T) {
	ws := newWorkspace(t)
	doc := ws.write(t, "bad.yaml", "project:\n  type: web_app\nfeatures: []\n", 0644)

	out, err := ws.run(t, "validate", doc)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.NotContains(t, out, "Requirements are valid")
}

func TestPlanCommand(t *testing.T) {
	ws := newWorkspace(t)
	ws.addAgents(t, "architect", "builder", "frontend", "api-integrator")
	doc := ws.write(t, "shop.yaml", shopDoc, 0644)

	out, err := ws.run(t, "plan", doc)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Project: Shop (web_app)")
	assert.Contains(t, out, "REQ-001")
	assert.Contains(t, out, "Wave 1: architect")

	out, err = ws.run(t, "plan", "--json", doc)
	require.NoError(t, err, out)
	var got struct {
		Requirements []json.RawMessage `json:"requirements"`
		Plans        []struct {
			AgentName    string   `json:"agent_name"`
			Dependencies []string `json:"dependencies"`
		} `json:"plans"`
		Waves [][]string `json:"waves"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.Requirements, 2)
	require.Len(t, got.Plans, 4)
	assert.Equal(t, "architect", got.Plans[0].AgentName)
	assert.Equal(t, []string{"architect"}, got.Waves[0])
}

func TestRunCommandRequiresAgentCommand(t *testing.T) {
	ws := newWorkspace(t)
	doc := ws.write(t, "shop.yaml", shopDoc, 0644)

	_, err := ws.run(t, "run", doc)
	assert.ErrorContains(t, err, "no agent command configured")
}

func TestRunCommandResumeMissingCheckpoint(t *testing.T) {
	ws := newWorkspace(t)
	script := ws.agentScript(t, `echo '{"success": true}'`)

	_, err := ws.run(t, "run", "--agent-cmd", script, "--resume", filepath.Join(ws.dir, "nope.json"))
	assert.ErrorContains(t, err, "not found")
}

func TestRunCommandEndToEnd(t *testing.T) {
	ws := newWorkspace(t)
	ws.addAgents(t, "architect", "builder", "frontend", "api-integrator")
	doc := ws.write(t, "shop.yaml", shopDoc, 0644)
	script := ws.agentScript(t, `echo '{"success": true, "output": "done", "tokens_used": 120, "cost": 0.02}'`)

	out, err := ws.run(t, "run", doc, "--agent-cmd", script)
	require.NoError(t, err, out)
	assert.Contains(t, out, "=== Workflow Summary ===")
	assert.Contains(t, out, "(SUCCESS)")

	checkpoints, err := filepath.Glob(filepath.Join(ws.dir, "checkpoints", "*.json"))
	require.NoError(t, err)
	assert.Len(t, checkpoints, 1)

	_, err = os.Stat(filepath.Join(ws.dir, "history.json"))
	require.NoError(t, err, "history is persisted after the run")

	out, err = ws.run(t, "history")
	require.NoError(t, err, out)
	for _, agent := range []string{"architect", "builder", "frontend", "api-integrator"} {
		assert.Contains(t, out, agent)
	}

	out, err = ws.run(t, "history", "architect")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Executions: 1")
	assert.Contains(t, out, "Success rate: 100.0%")
	assert.Contains(t, out, "Average tokens: 120 (total 120)")
	assert.Contains(t, out, "Average cost: 0.0200")

	// Resuming a finished run has nothing left to do.
	out, err = ws.run(t, "run", "--agent-cmd", script, "--resume", checkpoints[0])
	require.NoError(t, err, out)
	assert.Contains(t, out, "(SUCCESS)")
}

func TestRunCommandReportsBelowThreshold(t *testing.T) {
	ws := newWorkspace(t)
	doc := ws.write(t, "one.yaml", `project:
  name: Tool
  type: cli
features:
  - name: export
    agents: [exporter]
`, 0644)
	ws.addAgents(t, "exporter")
	script := ws.agentScript(t, `echo "Error: Missing required parameter content" >&2; exit 1`)

	out, err := ws.run(t, "run", doc, "--agent-cmd", script)
	require.Error(t, err)
	assert.Contains(t, out, "(FAILURE)")

	out, err = ws.run(t, "knowledge")
	require.NoError(t, err, out)
	assert.Contains(t, out, "missing_content_parameter")

	out, err = ws.run(t, "knowledge", "Error: Missing required parameter content")
	require.NoError(t, err, out)
	assert.True(t, strings.Contains(out, "solution:"), out)
}

func TestKnowledgeCommandEmpty(t *testing.T) {
	ws := newWorkspace(t)
	out, err := ws.run(t, "knowledge")
	require.NoError(t, err)
	assert.Contains(t, out, "No significant error patterns recorded yet.")

	out, err = ws.run(t, "knowledge", "rate limit exceeded")
	require.NoError(t, err)
	assert.Contains(t, out, "No known fix")
}
