package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner runs agents as an external process. The request is written
// to stdin as JSON; AGENTFLOW_AGENT and AGENTFLOW_TIMEOUT are set in the
// environment. Stdout is parsed as a JSON Result, and when it is not JSON
// the raw text becomes the output with success taken from the exit code.
type CommandRunner struct {
	Path string
	Args []string
	Env  []string
}

// NewCommandRunner splits command on whitespace into a path and arguments.
func NewCommandRunner(command string) (*CommandRunner, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("agent command is empty")
	}
	return &CommandRunner{Path: fields[0], Args: fields[1:]}, nil
}

// BuildArgs returns the argument list for req: the configured arguments
// followed by the agent name.
func (c *CommandRunner) BuildArgs(req Request) []string {
	args := append([]string(nil), c.Args...)
	return append(args, req.Agent)
}

func (c *CommandRunner) Execute(ctx context.Context, req Request) (Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.BuildArgs(req)...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Env = append(cmd.Env,
		"AGENTFLOW_AGENT="+req.Agent,
		"AGENTFLOW_TIMEOUT="+req.Timeout.String(),
	)
	var stdout, stderr bytes.Buffer
	cmd.WaitDelay = time.Second
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, fmt.Errorf("agent %s: %w", req.Agent, ctxErr)
	}

	res, parsed := ParseOutput(stdout.Bytes())
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		if !parsed {
			res.Success = true
		}
	case errors.As(runErr, &exitErr):
		res.Success = false
		if res.Error == "" {
			res.Error = strings.TrimSpace(stderr.String())
		}
		if res.Error == "" {
			res.Error = exitErr.Error()
		}
	default:
		return Result{}, fmt.Errorf("run agent %s: %w", req.Agent, runErr)
	}
	return res, nil
}

// wireResult accepts "content" as an alias for "output".
type wireResult struct {
	Result
	Content string `json:"content"`
}

// ParseOutput decodes stdout as a JSON Result. Non-JSON output is returned
// verbatim as Output with ok set to false.
func ParseOutput(out []byte) (res Result, ok bool) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Result{Output: string(out)}, false
	}
	var w wireResult
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Result{Output: string(out)}, false
	}
	if w.Output == "" {
		w.Output = w.Content
	}
	return w.Result, true
}
