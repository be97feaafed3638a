package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"lmagent/internal/tool"

	"go.uber.org/zap"
)

type shellParams struct {
	Command string            `json:"command" desc:"Shell command to execute"`
	Cwd     string            `json:"cwd,omitempty" desc:"Working directory relative to the project root"`
	Timeout int               `json:"timeout,omitempty" desc:"Timeout in seconds (default 60)"`
	Env     map[string]string `json:"env,omitempty" desc:"Additional environment variables"`
}

type ShellTool struct {
	env *Env
}

func NewShellTool(env *Env) *ShellTool {
	return &ShellTool{env: env}
}

func (t *ShellTool) Name() string {
	return "shell_execute"
}

func (t *ShellTool) Description() string {
	return "Execute shell commands in the project directory"
}

func (t *ShellTool) Parameters() map[string]any {
	return tool.SchemaFor(shellParams{})
}

func (t *ShellTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[shellParams](params)
	if bad != nil {
		return bad
	}
	if p.Command == "" {
		return tool.Fail("command is required")
	}

	if pattern, hit := t.env.ShellDeny.Match(p.Command); hit {
		t.env.Log.Warn("dangerous command blocked", zap.String("command", p.Command), zap.String("pattern", pattern))
		return tool.Rejected(tool.RejectDangerousPattern, "Command blocked: contains dangerous pattern").
			WithMeta("command", p.Command)
	}

	workDir := t.env.Sandbox.Root()
	if p.Cwd != "" {
		dir, rejected := t.env.resolve(p.Cwd)
		if rejected != nil {
			return rejected
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return tool.Fail("Directory does not exist: %s", p.Cwd)
		}
		workDir = dir
	}

	timeout := t.env.Limits.CommandTimeout
	if p.Timeout > 0 {
		timeout = time.Duration(p.Timeout) * time.Second
	}

	t.env.Log.Info("shell execute", zap.String("command", p.Command), zap.String("cwd", workDir))
	out, err := t.env.Runner.Run(ctx, tool.Command{
		Name:    "sh",
		Args:    []string{"-c", p.Command},
		Dir:     workDir,
		Env:     p.Env,
		Timeout: timeout,
	})
	if err != nil {
		return tool.RunFailure(err, timeout).WithMeta("command", p.Command)
	}

	stdout := tool.TruncateString(out.Stdout, t.env.Limits.MaxOutputChars)
	stderr := tool.TruncateString(out.Stderr, t.env.Limits.MaxOutputChars)
	data := map[string]any{
		"stdout":    stdout,
		"stderr":    stderr,
		"exit_code": out.ExitCode,
	}

	var res *tool.Result
	if out.ExitCode == 0 {
		res = tool.OK(data)
	} else {
		msg := stderr
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", out.ExitCode)
		}
		res = tool.Fail("%s", msg).WithData(data)
	}
	return res.
		WithMeta("duration_ms", out.Duration.Milliseconds()).
		WithMeta("command", p.Command).
		WithMeta("cwd", t.env.Sandbox.Rel(workDir))
}
