package builtin

import (
	"fmt"

	"lmagent/internal/tool"
)

type constructor func(*Env) tool.Tool

// table is the static set of builtin tools, keyed by the name each one
// registers under.
var table = []struct {
	name string
	new  constructor
}{
	{"shell_execute", func(e *Env) tool.Tool { return NewShellTool(e) }},
	{"file_read", func(e *Env) tool.Tool { return NewFileReadTool(e) }},
	{"file_write", func(e *Env) tool.Tool { return NewFileWriteTool(e) }},
	{"file_edit", func(e *Env) tool.Tool { return NewFileEditTool(e) }},
	{"file_search", func(e *Env) tool.Tool { return NewFileSearchTool(e) }},
	{"file_list", func(e *Env) tool.Tool { return NewFileListTool(e) }},
	{"git_status", func(e *Env) tool.Tool { return NewGitStatusTool(e) }},
	{"git_diff", func(e *Env) tool.Tool { return NewGitDiffTool(e) }},
	{"git_add", func(e *Env) tool.Tool { return NewGitAddTool(e) }},
	{"git_commit", func(e *Env) tool.Tool { return NewGitCommitTool(e) }},
	{"git_push", func(e *Env) tool.Tool { return NewGitPushTool(e) }},
	{"git_branch", func(e *Env) tool.Tool { return NewGitBranchTool(e) }},
	{"git_log", func(e *Env) tool.Tool { return NewGitLogTool(e) }},
	{"lint", func(e *Env) tool.Tool { return NewLintTool(e) }},
	{"format", func(e *Env) tool.Tool { return NewFormatTool(e) }},
	{"type_check", func(e *Env) tool.Tool { return NewTypeCheckTool(e) }},
	{"run_tests", func(e *Env) tool.Tool { return NewTestRunnerTool(e) }},
	{"http_request", func(e *Env) tool.Tool { return NewHTTPTool(e) }},
	{"database_query", func(e *Env) tool.Tool { return NewDatabaseQueryTool(e) }},
	{"database_write", func(e *Env) tool.Tool { return NewDatabaseWriteTool(e) }},
	{"edit_and_lint", func(e *Env) tool.Tool { return NewEditLintTool(e) }},
	{"todo_write", func(e *Env) tool.Tool { return NewTodoWriteTool(e) }},
}

// Names lists the builtin tool names in table order.
func Names() []string {
	out := make([]string, len(table))
	for i, entry := range table {
		out[i] = entry.name
	}
	return out
}

// NewRegistry constructs every builtin tool against env and adds extra
// tools, such as MCP adapters. Each call builds fresh tool instances.
func NewRegistry(env *Env, extra ...tool.Tool) (*tool.Registry, error) {
	tools := make([]tool.Tool, 0, len(table)+len(extra))
	for _, entry := range table {
		t := entry.new(env)
		if t.Name() != entry.name {
			return nil, fmt.Errorf("builtin %s registers as %s", entry.name, t.Name())
		}
		tools = append(tools, t)
	}
	tools = append(tools, extra...)
	return tool.NewRegistry(tools...)
}
