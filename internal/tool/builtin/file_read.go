package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"lmagent/internal/tool"
)

type fileReadParams struct {
	Path      string `json:"path" desc:"File path relative to the project root"`
	StartLine int    `json:"start_line,omitempty" desc:"First line to return (1-indexed)"`
	EndLine   int    `json:"end_line,omitempty" desc:"Last line to return (1-indexed, inclusive)"`
}

type FileReadTool struct {
	env *Env
}

func NewFileReadTool(env *Env) *FileReadTool {
	return &FileReadTool{env: env}
}

func (t *FileReadTool) Name() string {
	return "file_read"
}

func (t *FileReadTool) Description() string {
	return "Read contents of a file with optional line range"
}

func (t *FileReadTool) Parameters() map[string]any {
	return tool.SchemaFor(fileReadParams{})
}

func (t *FileReadTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[fileReadParams](params)
	if bad != nil {
		return bad
	}

	path, rejected := t.env.resolve(p.Path)
	if rejected != nil {
		return rejected
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return tool.Fail("File not found: %s", p.Path)
	}
	if err != nil {
		return tool.Fail("%v", err)
	}
	if !info.Mode().IsRegular() {
		return tool.Fail("Not a file: %s", p.Path)
	}
	if max := t.env.Limits.MaxFileBytes; max > 0 && info.Size() > max {
		return tool.Fail("File too large: %d bytes (max: %d)", info.Size(), max)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return tool.Fail("failed to read file: %v", err)
	}
	if !utf8.Valid(raw) {
		return tool.Fail("File is not valid UTF-8 text")
	}

	lines := strings.Split(string(raw), "\n")
	total := len(lines)
	if p.StartLine > 0 || p.EndLine > 0 {
		start := p.StartLine - 1
		if start < 0 {
			start = 0
		}
		end := p.EndLine
		if end <= 0 || end > total {
			end = total
		}
		if start > end {
			start = end
		}
		lines = lines[start:end]
	}

	content, truncated := tool.Truncate(strings.Join(lines, "\n"), t.env.Limits.MaxReadChars)
	return tool.OK(map[string]any{
		"content":        content,
		"total_lines":    total,
		"lines_returned": len(lines),
		"path":           p.Path,
		"truncated":      truncated,
	})
}
