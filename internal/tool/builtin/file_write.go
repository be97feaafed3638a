package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"lmagent/internal/tool"

	"go.uber.org/zap"
)

type fileWriteParams struct {
	Path    string `json:"path" desc:"File path relative to the project root"`
	Content string `json:"content" desc:"Content to write"`
	Mode    string `json:"mode,omitempty" desc:"overwrite (default), append or create_only" enum:"overwrite,append,create_only"`
}

type FileWriteTool struct {
	env *Env
}

func NewFileWriteTool(env *Env) *FileWriteTool {
	return &FileWriteTool{env: env}
}

func (t *FileWriteTool) Name() string {
	return "file_write"
}

func (t *FileWriteTool) Description() string {
	return "Write content to a file"
}

func (t *FileWriteTool) Parameters() map[string]any {
	return tool.SchemaFor(fileWriteParams{})
}

func (t *FileWriteTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[fileWriteParams](params)
	if bad != nil {
		return bad
	}
	if p.Mode == "" {
		p.Mode = "overwrite"
	}

	// Sandbox check comes before any directory is created.
	path, rejected := t.env.resolve(p.Path)
	if rejected != nil {
		return rejected
	}

	if err := writeFile(path, p.Content, p.Mode); err != nil {
		return err
	}
	t.env.Log.Info("file write", zap.String("path", p.Path), zap.String("mode", p.Mode))

	return tool.OK(map[string]any{
		"path":  p.Path,
		"lines": strings.Count(p.Content, "\n") + 1,
		"bytes": len(p.Content),
		"mode":  p.Mode,
	})
}

// writeFile writes content to an already sandboxed path.
func writeFile(path, content, mode string) *tool.Result {
	flags := os.O_WRONLY | os.O_CREATE
	switch mode {
	case "overwrite":
		flags |= os.O_TRUNC
	case "append":
		flags |= os.O_APPEND
	case "create_only":
		if _, err := os.Stat(path); err == nil {
			return tool.Fail("File already exists: %s", filepath.Base(path))
		}
		flags |= os.O_EXCL
	default:
		return tool.Fail("invalid mode: %s", mode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return tool.Fail("failed to create directory: %v", err)
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return tool.Fail("failed to open file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return tool.Fail("failed to write file: %v", err)
	}
	if err := f.Close(); err != nil {
		return tool.Fail("failed to write file: %v", err)
	}
	return nil
}
