package builtin

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lmagent/internal/tool"
)

const (
	maxListedFiles = 100
	maxListedDirs  = 50
)

type fileListParams struct {
	Path      string   `json:"path,omitempty" desc:"Directory relative to the project root (default .)"`
	Recursive bool     `json:"recursive,omitempty" desc:"List files in subdirectories too"`
	Include   []string `json:"include,omitempty" desc:"Glob patterns of files to include"`
}

type FileListTool struct {
	env *Env
}

func NewFileListTool(env *Env) *FileListTool {
	return &FileListTool{env: env}
}

func (t *FileListTool) Name() string {
	return "file_list"
}

func (t *FileListTool) Description() string {
	return "List files in a directory"
}

func (t *FileListTool) Parameters() map[string]any {
	return tool.SchemaFor(fileListParams{})
}

type listedFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

func (t *FileListTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[fileListParams](params)
	if bad != nil {
		return bad
	}

	dir, rejected := t.env.resolve(p.Path)
	if rejected != nil {
		return rejected
	}
	info, err := os.Stat(dir)
	if err != nil {
		return tool.Fail("Path not found: %s", displayPath(p.Path))
	}
	if !info.IsDir() {
		return tool.Fail("Not a directory: %s", p.Path)
	}

	files := []listedFile{}
	dirs := []string{}

	add := func(full string, d fs.DirEntry) {
		rel := t.env.Sandbox.Rel(full)
		if d.IsDir() {
			if !p.Recursive {
				dirs = append(dirs, rel)
			}
			return
		}
		if len(p.Include) > 0 && !matchAny(rel, p.Include) {
			return
		}
		var size int64
		if fi, err := d.Info(); err == nil {
			size = fi.Size()
		}
		files = append(files, listedFile{Path: rel, Size: size})
	}

	if p.Recursive {
		err = filepath.WalkDir(dir, func(full string, d fs.DirEntry, err error) error {
			if err != nil || full == dir {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if hidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			add(full, d)
			return nil
		})
	} else {
		var entries []fs.DirEntry
		entries, err = os.ReadDir(dir)
		for _, d := range entries {
			if hidden(d.Name()) {
				continue
			}
			add(filepath.Join(dir, d.Name()), d)
		}
	}
	if err != nil {
		return tool.Fail("list failed: %v", err)
	}

	data := map[string]any{
		"total_files":       len(files),
		"total_directories": len(dirs),
	}
	if len(files) > maxListedFiles {
		files = files[:maxListedFiles]
	}
	if len(dirs) > maxListedDirs {
		dirs = dirs[:maxListedDirs]
	}
	data["files"] = files
	data["directories"] = dirs
	return tool.OK(data)
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || skipDirs[name]
}
