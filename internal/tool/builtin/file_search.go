package builtin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"lmagent/internal/tool"
)

// skipDirs are never descended into by the search and listing tools.
var skipDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	".git":         true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	".next":        true,
	".cache":       true,
}

const maxMatchContent = 200

type fileSearchParams struct {
	Pattern string   `json:"pattern" desc:"Text or regular expression to search for"`
	Path    string   `json:"path,omitempty" desc:"Directory to search, relative to the project root"`
	Include []string `json:"include,omitempty" desc:"Glob patterns of files to include, e.g. *.go"`
	Exclude []string `json:"exclude,omitempty" desc:"Glob patterns of files to exclude"`
	Regex   bool     `json:"regex,omitempty" desc:"Treat pattern as a regular expression"`
}

type FileSearchTool struct {
	env *Env
}

func NewFileSearchTool(env *Env) *FileSearchTool {
	return &FileSearchTool{env: env}
}

func (t *FileSearchTool) Name() string {
	return "file_search"
}

func (t *FileSearchTool) Description() string {
	return "Search for patterns in project files (like grep)"
}

func (t *FileSearchTool) Parameters() map[string]any {
	return tool.SchemaFor(fileSearchParams{})
}

type searchMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

var errSearchFull = errors.New("search result limit reached")

func (t *FileSearchTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[fileSearchParams](params)
	if bad != nil {
		return bad
	}
	if p.Pattern == "" {
		return tool.Fail("pattern is required")
	}

	root, rejected := t.env.resolve(p.Path)
	if rejected != nil {
		return rejected
	}
	if _, err := os.Stat(root); err != nil {
		return tool.Fail("Path not found: %s", displayPath(p.Path))
	}

	match := func(line string) bool { return strings.Contains(line, p.Pattern) }
	if p.Regex {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return tool.Fail("Invalid regex: %v", err)
		}
		match = re.MatchString
	}

	maxResults := t.env.Limits.MaxSearchResults
	matches := []searchMatch{}
	filesSearched := 0

	err := filepath.WalkDir(root, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if file != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel := t.env.Sandbox.Rel(file)
		if len(p.Exclude) > 0 && matchAny(rel, p.Exclude) {
			return nil
		}
		if len(p.Include) > 0 && !matchAny(rel, p.Include) {
			return nil
		}
		if isBinaryFile(file) {
			return nil
		}

		filesSearched++
		for _, m := range searchFile(file, rel, match) {
			matches = append(matches, m)
			if maxResults > 0 && len(matches) >= maxResults {
				return errSearchFull
			}
		}
		return nil
	})

	truncated := errors.Is(err, errSearchFull)
	if err != nil && !truncated {
		return tool.Fail("directory walk failed: %v", err)
	}

	return tool.OK(map[string]any{
		"matches":        matches,
		"total_matches":  len(matches),
		"files_searched": filesSearched,
		"truncated":      truncated,
	})
}

func searchFile(file, rel string, match func(string) bool) []searchMatch {
	f, err := os.Open(file)
	if err != nil {
		return nil
	}
	defer f.Close()

	var results []searchMatch
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if match(line) {
			results = append(results, searchMatch{
				File:    rel,
				Line:    lineNum,
				Content: tool.TruncateString(strings.TrimSpace(line), maxMatchContent),
			})
		}
	}
	return results
}

// matchAny reports whether rel or its base name matches one of patterns.
func matchAny(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, base); ok {
			return true
		}
		if ok, _ := path.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// isBinaryFile checks if a file is binary by reading the first 512 bytes
func isBinaryFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return true
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil {
		// Empty files are text.
		return n != 0
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}

func displayPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}
