package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lmagent/internal/tool"

	"go.uber.org/zap"
)

const (
	maxLintIssues  = 10
	maxTestsOutput = 2000
)

type editLintParams struct {
	File     string `json:"file" desc:"File path relative to the project root"`
	Content  string `json:"content" desc:"New content for the file"`
	AutoFix  *bool  `json:"auto_fix,omitempty" desc:"Apply automatic lint fixes (default true)"`
	RunTests bool   `json:"run_tests,omitempty" desc:"Run related tests after the edit"`
}

// EditLintTool writes a file and runs the linter and formatter on it.
type EditLintTool struct{ env *Env }

func NewEditLintTool(env *Env) *EditLintTool { return &EditLintTool{env: env} }

func (t *EditLintTool) Name() string { return "edit_and_lint" }

func (t *EditLintTool) Description() string {
	return "Edit a file and automatically run linter, fixing issues if possible"
}

func (t *EditLintTool) Parameters() map[string]any { return tool.SchemaFor(editLintParams{}) }

func (t *EditLintTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[editLintParams](params)
	if bad != nil {
		return bad
	}
	abs, rejected := t.env.resolve(p.File)
	if rejected != nil {
		return rejected
	}
	autoFix := p.AutoFix == nil || *p.AutoFix

	if res := writeFile(abs, p.Content, "overwrite"); res != nil {
		return res
	}
	t.env.Log.Info("edit_and_lint write", zap.String("file", p.File))

	lintPassed := true
	lintIssues := []any{}
	autoFixed := []string{}

	if lang, ok := lintLanguage(p.File); ok {
		lint := t.env.lint(ctx, lintParams{Path: p.File, Fix: autoFix, Language: string(lang)})
		if !lint.Success {
			lintPassed = false
			data, _ := lint.Data.(map[string]any)
			if errs, ok := data["errors"].([]issue); ok {
				for i, e := range errs {
					if i == maxLintIssues {
						break
					}
					lintIssues = append(lintIssues, e)
				}
			} else {
				lintIssues = append(lintIssues, lint.Error)
			}
			if fixed, _ := data["fixed"].(int); fixed > 0 {
				autoFixed = append(autoFixed, fmt.Sprintf("Fixed %d issues", fixed))
			}
		}

		if lang != langTypeScript {
			format := t.env.format(ctx, formatParams{Path: p.File, Language: string(lang)})
			if data, _ := format.Data.(map[string]any); format.Success && data != nil {
				if formatted, _ := data["formatted"].([]string); len(formatted) > 0 {
					autoFixed = append(autoFixed, "Formatted code")
				}
			}
		}
	}

	var testsPassed *bool
	var testsOutput string
	if p.RunTests {
		if related := t.env.relatedTests(p.File); len(related) > 0 {
			path := ""
			if len(related) == 1 {
				path = related[0]
			}
			res := t.env.runTests(ctx, runTestsParams{Path: path})
			passed := res.Success
			testsPassed = &passed
			raw, _ := json.Marshal(res.Data)
			testsOutput = tool.TruncateString(string(raw), maxTestsOutput)
		}
	}

	final, err := os.ReadFile(abs)
	if err != nil {
		return tool.Fail("failed to read back %s: %v", p.File, err)
	}

	return tool.OK(map[string]any{
		"file_updated": true,
		"lint_passed":  lintPassed,
		"lint_issues":  lintIssues,
		"auto_fixed":   autoFixed,
		"tests_passed": testsPassed,
		"tests_output": testsOutput,
	}).
		WithMeta("file", p.File).
		WithMeta("content_lines", strings.Count(string(final), "\n")+1)
}

// lintLanguage maps a file extension to a linter. Other files are written
// without linting.
func lintLanguage(file string) (language, bool) {
	switch filepath.Ext(file) {
	case ".py":
		return langPython, true
	case ".ts", ".tsx", ".js", ".jsx":
		return langTypeScript, true
	case ".go":
		return langGo, true
	}
	return "", false
}

// relatedTests lists existing test files that conventionally cover file.
func (e *Env) relatedTests(file string) []string {
	dir := filepath.Dir(file)
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(filepath.Base(file), ext)

	candidates := []string{
		"tests/test_" + stem + ".py",
		"test_" + stem + ".py",
		"tests/" + stem + "_test.py",
		stem + ".test.ts",
		stem + ".test.js",
		"__tests__/" + stem + ".test.ts",
		"__tests__/" + stem + ".test.js",
	}
	if ext == ".go" {
		candidates = append([]string{filepath.Join(dir, stem+"_test.go")}, candidates...)
	}

	var found []string
	for _, c := range candidates {
		if _, err := os.Stat(filepath.Join(e.Sandbox.Root(), c)); err == nil {
			found = append(found, c)
		}
	}
	return found
}

type fileEditParams struct {
	File       string `json:"file" desc:"File path relative to the project root"`
	StartLine  int    `json:"start_line" desc:"First line to replace (1-indexed)"`
	EndLine    int    `json:"end_line" desc:"Last line to replace (1-indexed, inclusive)"`
	NewContent string `json:"new_content" desc:"Content inserted in place of the removed lines"`
	AutoLint   *bool  `json:"auto_lint,omitempty" desc:"Run the linter after the edit (default true)"`
}

// FileEditTool replaces a line range in an existing file.
type FileEditTool struct{ env *Env }

func NewFileEditTool(env *Env) *FileEditTool { return &FileEditTool{env: env} }

func (t *FileEditTool) Name() string { return "file_edit" }

func (t *FileEditTool) Description() string {
	return "Edit specific lines in a file"
}

func (t *FileEditTool) Parameters() map[string]any { return tool.SchemaFor(fileEditParams{}) }

func (t *FileEditTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[fileEditParams](params)
	if bad != nil {
		return bad
	}
	abs, rejected := t.env.resolve(p.File)
	if rejected != nil {
		return rejected
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return tool.Fail("File not found: %s", p.File)
		}
		return tool.Fail("failed to read file: %v", err)
	}
	lines := strings.Split(string(raw), "\n")
	if p.StartLine < 1 || p.EndLine > len(lines) || p.StartLine > p.EndLine {
		return tool.Fail("Invalid line range: %d-%d (file has %d lines)", p.StartLine, p.EndLine, len(lines))
	}

	replacement := strings.Split(p.NewContent, "\n")
	edited := make([]string, 0, len(lines)-(p.EndLine-p.StartLine+1)+len(replacement))
	edited = append(edited, lines[:p.StartLine-1]...)
	edited = append(edited, replacement...)
	edited = append(edited, lines[p.EndLine:]...)

	if res := writeFile(abs, strings.Join(edited, "\n"), "overwrite"); res != nil {
		return res
	}

	var lintPassed *bool
	if p.AutoLint == nil || *p.AutoLint {
		if lang, ok := lintLanguage(p.File); ok {
			passed := t.env.lint(ctx, lintParams{Path: p.File, Fix: true, Language: string(lang)}).Success
			lintPassed = &passed
		}
	}

	return tool.OK(map[string]any{
		"lines_before": p.EndLine - p.StartLine + 1,
		"lines_after":  len(replacement),
		"total_lines":  len(edited),
		"lint_passed":  lintPassed,
	})
}
