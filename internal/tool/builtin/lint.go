package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"lmagent/internal/tool"
)

const maxIssues = 50

var (
	ruffFixedRe = regexp.MustCompile(`Fixed (\d+)`)
	// file:line[:col]: [severity:] message, as printed by mypy, tsc, go vet
	// and the go compiler.
	diagnosticRe = regexp.MustCompile(`^(.+?):(\d+):(?:(\d+):)?\s*(?:(error|warning|note):)?\s*(.*)$`)
)

type language string

const (
	langPython     language = "python"
	langTypeScript language = "typescript"
	langGo         language = "go"
)

// detectLanguage picks a toolchain from the target's extension, then from
// marker files in the project root.
func detectLanguage(root, target, requested string) (language, *tool.Result) {
	switch strings.ToLower(requested) {
	case "", "auto":
	case "python", "py":
		return langPython, nil
	case "typescript", "ts", "javascript", "js":
		return langTypeScript, nil
	case "go", "golang":
		return langGo, nil
	default:
		return "", tool.Fail("Unsupported language: %s", requested)
	}

	switch filepath.Ext(target) {
	case ".py":
		return langPython, nil
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return langTypeScript, nil
	case ".go":
		return langGo, nil
	}

	markers := []struct {
		file string
		lang language
	}{
		{"go.mod", langGo},
		{"package.json", langTypeScript},
		{"tsconfig.json", langTypeScript},
		{"pyproject.toml", langPython},
		{"setup.py", langPython},
		{"requirements.txt", langPython},
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.lang, nil
		}
	}
	return langPython, nil
}

type issue struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
	Code     string `json:"code,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`
}

func capIssues(in []issue) []issue {
	if len(in) > maxIssues {
		return in[:maxIssues]
	}
	return in
}

type lintParams struct {
	Path     string `json:"path,omitempty" desc:"File or directory to lint (default .)"`
	Fix      bool   `json:"fix,omitempty" desc:"Apply automatic fixes"`
	Language string `json:"language,omitempty" desc:"python, typescript, go or auto (default)"`
}

// LintTool runs ruff, eslint or go vet depending on the language.
type LintTool struct{ env *Env }

func NewLintTool(env *Env) *LintTool { return &LintTool{env: env} }

func (t *LintTool) Name() string { return "lint" }

func (t *LintTool) Description() string {
	return "Run the project linter (ruff, eslint or go vet) and report issues"
}

func (t *LintTool) Parameters() map[string]any { return tool.SchemaFor(lintParams{}) }

func (t *LintTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[lintParams](params)
	if bad != nil {
		return bad
	}
	return t.env.lint(ctx, p)
}

func (e *Env) lint(ctx context.Context, p lintParams) *tool.Result {
	if p.Path == "" {
		p.Path = "."
	}
	if _, rejected := e.resolve(p.Path); rejected != nil {
		return rejected
	}
	p.Path = operand(p.Path)
	lang, bad := detectLanguage(e.Sandbox.Root(), p.Path, p.Language)
	if bad != nil {
		return bad
	}

	var (
		name string
		args []string
	)
	switch lang {
	case langPython:
		name, args = "ruff", []string{"check", p.Path, "--output-format=json"}
		if p.Fix {
			args = append(args, "--fix")
		}
	case langTypeScript:
		name, args = "npx", []string{"eslint", p.Path, "--format", "json"}
		if p.Fix {
			args = append(args, "--fix")
		}
	case langGo:
		name, args = "go", []string{"vet", goTarget(p.Path)}
	}

	out, err := e.exec(ctx, name, args...)
	if err != nil {
		return tool.RunFailure(err, e.Limits.CommandTimeout)
	}

	var errs, warns []issue
	fixed := 0
	switch lang {
	case langPython:
		errs, warns = parseRuff(out.Stdout)
		if p.Fix {
			if m := ruffFixedRe.FindStringSubmatch(out.Stderr); m != nil {
				fixed = atoi(m[1])
			}
		}
	case langTypeScript:
		errs, warns, fixed = parseESLint(out.Stdout)
		if !p.Fix {
			fixed = 0
		}
	case langGo:
		errs = parseDiagnostics(out.Stderr)
	}

	data := map[string]any{
		"language":     string(lang),
		"errors":       capIssues(nonNil(errs)),
		"warnings":     capIssues(nonNil(warns)),
		"fixed":        fixed,
		"total_issues": len(errs) + len(warns),
	}
	if len(errs) > 0 {
		return tool.Fail("Lint errors found").WithData(data)
	}
	return tool.OK(data)
}

func nonNil(in []issue) []issue {
	if in == nil {
		return []issue{}
	}
	return in
}

// goTarget turns a path into a package pattern for go vet and go build.
func goTarget(p string) string {
	if p == "." || p == "" {
		return "./..."
	}
	if filepath.Ext(p) == ".go" {
		p = filepath.Dir(p)
	}
	return "./" + strings.TrimPrefix(filepath.ToSlash(p), "./")
}

func parseRuff(stdout string) (errs, warns []issue) {
	var findings []struct {
		Filename string `json:"filename"`
		Code     string `json:"code"`
		Message  string `json:"message"`
		Location struct {
			Row    int `json:"row"`
			Column int `json:"column"`
		} `json:"location"`
	}
	if strings.TrimSpace(stdout) == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(stdout), &findings); err != nil {
		return parseDiagnostics(stdout), nil
	}
	for _, f := range findings {
		i := issue{File: f.Filename, Line: f.Location.Row, Column: f.Location.Column, Code: f.Code, Message: f.Message}
		if strings.HasPrefix(f.Code, "E") || strings.HasPrefix(f.Code, "F") {
			errs = append(errs, i)
		} else {
			warns = append(warns, i)
		}
	}
	return errs, warns
}

func parseESLint(stdout string) (errs, warns []issue, fixed int) {
	var results []struct {
		FilePath            string `json:"filePath"`
		FixableErrorCount   int    `json:"fixableErrorCount"`
		FixableWarningCount int    `json:"fixableWarningCount"`
		Messages            []struct {
			Line     int    `json:"line"`
			Column   int    `json:"column"`
			RuleID   string `json:"ruleId"`
			Message  string `json:"message"`
			Severity int    `json:"severity"`
		} `json:"messages"`
	}
	if err := json.Unmarshal([]byte(stdout), &results); err != nil {
		return nil, nil, 0
	}
	for _, r := range results {
		for _, m := range r.Messages {
			i := issue{File: r.FilePath, Line: m.Line, Column: m.Column, Code: m.RuleID, Message: m.Message}
			if m.Severity == 2 {
				errs = append(errs, i)
			} else {
				warns = append(warns, i)
			}
		}
		fixed += r.FixableErrorCount + r.FixableWarningCount
	}
	return errs, warns, fixed
}

func parseDiagnostics(output string) []issue {
	var out []issue
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := diagnosticRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		severity := m[4]
		if severity == "" {
			severity = "error"
		}
		if severity == "note" {
			continue
		}
		out = append(out, issue{
			File:     strings.TrimPrefix(m[1], "vet: "),
			Line:     atoi(m[2]),
			Column:   atoi(m[3]),
			Severity: severity,
			Message:  m[5],
		})
	}
	return out
}

type formatParams struct {
	Path     string `json:"path,omitempty" desc:"File or directory to format (default .)"`
	Check    bool   `json:"check,omitempty" desc:"Only report files that would change"`
	Language string `json:"language,omitempty" desc:"python, typescript, go or auto (default)"`
}

// FormatTool runs ruff format, prettier or gofmt.
type FormatTool struct{ env *Env }

func NewFormatTool(env *Env) *FormatTool { return &FormatTool{env: env} }

func (t *FormatTool) Name() string { return "format" }

func (t *FormatTool) Description() string {
	return "Format code with the project formatter (ruff format, prettier or gofmt)"
}

func (t *FormatTool) Parameters() map[string]any { return tool.SchemaFor(formatParams{}) }

func (t *FormatTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[formatParams](params)
	if bad != nil {
		return bad
	}
	return t.env.format(ctx, p)
}

func (e *Env) format(ctx context.Context, p formatParams) *tool.Result {
	if p.Path == "" {
		p.Path = "."
	}
	if _, rejected := e.resolve(p.Path); rejected != nil {
		return rejected
	}
	p.Path = operand(p.Path)
	lang, bad := detectLanguage(e.Sandbox.Root(), p.Path, p.Language)
	if bad != nil {
		return bad
	}

	var (
		name string
		args []string
	)
	switch lang {
	case langPython:
		name, args = "ruff", []string{"format", p.Path}
		if p.Check {
			args = append(args, "--check")
		}
	case langTypeScript:
		name = "npx"
		if p.Check {
			args = []string{"prettier", "--list-different", p.Path}
		} else {
			args = []string{"prettier", "--write", "--list-different", p.Path}
		}
	case langGo:
		name, args = "gofmt", []string{"-l", p.Path}
		if !p.Check {
			args = []string{"-l", "-w", p.Path}
		}
	}

	out, err := e.exec(ctx, name, args...)
	if err != nil {
		return tool.RunFailure(err, e.Limits.CommandTimeout)
	}

	formatted, wouldFormat := []string{}, []string{}
	for _, line := range strings.Split(out.Stdout+"\n"+out.Stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "would reformat:"):
			wouldFormat = append(wouldFormat, strings.TrimSpace(line[len("would reformat:"):]))
		case lang == langPython:
			// ruff prints summaries such as "2 files reformatted".
			if strings.Contains(lower, "reformatted") {
				formatted = append(formatted, line)
			}
		case p.Check:
			wouldFormat = append(wouldFormat, line)
		default:
			formatted = append(formatted, line)
		}
	}

	data := map[string]any{
		"language":     string(lang),
		"formatted":    formatted,
		"would_format": wouldFormat,
	}
	if out.ExitCode != 0 || (p.Check && len(wouldFormat) > 0) {
		if p.Check {
			return tool.Fail("Files need formatting").WithData(data)
		}
		msg := strings.TrimSpace(out.Stderr)
		if msg == "" {
			msg = "formatter failed"
		}
		return tool.Fail("%s", msg).WithData(data)
	}
	return tool.OK(data)
}

type typeCheckParams struct {
	Language string `json:"language,omitempty" desc:"python (default), typescript or go"`
	Path     string `json:"path,omitempty" desc:"Path to check (default .)"`
}

// TypeCheckTool runs mypy, tsc or go build.
type TypeCheckTool struct{ env *Env }

func NewTypeCheckTool(env *Env) *TypeCheckTool { return &TypeCheckTool{env: env} }

func (t *TypeCheckTool) Name() string               { return "type_check" }
func (t *TypeCheckTool) Description() string        { return "Run type checker" }
func (t *TypeCheckTool) Parameters() map[string]any { return tool.SchemaFor(typeCheckParams{}) }

func (t *TypeCheckTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[typeCheckParams](params)
	if bad != nil {
		return bad
	}
	if p.Language == "" {
		p.Language = string(langPython)
	}
	if p.Path == "" {
		p.Path = "."
	}
	if _, rejected := t.env.resolve(p.Path); rejected != nil {
		return rejected
	}
	p.Path = operand(p.Path)
	lang, bad := detectLanguage(t.env.Sandbox.Root(), p.Path, p.Language)
	if bad != nil {
		return bad
	}

	var (
		name string
		args []string
	)
	switch lang {
	case langPython:
		name, args = "mypy", []string{p.Path, "--no-error-summary"}
	case langTypeScript:
		name, args = "npx", []string{"tsc", "--noEmit", "--pretty", "false"}
	case langGo:
		name, args = "go", []string{"build", "-o", os.DevNull, goTarget(p.Path)}
	}

	out, err := t.env.exec(ctx, name, args...)
	if err != nil {
		return tool.RunFailure(err, t.env.Limits.CommandTimeout)
	}

	output := out.Stdout
	if lang != langPython {
		output += "\n" + out.Stderr
	}
	if lang == langTypeScript {
		output = normalizeTSC(output)
	}
	errs := parseDiagnostics(output)

	files := map[string]bool{}
	for _, i := range errs {
		files[i.File] = true
	}
	data := map[string]any{
		"language":      string(lang),
		"errors":        capIssues(nonNil(errs)),
		"files_checked": len(files),
	}
	if len(errs) > 0 {
		return tool.Fail("Type errors found").WithData(data)
	}
	if out.ExitCode != 0 {
		return tool.Fail("type checker exited with status %d", out.ExitCode).WithData(data)
	}
	return tool.OK(data)
}

var tscRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): (error|warning) \w+: (.*)$`)

// normalizeTSC rewrites tsc's file(line,col) form into file:line:col.
func normalizeTSC(output string) string {
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if m := tscRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			lines[i] = m[1] + ":" + m[2] + ":" + m[3] + ": " + m[4] + ": " + m[5]
		}
	}
	return strings.Join(lines, "\n")
}
