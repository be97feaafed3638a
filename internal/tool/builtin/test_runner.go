package builtin

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"lmagent/internal/tool"

	"github.com/mattn/go-shellwords"
)

const (
	maxFailures       = 10
	maxFailureMessage = 500
)

var (
	pytestPassedRe   = regexp.MustCompile(`(\d+) passed`)
	pytestFailedRe   = regexp.MustCompile(`(\d+) failed`)
	pytestSkippedRe  = regexp.MustCompile(`(\d+) skipped`)
	pytestDurationRe = regexp.MustCompile(`in ([\d.]+)s`)
	pytestCoverageRe = regexp.MustCompile(`TOTAL\s+\d+\s+\d+\s+(\d+)%`)
	pytestFailureRe  = regexp.MustCompile(`^FAILED (\S+)(?: - (.*))?$`)
	goCoverageRe     = regexp.MustCompile(`coverage: ([\d.]+)% of statements`)
)

type runTestsParams struct {
	Framework string `json:"framework,omitempty" desc:"pytest, jest, go or auto (default)"`
	Path      string `json:"path,omitempty" desc:"Test file or directory"`
	Pattern   string `json:"pattern,omitempty" desc:"Only run tests matching this name pattern"`
	Coverage  bool   `json:"coverage,omitempty" desc:"Collect coverage"`
	Verbose   *bool  `json:"verbose,omitempty" desc:"Verbose output (default true)"`
	Args      string `json:"args,omitempty" desc:"Extra arguments passed to the test command"`
}

type testFailure struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type testSummary struct {
	Passed   int
	Failed   int
	Skipped  int
	Duration float64
	Coverage *float64
	Failures []testFailure
}

// TestRunnerTool runs the project's test suite.
type TestRunnerTool struct{ env *Env }

func NewTestRunnerTool(env *Env) *TestRunnerTool { return &TestRunnerTool{env: env} }

func (t *TestRunnerTool) Name() string { return "run_tests" }

func (t *TestRunnerTool) Description() string {
	return "Run the test suite with pytest, jest or go test"
}

func (t *TestRunnerTool) Parameters() map[string]any { return tool.SchemaFor(runTestsParams{}) }

func (t *TestRunnerTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[runTestsParams](params)
	if bad != nil {
		return bad
	}
	return t.env.runTests(ctx, p)
}

func detectFramework(root string) string {
	markers := []struct{ file, framework string }{
		{"go.mod", "go"},
		{"pytest.ini", "pytest"},
		{"pyproject.toml", "pytest"},
		{"setup.py", "pytest"},
		{"jest.config.js", "jest"},
		{"jest.config.ts", "jest"},
		{"package.json", "jest"},
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.framework
		}
	}
	return "pytest"
}

func (e *Env) runTests(ctx context.Context, p runTestsParams) *tool.Result {
	if p.Path != "" {
		if _, rejected := e.resolve(p.Path); rejected != nil {
			return rejected
		}
		p.Path = operand(p.Path)
	}
	extra, err := shellwords.Parse(p.Args)
	if err != nil {
		return tool.Fail("invalid args: %v", err)
	}
	verbose := p.Verbose == nil || *p.Verbose

	framework := p.Framework
	if framework == "" || framework == "auto" {
		framework = detectFramework(e.Sandbox.Root())
	}

	var (
		name string
		args []string
	)
	switch framework {
	case "pytest":
		name, args = "pytest", []string{"--tb=short", "-q"}
		if verbose {
			args[1] = "-v"
		}
		if p.Path != "" {
			args = append(args, p.Path)
		}
		if p.Pattern != "" {
			args = append(args, "-k", p.Pattern)
		}
		if p.Coverage {
			args = append(args, "--cov=.", "--cov-report=term-missing")
		}
	case "jest":
		name, args = "npx", []string{"jest", "--json"}
		if p.Path != "" {
			args = append(args, p.Path)
		}
		if p.Pattern != "" {
			args = append(args, "-t", p.Pattern)
		}
		if p.Coverage {
			args = append(args, "--coverage")
		}
		if !verbose {
			args = append(args, "--silent")
		}
	case "go":
		name, args = "go", []string{"test", "-json"}
		if p.Pattern != "" {
			args = append(args, "-run", p.Pattern)
		}
		if p.Coverage {
			args = append(args, "-cover")
		}
		target := "./..."
		if p.Path != "" {
			target = goTarget(p.Path)
		}
		args = append(args, target)
	default:
		return tool.Fail("Unknown framework: %s", framework)
	}
	args = append(args, extra...)

	out, err := e.exec(ctx, name, args...)
	if err != nil {
		return tool.RunFailure(err, e.Limits.CommandTimeout)
	}

	var s testSummary
	switch framework {
	case "pytest":
		s = parsePytest(out.Stdout + "\n" + out.Stderr)
	case "jest":
		s = parseJest(out.Stdout, p.Coverage)
	case "go":
		s = parseGoTest(out.Stdout)
	}

	if len(s.Failures) > maxFailures {
		s.Failures = s.Failures[:maxFailures]
	}
	if s.Failures == nil {
		s.Failures = []testFailure{}
	}
	data := map[string]any{
		"framework":        framework,
		"passed":           s.Passed,
		"failed":           s.Failed,
		"skipped":          s.Skipped,
		"duration_seconds": s.Duration,
		"coverage_percent": s.Coverage,
		"failures":         s.Failures,
	}

	switch {
	case s.Failed > 0:
		return tool.Fail("%d test(s) failed", s.Failed).WithData(data)
	case out.ExitCode != 0:
		msg := strings.TrimSpace(tool.TruncateString(out.Stderr, maxFailureMessage))
		if msg == "" {
			msg = "test command exited with status " + strconv.Itoa(out.ExitCode)
		}
		return tool.Fail("%s", msg).WithData(data)
	}
	return tool.OK(data)
}

func parsePytest(output string) testSummary {
	s := testSummary{
		Passed:  firstInt(pytestPassedRe, output),
		Failed:  firstInt(pytestFailedRe, output),
		Skipped: firstInt(pytestSkippedRe, output),
	}
	if m := pytestDurationRe.FindStringSubmatch(output); m != nil {
		s.Duration, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := pytestCoverageRe.FindStringSubmatch(output); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		s.Coverage = &v
	}
	for _, line := range strings.Split(output, "\n") {
		if m := pytestFailureRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			s.Failures = append(s.Failures, testFailure{
				Name:    m[1],
				Message: tool.TruncateString(m[2], maxFailureMessage),
			})
		}
	}
	return s
}

func parseJest(stdout string, coverage bool) testSummary {
	var report struct {
		NumPassedTests  int   `json:"numPassedTests"`
		NumFailedTests  int   `json:"numFailedTests"`
		NumPendingTests int   `json:"numPendingTests"`
		StartTime       int64 `json:"startTime"`
		TestResults     []struct {
			EndTime          int64 `json:"endTime"`
			AssertionResults []struct {
				FullName        string   `json:"fullName"`
				Status          string   `json:"status"`
				FailureMessages []string `json:"failureMessages"`
			} `json:"assertionResults"`
		} `json:"testResults"`
		CoverageMap map[string]struct {
			S map[string]int `json:"s"`
		} `json:"coverageMap"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		return testSummary{}
	}

	s := testSummary{
		Passed:  report.NumPassedTests,
		Failed:  report.NumFailedTests,
		Skipped: report.NumPendingTests,
	}
	var end int64
	for _, tr := range report.TestResults {
		if tr.EndTime > end {
			end = tr.EndTime
		}
		for _, a := range tr.AssertionResults {
			if a.Status == "failed" {
				s.Failures = append(s.Failures, testFailure{
					Name:    a.FullName,
					Message: tool.TruncateString(strings.Join(a.FailureMessages, "\n"), maxFailureMessage),
				})
			}
		}
	}
	if report.StartTime > 0 && end > report.StartTime {
		s.Duration = float64(end-report.StartTime) / 1000
	}

	if coverage && len(report.CoverageMap) > 0 {
		total, covered := 0, 0
		for _, file := range report.CoverageMap {
			for _, hits := range file.S {
				total++
				if hits > 0 {
					covered++
				}
			}
		}
		if total > 0 {
			v := float64(covered * 100 / total)
			s.Coverage = &v
		}
	}
	return s
}

// parseGoTest reads the event stream of go test -json.
func parseGoTest(stdout string) testSummary {
	var s testSummary
	output := map[string]*strings.Builder{}

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev struct {
			Action  string  `json:"Action"`
			Package string  `json:"Package"`
			Test    string  `json:"Test"`
			Elapsed float64 `json:"Elapsed"`
			Output  string  `json:"Output"`
		}
		if json.Unmarshal(scanner.Bytes(), &ev) != nil {
			continue
		}
		key := ev.Package + "." + ev.Test

		switch ev.Action {
		case "output":
			if m := goCoverageRe.FindStringSubmatch(ev.Output); m != nil {
				v, _ := strconv.ParseFloat(m[1], 64)
				s.Coverage = &v
			}
			if ev.Test != "" {
				b, ok := output[key]
				if !ok {
					b = &strings.Builder{}
					output[key] = b
				}
				if b.Len() < maxFailureMessage {
					b.WriteString(ev.Output)
				}
			}
		case "pass":
			if ev.Test != "" {
				s.Passed++
			} else {
				s.Duration += ev.Elapsed
			}
		case "skip":
			if ev.Test != "" {
				s.Skipped++
			}
		case "fail":
			if ev.Test == "" {
				s.Duration += ev.Elapsed
				continue
			}
			s.Failed++
			msg := ""
			if b, ok := output[key]; ok {
				msg = b.String()
			}
			s.Failures = append(s.Failures, testFailure{
				Name:    ev.Test,
				Message: tool.TruncateString(strings.TrimSpace(msg), maxFailureMessage),
			})
		}
	}
	return s
}
