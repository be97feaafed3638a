package builtin

import (
	"os"
	"path/filepath"
	"testing"

	"lmagent/internal/tool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePytest(t *testing.T) {
	out := `tests/test_a.py::test_ok PASSED
tests/test_a.py::test_bad FAILED
---------- coverage: platform linux ----------
Name      Stmts   Miss  Cover
TOTAL       120     30    75%
FAILED tests/test_a.py::test_bad - AssertionError: 1 != 2
FAILED tests/test_b.py::test_other
==== 1 failed, 4 passed, 2 skipped in 1.25s ====`

	s := parsePytest(out)
	assert.Equal(t, 4, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Skipped)
	assert.Equal(t, 1.25, s.Duration)
	require.NotNil(t, s.Coverage)
	assert.Equal(t, 75.0, *s.Coverage)
	require.Len(t, s.Failures, 2)
	assert.Equal(t, testFailure{Name: "tests/test_a.py::test_bad", Message: "AssertionError: 1 != 2"}, s.Failures[0])
}

func TestParseJest(t *testing.T) {
	out := `{"numPassedTests":3,"numFailedTests":1,"numPendingTests":0,"startTime":1000,
		"testResults":[{"endTime":3500,"assertionResults":[
			{"fullName":"sum adds","status":"passed","failureMessages":[]},
			{"fullName":"sum fails","status":"failed","failureMessages":["expected 3"]}
		]}]}`

	s := parseJest(out, false)
	assert.Equal(t, 3, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2.5, s.Duration)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "sum fails", s.Failures[0].Name)
	assert.Nil(t, s.Coverage)
}

func TestParseGoTest(t *testing.T) {
	out := `{"Action":"run","Package":"p","Test":"TestA"}
{"Action":"output","Package":"p","Test":"TestA","Output":"--- PASS: TestA\n"}
{"Action":"pass","Package":"p","Test":"TestA","Elapsed":0.01}
{"Action":"run","Package":"p","Test":"TestB"}
{"Action":"output","Package":"p","Test":"TestB","Output":"    b_test.go:9: want 2\n"}
{"Action":"fail","Package":"p","Test":"TestB","Elapsed":0.02}
{"Action":"skip","Package":"p","Test":"TestC"}
{"Action":"output","Package":"p","Output":"coverage: 81.5% of statements\n"}
{"Action":"fail","Package":"p","Elapsed":0.5}
not json`

	s := parseGoTest(out)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 0.5, s.Duration)
	require.NotNil(t, s.Coverage)
	assert.Equal(t, 81.5, *s.Coverage)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "TestB", s.Failures[0].Name)
	assert.Contains(t, s.Failures[0].Message, "want 2")
}

func TestDetectFramework(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, "pytest", detectFramework(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte("{}"), 0644))
	assert.Equal(t, "jest", detectFramework(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0644))
	assert.Equal(t, "go", detectFramework(root))
}

func TestRunTestsGoCommand(t *testing.T) {
	env, spy := newTestEnv(t)
	writeTestFile(t, env, "go.mod", "module x\n")
	spy.reply = func(tool.Command) (*tool.Output, error) {
		return &tool.Output{Stdout: `{"Action":"pass","Package":"x","Test":"TestA"}`}, nil
	}

	res := run(t, NewTestRunnerTool(env), map[string]any{
		"pattern":  "TestA",
		"coverage": true,
		"args":     `-count=1 -tags "integration slow"`,
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "go", spy.last().Name)
	assert.Equal(t,
		[]string{"test", "-json", "-run", "TestA", "-cover", "./...", "-count=1", "-tags", "integration slow"},
		spy.last().Args)
	assert.Equal(t, 1, dataMap(t, res)["passed"])
}

func TestRunTestsReportsFailures(t *testing.T) {
	env, spy := newTestEnv(t)
	spy.reply = func(tool.Command) (*tool.Output, error) {
		return &tool.Output{Stdout: "FAILED t.py::a - boom\nFAILED t.py::b - boom\n2 failed in 0.1s", ExitCode: 1}, nil
	}

	res := run(t, NewTestRunnerTool(env), map[string]any{"framework": "pytest"})
	assert.Equal(t, "2 test(s) failed", res.Error)
	assert.Len(t, dataMap(t, res)["failures"], 2)
}

func TestRunTestsCapsFailures(t *testing.T) {
	env, spy := newTestEnv(t)
	out := ""
	for i := 0; i < 15; i++ {
		out += "FAILED t.py::case - boom\n"
	}
	spy.reply = func(tool.Command) (*tool.Output, error) {
		return &tool.Output{Stdout: out + "15 failed in 1s", ExitCode: 1}, nil
	}

	res := run(t, NewTestRunnerTool(env), map[string]any{"framework": "pytest"})
	assert.Len(t, dataMap(t, res)["failures"], maxFailures)
	assert.Equal(t, 15, dataMap(t, res)["failed"])
}

func TestRunTestsBadArgs(t *testing.T) {
	env, spy := newTestEnv(t)

	res := run(t, NewTestRunnerTool(env), map[string]any{"args": `"unterminated`})
	assert.Contains(t, res.Error, "invalid args")
	assert.Zero(t, spy.count())

	res = run(t, NewTestRunnerTool(env), map[string]any{"framework": "rspec"})
	assert.Contains(t, res.Error, "Unknown framework")
}

func TestRunTestsDashPathIsNotAFlag(t *testing.T) {
	env, spy := newTestEnv(t)
	writeTestFile(t, env, "pytest.ini", "[pytest]\n")

	run(t, NewTestRunnerTool(env), map[string]any{"path": "--collect-only", "verbose": false})
	assert.Equal(t, "pytest", spy.last().Name)
	assert.Equal(t, []string{"--tb=short", "-q", "./--collect-only"}, spy.last().Args)
}
