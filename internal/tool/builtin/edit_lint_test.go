package builtin

import (
	"os"
	"path/filepath"
	"testing"

	"lmagent/internal/tool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditAndLintPlainFile(t *testing.T) {
	env, spy := newTestEnv(t)

	res := run(t, NewEditLintTool(env), map[string]any{"file": "docs/notes.md", "content": "a\nb\nc"})
	require.True(t, res.Success, res.Error)

	got, err := os.ReadFile(filepath.Join(env.Sandbox.Root(), "docs/notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc", string(got))
	assert.Equal(t, 3, res.Metadata["content_lines"])
	assert.Equal(t, true, dataMap(t, res)["lint_passed"])
	assert.Zero(t, spy.count())
}

func TestEditAndLintPythonRunsRuff(t *testing.T) {
	env, spy := newTestEnv(t)
	spy.reply = func(cmd tool.Command) (*tool.Output, error) {
		if cmd.Args[0] == "check" {
			return &tool.Output{
				Stdout:   `[{"filename":"app.py","code":"F821","message":"undefined name","location":{"row":1,"column":1}}]`,
				ExitCode: 1,
			}, nil
		}
		return &tool.Output{Stderr: "1 file reformatted"}, nil
	}

	res := run(t, NewEditLintTool(env), map[string]any{"file": "app.py", "content": "print(x)\n"})
	require.True(t, res.Success, res.Error)

	data := dataMap(t, res)
	assert.Equal(t, false, data["lint_passed"])
	assert.Len(t, data["lint_issues"], 1)
	assert.Contains(t, data["auto_fixed"], "Formatted code")
	require.Equal(t, 2, spy.count())
	assert.Equal(t, []string{"check", "app.py", "--output-format=json", "--fix"}, spy.calls[0].Args)
	assert.Equal(t, "format", spy.calls[1].Args[0])
}

func TestEditAndLintRunsRelatedTests(t *testing.T) {
	env, spy := newTestEnv(t)
	writeTestFile(t, env, "tests/test_calc.py", "def test_x(): pass\n")
	spy.reply = func(cmd tool.Command) (*tool.Output, error) {
		if cmd.Name == "pytest" {
			return &tool.Output{Stdout: "1 passed in 0.01s"}, nil
		}
		return &tool.Output{Stdout: "[]"}, nil
	}

	res := run(t, NewEditLintTool(env), map[string]any{
		"file": "calc.py", "content": "def add(a, b):\n    return a + b\n", "run_tests": true,
	})
	require.True(t, res.Success, res.Error)

	data := dataMap(t, res)
	passed := data["tests_passed"].(*bool)
	require.NotNil(t, passed)
	assert.True(t, *passed)
	assert.Contains(t, spy.last().Args, "tests/test_calc.py")
}

func TestRelatedTestsForGo(t *testing.T) {
	env, _ := newTestEnv(t)
	writeTestFile(t, env, "pkg/calc_test.go", "package pkg\n")

	assert.Equal(t, []string{filepath.Join("pkg", "calc_test.go")}, env.relatedTests("pkg/calc.go"))
	assert.Empty(t, env.relatedTests("pkg/other.go"))
}
