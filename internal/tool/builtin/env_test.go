package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"lmagent/internal/tool"

	"github.com/stretchr/testify/require"
)

// spyRunner records every command and answers with a scripted reply.
type spyRunner struct {
	mu    sync.Mutex
	calls []tool.Command
	reply func(tool.Command) (*tool.Output, error)
}

func (s *spyRunner) Run(ctx context.Context, cmd tool.Command) (*tool.Output, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	s.mu.Unlock()
	if s.reply == nil {
		return &tool.Output{}, nil
	}
	return s.reply(cmd)
}

func (s *spyRunner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *spyRunner) last() tool.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func newTestEnv(t *testing.T) (*Env, *spyRunner) {
	t.Helper()
	env, err := NewEnv(t.TempDir(), tool.DefaultLimits(), nil)
	require.NoError(t, err)
	spy := &spyRunner{}
	env.Runner = spy
	return env, spy
}

func writeTestFile(t *testing.T, env *Env, rel, content string) string {
	t.Helper()
	path := filepath.Join(env.Sandbox.Root(), rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, tl tool.Tool, params any) *tool.Result {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	res := tl.Execute(context.Background(), raw)
	require.NotNil(t, res)
	if !res.Success {
		require.NotEmpty(t, res.Error, "failed result without error")
	}
	return res
}

func dataMap(t *testing.T, res *tool.Result) map[string]any {
	t.Helper()
	m, ok := res.Data.(map[string]any)
	require.True(t, ok, "data is %T", res.Data)
	return m
}

// outsideName is a path beside the project root that no test creates on
// purpose.
func outsideName(t *testing.T) string {
	return "../" + filepath.Base(t.TempDir()) + "-escape/created.txt"
}

func TestNewRegistryBuildsEveryBuiltin(t *testing.T) {
	env, _ := newTestEnv(t)

	reg, err := NewRegistry(env)
	require.NoError(t, err)
	require.Equal(t, len(Names()), reg.Len())

	for _, name := range Names() {
		_, err := reg.Resolve(name)
		require.NoError(t, err, name)
	}
}

func TestNewRegistryRejectsDuplicateExtra(t *testing.T) {
	env, _ := newTestEnv(t)

	_, err := NewRegistry(env, NewShellTool(env))
	require.Error(t, err)
}

func TestNewRegistryBuildsFreshInstances(t *testing.T) {
	env, _ := newTestEnv(t)

	a, err := NewRegistry(env)
	require.NoError(t, err)
	b, err := NewRegistry(env)
	require.NoError(t, err)

	ta, _ := a.Resolve("file_read")
	tb, _ := b.Resolve("file_read")
	require.NotSame(t, ta, tb)
}

func TestBuiltinSchemasCompile(t *testing.T) {
	env, _ := newTestEnv(t)
	reg, err := NewRegistry(env)
	require.NoError(t, err)

	for _, tl := range reg.List() {
		schema := tl.Parameters()
		require.Equal(t, "object", schema["type"], tl.Name())
		_, err := json.Marshal(schema)
		require.NoError(t, err, tl.Name())
	}
}
