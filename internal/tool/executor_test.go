package tool

import (
	"context"
	"encoding/json"
	"testing"

	"lmagent/internal/hook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type denyHandler struct{}

func (denyHandler) Name() string         { return "deny" }
func (denyHandler) Points() []hook.Point { return []hook.Point{hook.BeforeToolExecution} }
func (denyHandler) Priority() int        { return 1 }
func (denyHandler) Handle(context.Context, *hook.Data) (*hook.Feedback, error) {
	return hook.DenyFeedback("not today"), nil
}

type pathParams struct {
	Path string `json:"path"`
}

func newExecutor(t *testing.T, tools ...Tool) *Executor {
	t.Helper()
	r, err := NewRegistry(tools...)
	require.NoError(t, err)
	return NewExecutor(r)
}

func TestExecutorUnknownTool(t *testing.T) {
	e := newExecutor(t, newStub("file_read"))
	cr := e.Execute(context.Background(), Call{ID: "1", Name: "nope"})
	assert.False(t, cr.Result.Success)
	assert.Equal(t, "unknown tool: nope", cr.Result.Error)
}

func TestExecutorValidatesArguments(t *testing.T) {
	calls := 0
	stub := &stubTool{
		name:   "file_read",
		params: SchemaFor(pathParams{}),
		exec: func(context.Context, json.RawMessage) *Result {
			calls++
			return OK("read")
		},
	}
	e := newExecutor(t, stub)

	cr := e.Execute(context.Background(), Call{Name: "file_read", Arguments: json.RawMessage(`{}`)})
	assert.False(t, cr.Result.Success)
	assert.Contains(t, cr.Result.Error, "invalid parameters")
	assert.Equal(t, 0, calls)

	cr = e.Execute(context.Background(), Call{Name: "file_read", Arguments: json.RawMessage(`{"path":"a"}`)})
	assert.True(t, cr.Result.Success)
	assert.Equal(t, 1, calls)
}

func TestExecutorRecoversPanics(t *testing.T) {
	e := newExecutor(t, &stubTool{
		name: "boom",
		exec: func(context.Context, json.RawMessage) *Result { panic("kaboom") },
	})
	cr := e.Execute(context.Background(), Call{Name: "boom"})
	assert.False(t, cr.Result.Success)
	assert.Contains(t, cr.Result.Error, "kaboom")
}

func TestExecutorNormalizesResults(t *testing.T) {
	e := newExecutor(t,
		&stubTool{name: "bare", exec: func(context.Context, json.RawMessage) *Result { return &Result{} }},
		&stubTool{name: "nil", exec: func(context.Context, json.RawMessage) *Result { return nil }},
	)
	for _, name := range []string{"bare", "nil"} {
		cr := e.Execute(context.Background(), Call{Name: name})
		assert.False(t, cr.Result.Success, name)
		assert.NotEmpty(t, cr.Result.Error, name)
	}
}

func TestExecutorHookDeny(t *testing.T) {
	calls := 0
	e := newExecutor(t, &stubTool{
		name: "git_push",
		exec: func(context.Context, json.RawMessage) *Result { calls++; return OK(nil) },
	})
	m := hook.NewManager(nil)
	m.Register(denyHandler{})
	e.SetHookManager(m)

	cr := e.Execute(context.Background(), Call{Name: "git_push"})
	assert.False(t, cr.Result.Success)
	assert.Equal(t, true, cr.Result.Metadata[MetaDenied])
	assert.Contains(t, cr.Result.Error, "not today")
	assert.Equal(t, 0, calls)
}

func TestExecuteSequentialKeepsOrder(t *testing.T) {
	var order []string
	mk := func(name string) Tool {
		return &stubTool{name: name, exec: func(context.Context, json.RawMessage) *Result {
			order = append(order, name)
			return OK(name)
		}}
	}
	e := newExecutor(t, mk("a"), mk("b"), mk("c"))

	results := e.ExecuteSequential(context.Background(), []Call{{Name: "c"}, {Name: "a"}, {Name: "b"}})
	require.Len(t, results, 3)
	assert.Equal(t, []string{"c", "a", "b"}, order)
	assert.Equal(t, "c", results[0].Result.Data)
}
