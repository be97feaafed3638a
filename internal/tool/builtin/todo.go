package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"lmagent/internal/tool"
)

// TodoStatus represents the state of a todo item
type TodoStatus string

const (
	StatusPending    TodoStatus = "pending"
	StatusInProgress TodoStatus = "in_progress"
	StatusCompleted  TodoStatus = "completed"
)

// TodoItem is one entry of the run's plan.
type TodoItem struct {
	Content    string     `json:"content" desc:"Task in imperative form, e.g. Run tests"`
	Status     TodoStatus `json:"status" desc:"pending, in_progress or completed"`
	ActiveForm string     `json:"activeForm" desc:"Present continuous form, e.g. Running tests"`
}

// TodoStore holds the plan for a single run. Each Env owns one.
type TodoStore struct {
	mu    sync.RWMutex
	todos []TodoItem
}

// Todos returns a copy of the current list.
func (s *TodoStore) Todos() []TodoItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TodoItem, len(s.todos))
	copy(out, s.todos)
	return out
}

func (s *TodoStore) set(todos []TodoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = append([]TodoItem(nil), todos...)
}

type todoParams struct {
	Todos []TodoItem `json:"todos" desc:"The full todo list. Pass [] to clear it."`
}

// TodoWriteTool replaces the run's todo list.
type TodoWriteTool struct{ env *Env }

func NewTodoWriteTool(env *Env) *TodoWriteTool { return &TodoWriteTool{env: env} }

func (t *TodoWriteTool) Name() string { return "todo_write" }

func (t *TodoWriteTool) Description() string {
	return `Track progress on multi-step tasks. Send the whole list on every call.
Keep at most one item in_progress and mark items completed as soon as they are done.`
}

func (t *TodoWriteTool) Parameters() map[string]any { return tool.SchemaFor(todoParams{}) }

func (t *TodoWriteTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[todoParams](params)
	if bad != nil {
		return bad
	}

	inProgress := 0
	for i, todo := range p.Todos {
		if strings.TrimSpace(todo.Content) == "" {
			return tool.Fail("todo #%d: content cannot be empty", i+1)
		}
		if strings.TrimSpace(todo.ActiveForm) == "" {
			return tool.Fail("todo #%d: activeForm cannot be empty", i+1)
		}
		switch todo.Status {
		case StatusPending, StatusCompleted:
		case StatusInProgress:
			inProgress++
		default:
			return tool.Fail("todo #%d: invalid status %q", i+1, todo.Status)
		}
	}
	if inProgress > 1 {
		return tool.Fail("only one task can be in_progress at a time, found %d", inProgress)
	}

	t.env.Todos.set(p.Todos)

	return tool.OK(map[string]any{
		"summary":     formatTodos(p.Todos),
		"total":       len(p.Todos),
		"pending":     countStatus(p.Todos, StatusPending),
		"in_progress": inProgress,
		"completed":   countStatus(p.Todos, StatusCompleted),
	})
}

func formatTodos(todos []TodoItem) string {
	if len(todos) == 0 {
		return "Todo list cleared"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Todo list: %d/%d completed\n", countStatus(todos, StatusCompleted), len(todos))
	for i, todo := range todos {
		mark, text := "[ ]", todo.Content
		switch todo.Status {
		case StatusCompleted:
			mark = "[x]"
		case StatusInProgress:
			mark, text = "[>]", todo.ActiveForm
		}
		fmt.Fprintf(&sb, "%d. %s %s\n", i+1, mark, text)
	}
	return sb.String()
}

func countStatus(todos []TodoItem, status TodoStatus) int {
	n := 0
	for _, todo := range todos {
		if todo.Status == status {
			n++
		}
	}
	return n
}
