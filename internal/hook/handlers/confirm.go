package handlers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"lmagent/internal/hook"
)

// DefaultConfirmTools are the tools gated when confirmation is enabled
// without an explicit list.
var DefaultConfirmTools = []string{"database_write", "git_push"}

// ToolConfirmHandler asks the operator before selected tools run.
type ToolConfirmHandler struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	writer  io.Writer
	tools   map[string]bool
}

// NewToolConfirmHandler gates the named tools. With no names every tool is
// gated.
func NewToolConfirmHandler(tools ...string) *ToolConfirmHandler {
	return NewToolConfirmHandlerWithIO(os.Stdin, os.Stdout, tools...)
}

// NewToolConfirmHandlerWithIO creates a handler with custom IO (for testing)
func NewToolConfirmHandlerWithIO(reader io.Reader, writer io.Writer, tools ...string) *ToolConfirmHandler {
	names := make(map[string]bool, len(tools))
	for _, t := range tools {
		names[t] = true
	}
	return &ToolConfirmHandler{
		scanner: bufio.NewScanner(reader),
		writer:  writer,
		tools:   names,
	}
}

func (h *ToolConfirmHandler) Name() string {
	return "tool_confirm"
}

func (h *ToolConfirmHandler) Points() []hook.Point {
	return []hook.Point{hook.BeforeToolExecution}
}

func (h *ToolConfirmHandler) Priority() int {
	return 100
}

func (h *ToolConfirmHandler) Handle(ctx context.Context, data *hook.Data) (*hook.Feedback, error) {
	if len(h.tools) > 0 && !h.tools[data.ToolName] {
		return hook.AllowFeedback(), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(h.writer, "\n\033[33m⚠️  Tool '%s' requires confirmation:\033[0m\n", data.ToolName)
	if params := data.GetString("params"); params != "" && params != "{}" {
		fmt.Fprintf(h.writer, "    Parameters: %s\n", params)
	}
	fmt.Fprintf(h.writer, "\nAllow? [y/N]: ")

	if !h.scanner.Scan() {
		return hook.DenyFeedback("no confirmation received"), nil
	}

	switch strings.TrimSpace(strings.ToLower(h.scanner.Text())) {
	case "y", "yes":
		fmt.Fprintf(h.writer, "\033[32m✓ Allowed\033[0m\n\n")
		return hook.AllowFeedback(), nil
	default:
		fmt.Fprintf(h.writer, "\033[31m✗ Denied\033[0m\n\n")
		return hook.DenyFeedback("operator declined " + data.ToolName), nil
	}
}
