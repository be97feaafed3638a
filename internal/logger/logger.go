package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the log level
type Level int

const (
	LevelDebug Level = iota // Debug information (only shown with --verbose)
	LevelInfo               // Important steps
	LevelTool               // Tool call related
	LevelAgent              // Agent response
	LevelError              // Error messages
)

// ANSI color codes for terminal output
const (
	ColorReset   = "\033[0m"
	ColorRed     = "\033[31m"
	ColorGreen   = "\033[32m"
	ColorYellow  = "\033[33m"
	ColorBlue    = "\033[34m"
	ColorMagenta = "\033[35m"
	ColorCyan    = "\033[36m"
	ColorGray    = "\033[90m"
	ColorBold    = "\033[1m"
)

// PreviewChars bounds the observation text echoed in a step banner.
const PreviewChars = 500

// Logger writes the human-readable transcript of an agent run.
type Logger struct {
	mu        sync.Mutex
	writer    io.Writer
	level     Level
	showTime  bool
	colorMode bool
}

// NewLogger creates a new Logger instance
func NewLogger(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{
		writer:    w,
		level:     level,
		showTime:  true,
		colorMode: true,
	}
}

// ParseLevel maps a config level name onto a Level. Unknown names give LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "tool":
		return LevelTool
	case "agent":
		return LevelAgent
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetColorMode enables or disables colored output
func (l *Logger) SetColorMode(enabled bool) {
	l.mu.Lock()
	l.colorMode = enabled
	l.mu.Unlock()
}

// SetShowTime enables or disables timestamp display
func (l *Logger) SetShowTime(enabled bool) {
	l.mu.Lock()
	l.showTime = enabled
	l.mu.Unlock()
}

// Debug logs debug information (only shown in verbose mode)
func (l *Logger) Debug(format string, args ...any) {
	if l.level <= LevelDebug {
		l.log(ColorGray, "DEBUG", format, args...)
	}
}

// Info logs general information
func (l *Logger) Info(format string, args ...any) {
	if l.level <= LevelInfo {
		l.log(ColorBlue, "INFO", format, args...)
	}
}

// Warn logs conditions the run survives, such as a failed trajectory write.
func (l *Logger) Warn(format string, args ...any) {
	if l.level <= LevelError {
		l.log(ColorYellow, "WARN", format, args...)
	}
}

// Error logs error messages
func (l *Logger) Error(format string, args ...any) {
	l.log(ColorRed, "ERROR", format, args...)
}

// AgentResponse logs the agent's final answer.
func (l *Logger) AgentResponse(content string) {
	if l.level <= LevelAgent {
		l.printSection(ColorGreen, "💬 Agent Response", content)
	}
}

// ToolCall logs a tool call with its parameters
func (l *Logger) ToolCall(toolName string, params string) {
	if l.level <= LevelTool {
		l.printSection(ColorCyan, fmt.Sprintf("🔧 Tool Call: %s", toolName), formatJSON(params))
	}
}

// ToolResult logs a tool execution result. Rejections are labelled apart
// from ordinary failures.
func (l *Logger) ToolResult(toolName string, success bool, rejection string, output string, duration time.Duration) {
	if l.level > LevelTool {
		return
	}
	status, color := "✅ Success", ColorGreen
	switch {
	case rejection != "":
		status, color = "⛔ Blocked: "+rejection, ColorYellow
	case !success:
		status, color = "❌ Failed", ColorRed
	}

	// At most 2 lines and 500 characters.
	const maxLines = 2
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	display := output
	cutLines := false
	if len(lines) > maxLines {
		display = strings.Join(lines[:maxLines], "\n")
		cutLines = true
	}
	if len(display) > PreviewChars {
		display = display[:PreviewChars] + "..."
	} else if cutLines {
		display += "\n..."
	}

	header := fmt.Sprintf("📊 Tool Result: %s [%s] (%s)", toolName, status, duration.Round(time.Millisecond))
	l.printSection(color, header, display)
}

// Step echoes one trajectory step.
func (l *Logger) Step(index int, thought, action string, args map[string]any, observation, errMsg string) {
	if l.level > LevelTool {
		return
	}
	var b strings.Builder
	if thought != "" {
		fmt.Fprintf(&b, "THOUGHT: %s\n", thought)
	}
	if action != "" {
		raw, _ := json.Marshal(args)
		fmt.Fprintf(&b, "ACTION: %s(%s)\n", action, raw)
	}
	if observation != "" {
		preview := observation
		if len(preview) > PreviewChars {
			preview = preview[:PreviewChars] + "..."
		}
		fmt.Fprintf(&b, "OBSERVATION: %s\n", preview)
	}
	if errMsg != "" {
		fmt.Fprintf(&b, "ERROR: %s\n", errMsg)
	}
	l.printSection(ColorMagenta, fmt.Sprintf("STEP %d", index), strings.TrimRight(b.String(), "\n"))
}

// SessionStart logs the beginning of an agent session
func (l *Logger) SessionStart(task string) {
	l.printBanner(ColorCyan, "🚀 Session Started", task)
}

// SessionEnd logs how a run finished.
func (l *Logger) SessionEnd(state string, iterations int, cost float64, duration time.Duration) {
	color := ColorGreen
	if state != "done" {
		color = ColorYellow
	}
	summary := fmt.Sprintf("State: %s | Iterations: %d | Cost: $%.4f | Duration: %s",
		state, iterations, cost, duration.Round(time.Millisecond))
	l.printBanner(color, "✨ Session Completed", summary)
}

func (l *Logger) log(color, level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := ""
	if l.showTime {
		timestamp = time.Now().Format("15:04:05") + " "
	}
	msg := fmt.Sprintf(format, args...)

	if l.colorMode {
		fmt.Fprintf(l.writer, "%s%s[%s]%s %s\n", color, timestamp, level, ColorReset, msg)
	} else {
		fmt.Fprintf(l.writer, "%s[%s] %s\n", timestamp, level, msg)
	}
}

func (l *Logger) printSection(color, header, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	separator := strings.Repeat("─", 60)
	if l.colorMode {
		fmt.Fprintf(l.writer, "\n%s%s%s%s\n", ColorBold, color, header, ColorReset)
		fmt.Fprintf(l.writer, "%s%s%s\n", color, separator, ColorReset)
		fmt.Fprintf(l.writer, "%s\n", content)
		fmt.Fprintf(l.writer, "%s%s%s\n\n", color, separator, ColorReset)
	} else {
		fmt.Fprintf(l.writer, "\n%s\n%s\n%s\n%s\n\n", header, separator, content, separator)
	}
}

func (l *Logger) printBanner(color, title, subtitle string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	separator := strings.Repeat("═", 70)
	if l.colorMode {
		fmt.Fprintf(l.writer, "\n%s%s%s%s\n", ColorBold, color, separator, ColorReset)
		fmt.Fprintf(l.writer, "%s%s  %s%s\n", ColorBold, color, title, ColorReset)
		if subtitle != "" {
			fmt.Fprintf(l.writer, "%s  %s%s\n", color, subtitle, ColorReset)
		}
		fmt.Fprintf(l.writer, "%s%s%s%s\n\n", ColorBold, color, separator, ColorReset)
	} else {
		fmt.Fprintf(l.writer, "\n%s\n  %s\n", separator, title)
		if subtitle != "" {
			fmt.Fprintf(l.writer, "  %s\n", subtitle)
		}
		fmt.Fprintf(l.writer, "%s\n\n", separator)
	}
}

// formatJSON keeps short JSON compact and pretty-prints the rest.
func formatJSON(s string) string {
	compact := strings.TrimSpace(s)
	if len(compact) < 80 {
		return compact
	}
	var obj any
	if err := json.Unmarshal([]byte(compact), &obj); err != nil {
		return compact
	}
	pretty, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return compact
	}
	return string(pretty)
}
