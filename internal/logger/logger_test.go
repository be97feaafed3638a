package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plain(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(&buf, level)
	l.SetColorMode(false)
	l.SetShowTime(false)
	return l, &buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := plain(LevelInfo)

	l.Debug("hidden %d", 1)
	l.Info("shown %d", 2)
	l.Error("always")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] shown 2")
	assert.Contains(t, out, "[ERROR] always")
}

func TestStepBanner(t *testing.T) {
	l, buf := plain(LevelDebug)

	l.Step(3, "look around", "file_list", map[string]any{"path": "."}, strings.Repeat("x", 600), "")

	out := buf.String()
	assert.Contains(t, out, "STEP 3")
	assert.Contains(t, out, "THOUGHT: look around")
	assert.Contains(t, out, `ACTION: file_list({"path":"."})`)
	assert.Contains(t, out, "OBSERVATION: "+strings.Repeat("x", PreviewChars)+"...")
	assert.NotContains(t, out, strings.Repeat("x", PreviewChars+1))
	assert.NotContains(t, out, "ERROR:")
}

func TestStepBannerSuppressedAboveToolLevel(t *testing.T) {
	l, buf := plain(LevelAgent)
	l.Step(1, "t", "a", nil, "o", "e")
	assert.Empty(t, buf.String())
}

func TestToolResultLabelsRejection(t *testing.T) {
	l, buf := plain(LevelTool)

	l.ToolResult("shell_execute", false, "dangerous_command", "Command blocked", time.Millisecond)
	l.ToolResult("file_read", false, "", "missing", time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "Blocked: dangerous_command")
	assert.Contains(t, out, "Failed")
}

func TestSessionEnd(t *testing.T) {
	l, buf := plain(LevelInfo)
	l.SessionEnd("budget_exceeded", 4, 0.0123, 1500*time.Millisecond)
	assert.Contains(t, buf.String(), "State: budget_exceeded | Iterations: 4 | Cost: $0.0123 | Duration: 1.5s")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("chatty"))
}

func TestNewZapWritesDebugFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.jsonl")

	zl, closeFn, err := NewZap("error", path)
	require.NoError(t, err)
	zl.Debug("dispatch")
	closeFn()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	var entry map[string]any
	require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
	assert.Equal(t, "dispatch", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewZapRejectsBadLevel(t *testing.T) {
	_, _, err := NewZap("loud", "")
	assert.Error(t, err)
}
