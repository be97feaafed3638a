package anthropic

import (
	"encoding/json"
	"testing"

	"lmagent/internal/llm"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertMessagesMergesToolResults(t *testing.T) {
	msgs := []llm.Message{
		llm.UserMessage("status and diff"),
		{
			Role:    llm.RoleAssistant,
			Content: "checking",
			ToolCalls: []*llm.ToolCall{
				{ID: "t1", Name: "git_status", Arguments: json.RawMessage(`{}`)},
				{ID: "t2", Name: "git_diff"},
			},
		},
		llm.ToolMessage("t1", "git_status", "clean"),
		llm.ToolMessage("t2", "git_diff", "none"),
		llm.UserMessage("thanks"),
	}

	out := convertMessages(msgs)
	require.Len(t, out, 4)
	assert.Equal(t, sdk.MessageParamRoleUser, out[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, out[1].Role)
	require.Len(t, out[1].Content, 3)
	require.NotNil(t, out[1].Content[2].OfToolUse)
	assert.Equal(t, "git_diff", out[1].Content[2].OfToolUse.Name)

	assert.Equal(t, sdk.MessageParamRoleUser, out[2].Role)
	require.Len(t, out[2].Content, 2)
	require.NotNil(t, out[2].Content[0].OfToolResult)
	assert.Equal(t, "t1", out[2].Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "t2", out[2].Content[1].OfToolResult.ToolUseID)
}

func TestConvertTools(t *testing.T) {
	out := convertTools([]*llm.ToolDefinition{{
		Function: &llm.FunctionDef{
			Name:        "file_read",
			Description: "Read a file",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []string{"path"},
			},
		},
	}})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	assert.Equal(t, "file_read", out[0].OfTool.Name)
	assert.Equal(t, []string{"path"}, out[0].OfTool.InputSchema.Required)
}

func TestConvertResponse(t *testing.T) {
	resp := &sdk.Message{
		Model: "claude-sonnet-4-20250514",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Let me look."},
			{Type: "tool_use", ID: "tu_1", Name: "file_list", Input: json.RawMessage(`{"path":"src"}`)},
		},
		StopReason: sdk.StopReasonToolUse,
		Usage:      sdk.Usage{InputTokens: 100, OutputTokens: 20},
	}

	c := convertResponse(resp)
	assert.Equal(t, "Let me look.", c.Content)
	assert.Equal(t, llm.StopReasonToolCalls, c.StopReason)
	assert.Equal(t, 120, c.Usage.TotalTokens)
	require.Len(t, c.ToolCalls, 1)
	assert.JSONEq(t, `{"path":"src"}`, string(c.ToolCalls[0].Arguments))

	resp.StopReason = sdk.StopReasonMaxTokens
	assert.Equal(t, llm.StopReasonLength, convertResponse(resp).StopReason)
}
