package llm

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role       Role
	Content    string
	ToolCalls  []*ToolCall
	ToolCallID string
	Name       string
	Timestamp  time.Time
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantMessage builds the assistant turn that carried a completion.
func AssistantMessage(c *Completion) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   c.Content,
		ToolCalls: c.ToolCalls,
		Timestamp: time.Now(),
	}
}

// ToolMessage builds the tool-role reply to one tool call.
func ToolMessage(callID, name, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		Name:       name,
		Timestamp:  time.Now(),
	}
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type StopReason string

const (
	StopReasonStop      StopReason = "stop"
	StopReasonLength    StopReason = "length"
	StopReasonToolCalls StopReason = "tool_calls"
)

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
