// Package anthropic adapts the Anthropic Messages API to llm.Client.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"lmagent/internal/llm"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 4096

type Client struct {
	client sdk.Client
	model  string
}

// NewClient creates a client for model. A non-empty baseURL overrides the
// API endpoint.
func NewClient(apiKey, model string, baseURL ...string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if len(baseURL) > 0 && baseURL[0] != "" {
		opts = append(opts, option.WithBaseURL(baseURL[0]))
	}
	return &Client{
		client: sdk.NewClient(opts...),
		model:  model,
	}
}

func (c *Client) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
	model := c.model
	if req.Sampling.Model != "" {
		model = req.Sampling.Model
	}
	maxTokens := int64(req.Sampling.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		Messages:  convertMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Sampling.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Sampling.Temperature))
	}
	if tools := convertTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	return convertResponse(resp), nil
}

func (c *Client) Provider() string {
	return "anthropic"
}

func (c *Client) Model() string {
	return c.model
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return llm.Classify("anthropic", apiErr.StatusCode, err)
	}
	return llm.Classify("anthropic", 0, err)
}

// convertMessages maps the conversation onto Anthropic turns. Consecutive
// tool results are merged into one user turn, as the API requires.
func convertMessages(msgs []llm.Message) []sdk.MessageParam {
	var out []sdk.MessageParam
	var pendingResults []sdk.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			out = append(out, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case llm.RoleUser:
			flush()
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleAssistant:
			flush()
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				if len(tc.Arguments) > 0 {
					_ = json.Unmarshal(tc.Arguments, &input)
				}
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, sdk.NewTextBlock(""))
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		case llm.RoleTool:
			pendingResults = append(pendingResults, sdk.NewToolResultBlock(m.ToolCallID, m.Content, false))
		}
	}
	flush()
	return out
}

func convertTools(tools []*llm.ToolDefinition) []sdk.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	result := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := sdk.ToolInputSchemaParam{}
		if props, ok := t.Function.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if req, ok := t.Function.Parameters["required"].([]string); ok {
			schema.Required = req
		}
		u := sdk.ToolUnionParamOfTool(schema, t.Function.Name)
		if t.Function.Description != "" {
			u.OfTool.Description = sdk.String(t.Function.Description)
		}
		result = append(result, u)
	}
	return result
}

func convertResponse(resp *sdk.Message) *llm.Completion {
	result := &llm.Completion{
		Model: string(resp.Model),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			args := json.RawMessage(block.Input)
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			result.ToolCalls = append(result.ToolCalls, &llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	switch resp.StopReason {
	case sdk.StopReasonToolUse:
		result.StopReason = llm.StopReasonToolCalls
	case sdk.StopReasonMaxTokens:
		result.StopReason = llm.StopReasonLength
	default:
		result.StopReason = llm.StopReasonStop
	}
	return result
}
