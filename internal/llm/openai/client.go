package openai

import (
	"context"
	"errors"
	"fmt"

	"lmagent/internal/llm"

	openai "github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new OpenAI client with the given API key and model.
// A non-empty baseURL points the client at an OpenAI-compatible endpoint.
func NewClient(apiKey, model string, baseURL ...string) *Client {
	config := openai.DefaultConfig(apiKey)
	if len(baseURL) > 0 && baseURL[0] != "" {
		config.BaseURL = baseURL[0]
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *Client) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
	model := c.model
	if req.Sampling.Model != "" {
		model = req.Sampling.Model
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(req.SystemPrompt, req.Messages),
		Tools:       convertTools(req.Tools),
		Temperature: req.Sampling.Temperature,
		MaxTokens:   req.Sampling.MaxTokens,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.Error{Type: llm.ErrorTypeServer, Provider: "openai", Message: "response contained no choices"}
	}

	return convertResponse(resp), nil
}

func (c *Client) Provider() string {
	return "openai"
}

func (c *Client) Model() string {
	return c.model
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llm.Classify("openai", apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.Classify("openai", reqErr.HTTPStatusCode, err)
	}
	return llm.Classify("openai", 0, err)
}

func convertMessages(system string, msgs []llm.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range msgs {
		ocMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}

		if len(msg.ToolCalls) > 0 {
			ocMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for j, tc := range msg.ToolCalls {
				ocMsg.ToolCalls[j] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
		}

		if msg.Role == llm.RoleTool {
			ocMsg.ToolCallID = msg.ToolCallID
			ocMsg.Name = msg.Name
		}

		result = append(result, ocMsg)
	}
	return result
}

func convertTools(tools []*llm.ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		}
	}
	return result
}

func convertResponse(resp openai.ChatCompletionResponse) *llm.Completion {
	choice := resp.Choices[0]
	msg := choice.Message

	result := &llm.Completion{
		Content: msg.Content,
		Model:   resp.Model,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	if len(msg.ToolCalls) > 0 {
		result.ToolCalls = make([]*llm.ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			result.ToolCalls[i] = &llm.ToolCall{
				ID:        id,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			}
		}
		result.StopReason = llm.StopReasonToolCalls
	} else {
		result.StopReason = llm.StopReason(choice.FinishReason)
	}

	return result
}
