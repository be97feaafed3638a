package llm

import "context"

// Client is the language-model collaborator. The agent loop only ever sees
// this interface; provider wire formats stay inside the adapters.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
	Provider() string
	Model() string
}

type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []*ToolDefinition
	Sampling     Sampling
}

// Sampling carries per-request generation settings. An empty Model means the
// client's configured model.
type Sampling struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

type Completion struct {
	Content    string
	ToolCalls  []*ToolCall
	Usage      Usage
	StopReason StopReason
	// Model is the model that actually served the request.
	Model string
}

type ToolDefinition struct {
	Type     string
	Function *FunctionDef
}

type FunctionDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}
