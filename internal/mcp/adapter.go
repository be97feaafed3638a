package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lmagent/internal/tool"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// caller is the slice of a server session the adapter needs.
type caller interface {
	Name() string
	CallTool(ctx context.Context, toolName string, arguments map[string]any) (*mcp.CallToolResult, error)
}

// ToolAdapter exposes one MCP server tool as a tool.Tool named
// <server>_<tool>.
type ToolAdapter struct {
	client  caller
	mcpTool *mcp.Tool
	name    string
}

func NewToolAdapter(client caller, mcpTool *mcp.Tool) *ToolAdapter {
	return &ToolAdapter{
		client:  client,
		mcpTool: mcpTool,
		name:    fmt.Sprintf("%s_%s", client.Name(), mcpTool.Name),
	}
}

func (a *ToolAdapter) Name() string {
	return a.name
}

func (a *ToolAdapter) Description() string {
	desc := a.mcpTool.Description
	if desc == "" {
		desc = fmt.Sprintf("MCP tool from %s server", a.client.Name())
	}
	return fmt.Sprintf("%s [MCP server: %s]", desc, a.client.Name())
}

// Parameters returns the server's input schema as a plain map.
func (a *ToolAdapter) Parameters() map[string]any {
	empty := map[string]any{"type": "object", "properties": map[string]any{}}
	if a.mcpTool.InputSchema == nil {
		return empty
	}
	if schema, ok := a.mcpTool.InputSchema.(map[string]any); ok {
		return schema
	}

	// The SDK types the schema as any; round-trip anything else.
	raw, err := json.Marshal(a.mcpTool.InputSchema)
	if err != nil {
		return empty
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil || schema == nil {
		return empty
	}
	return schema
}

func (a *ToolAdapter) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	args := map[string]any{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return tool.Fail("invalid parameters: %v", err)
		}
	}

	result, err := a.client.CallTool(ctx, a.mcpTool.Name, args)
	if err != nil {
		return tool.Fail("MCP tool execution failed: %v", err)
	}

	var res *tool.Result
	if result.IsError {
		res = tool.Fail("%s", formatError(result))
	} else {
		res = tool.OK(formatContent(result.Content))
	}
	return res.WithMeta("mcp_server", a.client.Name()).WithMeta("mcp_tool", a.mcpTool.Name)
}

// formatContent flattens MCP content blocks into text.
func formatContent(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch c := item.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s]", c.MIMEType))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[Audio: %s]", c.MIMEType))
		default:
			data, err := json.Marshal(item)
			if err != nil {
				parts = append(parts, fmt.Sprintf("[Unknown content type: %T]", item))
			} else {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func formatError(result *mcp.CallToolResult) string {
	if msg := formatContent(result.Content); msg != "" {
		return msg
	}
	return "MCP tool returned an error"
}
