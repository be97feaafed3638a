package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"lmagent/internal/config"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCaller struct {
	name   string
	result *mcp.CallToolResult
	err    error

	gotTool string
	gotArgs map[string]any
}

func (f *fakeCaller) Name() string { return f.name }

func (f *fakeCaller) CallTool(_ context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	f.gotTool = toolName
	f.gotArgs = args
	return f.result, f.err
}

func TestAdapterNamingAndSchema(t *testing.T) {
	c := &fakeCaller{name: "github"}
	a := NewToolAdapter(c, &mcp.Tool{
		Name: "list_issues",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"repo": map[string]any{"type": "string"}},
		},
	})

	assert.Equal(t, "github_list_issues", a.Name())
	assert.Equal(t, "MCP tool from github server [MCP server: github]", a.Description())
	assert.Contains(t, a.Parameters()["properties"], "repo")

	bare := NewToolAdapter(c, &mcp.Tool{Name: "ping", Description: "Ping"})
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, bare.Parameters())
}

func TestAdapterExecute(t *testing.T) {
	c := &fakeCaller{
		name: "github",
		result: &mcp.CallToolResult{Content: []mcp.Content{
			&mcp.TextContent{Text: "#1 crash on start"},
			&mcp.ImageContent{MIMEType: "image/png"},
		}},
	}
	a := NewToolAdapter(c, &mcp.Tool{Name: "list_issues"})

	res := a.Execute(context.Background(), json.RawMessage(`{"repo":"lmagent"}`))
	require.True(t, res.Success)
	assert.Equal(t, "#1 crash on start\n[Image: image/png]", res.Data)
	assert.Equal(t, "github", res.Metadata["mcp_server"])
	assert.Equal(t, "list_issues", res.Metadata["mcp_tool"])
	assert.Equal(t, "list_issues", c.gotTool)
	assert.Equal(t, map[string]any{"repo": "lmagent"}, c.gotArgs)
}

func TestAdapterFailures(t *testing.T) {
	c := &fakeCaller{name: "fs", result: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "no such file"}},
	}}
	a := NewToolAdapter(c, &mcp.Tool{Name: "read"})

	res := a.Execute(context.Background(), nil)
	assert.False(t, res.Success)
	assert.Equal(t, "no such file", res.Error)
	assert.Empty(t, c.gotArgs)

	c.result = &mcp.CallToolResult{IsError: true}
	assert.Equal(t, "MCP tool returned an error", a.Execute(context.Background(), nil).Error)

	c.err = errors.New("session closed")
	res = a.Execute(context.Background(), nil)
	assert.Contains(t, res.Error, "session closed")
	assert.False(t, res.IsRejection())

	res = a.Execute(context.Background(), json.RawMessage(`[1,2]`))
	assert.Contains(t, res.Error, "invalid parameters")
}

func TestManagerLoadPartialFailure(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.dial = func(_ context.Context, cfg config.MCPServerConfig) (*Client, error) {
		if cfg.Name == "broken" {
			return nil, errors.New("exec: not found")
		}
		return &Client{name: cfg.Name, tools: []*mcp.Tool{{Name: "b"}, {Name: "a"}}}, nil
	}

	tools, err := m.Load(context.Background(), config.MCPConfig{Servers: []config.MCPServerConfig{
		{Name: "docs", Command: "docs-server"},
		{Name: "broken", Command: "missing"},
		{Name: "off", Command: "x", Disabled: true},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loaded 1/2")
	assert.Contains(t, err.Error(), "server broken")

	names := make([]string, len(tools))
	for i, tl := range tools {
		names[i] = tl.Name()
	}
	assert.Equal(t, []string{"docs_a", "docs_b"}, names)
	assert.Equal(t, 1, m.ServerCount())

	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.ServerCount())
}

func TestManagerLoadNothingEnabled(t *testing.T) {
	m := NewManager(nil)
	tools, err := m.Load(context.Background(), config.MCPConfig{})
	assert.NoError(t, err)
	assert.Empty(t, tools)
}
