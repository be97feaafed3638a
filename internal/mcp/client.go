package mcp

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client wraps the official MCP SDK client and session
type Client struct {
	name    string
	session *mcp.ClientSession
	tools   []*mcp.Tool
}

// NewClient starts command as a stdio MCP server and lists its tools.
func NewClient(ctx context.Context, name string, command string, args []string, env map[string]string) (*Client, error) {
	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), formatEnvVars(env)...)
	}
	return connect(ctx, name, &mcp.CommandTransport{Command: cmd})
}

func connect(ctx context.Context, name string, transport mcp.Transport) (*Client, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "lmagent", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
	}

	var tools []*mcp.Tool
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		tools = append(tools, t)
	}

	return &Client{name: name, session: session, tools: tools}, nil
}

func formatEnvVars(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for key, value := range env {
		result = append(result, fmt.Sprintf("%s=%s", key, value))
	}
	return result
}

// Name returns the server name
func (c *Client) Name() string {
	return c.name
}

// Tools returns the tools listed at connect time.
func (c *Client) Tools() []*mcp.Tool {
	return c.tools
}

func (c *Client) CallTool(ctx context.Context, toolName string, arguments map[string]any) (*mcp.CallToolResult, error) {
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("call tool request failed: %w", err)
	}
	return result, nil
}

// Close shuts down the session and the server process.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
