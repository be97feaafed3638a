// Package mcp exposes the tools of configured MCP servers as tool.Tool values.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"lmagent/internal/config"
	"lmagent/internal/tool"

	"go.uber.org/zap"
)

// Manager owns the running MCP servers.
type Manager struct {
	mu      sync.Mutex
	servers map[string]*Client
	log     *zap.Logger

	// dial is replaced in tests. Env values arrive already expanded by config.Parse.
	dial func(ctx context.Context, cfg config.MCPServerConfig) (*Client, error)
}

func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		servers: make(map[string]*Client),
		log:     log,
		dial: func(ctx context.Context, cfg config.MCPServerConfig) (*Client, error) {
			return NewClient(ctx, cfg.Name, cfg.Command, cfg.Args, cfg.Env)
		},
	}
}

// Load starts every enabled server concurrently and returns adapters for
// their tools, sorted by name. Servers that fail are reported in the error;
// the tools of the others are still returned.
func (m *Manager) Load(ctx context.Context, cfg config.MCPConfig) ([]tool.Tool, error) {
	var enabled []config.MCPServerConfig
	names := make(map[string]bool)
	for _, s := range cfg.Servers {
		if s.Disabled {
			continue
		}
		if names[s.Name] {
			return nil, fmt.Errorf("duplicate server name: %s", s.Name)
		}
		names[s.Name] = true
		enabled = append(enabled, s)
	}
	if len(enabled) == 0 {
		return nil, nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range enabled {
		wg.Add(1)
		go func(s config.MCPServerConfig) {
			defer wg.Done()
			client, err := m.dial(ctx, s)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("server %s: %w", s.Name, err))
				return
			}
			m.mu.Lock()
			m.servers[s.Name] = client
			m.mu.Unlock()
		}(s)
	}
	wg.Wait()

	tools := m.Tools()
	m.log.Info("mcp servers loaded",
		zap.Int("servers", m.ServerCount()),
		zap.Int("failed", len(errs)),
		zap.Int("tools", len(tools)))

	if len(errs) > 0 {
		return tools, fmt.Errorf("some MCP servers failed (loaded %d/%d): %w",
			len(enabled)-len(errs), len(enabled), errors.Join(errs...))
	}
	return tools, nil
}

// Tools returns adapters for every tool of every running server.
func (m *Manager) Tools() []tool.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []tool.Tool
	for _, c := range m.servers {
		for _, t := range c.Tools() {
			out = append(out, NewToolAdapter(c, t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ServerCount returns the number of running servers.
func (m *Manager) ServerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.servers)
}

// Close shuts down all MCP servers
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for name, c := range m.servers {
		wg.Add(1)
		go func(name string, c *Client) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				emu.Lock()
				errs = append(errs, fmt.Errorf("server %s: %w", name, err))
				emu.Unlock()
			}
		}(name, c)
	}
	wg.Wait()
	m.servers = make(map[string]*Client)

	if len(errs) > 0 {
		return fmt.Errorf("errors closing servers: %w", errors.Join(errs...))
	}
	return nil
}
