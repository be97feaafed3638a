package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"lmagent/internal/mcp"
	"lmagent/internal/tool"
	"lmagent/internal/tool/builtin"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newToolsCmd() *cobra.Command {
	var (
		format  string
		withMCP bool
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool schemas as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			root, err := filepath.Abs(projectRoot)
			if err != nil {
				return err
			}
			env, err := newEnv(root, cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer env.Close()

			var extra []tool.Tool
			if withMCP {
				m := mcp.NewManager(nil)
				defer m.Close()
				extra, err = m.Load(cmd.Context(), cfg.MCP)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "MCP: %v\n", err)
				}
			}

			registry, err := builtin.NewRegistry(env, extra...)
			if err != nil {
				return err
			}
			registry, err = registry.Restrict(cfg.Tools.FromRegistry)
			if err != nil {
				return err
			}

			var schemas any
			switch format {
			case "openai":
				schemas = registry.OpenAIFunctions()
			case "anthropic":
				schemas = registry.AnthropicTools()
			default:
				return fmt.Errorf("unknown format %q (want openai or anthropic)", format)
			}
			out, err := json.MarshalIndent(schemas, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "openai", "Schema format: openai or anthropic")
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "Start configured MCP servers and include their tools")
	return cmd
}
