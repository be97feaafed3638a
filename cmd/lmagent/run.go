package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"lmagent/internal/agent"
	"lmagent/internal/config"
	"lmagent/internal/cost"
	"lmagent/internal/hook"
	"lmagent/internal/hook/handlers"
	"lmagent/internal/llm/provider"
	"lmagent/internal/logger"
	"lmagent/internal/mcp"
	"lmagent/internal/telemetry"
	"lmagent/internal/tool/builtin"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	model         string
	provider      string
	maxIterations int
	maxCost       float64
	verbose       bool
	noColor       bool
	yolo          bool
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run the agent on a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, f, args)
		},
	}
	cmd.Flags().StringVar(&f.model, "model", "", "Model to use (overrides llm.model)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider: openai or anthropic")
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", 0, "Maximum collaborator calls")
	cmd.Flags().Float64Var(&f.maxCost, "max-cost", 0, "Spending ceiling in USD")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "Enable verbose output (debug mode)")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&f.yolo, "yolo", false, "Skip operator confirmation of gated tools")
	return cmd
}

// apply overlays explicitly set flags on cfg and revalidates it.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.LLM.Model = f.model
	}
	if flags.Changed("provider") {
		cfg.LLM.Provider = f.provider
	}
	if flags.Changed("max-iterations") {
		cfg.Limits.MaxIterations = f.maxIterations
	}
	if flags.Changed("max-cost") {
		cfg.Limits.MaxCost = f.maxCost
	}
	if f.verbose {
		cfg.Logging.Level = "debug"
	}
	if f.yolo {
		cfg.Hooks.Confirm = false
	}
	return cfg.Validate()
}

func runTask(cmd *cobra.Command, f *runFlags, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := f.apply(cmd, cfg); err != nil {
		return err
	}
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return fmt.Errorf("project root: %w", err)
	}

	zl, closeLog, err := logger.NewZap(cfg.Logging.Level, cfg.Logging.DebugFile)
	if err != nil {
		return err
	}
	defer closeLog()

	console := logger.NewLogger(os.Stdout, logger.ParseLevel(cfg.Logging.Level))
	if f.noColor {
		console.SetColorMode(false)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			zl.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	client, err := provider.New(cfg.LLM, zl)
	if err != nil {
		return err
	}

	env, err := newEnv(root, cfg, zl)
	if err != nil {
		return err
	}
	defer env.Close()

	mcpManager := mcp.NewManager(zl)
	defer mcpManager.Close()
	extra, err := mcpManager.Load(ctx, cfg.MCP)
	if err != nil {
		console.Warn("MCP: %v", err)
	}

	registry, err := builtin.NewRegistry(env, extra...)
	if err != nil {
		return err
	}

	rt, err := agent.New(cfg.Agent(), client, registry,
		agent.WithLogger(console),
		agent.WithZap(zl),
		agent.WithTracer(telemetry.Tracer()),
		agent.WithTracker(cost.NewTracker(cfg.Limits.MaxCost, cost.WithPrices(cfg.Prices()), cost.WithLogger(zl))),
		agent.WithHooks(newHooks(cfg.Hooks, zl)),
		agent.WithProjectRoot(root),
	)
	if err != nil {
		return err
	}

	outcome, runErr := rt.Run(ctx, args[0])
	if outcome != nil {
		fmt.Fprintln(cmd.OutOrStdout(), outcome.Text())
	}
	return exitFor(outcome, runErr)
}

// exitFor maps a run's result onto the process exit code.
func exitFor(o *agent.Outcome, err error) error {
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	switch o.State {
	case agent.StateDone:
		return nil
	case agent.StateBudgetExceeded, agent.StateIterationExceeded:
		return &exitError{code: 2}
	default:
		return &exitError{code: 1, err: fmt.Errorf("run ended in state %s: %s", o.State, o.Message)}
	}
}

// newEnv builds the tool environment with the configured policy layered on
// the defaults.
func newEnv(root string, cfg *config.Config, zl *zap.Logger) (*builtin.Env, error) {
	env, err := builtin.NewEnv(root, cfg.ToolLimits(), zl)
	if err != nil {
		return nil, err
	}
	if err := env.ShellDeny.ExtendPatterns(cfg.Tools.ShellDenyPatterns...); err != nil {
		return nil, fmt.Errorf("tools.shell_deny_patterns: %w", err)
	}
	if err := env.SQLDeny.ExtendPatterns(cfg.Tools.SQLDenyPatterns...); err != nil {
		return nil, fmt.Errorf("tools.sql_deny_patterns: %w", err)
	}
	env.BlockedHosts = append(env.BlockedHosts, cfg.Tools.BlockedHosts...)
	if len(cfg.Tools.ProtectedBranches) > 0 {
		env.ProtectedBranches = append([]string(nil), cfg.Tools.ProtectedBranches...)
	}
	if cfg.Database.DSN != "" {
		db, err := builtin.NewDB(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		env.DB = db
	}
	return env, nil
}

func newHooks(cfg config.HooksConfig, zl *zap.Logger) *hook.Manager {
	m := hook.NewManager(zl)
	if cfg.Audit {
		m.Register(handlers.NewAuditHandler(zl))
	}
	if cfg.Confirm {
		gated := cfg.ConfirmTools
		if len(gated) == 0 {
			gated = handlers.DefaultConfirmTools
		}
		m.Register(handlers.NewToolConfirmHandler(gated...))
	}
	return m
}
