package agent

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"lmagent/internal/config"
	"lmagent/internal/cost"
	"lmagent/internal/hook"
	"lmagent/internal/llm"
	"lmagent/internal/logger"
	"lmagent/internal/tool"
	"lmagent/internal/trajectory"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Runtime drives one bounded think, act, observe loop. A Runtime runs once;
// build a new one for every task.
type Runtime struct {
	cfg      config.Agent
	client   llm.Client
	registry *tool.Registry
	executor *tool.Executor

	console *logger.Logger
	log     *zap.Logger
	tracer  trace.Tracer
	hooks   *hook.Manager

	tracker    *cost.Tracker
	trajectory *trajectory.Log

	projectRoot    string
	promptOverride string

	ran atomic.Bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the console transcript logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runtime) { r.console = l }
}

// WithZap sets the diagnostics logger.
func WithZap(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// WithTracker replaces the tracker built from the config ceiling.
func WithTracker(t *cost.Tracker) Option {
	return func(r *Runtime) { r.tracker = t }
}

// WithTrajectory replaces the trajectory log created per runtime.
func WithTrajectory(t *trajectory.Log) Option {
	return func(r *Runtime) { r.trajectory = t }
}

// WithProjectRoot sets where the system prompt is read from and where
// trajectories are written. It defaults to the working directory.
func WithProjectRoot(root string) Option {
	return func(r *Runtime) { r.projectRoot = root }
}

// WithSystemPrompt overrides the prompt file and the default prompt.
func WithSystemPrompt(prompt string) Option {
	return func(r *Runtime) { r.promptOverride = prompt }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runtime) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithHooks routes every tool call through the hook manager.
func WithHooks(m *hook.Manager) Option {
	return func(r *Runtime) { r.hooks = m }
}

// New builds a runtime over registry, narrowed to cfg.Tools when an
// allowlist is configured.
func New(cfg config.Agent, client llm.Client, registry *tool.Registry, opts ...Option) (*Runtime, error) {
	if client == nil {
		return nil, errors.New("agent: nil llm client")
	}
	if registry == nil {
		return nil, errors.New("agent: nil tool registry")
	}
	if cfg.MaxIterations <= 0 {
		return nil, fmt.Errorf("agent: max iterations must be positive, got %d", cfg.MaxIterations)
	}

	allowed, err := registry.Restrict(cfg.Tools)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	r := &Runtime{
		cfg:         cfg,
		client:      client,
		registry:    allowed,
		log:         zap.NewNop(),
		tracer:      otel.Tracer("lmagent"),
		projectRoot: ".",
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.console == nil {
		r.console = logger.NewLogger(io.Discard, logger.LevelError)
	}
	if r.tracker == nil {
		r.tracker = cost.NewTracker(cfg.MaxCost, cost.WithLogger(r.log))
	}
	if r.trajectory == nil {
		r.trajectory = trajectory.New(
			trajectory.WithObservationLimit(cfg.ObservationChars),
			trajectory.WithZap(r.log),
		)
	}

	r.executor = tool.NewExecutor(r.registry)
	r.executor.SetLogger(r.log)
	r.executor.SetTracer(r.tracer)
	if r.hooks != nil {
		r.executor.SetHookManager(r.hooks)
	}
	return r, nil
}

// Registry returns the tools this runtime offers the collaborator.
func (r *Runtime) Registry() *tool.Registry { return r.registry }

// Tracker returns the cost ledger.
func (r *Runtime) Tracker() *cost.Tracker { return r.tracker }

// Trajectory returns the step log.
func (r *Runtime) Trajectory() *trajectory.Log { return r.trajectory }
