package agent

import (
	"context"
	"fmt"
	"time"

	"lmagent/internal/hook"
	"lmagent/internal/llm"
	"lmagent/internal/tool"
	"lmagent/internal/trajectory"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// finalPreviewChars bounds the answer stored in the terminal step.
const finalPreviewChars = 200

// Run drives the loop for task until the collaborator answers, a budget is
// exhausted or the collaborator fails. Only a collaborator failure returns a
// non-nil error, and that error wraps ErrNoResponse. The trajectory is
// persisted on every terminal state.
func (r *Runtime) Run(ctx context.Context, task string) (*Outcome, error) {
	if !r.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	if r.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	ctx, span := r.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.name", r.cfg.Name),
		attribute.String("agent.trajectory_id", r.trajectory.ID()),
		attribute.String("gen_ai.system", r.client.Provider()),
		attribute.String("gen_ai.request.model", r.model()),
		attribute.Int("agent.max_iterations", r.cfg.MaxIterations),
		attribute.Float64("agent.max_cost", r.tracker.Ceiling()),
	))
	defer span.End()

	exec := newExecution(r.console, r.cfg.MaxIterations)
	r.console.SessionStart(task)
	r.log.Info("agent run started",
		zap.String("trajectory_id", r.trajectory.ID()),
		zap.Int("task_length", len(task)),
		zap.Int("tools", r.registry.Len()))
	r.trigger(ctx, hook.NewHookData(hook.OnRunStart, "").Set("task", task))

	req := &llm.CompletionRequest{
		SystemPrompt: r.systemPrompt(),
		Messages:     []llm.Message{llm.UserMessage(task)},
		Tools:        r.registry.Definitions(),
		Sampling: llm.Sampling{
			Model:       r.cfg.Model,
			Temperature: r.cfg.Temperature,
			MaxTokens:   r.cfg.MaxTokens,
		},
	}

	outcome := &Outcome{State: StateIterating}
	var runErr error
	for i := 1; i <= r.cfg.MaxIterations; i++ {
		exec.iteration = i

		if r.tracker.OverLimit() {
			outcome.State = StateBudgetExceeded
			outcome.Message = budgetMessage(r.tracker.Total(), r.tracker.Ceiling())
			break
		}

		outcome.Iterations = i
		answer, done, err := r.iterate(ctx, exec, req)
		if err != nil {
			outcome.State = StateFailed
			outcome.Message = fmt.Sprintf("Failed to get LLM response: %v", err)
			runErr = fmt.Errorf("%w: %w", ErrNoResponse, err)
			break
		}
		if done {
			outcome.State = StateDone
			outcome.Answer = answer
			break
		}
	}
	if outcome.State == StateIterating {
		outcome.State = StateIterationExceeded
		outcome.Message = iterationMessage(r.cfg.MaxIterations)
	}

	r.finish(ctx, span, exec, outcome)
	return outcome, runErr
}

// iterate performs one collaborator call and dispatches any tool calls it
// requests. done is true when the reply carried no tool calls.
func (r *Runtime) iterate(ctx context.Context, exec *execution, req *llm.CompletionRequest) (answer string, done bool, err error) {
	ctx, span := r.tracer.Start(ctx, "agent.iteration", trace.WithAttributes(
		attribute.Int("agent.iteration", exec.iteration),
	))
	defer span.End()

	exec.logIteration()
	completion, err := r.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collaborator unavailable")
		r.trajectory.RecordStep(trajectory.Step{Index: exec.iteration, Error: err.Error()})
		return "", false, err
	}
	req.Messages = append(req.Messages, llm.AssistantMessage(completion))

	if len(completion.ToolCalls) == 0 {
		r.trajectory.RecordStep(trajectory.Step{
			Index:       exec.iteration,
			Thought:     "Final response",
			Observation: preview(completion.Content, finalPreviewChars),
		})
		return completion.Content, true, nil
	}

	span.SetAttributes(attribute.Int("agent.tool_calls", len(completion.ToolCalls)))
	for _, tc := range completion.ToolCalls {
		r.trajectory.RecordStep(trajectory.Step{
			Index:      exec.iteration,
			Thought:    completion.Content,
			Action:     tc.Name,
			ActionArgs: tool.ArgsMap(tc.Arguments),
		})
		exec.logToolCall(tc.Name, tc.Arguments)

		cr := r.executor.Execute(ctx, tool.Call{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		exec.logToolResult(cr)

		step := trajectory.Step{Index: exec.iteration, Observation: cr.Result.Observation()}
		if !cr.Result.Success {
			step.Error = cr.Result.Error
		}
		r.trajectory.RecordStep(step)

		req.Messages = append(req.Messages, llm.ToolMessage(tc.ID, tc.Name, cr.Result.Content()))
	}
	return "", false, nil
}

// complete calls the collaborator and books the cost of the reply.
func (r *Runtime) complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
	ctx, span := r.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("gen_ai.system", r.client.Provider()),
		attribute.String("gen_ai.request.model", r.model()),
		attribute.Int("gen_ai.request.max_tokens", r.cfg.MaxTokens),
		attribute.Float64("gen_ai.request.temperature", float64(r.cfg.Temperature)),
	))
	defer span.End()

	completion, err := r.client.Complete(ctx, req)
	if err == nil && completion == nil {
		err = fmt.Errorf("%s returned an empty completion", r.client.Provider())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Error("llm call failed", zap.String("provider", r.client.Provider()), zap.Error(err))
		return nil, err
	}

	model := completion.Model
	if model == "" {
		model = r.model()
	}
	spent := r.tracker.Track(model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	span.SetAttributes(
		attribute.String("gen_ai.response.model", model),
		attribute.Int("gen_ai.usage.input_tokens", completion.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", completion.Usage.CompletionTokens),
		attribute.String("gen_ai.response.finish_reason", string(completion.StopReason)),
		attribute.Float64("agent.cost", spent),
	)
	return completion, nil
}

func (r *Runtime) finish(ctx context.Context, span trace.Span, exec *execution, o *Outcome) {
	o.Cost = r.tracker.Total()
	o.TrajectoryID = r.trajectory.ID()

	path := r.trajectory.Path(r.projectRoot)
	if err := r.trajectory.Persist(path); err != nil {
		r.log.Warn("trajectory not saved", zap.String("path", path), zap.Error(err))
		r.console.Warn("Could not save trajectory: %v", err)
	} else {
		o.TrajectoryPath = path
	}

	span.SetAttributes(
		attribute.String("agent.state", string(o.State)),
		attribute.Int("agent.iterations", o.Iterations),
		attribute.Float64("agent.cost", o.Cost),
	)
	if o.State == StateFailed {
		span.SetStatus(codes.Error, o.Message)
	}

	exec.logEnd(o)
	r.log.Info("agent run finished",
		zap.String("state", string(o.State)),
		zap.Int("iterations", o.Iterations),
		zap.Int("tool_calls", exec.toolCallCount),
		zap.Float64("cost", o.Cost),
		zap.String("trajectory_id", o.TrajectoryID))

	// The run context may already be past its deadline.
	r.trigger(context.WithoutCancel(ctx), hook.NewHookData(hook.OnRunEnd, "").
		Set("state", string(o.State)).
		Set("iterations", o.Iterations).
		Set("cost", o.Cost))
}

// trigger fires an observe-only hook point.
func (r *Runtime) trigger(ctx context.Context, data *hook.Data) {
	if r.hooks == nil {
		return
	}
	if _, err := r.hooks.Trigger(ctx, data); err != nil {
		r.log.Warn("hook failed", zap.String("point", string(data.Point)), zap.Error(err))
	}
}

func (r *Runtime) model() string {
	if r.cfg.Model != "" {
		return r.cfg.Model
	}
	return r.client.Model()
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
