package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lmagent/internal/hook"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MetaDenied marks a call refused by a before-execution hook.
const MetaDenied = "denied"

// Executor dispatches tool calls through the registry. Every call goes
// through argument validation, hooks, tracing and panic recovery, and always
// yields a normalised Result.
type Executor struct {
	registry    *Registry
	hookManager *hook.Manager
	tracer      trace.Tracer
	log         *zap.Logger

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		tracer:   otel.Tracer("lmagent"),
		log:      zap.NewNop(),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// SetHookManager sets the hook manager for tool execution hooks
func (e *Executor) SetHookManager(manager *hook.Manager) {
	e.hookManager = manager
}

func (e *Executor) SetTracer(tracer trace.Tracer) {
	if tracer != nil {
		e.tracer = tracer
	}
}

func (e *Executor) SetLogger(log *zap.Logger) {
	if log != nil {
		e.log = log
	}
}

// ExecuteSequential executes tools one by one in order
func (e *Executor) ExecuteSequential(ctx context.Context, calls []Call) []*CallResult {
	results := make([]*CallResult, len(calls))
	for i, c := range calls {
		results[i] = e.Execute(ctx, c)
	}
	return results
}

// Execute runs a single call.
func (e *Executor) Execute(ctx context.Context, call Call) *CallResult {
	startTime := time.Now()
	if len(call.Arguments) == 0 {
		call.Arguments = json.RawMessage("{}")
	}

	cr := &CallResult{
		ToolName:  call.Name,
		CallID:    call.ID,
		Params:    call.Arguments,
		StartTime: startTime,
	}
	cr.Result = e.run(ctx, call, startTime).Normalize()
	cr.EndTime = time.Now()

	e.logCall(cr)
	return cr
}

func (e *Executor) run(ctx context.Context, call Call, startTime time.Time) *Result {
	t, err := e.registry.Resolve(call.Name)
	if err != nil {
		return Fail("unknown tool: %s", call.Name)
	}

	if err := e.validate(t, call.Arguments); err != nil {
		return Fail("invalid parameters: %v", err)
	}

	if e.hookManager != nil {
		hookData := hook.NewHookData(hook.BeforeToolExecution, call.Name).
			Set("params", call.Arguments).
			Set("call_id", call.ID)

		feedback, err := e.hookManager.Trigger(ctx, hookData)
		if err != nil {
			return Fail("hook error: %v", err)
		}
		if !feedback.Allow {
			return Fail("Tool execution was denied. Reason: %s", feedback.Message).
				WithMeta(MetaDenied, true)
		}
	}

	ctx, span := e.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	result := e.invoke(ctx, t, call.Arguments)
	result.Normalize()
	span.SetAttributes(attribute.Bool("tool.success", result.Success))
	if result.IsRejection() {
		span.SetAttributes(attribute.String("tool.rejection", string(result.Rejection())))
	}
	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
	}
	span.End()

	if e.hookManager != nil {
		hookData := hook.NewHookData(hook.AfterToolExecution, call.Name).
			Set("params", call.Arguments).
			Set("call_id", call.ID).
			Set("result", result).
			Set("duration", time.Since(startTime))

		// After hooks observe only.
		_, _ = e.hookManager.Trigger(ctx, hookData)
	}

	return result
}

func (e *Executor) invoke(ctx context.Context, t Tool, params json.RawMessage) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tool panicked", zap.String("tool", t.Name()), zap.Any("panic", r))
			result = Fail("tool %s panicked: %v", t.Name(), r)
		}
	}()

	result = t.Execute(ctx, params)
	if result == nil {
		result = Fail("tool %s returned no result", t.Name())
	}
	return result
}

func (e *Executor) validate(t Tool, params json.RawMessage) error {
	schema := e.schemaFor(t)
	if schema == nil {
		return nil
	}
	payload, err := jsonschema.UnmarshalJSON(bytes.NewReader(params))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(payload)
}

// schemaFor compiles a tool's parameter schema once. Tools whose schema does
// not compile are dispatched without validation.
func (e *Executor) schemaFor(t Tool) *jsonschema.Schema {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := t.Name()
	if s, ok := e.schemas[name]; ok {
		return s
	}

	s, err := compileSchema(name, t.Parameters())
	if err != nil {
		e.log.Debug("tool schema not compiled", zap.String("tool", name), zap.Error(err))
	}
	e.schemas[name] = s
	return s
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

func (e *Executor) logCall(cr *CallResult) {
	fields := []zap.Field{
		zap.String("tool", cr.ToolName),
		zap.String("call_id", cr.CallID),
		zap.Bool("success", cr.Result.Success),
		zap.Int64("duration_ms", cr.Duration().Milliseconds()),
		zap.Any("params", SanitizeArgs(ArgsMap(cr.Params))),
	}
	switch {
	case cr.Result.IsRejection():
		e.log.Warn("tool call rejected", append(fields,
			zap.String("rejection", string(cr.Result.Rejection())),
			zap.String("error", cr.Result.Error))...)
	case !cr.Result.Success:
		e.log.Info("tool call failed", append(fields, zap.String("error", cr.Result.Error))...)
	default:
		e.log.Info("tool call", fields...)
	}
}
