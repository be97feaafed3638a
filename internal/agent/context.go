package agent

import (
	"time"

	"lmagent/internal/logger"
	"lmagent/internal/tool"
)

// execution tracks the progress of one run and feeds the console transcript.
type execution struct {
	console       *logger.Logger
	startTime     time.Time
	iteration     int
	maxIterations int
	toolCallCount int
}

func newExecution(console *logger.Logger, maxIterations int) *execution {
	return &execution{
		console:       console,
		startTime:     time.Now(),
		maxIterations: maxIterations,
	}
}

func (e *execution) logIteration() {
	e.console.Info("Iteration %d/%d: calling LLM...", e.iteration, e.maxIterations)
}

func (e *execution) logToolCall(name string, args []byte) {
	e.toolCallCount++
	e.console.ToolCall(name, string(args))
}

func (e *execution) logToolResult(cr *tool.CallResult) {
	res := cr.Result
	output := res.Observation()
	e.console.ToolResult(cr.ToolName, res.Success, string(res.Rejection()), output, cr.Duration())
}

func (e *execution) logEnd(o *Outcome) {
	switch o.State {
	case StateDone:
		e.console.AgentResponse(o.Answer)
	case StateFailed:
		e.console.Error("%s", o.Message)
	default:
		e.console.Warn("%s", o.Message)
	}
	e.console.SessionEnd(string(o.State), o.Iterations, o.Cost, time.Since(e.startTime))
}
