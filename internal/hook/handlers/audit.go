package handlers

import (
	"context"
	"sync"

	"lmagent/internal/hook"
	"lmagent/internal/tool"

	"go.uber.org/zap"
)

// AuditHandler keeps security rejections apart from ordinary tool failures.
type AuditHandler struct {
	log *zap.Logger

	mu         sync.Mutex
	calls      int
	failures   int
	rejections map[tool.RejectionKind]int
}

func NewAuditHandler(log *zap.Logger) *AuditHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditHandler{
		log:        log,
		rejections: make(map[tool.RejectionKind]int),
	}
}

func (h *AuditHandler) Name() string {
	return "audit"
}

func (h *AuditHandler) Points() []hook.Point {
	return []hook.Point{hook.AfterToolExecution}
}

// Priority is low so the audit sees calls after every gating handler.
func (h *AuditHandler) Priority() int {
	return 0
}

func (h *AuditHandler) Handle(ctx context.Context, data *hook.Data) (*hook.Feedback, error) {
	result, ok := data.Get("result").(*tool.Result)
	if !ok || result == nil {
		return hook.AllowFeedback(), nil
	}

	h.mu.Lock()
	h.calls++
	switch {
	case result.IsRejection():
		h.rejections[result.Rejection()]++
	case !result.Success:
		h.failures++
	}
	h.mu.Unlock()

	if result.IsRejection() {
		h.log.Warn("security rejection",
			zap.String("tool", data.ToolName),
			zap.String("call_id", data.GetString("call_id")),
			zap.String("kind", string(result.Rejection())),
			zap.String("reason", result.Error))
	}
	return hook.AllowFeedback(), nil
}

// Rejections returns the per-kind rejection counts.
func (h *AuditHandler) Rejections() map[tool.RejectionKind]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[tool.RejectionKind]int, len(h.rejections))
	for k, v := range h.rejections {
		out[k] = v
	}
	return out
}

// Failures counts failed calls that were not security rejections.
func (h *AuditHandler) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

func (h *AuditHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}
