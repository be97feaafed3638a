package hook

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Manager dispatches hook points to registered handlers.
type Manager struct {
	mu       sync.RWMutex
	handlers map[Point][]Handler
	log      *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		handlers: make(map[Point][]Handler),
		log:      log,
	}
}

// Register adds a handler for each of its points, keeping every point's
// handlers ordered by descending priority.
func (m *Manager) Register(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, point := range handler.Points() {
		list := append(m.handlers[point], handler)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		m.handlers[point] = list
	}
	m.log.Debug("hook handler registered", zap.String("handler", handler.Name()))
}

// Trigger runs the handlers for data.Point in order. The first deny wins.
func (m *Manager) Trigger(ctx context.Context, data *Data) (*Feedback, error) {
	m.mu.RLock()
	handlers := m.handlers[data.Point]
	m.mu.RUnlock()

	for _, h := range handlers {
		feedback, err := h.Handle(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("hook %s: %w", h.Name(), err)
		}
		if feedback != nil && !feedback.Allow {
			m.log.Info("hook denied",
				zap.String("handler", h.Name()),
				zap.String("point", string(data.Point)),
				zap.String("tool", data.ToolName),
				zap.String("reason", feedback.Message))
			return feedback, nil
		}
	}
	return AllowFeedback(), nil
}

func (m *Manager) HasHandlers(point Point) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[point]) > 0
}

// ListHandlers returns handler names for a point in execution order.
func (m *Manager) ListHandlers(point Point) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	handlers := m.handlers[point]
	names := make([]string, len(handlers))
	for i, h := range handlers {
		names[i] = h.Name()
	}
	return names
}
