package hook

import (
	"context"
	"encoding/json"
	"time"
)

// Point names a moment in a run at which handlers are invoked.
type Point string

const (
	// BeforeToolExecution handlers may deny a call before it runs.
	BeforeToolExecution Point = "before_tool_execution"
	// AfterToolExecution handlers observe the normalised result.
	AfterToolExecution Point = "after_tool_execution"

	OnRunStart Point = "on_run_start"
	OnRunEnd   Point = "on_run_end"
)

// Data carries the event payload handed to handlers.
type Data struct {
	Point     Point
	Timestamp time.Time
	ToolName  string
	Values    map[string]any
}

func NewHookData(point Point, toolName string) *Data {
	return &Data{
		Point:     point,
		Timestamp: time.Now(),
		ToolName:  toolName,
		Values:    make(map[string]any),
	}
}

// Set stores a value and returns d for chaining.
func (d *Data) Set(key string, value any) *Data {
	d.Values[key] = value
	return d
}

func (d *Data) Get(key string) any {
	return d.Values[key]
}

// GetString returns a string value. Raw JSON and byte payloads are returned
// as their text.
func (d *Data) GetString(key string) string {
	switch v := d.Values[key].(type) {
	case string:
		return v
	case json.RawMessage:
		return string(v)
	case []byte:
		return string(v)
	}
	return ""
}

// Feedback is a handler's verdict.
type Feedback struct {
	Allow   bool
	Message string
}

func AllowFeedback() *Feedback {
	return &Feedback{Allow: true}
}

func DenyFeedback(message string) *Feedback {
	return &Feedback{Allow: false, Message: message}
}

// Handler reacts to hook points. Handlers with a higher Priority run first.
type Handler interface {
	Name() string
	Points() []Point
	Handle(ctx context.Context, data *Data) (*Feedback, error)
	Priority() int
}
