package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Tool defines the interface that all tools must implement
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a brief description of what this tool does
	Description() string

	// Parameters returns the JSON schema for the tool's parameters
	Parameters() map[string]any

	// Execute runs the tool with the given parameters. Failures are reported
	// through the returned Result, never through a panic.
	Execute(ctx context.Context, params json.RawMessage) *Result
}

// RejectionKind classifies why a security check refused to run a call.
type RejectionKind string

const (
	RejectDangerousPattern RejectionKind = "dangerous_pattern"
	RejectPathEscape       RejectionKind = "path_escape"
	RejectUnsafeWrite      RejectionKind = "unsafe_write"
	RejectReadOnly         RejectionKind = "read_only"
	RejectBlockedURL       RejectionKind = "blocked_url"
	RejectProtectedBranch  RejectionKind = "protected_branch"
)

// Metadata keys set on rejected results.
const (
	MetaBlocked   = "blocked"
	MetaRejection = "rejection"
	MetaTimeout   = "timeout"
)

// Result is the uniform outcome of a tool invocation.
type Result struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// OK builds a successful result.
func OK(data any) *Result {
	return &Result{Success: true, Data: data}
}

// Fail builds a failed result. An empty message is replaced so that a
// failure always carries an error string.
func Fail(format string, args ...any) *Result {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if msg == "" {
		msg = "unknown error"
	}
	return &Result{Success: false, Error: msg}
}

// Rejected builds a failed result for a call refused by a security check.
func Rejected(kind RejectionKind, format string, args ...any) *Result {
	return Fail(format, args...).
		WithMeta(MetaBlocked, true).
		WithMeta(MetaRejection, string(kind))
}

// WithMeta sets a metadata key and returns the result for chaining.
func (r *Result) WithMeta(key string, value any) *Result {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
	return r
}

// WithData attaches diagnostic data, typically to a failure.
func (r *Result) WithData(data any) *Result {
	r.Data = data
	return r
}

// IsRejection reports whether the result was produced by a security check.
func (r *Result) IsRejection() bool {
	blocked, _ := r.Metadata[MetaBlocked].(bool)
	return blocked
}

// Rejection returns the rejection kind, or "" for ordinary results.
func (r *Result) Rejection() RejectionKind {
	kind, _ := r.Metadata[MetaRejection].(string)
	return RejectionKind(kind)
}

// Normalize enforces the failure invariant on results built by hand.
func (r *Result) Normalize() *Result {
	if !r.Success && r.Error == "" {
		r.Error = "tool failed without an error message"
	}
	return r
}

// Content serialises the result for the tool-role conversation message.
func (r *Result) Content() string {
	data, err := json.Marshal(r)
	if err != nil {
		fallback, _ := json.Marshal(&Result{Success: false, Error: fmt.Sprintf("unserialisable result: %v", err)})
		return string(fallback)
	}
	return string(data)
}

// Observation is the text recorded in the trajectory for a result.
func (r *Result) Observation() string {
	if !r.Success {
		return r.Error
	}
	switch v := r.Data.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// Call is one requested tool invocation.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type CallResult struct {
	ToolName  string
	CallID    string
	Params    json.RawMessage
	Result    *Result
	StartTime time.Time
	EndTime   time.Time
}

// Duration is how long the call took.
func (c *CallResult) Duration() time.Duration {
	return c.EndTime.Sub(c.StartTime)
}
