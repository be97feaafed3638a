// Package trajectory records the step-by-step history of one agent run and
// persists it as JSON for later inspection.
package trajectory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lmagent/internal/logger"
	"lmagent/internal/tool"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultObservationChars is the stored observation limit per step.
const DefaultObservationChars = 1000

// narrativePreview bounds observations in the markdown rendering.
const narrativePreview = 500

// Step is one recorded thought, action or observation.
type Step struct {
	Index       int            `json:"step"`
	Timestamp   time.Time      `json:"timestamp"`
	Thought     string         `json:"thought,omitempty"`
	Action      string         `json:"action,omitempty"`
	ActionArgs  map[string]any `json:"actionArgs,omitempty"`
	Observation string         `json:"observation,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Document is the persisted form of a Log.
type Document struct {
	ID              string  `json:"trajectoryId"`
	StartTime       float64 `json:"startTime"`
	DurationSeconds float64 `json:"durationSeconds"`
	TotalSteps      int     `json:"totalSteps"`
	Steps           []Step  `json:"steps"`
}

// Log is an append-only step history for a single run.
type Log struct {
	mu      sync.Mutex
	id      string
	start   time.Time
	limit   int
	steps   []Step
	log     *zap.Logger
	nowFunc func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithObservationLimit overrides DefaultObservationChars. Non-positive values are ignored.
func WithObservationLimit(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithZap sets the diagnostics logger.
func WithZap(z *zap.Logger) Option {
	return func(l *Log) {
		if z != nil {
			l.log = z
		}
	}
}

// New starts a trajectory with a fresh 8-character id.
func New(opts ...Option) *Log {
	l := &Log{
		id:      uuid.NewString()[:8],
		limit:   DefaultObservationChars,
		log:     zap.NewNop(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.start = l.nowFunc()
	return l
}

// ID returns the trajectory id.
func (l *Log) ID() string { return l.id }

// RecordStep appends s. The observation is cut to the configured limit and
// a zero timestamp is filled in.
func (l *Log) RecordStep(s Step) {
	if s.Timestamp.IsZero() {
		s.Timestamp = l.nowFunc().UTC()
	}
	s.Observation, _ = tool.Truncate(s.Observation, l.limit)

	l.mu.Lock()
	l.steps = append(l.steps, s)
	l.mu.Unlock()
}

// Steps returns a copy of the recorded steps.
func (l *Log) Steps() []Step {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Step, len(l.steps))
	copy(out, l.steps)
	return out
}

// Path is where the trajectory is stored under a project root.
func (l *Log) Path(root string) string {
	return filepath.Join(root, "trajectories", l.id+".json")
}

// Snapshot returns the persisted form as of now.
func (l *Log) Snapshot() *Document {
	steps := l.Steps()
	return &Document{
		ID:              l.id,
		StartTime:       float64(l.start.UnixNano()) / 1e9,
		DurationSeconds: l.nowFunc().Sub(l.start).Seconds(),
		TotalSteps:      len(steps),
		Steps:           steps,
	}
}

// Persist writes the trajectory as indented JSON, creating parent directories.
func (l *Log) Persist(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create trajectory dir: %w", err)
	}
	doc := l.Snapshot()
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trajectory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("write trajectory: %w", err)
	}
	l.log.Info("trajectory saved", zap.String("path", path), zap.Int("steps", doc.TotalSteps))
	return nil
}

// ToNarrative renders the trajectory as markdown.
func (l *Log) ToNarrative() string {
	return l.Snapshot().Narrative()
}

// Load reads a persisted trajectory.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trajectory: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode trajectory %s: %w", path, err)
	}
	return &doc, nil
}

// Narrative renders the document as markdown.
func (d *Document) Narrative() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Trajectory: %s\n\n", d.ID)
	fmt.Fprintf(&b, "**Duration**: %.1fs\n", d.DurationSeconds)
	fmt.Fprintf(&b, "**Steps**: %d\n\n", len(d.Steps))

	for _, s := range d.Steps {
		fmt.Fprintf(&b, "## Step %d\n", s.Index)
		if s.Thought != "" {
			fmt.Fprintf(&b, "**Thought**: %s\n", s.Thought)
		}
		if s.Action != "" {
			fmt.Fprintf(&b, "**Action**: `%s`\n", s.Action)
			if len(s.ActionArgs) > 0 {
				args, _ := json.MarshalIndent(s.ActionArgs, "", "  ")
				fmt.Fprintf(&b, "```json\n%s\n```\n", args)
			}
		}
		if s.Observation != "" {
			obs := s.Observation
			if r := []rune(obs); len(r) > narrativePreview {
				obs = string(r[:narrativePreview])
			}
			fmt.Fprintf(&b, "**Observation**:\n```\n%s\n```\n", obs)
		}
		if s.Error != "" {
			fmt.Fprintf(&b, "**Error**: %s\n", s.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Replay prints every step of d as a console step banner.
func (d *Document) Replay(console *logger.Logger) {
	for _, s := range d.Steps {
		console.Step(s.Index, s.Thought, s.Action, s.ActionArgs, s.Observation, s.Error)
	}
}
