package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

var (
	// ErrTimeout is returned by a Runner when a command outlives its deadline.
	ErrTimeout = errors.New("command timed out")

	// ErrCommandNotFound matches a NotFoundError.
	ErrCommandNotFound = errors.New("command not found")
)

// NotFoundError reports an executable missing from PATH.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return e.Name + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrCommandNotFound
}

// Command describes one subprocess invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     map[string]string
	Timeout time.Duration
}

// Output is what a finished subprocess produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner starts subprocesses. Tools never call os/exec directly so that the
// process boundary can be observed in tests.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Output, error)
}

// ExecRunner runs commands with os/exec. The child gets its own process
// group and the whole group is killed when the deadline passes.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after a kill.
	WaitDelay time.Duration
}

// NewExecRunner creates the default runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 2 * time.Second}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (*Output, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	path, err := exec.LookPath(c.Name)
	if err != nil {
		return nil, &NotFoundError{Name: c.Name}
	}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	setProcessGroup(cmd)
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	out := &Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() == context.DeadlineExceeded {
		out.ExitCode = -1
		return out, fmt.Errorf("%w after %s", ErrTimeout, FormatSeconds(c.Timeout))
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("run %s: %w", c.Name, runErr)
	}
	return out, nil
}

// FormatSeconds renders d as whole or fractional seconds, e.g. "60s" or "0.1s".
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}

// TimeoutResult is the failure reported when a subprocess was killed.
func TimeoutResult(timeout time.Duration) *Result {
	return Fail("timed out after %s", FormatSeconds(timeout)).WithMeta(MetaTimeout, true)
}

// RunFailure converts a Runner error into a failed Result.
func RunFailure(err error, timeout time.Duration) *Result {
	switch {
	case errors.Is(err, ErrTimeout):
		return TimeoutResult(timeout)
	case errors.Is(err, ErrCommandNotFound):
		return Fail("%v. Install it first.", err)
	default:
		return Fail("execution error: %v", err)
	}
}
