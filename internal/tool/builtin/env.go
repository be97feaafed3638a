package builtin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lmagent/internal/tool"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBlockedHosts are never reachable through http_request.
var DefaultBlockedHosts = []string{
	"169.254.169.254",
	"metadata.google.internal",
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
}

// DefaultProtectedBranches refuse force pushes.
var DefaultProtectedBranches = []string{"main", "master", "production"}

// Env is everything the builtin tools share: the sandboxed project root and
// the seams to the outside world.
type Env struct {
	Sandbox *tool.Sandbox
	Runner  tool.Runner
	Limits  tool.Limits

	ShellDeny *tool.DenyList
	SQLDeny   *tool.DenyList

	BlockedHosts      []string
	ProtectedBranches []string

	// DB is nil when no database is configured.
	DB Querier

	HTTP    *http.Client
	Limiter *rate.Limiter

	Todos *TodoStore

	Log *zap.Logger
}

// NewEnv creates an environment rooted at projectRoot with the default
// security policy.
func NewEnv(projectRoot string, limits tool.Limits, log *zap.Logger) (*Env, error) {
	sb, err := tool.NewSandbox(projectRoot)
	if err != nil {
		return nil, err
	}
	shellDeny, err := tool.NewDenyList(tool.DefaultShellDenyPatterns...)
	if err != nil {
		return nil, fmt.Errorf("shell deny list: %w", err)
	}
	sqlDeny, err := tool.NewDenyList(tool.DefaultSQLDenyPatterns...)
	if err != nil {
		return nil, fmt.Errorf("sql deny list: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	env := &Env{
		Sandbox:           sb,
		Runner:            tool.NewExecRunner(),
		Limits:            limits,
		ShellDeny:         shellDeny,
		SQLDeny:           sqlDeny,
		BlockedHosts:      append([]string(nil), DefaultBlockedHosts...),
		ProtectedBranches: append([]string(nil), DefaultProtectedBranches...),
		HTTP:              &http.Client{Timeout: limits.HTTPTimeout},
		Todos:             &TodoStore{},
		Log:               log,
	}
	env.HTTP.CheckRedirect = env.checkRedirect
	env.Limiter = newLimiter(limits.HTTPRequestsPerMinute)
	return env, nil
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Close releases the database handle, if any.
func (e *Env) Close() error {
	if c, ok := e.DB.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// exec runs name with args in the project root, bounded by the command
// timeout limit.
func (e *Env) exec(ctx context.Context, name string, args ...string) (*tool.Output, error) {
	return e.Runner.Run(ctx, tool.Command{
		Name:    name,
		Args:    args,
		Dir:     e.Sandbox.Root(),
		Timeout: e.Limits.CommandTimeout,
	})
}

// resolve sandboxes p and converts a violation into a rejection.
func (e *Env) resolve(p string) (string, *tool.Result) {
	abs, err := e.Sandbox.Resolve(p)
	if err != nil {
		if errors.Is(err, tool.ErrOutsideRoot) {
			return "", tool.Rejected(tool.RejectPathEscape, "Path is outside the project directory: %s", p)
		}
		return "", tool.Fail("%v", err)
	}
	return abs, nil
}

// operand keeps a relative path from being read as a flag by external tools.
func operand(p string) string {
	if strings.HasPrefix(p, "-") {
		return "./" + p
	}
	return p
}
