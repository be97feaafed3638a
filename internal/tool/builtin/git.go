package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"lmagent/internal/tool"

	"go.uber.org/zap"
)

var (
	aheadRe        = regexp.MustCompile(`ahead (\d+)`)
	behindRe       = regexp.MustCompile(`behind (\d+)`)
	filesChangedRe = regexp.MustCompile(`(\d+) files? changed`)
	insertionsRe   = regexp.MustCompile(`(\d+) insertions?`)
	deletionsRe    = regexp.MustCompile(`(\d+) deletions?`)
	conventionalRe = regexp.MustCompile(`^(feat|fix|docs|style|refactor|test|chore|perf|ci|build|revert)(\(.+\))?: .+`)
)

// git runs a git subcommand in the project root. A non-zero exit becomes a
// failed Result carrying stderr.
func (e *Env) git(ctx context.Context, args ...string) (string, *tool.Result) {
	out, err := e.exec(ctx, "git", args...)
	if err != nil {
		return "", tool.RunFailure(err, e.Limits.CommandTimeout)
	}
	if out.ExitCode != 0 {
		msg := strings.TrimSpace(out.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("git %s exited with status %d", args[0], out.ExitCode)
		}
		return "", tool.Fail("%s", msg)
	}
	return strings.TrimRight(out.Stdout, "\n"), nil
}

func (e *Env) currentBranch(ctx context.Context) (string, *tool.Result) {
	out, res := e.git(ctx, "branch", "--show-current")
	return strings.TrimSpace(out), res
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func firstInt(re *regexp.Regexp, s string) int {
	if m := re.FindStringSubmatch(s); m != nil {
		return atoi(m[1])
	}
	return 0
}

// GitStatusTool reports the working tree state.
type GitStatusTool struct{ env *Env }

func NewGitStatusTool(env *Env) *GitStatusTool { return &GitStatusTool{env: env} }

func (t *GitStatusTool) Name() string { return "git_status" }

func (t *GitStatusTool) Description() string {
	return "Get current git status (modified, staged, untracked files)"
}

func (t *GitStatusTool) Parameters() map[string]any { return tool.SchemaFor(struct{}{}) }

func (t *GitStatusTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	branch, res := t.env.currentBranch(ctx)
	if res != nil {
		return res
	}
	out, res := t.env.git(ctx, "status", "--porcelain", "-b")
	if res != nil {
		return res
	}

	status := parseStatus(out)
	status["branch"] = branch
	return tool.OK(status)
}

func parseStatus(out string) map[string]any {
	modified, staged, untracked := []string{}, []string{}, []string{}
	ahead, behind := 0, 0

	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "##") {
			ahead = firstInt(aheadRe, line)
			behind = firstInt(behindRe, line)
			continue
		}
		if len(line) < 4 {
			continue
		}
		code, name := line[:2], line[3:]
		if code == "??" {
			untracked = append(untracked, name)
			continue
		}
		if strings.ContainsRune("MADRC", rune(code[0])) {
			staged = append(staged, name)
		}
		if strings.ContainsRune("MD", rune(code[1])) {
			modified = append(modified, name)
		}
	}

	return map[string]any{
		"modified":  modified,
		"staged":    staged,
		"untracked": untracked,
		"ahead":     ahead,
		"behind":    behind,
	}
}

type gitDiffParams struct {
	File   string `json:"file,omitempty" desc:"Limit the diff to one file"`
	Staged bool   `json:"staged,omitempty" desc:"Diff staged changes instead of the working tree"`
}

// GitDiffTool shows pending changes.
type GitDiffTool struct{ env *Env }

func NewGitDiffTool(env *Env) *GitDiffTool { return &GitDiffTool{env: env} }

func (t *GitDiffTool) Name() string               { return "git_diff" }
func (t *GitDiffTool) Description() string        { return "Get diff of changes" }
func (t *GitDiffTool) Parameters() map[string]any { return tool.SchemaFor(gitDiffParams{}) }

func (t *GitDiffTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[gitDiffParams](params)
	if bad != nil {
		return bad
	}

	args := []string{"diff"}
	if p.Staged {
		args = append(args, "--staged")
	}
	if p.File != "" {
		if _, rejected := t.env.resolve(p.File); rejected != nil {
			return rejected
		}
		args = append(args, "--", p.File)
	}

	stat, res := t.env.git(ctx, append([]string{"diff", "--stat"}, args[1:]...)...)
	if res != nil {
		return res
	}
	lines := strings.Split(strings.TrimSpace(stat), "\n")
	summary := lines[len(lines)-1]

	diff, res := t.env.git(ctx, args...)
	if res != nil {
		return res
	}

	return tool.OK(map[string]any{
		"diff":          tool.TruncateString(diff, t.env.Limits.MaxOutputChars),
		"files_changed": firstInt(filesChangedRe, summary),
		"insertions":    firstInt(insertionsRe, summary),
		"deletions":     firstInt(deletionsRe, summary),
	})
}

type gitAddParams struct {
	Files []string `json:"files" desc:"Files to stage"`
}

// GitAddTool stages files.
type GitAddTool struct{ env *Env }

func NewGitAddTool(env *Env) *GitAddTool { return &GitAddTool{env: env} }

func (t *GitAddTool) Name() string               { return "git_add" }
func (t *GitAddTool) Description() string        { return "Stage files for commit" }
func (t *GitAddTool) Parameters() map[string]any { return tool.SchemaFor(gitAddParams{}) }

func (t *GitAddTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[gitAddParams](params)
	if bad != nil {
		return bad
	}
	if len(p.Files) == 0 {
		return tool.Fail("files is required")
	}
	for _, f := range p.Files {
		if _, rejected := t.env.resolve(f); rejected != nil {
			return rejected
		}
	}

	if _, res := t.env.git(ctx, append([]string{"add", "--"}, p.Files...)...); res != nil {
		return res
	}
	return tool.OK(map[string]any{"staged": p.Files})
}

type gitCommitParams struct {
	Message string `json:"message" desc:"Commit message (conventional commits preferred)"`
	Amend   bool   `json:"amend,omitempty" desc:"Amend the previous commit"`
}

// GitCommitTool commits staged changes.
type GitCommitTool struct{ env *Env }

func NewGitCommitTool(env *Env) *GitCommitTool { return &GitCommitTool{env: env} }

func (t *GitCommitTool) Name() string               { return "git_commit" }
func (t *GitCommitTool) Description() string        { return "Commit staged changes" }
func (t *GitCommitTool) Parameters() map[string]any { return tool.SchemaFor(gitCommitParams{}) }

func (t *GitCommitTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[gitCommitParams](params)
	if bad != nil {
		return bad
	}
	if strings.TrimSpace(p.Message) == "" {
		return tool.Fail("message is required")
	}

	conventional := conventionalRe.MatchString(p.Message)
	if !conventional {
		t.env.Log.Warn("commit message not conventional", zap.String("message", p.Message))
	}

	args := []string{"commit", "-m", p.Message}
	if p.Amend {
		args = append(args, "--amend")
	}
	if _, res := t.env.git(ctx, args...); res != nil {
		return res
	}

	hash, res := t.env.git(ctx, "rev-parse", "HEAD")
	if res != nil {
		return res
	}
	files, res := t.env.git(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", "HEAD")
	if res != nil {
		return res
	}
	count := 0
	for _, f := range strings.Split(files, "\n") {
		if f != "" {
			count++
		}
	}

	return tool.OK(map[string]any{
		"commit_hash":     shortHash(hash),
		"message":         p.Message,
		"files_committed": count,
		"conventional":    conventional,
	})
}

func shortHash(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// validRefName accepts plain branch and remote names. Anything git could
// read as an option or a refspec (leading - or +, a colon) is refused.
func validRefName(name string) bool {
	if name == "" || strings.HasPrefix(name, "-") || strings.HasPrefix(name, "+") {
		return false
	}
	if strings.Contains(name, "..") || strings.Contains(name, "@{") {
		return false
	}
	return !strings.ContainsFunc(name, func(r rune) bool {
		return r <= ' ' || r == 0x7f || strings.ContainsRune(":~^?*[\\", r)
	})
}

type gitPushParams struct {
	Remote string `json:"remote,omitempty" desc:"Remote name (default origin)"`
	Branch string `json:"branch,omitempty" desc:"Branch to push (default current)"`
	Force  bool   `json:"force,omitempty" desc:"Force push with lease"`
}

// GitPushTool pushes to a remote. Force pushes to protected branches are
// refused.
type GitPushTool struct{ env *Env }

func NewGitPushTool(env *Env) *GitPushTool { return &GitPushTool{env: env} }

func (t *GitPushTool) Name() string               { return "git_push" }
func (t *GitPushTool) Description() string        { return "Push commits to remote" }
func (t *GitPushTool) Parameters() map[string]any { return tool.SchemaFor(gitPushParams{}) }

func (t *GitPushTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[gitPushParams](params)
	if bad != nil {
		return bad
	}
	if p.Remote == "" {
		p.Remote = "origin"
	}
	if p.Branch == "" {
		branch, res := t.env.currentBranch(ctx)
		if res != nil {
			return res
		}
		p.Branch = branch
	}

	// A leading + is a force refspec.
	target := strings.TrimPrefix(p.Branch, "+")
	forced := p.Force || target != p.Branch
	if forced && slices.Contains(t.env.ProtectedBranches, target) {
		return tool.Rejected(tool.RejectProtectedBranch, "Force push blocked: %s is protected", target)
	}
	if !validRefName(p.Branch) {
		return tool.Fail("invalid branch name: %q", p.Branch)
	}
	if !validRefName(p.Remote) {
		return tool.Fail("invalid remote name: %q", p.Remote)
	}

	args := []string{"push", p.Remote, p.Branch}
	if p.Force {
		args = append(args, "--force-with-lease")
	}
	if _, res := t.env.git(ctx, args...); res != nil {
		return res
	}
	return tool.OK(map[string]any{
		"remote": p.Remote,
		"branch": p.Branch,
		"forced": p.Force,
	})
}

type gitBranchParams struct {
	Action string `json:"action,omitempty" desc:"list (default), create, switch or delete" enum:"list,create,switch,delete"`
	Name   string `json:"name,omitempty" desc:"Branch name"`
	Base   string `json:"base,omitempty" desc:"Start point for create"`
}

// GitBranchTool lists and manages branches.
type GitBranchTool struct{ env *Env }

func NewGitBranchTool(env *Env) *GitBranchTool { return &GitBranchTool{env: env} }

func (t *GitBranchTool) Name() string               { return "git_branch" }
func (t *GitBranchTool) Description() string        { return "Create, switch, or list branches" }
func (t *GitBranchTool) Parameters() map[string]any { return tool.SchemaFor(gitBranchParams{}) }

func (t *GitBranchTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[gitBranchParams](params)
	if bad != nil {
		return bad
	}
	if p.Action == "" {
		p.Action = "list"
	}
	if p.Action != "list" && p.Name == "" {
		return tool.Fail("Branch name required")
	}
	if p.Name != "" && !validRefName(p.Name) {
		return tool.Fail("invalid branch name: %q", p.Name)
	}
	if p.Base != "" && !validRefName(p.Base) {
		return tool.Fail("invalid base: %q", p.Base)
	}

	switch p.Action {
	case "list":
		out, res := t.env.git(ctx, "branch", "-a")
		if res != nil {
			return res
		}
		branches := []string{}
		current := ""
		for _, line := range strings.Split(out, "\n") {
			name := strings.TrimSpace(line)
			if name == "" {
				continue
			}
			if strings.HasPrefix(name, "* ") {
				name = strings.TrimPrefix(name, "* ")
				current = name
			}
			branches = append(branches, name)
		}
		return tool.OK(map[string]any{"branches": branches, "current": current})

	case "create":
		args := []string{"checkout", "-b", p.Name}
		if p.Base != "" {
			args = append(args, p.Base)
		}
		if _, res := t.env.git(ctx, args...); res != nil {
			return res
		}
		return tool.OK(map[string]any{"created": p.Name, "current": p.Name})

	case "switch":
		if _, res := t.env.git(ctx, "checkout", p.Name); res != nil {
			return res
		}
		return tool.OK(map[string]any{"current": p.Name})

	case "delete":
		if _, res := t.env.git(ctx, "branch", "-d", p.Name); res != nil {
			return res
		}
		return tool.OK(map[string]any{"deleted": p.Name})
	}
	return tool.Fail("Unknown action: %s", p.Action)
}

type gitLogParams struct {
	Count int    `json:"count,omitempty" desc:"Number of commits (default 10)"`
	File  string `json:"file,omitempty" desc:"Only commits touching this file"`
}

// GitLogTool lists recent commits.
type GitLogTool struct{ env *Env }

func NewGitLogTool(env *Env) *GitLogTool { return &GitLogTool{env: env} }

func (t *GitLogTool) Name() string               { return "git_log" }
func (t *GitLogTool) Description() string        { return "Get commit history" }
func (t *GitLogTool) Parameters() map[string]any { return tool.SchemaFor(gitLogParams{}) }

func (t *GitLogTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[gitLogParams](params)
	if bad != nil {
		return bad
	}
	if p.Count <= 0 {
		p.Count = 10
	}

	args := []string{"log", fmt.Sprintf("-%d", p.Count), "--pretty=format:%H|%s|%an|%ai"}
	if p.File != "" {
		if _, rejected := t.env.resolve(p.File); rejected != nil {
			return rejected
		}
		args = append(args, "--", p.File)
	}
	out, res := t.env.git(ctx, args...)
	if res != nil {
		return res
	}

	commits := []map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "|", 4)
		if len(parts) < 4 {
			continue
		}
		commits = append(commits, map[string]string{
			"hash":    shortHash(parts[0]),
			"message": parts[1],
			"author":  parts[2],
			"date":    parts[3],
		})
	}
	return tool.OK(commits)
}
