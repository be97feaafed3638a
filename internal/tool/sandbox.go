package tool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path resolves outside the project root.
var ErrOutsideRoot = errors.New("path escapes project root")

// Sandbox confines filesystem access to a project root.
type Sandbox struct {
	root string
}

// NewSandbox creates a sandbox rooted at root. The root must exist.
func NewSandbox(root string) (*Sandbox, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", root)
	}
	return &Sandbox{root: real}, nil
}

// Root returns the absolute project root.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve maps p (relative to the root, or absolute) to an absolute path
// inside the root. Symlinks along the existing part of the path are
// followed, so a link pointing outside the root is rejected as well.
func (s *Sandbox) Resolve(p string) (string, error) {
	if p == "" {
		p = "."
	}
	var candidate string
	if filepath.IsAbs(p) {
		candidate = filepath.Clean(p)
	} else {
		candidate = filepath.Join(s.root, p)
	}
	if !s.contains(candidate) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}

	real, err := evalExisting(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	if !s.contains(real) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return candidate, nil
}

// Rel returns abs relative to the root, for display.
func (s *Sandbox) Rel(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func (s *Sandbox) contains(p string) bool {
	if p == s.root {
		return true
	}
	return strings.HasPrefix(p, s.root+string(filepath.Separator))
}

// evalExisting follows symlinks on the longest existing prefix of p and
// re-attaches the part that does not exist yet.
func evalExisting(p string) (string, error) {
	existing := p
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return p, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{real}, rest...)...), nil
}
