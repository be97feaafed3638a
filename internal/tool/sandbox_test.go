package tool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSandboxResolve(t *testing.T) {
	root := t.TempDir()
	sb, err := NewSandbox(root)
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}

	got, err := sb.Resolve("sub/file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join(sb.Root(), "sub", "file.txt") {
		t.Errorf("Resolve = %s", got)
	}
	if rel := sb.Rel(got); rel != "sub/file.txt" {
		t.Errorf("Rel = %s", rel)
	}

	for _, p := range []string{"../outside.txt", "sub/../../x", "/etc/passwd"} {
		if _, err := sb.Resolve(p); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Resolve(%q) error = %v, want ErrOutsideRoot", p, err)
		}
	}
}

func TestSandboxRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	sb, err := NewSandbox(root)
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	if _, err := sb.Resolve("link/new.txt"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("expected symlink escape to be rejected, got %v", err)
	}
}

func TestNewSandboxRequiresDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSandbox(file); err == nil {
		t.Error("expected error for file root")
	}
}
