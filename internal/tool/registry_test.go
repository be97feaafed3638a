package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type stubTool struct {
	name   string
	desc   string
	params map[string]any
	exec   func(ctx context.Context, params json.RawMessage) *Result
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return t.desc }

func (t *stubTool) Parameters() map[string]any {
	if t.params != nil {
		return t.params
	}
	return SchemaFor(struct{}{})
}

func (t *stubTool) Execute(ctx context.Context, params json.RawMessage) *Result {
	if t.exec != nil {
		return t.exec(ctx, params)
	}
	return OK("ok")
}

func newStub(name string) *stubTool {
	return &stubTool{name: name, desc: "Stub tool " + name}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(newStub("a"), newStub("a"))
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolveUnknownIsIdempotent(t *testing.T) {
	r, err := NewRegistry(newStub("file_read"), newStub("shell_execute"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	before := r.Names()

	_, err1 := r.Resolve("unknown_tool")
	_, err2 := r.Resolve("unknown_tool")
	if !errors.Is(err1, ErrNotFound) || !errors.Is(err2, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v / %v", err1, err2)
	}
	if err1.Error() != err2.Error() {
		t.Errorf("errors differ: %q vs %q", err1, err2)
	}

	after := r.Names()
	if strings.Join(before, ",") != strings.Join(after, ",") {
		t.Errorf("registry changed: %v -> %v", before, after)
	}
}

func TestListIsSorted(t *testing.T) {
	r, err := NewRegistry(newStub("zeta"), newStub("alpha"), newStub("mid"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	got := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
	}
}

func TestRestrict(t *testing.T) {
	r, err := NewRegistry(newStub("a"), newStub("b"), newStub("c"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	all, err := r.Restrict(nil)
	if err != nil || all.Len() != 3 {
		t.Fatalf("empty allowlist should keep every tool, got %d (%v)", all.Len(), err)
	}

	sub, err := r.Restrict([]string{"c", "a"})
	if err != nil {
		t.Fatalf("Restrict: %v", err)
	}
	if names := sub.Names(); len(names) != 2 || names[0] != "a" || names[1] != "c" {
		t.Errorf("Restrict names = %v", names)
	}

	if _, err := r.Restrict([]string{"missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown allowlist entry, got %v", err)
	}
}

func TestExportFormats(t *testing.T) {
	type params struct {
		Path  string `json:"path" desc:"File to read"`
		Lines int    `json:"lines,omitempty"`
	}
	r, err := NewRegistry(&stubTool{name: "file_read", desc: "Read a file", params: SchemaFor(params{})})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	openai := r.OpenAIFunctions()
	if len(openai) != 1 || openai[0]["type"] != "function" {
		t.Fatalf("unexpected OpenAI export: %v", openai)
	}
	fn := openai[0]["function"].(map[string]any)
	if fn["name"] != "file_read" || fn["description"] != "Read a file" {
		t.Errorf("unexpected function block: %v", fn)
	}

	anthropic := r.AnthropicTools()
	if len(anthropic) != 1 || anthropic[0]["name"] != "file_read" {
		t.Fatalf("unexpected Anthropic export: %v", anthropic)
	}
	schema := anthropic[0]["input_schema"].(map[string]any)
	if schema["type"] != "object" {
		t.Errorf("input_schema type = %v", schema["type"])
	}

	if _, err := json.Marshal(openai); err != nil {
		t.Errorf("OpenAI export not serialisable: %v", err)
	}
	if _, err := json.Marshal(anthropic); err != nil {
		t.Errorf("Anthropic export not serialisable: %v", err)
	}

	defs := r.Definitions()
	if len(defs) != 1 || defs[0].Function.Name != "file_read" {
		t.Errorf("unexpected definitions: %+v", defs)
	}
}

func TestCatalogue(t *testing.T) {
	r, err := NewRegistry(newStub("b"), newStub("a"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	want := "- a: Stub tool a\n- b: Stub tool b"
	if got := r.Catalogue(); got != want {
		t.Errorf("Catalogue() = %q, want %q", got, want)
	}
}
