package fixer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/llm"
)

type stubGen struct {
	content   string
	backend   string
	genErr    error
	commitMsg string
	commitErr error

	genCalls int
}

func (s *stubGen) GenerateFix(ctx context.Context, req llm.FixRequest) (string, string, error) {
	s.genCalls++
	return s.content, s.backend, s.genErr
}

func (s *stubGen) CommitMessage(ctx context.Context, bugType domain.BugType, errorMessage string) (string, error) {
	return s.commitMsg, s.commitErr
}

func writeSource(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApply_Success(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "calc.py", "def add(a, b):\nreturn a + b\n")

	gen := &stubGen{
		content:   "def add(a, b):\n    return a + b\n",
		backend:   "openai",
		commitMsg: "Fix indentation in calc.add",
	}
	a := New(gen)

	entry := a.Apply(context.Background(), dir, domain.FailureRecord{
		File:         "calc.py",
		Line:         2,
		ErrorMessage: "IndentationError: expected an indented block",
		BugType:      domain.BugIndentation,
	}, 1, "calc.py")

	if entry.Status != domain.FixApplied {
		t.Fatalf("got status %q, want fixed", entry.Status)
	}
	if entry.Backend != "openai" {
		t.Errorf("got backend %q", entry.Backend)
	}
	if entry.CommitMessage != "Fix indentation in calc.add" {
		t.Errorf("got commit message %q", entry.CommitMessage)
	}
	if entry.Iteration != 1 {
		t.Errorf("got iteration %d", entry.Iteration)
	}

	got, err := os.ReadFile(filepath.Join(dir, "calc.py"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != gen.content {
		t.Errorf("file not rewritten: %q", got)
	}
}

func TestApply_VendorPathBlockedBeforeRead(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, filepath.Join("node_modules", "pkg", "index.js"), "x")

	gen := &stubGen{content: "y"}
	a := New(gen)

	entry := a.Apply(context.Background(), dir, domain.FailureRecord{
		File:    "node_modules/pkg/index.js",
		BugType: domain.BugLogic,
	}, 1, "")

	if entry.Status != domain.FixFailed {
		t.Errorf("got status %q, want failed", entry.Status)
	}
	if gen.genCalls != 0 {
		t.Error("generator must not be called for vendor paths")
	}
}

func TestApply_MissingFile(t *testing.T) {
	gen := &stubGen{content: "y"}
	a := New(gen)

	entry := a.Apply(context.Background(), t.TempDir(), domain.FailureRecord{
		File:    "gone.py",
		BugType: domain.BugSyntax,
	}, 2, "")

	if entry.Status != domain.FixFailed {
		t.Errorf("got status %q, want failed", entry.Status)
	}
	if gen.genCalls != 0 {
		t.Error("generator must not be called for missing files")
	}
}

func TestApply_UnchangedContentLeavesFileAlone(t *testing.T) {
	dir := t.TempDir()
	const src = "def f():\n    pass\n"
	writeSource(t, dir, "mod.py", src)

	gen := &stubGen{content: src, backend: "ollama"}
	a := New(gen)

	entry := a.Apply(context.Background(), dir, domain.FailureRecord{
		File: "mod.py", BugType: domain.BugLogic,
	}, 1, "")

	if entry.Status != domain.FixFailed {
		t.Errorf("unchanged response must not count as fixed, got %q", entry.Status)
	}
	if entry.Error != "" {
		t.Errorf("no-fix-produced is not an error, got %q", entry.Error)
	}

	got, _ := os.ReadFile(filepath.Join(dir, "mod.py"))
	if string(got) != src {
		t.Error("file must stay untouched")
	}
}

func TestApply_GenerationErrorRecorded(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "mod.py", "x = 1\n")

	gen := &stubGen{genErr: errors.New("all backends failed")}
	a := New(gen)

	entry := a.Apply(context.Background(), dir, domain.FailureRecord{
		File: "mod.py", BugType: domain.BugLogic,
	}, 3, "")

	if entry.Status != domain.FixFailed {
		t.Errorf("got status %q, want failed", entry.Status)
	}
	if entry.Error != "all backends failed" {
		t.Errorf("got error %q", entry.Error)
	}
}

func TestApply_CommitMessageFallback(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "mod.py", "x = 1\n")

	gen := &stubGen{
		content:   "x = 2\n",
		commitErr: errors.New("backend down"),
	}
	a := New(gen)

	entry := a.Apply(context.Background(), dir, domain.FailureRecord{
		File:         "mod.py",
		BugType:      domain.BugTypeError,
		ErrorMessage: "TypeError: unsupported operand",
	}, 1, "")

	if entry.Status != domain.FixApplied {
		t.Fatalf("got status %q, want fixed", entry.Status)
	}
	want := llm.FallbackCommitMessage(domain.BugTypeError, "TypeError: unsupported operand")
	if entry.CommitMessage != want {
		t.Errorf("got %q, want fallback %q", entry.CommitMessage, want)
	}
}

func TestApplyAll_DiscoveryOrder(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.py", "a\n")
	writeSource(t, dir, "b.py", "b\n")

	gen := &stubGen{content: "changed\n", commitMsg: "m"}
	a := New(gen)

	failures := []domain.FailureRecord{
		{File: "b.py", BugType: domain.BugLogic},
		{File: "a.py", BugType: domain.BugLogic},
		{File: "missing.py", BugType: domain.BugLogic},
	}
	entries := a.ApplyAll(context.Background(), dir, failures, 2, "")

	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []string{"b.py", "a.py", "missing.py"} {
		if entries[i].File != want {
			t.Errorf("entry %d: got %q, want %q", i, entries[i].File, want)
		}
	}
	if entries[2].Status != domain.FixFailed {
		t.Error("missing file must fail without aborting the batch")
	}
}

func TestFixedFiles(t *testing.T) {
	entries := []domain.FixEntry{
		{File: "a.py", Status: domain.FixApplied},
		{File: "b.py", Status: domain.FixFailed},
		{File: "a.py", Status: domain.FixApplied},
		{File: "c.py", Status: domain.FixApplied},
	}
	got := FixedFiles(entries)
	want := []string{"a.py", "c.py"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
