package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadTemplate_Embedded(t *testing.T) {
	loader := NewLoader()

	_, meta, err := loader.LoadTemplate("heal/fix_file.md")
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if meta == nil || meta.ID != "fix_file" {
		t.Errorf("got meta %+v, want id fix_file", meta)
	}
}

func TestExecute_FixFile(t *testing.T) {
	loader := NewLoader()

	out, err := loader.Execute("heal/fix_file.md", map[string]interface{}{
		"BugType":        "TYPE_ERROR",
		"FilePath":       "src/calc.py",
		"LineNumber":     10,
		"ErrorMessage":   "TypeError: unsupported operand",
		"OriginalCode":   "def add(a, b): return a + b",
		"ProjectContext": "src/calc.py",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, want := range []string{"TYPE_ERROR", "src/calc.py", "line 10", "unsupported operand"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered prompt missing %q", want)
		}
	}
	if strings.HasPrefix(out, "---") {
		t.Error("frontmatter leaked into the rendered prompt")
	}
}

func TestExecute_OverrideDirWins(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "heal"), 0755); err != nil {
		t.Fatal(err)
	}
	override := "---\nid: commit_message\n---\nCustom: {{.BugType}}"
	if err := os.WriteFile(filepath.Join(dir, "heal", "commit_message.md"), []byte(override), 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(dir)
	out, err := loader.Execute("heal/commit_message.md", map[string]interface{}{"BugType": "SYNTAX"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Custom: SYNTAX" {
		t.Errorf("got %q, want override template output", out)
	}
}

func TestParseFrontmatter_None(t *testing.T) {
	meta, body, err := parseFrontmatter([]byte("plain body"))
	if err != nil {
		t.Fatal(err)
	}
	if meta != nil {
		t.Error("expected no meta for plain content")
	}
	if body != "plain body" {
		t.Errorf("got body %q", body)
	}
}
