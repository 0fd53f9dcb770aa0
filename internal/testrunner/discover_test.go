package testrunner

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()

	for _, rel := range []string{
		"test_calc.py",
		"tests/utils_test.py",
		"src/app.test.ts",
		"src/widget.spec.jsx",
		"calc.py",              // not a test
		"testing.py",           // prefix without underscore
		"src/app.ts",           // not a test
		"node_modules/pkg/a.test.js", // skipped dir
		".venv/lib/test_x.py",        // skipped dir
	} {
		writeFile(t, root, rel)
	}

	units, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	sort.Strings(units)

	want := []string{
		"src/app.test.ts",
		"src/widget.spec.jsx",
		"test_calc.py",
		"tests/utils_test.py",
	}
	if len(units) != len(want) {
		t.Fatalf("got %v, want %v", units, want)
	}
	for i := range want {
		if units[i] != want[i] {
			t.Errorf("unit %d: got %q, want %q", i, units[i], want[i])
		}
	}
}

func TestDiscover_EmptyRepo(t *testing.T) {
	units, err := Discover(t.TempDir())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(units) != 0 {
		t.Errorf("got %v, want none", units)
	}
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"test_calc.py", true},
		{"calc_test.py", true},
		{"test.py", false},
		{"conftest.py", false},
		{"app.test.js", true},
		{"app.spec.tsx", true},
		{"app.ts", false},
		{"test_data.json", false},
	}
	for _, tt := range tests {
		if got := isTestFile(tt.name); got != tt.want {
			t.Errorf("isTestFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
