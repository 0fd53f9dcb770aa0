package testrunner

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// skipDirs are directory names that never contain project tests.
var skipDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	".tox":         true,
	"node_modules": true,
	".venv":        true,
	"venv":         true,
}

var jsExtensions = map[string]bool{
	".js":  true,
	".ts":  true,
	".jsx": true,
	".tsx": true,
}

// Discover walks the checkout and returns relative paths of all test
// units: Python files named test_*.py or *_test.py and JS/TS files
// containing ".test." or ".spec." in the name. Paths use forward
// slashes regardless of platform.
func Discover(root string) ([]string, error) {
	var units []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if isTestFile(d.Name()) {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			units = append(units, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

func isTestFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".py" {
		stem := strings.TrimSuffix(name, ext)
		return strings.HasPrefix(stem, "test_") || strings.HasSuffix(stem, "_test")
	}
	if jsExtensions[ext] {
		return strings.Contains(name, ".test.") || strings.Contains(name, ".spec.")
	}
	return false
}
