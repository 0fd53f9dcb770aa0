package orchestrator

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/gitops"
)

const maxTestCandidates = 5

var sourceExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
}

var languageByExtension = map[string]string{
	".py":  "Python",
	".js":  "JavaScript",
	".ts":  "TypeScript",
	".jsx": "JavaScript (React)",
	".tsx": "TypeScript (React)",
}

type candidate struct {
	file  domain.FileSnapshot
	score int
}

// generateTests writes autonomous test suites for the most relevant
// source files when the repository ships none. Returns the names of
// the written test units, possibly empty.
func (o *Orchestrator) generateTests(ctx context.Context, co *gitops.Checkout, files []domain.FileSnapshot) []string {
	candidates := rankCandidates(files)
	if len(candidates) == 0 {
		log.Printf("[orchestrator] no suitable source files for test generation")
		return nil
	}

	projectContext := fullSourceContext(files)

	var generated []string
	for _, c := range candidates {
		ext := strings.ToLower(filepath.Ext(c.file.Path))
		language := languageByExtension[ext]

		body, err := o.testgen.GenerateTests(ctx, c.file.Content, language, projectContext)
		if err != nil || body == "" {
			log.Printf("[orchestrator] test generation failed for %s: %v", c.file.Path, err)
			continue
		}

		name := testFileName(c.file.Path)
		if err := os.WriteFile(filepath.Join(co.Dir, name), []byte(body), 0644); err != nil {
			log.Printf("[orchestrator] writing generated test %s: %v", name, err)
			continue
		}
		log.Printf("[orchestrator] generated %s test suite: %s", language, name)
		generated = append(generated, name)
	}
	return generated
}

// rankCandidates scores source files by content size, doubling files
// under recognized library prefixes, and keeps the top candidates.
// Anything already test-like is excluded.
func rankCandidates(files []domain.FileSnapshot) []candidate {
	var scored []candidate
	for _, f := range files {
		lower := strings.ToLower(f.Path)
		ext := filepath.Ext(lower)
		if !sourceExtensions[ext] {
			continue
		}
		if strings.Contains(lower, "test") || strings.Contains(lower, "spec") || strings.Contains(lower, "setup") {
			continue
		}
		score := len(f.Content)
		if strings.Contains(f.Path, "src/") || strings.Contains(f.Path, "lib/") {
			score *= 2
		}
		scored = append(scored, candidate{file: f, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > maxTestCandidates {
		scored = scored[:maxTestCandidates]
	}
	return scored
}

// fullSourceContext concatenates every source file so the generator
// sees the whole project.
func fullSourceContext(files []domain.FileSnapshot) string {
	parts := []string{"Full Project Source Code Context:"}
	for _, f := range files {
		if sourceExtensions[strings.ToLower(filepath.Ext(f.Path))] {
			parts = append(parts, "--- File: "+f.Path+" ---\n"+f.Content+"\n")
		}
	}
	return strings.Join(parts, "\n")
}

// testFileName derives the conventional test-unit name for a source
// file: test_<stem>.py for Python, <stem>.test.<ext> otherwise.
func testFileName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == ".py" {
		return "test_" + stem + ".py"
	}
	return stem + ".test" + ext
}
