// Package fixer applies generated patches to failing source files, one
// fix entry per failure record.
package fixer

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/diagnose"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/llm"
)

// Generator is the patch-generation collaborator. *llm.Client
// satisfies it.
type Generator interface {
	GenerateFix(ctx context.Context, req llm.FixRequest) (content, backend string, err error)
	CommitMessage(ctx context.Context, bugType domain.BugType, errorMessage string) (string, error)
}

type Applicator struct {
	gen Generator
}

func New(gen Generator) *Applicator {
	return &Applicator{gen: gen}
}

// Apply attempts to repair one diagnosed failure and returns the fix
// entry describing the outcome. It never returns an error: generation
// and I/O failures are recorded on the entry so one failing fix cannot
// abort the batch.
func (a *Applicator) Apply(ctx context.Context, repoDir string, failure domain.FailureRecord, iteration int, projectContext string) domain.FixEntry {
	entry := domain.FixEntry{
		File:         failure.File,
		BugType:      failure.BugType,
		Line:         failure.Line,
		ErrorMessage: failure.ErrorMessage,
		Status:       domain.FixFailed,
		Iteration:    iteration,
	}

	fullPath := filepath.Join(repoDir, filepath.FromSlash(failure.File))

	// Vendor paths are never edited. The gate runs before any I/O.
	if diagnose.IsVendorPath(fullPath) {
		log.Printf("[fixer] blocked fix outside project tree: %s", failure.File)
		return entry
	}

	if _, err := os.Stat(fullPath); err != nil {
		log.Printf("[fixer] source file not found: %s", fullPath)
		return entry
	}

	original, err := os.ReadFile(fullPath)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}

	fixed, backend, err := a.gen.GenerateFix(ctx, llm.FixRequest{
		BugType:        failure.BugType,
		FilePath:       failure.File,
		LineNumber:     failure.Line,
		ErrorMessage:   failure.ErrorMessage,
		OriginalCode:   string(original),
		ProjectContext: projectContext,
	})
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Backend = backend

	// An empty or unchanged response is "no fix produced", not an
	// error. The file stays untouched.
	if fixed == "" || fixed == string(original) {
		log.Printf("[fixer] no change produced for %s", failure.File)
		return entry
	}

	if err := os.WriteFile(fullPath, []byte(fixed), 0644); err != nil {
		entry.Error = err.Error()
		return entry
	}

	msg, err := a.gen.CommitMessage(ctx, failure.BugType, failure.ErrorMessage)
	if err != nil || msg == "" {
		msg = llm.FallbackCommitMessage(failure.BugType, failure.ErrorMessage)
	}
	entry.CommitMessage = msg
	entry.Status = domain.FixApplied
	log.Printf("[fixer] fixed %s:%d (%s)", failure.File, failure.Line, failure.BugType)
	return entry
}

// ApplyAll repairs a batch of failures sequentially, in discovery
// order.
func (a *Applicator) ApplyAll(ctx context.Context, repoDir string, failures []domain.FailureRecord, iteration int, projectContext string) []domain.FixEntry {
	entries := make([]domain.FixEntry, 0, len(failures))
	for _, f := range failures {
		entries = append(entries, a.Apply(ctx, repoDir, f, iteration, projectContext))
	}
	return entries
}

// FixedFiles returns the paths of entries whose fix was applied, in
// entry order, deduplicated.
func FixedFiles(entries []domain.FixEntry) []string {
	seen := make(map[string]bool)
	var files []string
	for _, e := range entries {
		if e.Status != domain.FixApplied || seen[e.File] {
			continue
		}
		seen[e.File] = true
		files = append(files, e.File)
	}
	return files
}
