// Package orchestrator drives the healing pipeline for one run:
// discover tests, branch, then iterate execute-diagnose-fix-commit-poll
// until the suite passes or the retry budget is exhausted.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/ci"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/fixer"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/gitops"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/notify"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/registry"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/results"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/testrunner"
)

// MaxRetries bounds the heal loop.
const MaxRetries = 5

// GitService is the version-control collaborator.
type GitService interface {
	Clone(ctx context.Context, repoURL, runID string) (*gitops.Checkout, error)
	CreateBranch(ctx context.Context, co *gitops.Checkout, branch string) error
	CommitAndPush(ctx context.Context, co *gitops.Checkout, files []string, message string) (string, error)
	SnapshotFiles(co *gitops.Checkout) ([]domain.FileSnapshot, error)
	Cleanup(co *gitops.Checkout)
}

// TestRunner executes a batch of test units concurrently.
type TestRunner interface {
	RunAll(ctx context.Context, repoDir string, units []string) []testrunner.Result
}

// FixApplicator repairs a batch of diagnosed failures.
type FixApplicator interface {
	ApplyAll(ctx context.Context, repoDir string, failures []domain.FailureRecord, iteration int, projectContext string) []domain.FixEntry
}

// TestGenerator produces a test suite body for one source file.
type TestGenerator interface {
	GenerateTests(ctx context.Context, sourceCode, language, projectContext string) (string, error)
}

// CIPoller reports remote check-run status after a push.
type CIPoller interface {
	Poll(ctx context.Context, repoURL, branch string) ci.Status
}

// Events receives run updates for live subscribers. Implementations
// must not block.
type Events interface {
	RunUpdated(run *domain.Run)
}

type Orchestrator struct {
	git      GitService
	runner   TestRunner
	fixer    FixApplicator
	testgen  TestGenerator
	poller   CIPoller // nil when no CI credential is configured
	registry *registry.Registry
	notifier notify.Notifier
	events   Events // optional

	discover func(root string) ([]string, error)
}

func New(git GitService, runner TestRunner, fix FixApplicator, testgen TestGenerator, poller CIPoller, reg *registry.Registry, notifier notify.Notifier) *Orchestrator {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Orchestrator{
		git:      git,
		runner:   runner,
		fixer:    fix,
		testgen:  testgen,
		poller:   poller,
		registry: reg,
		notifier: notifier,
		discover: testrunner.Discover,
	}
}

// SetEvents attaches a live-update sink.
func (o *Orchestrator) SetEvents(events Events) {
	o.events = events
}

// Execute runs the full pipeline for one run. It owns the run record
// for the duration: no other writer may touch it. The record's live
// status is updated at every phase transition so pollers always see an
// explanation for the current state.
func (o *Orchestrator) Execute(ctx context.Context, run *domain.Run) {
	run.MarkRunning()

	result, err := o.pipeline(ctx, run)

	if err != nil {
		run.Fail(err.Error())
		run.Live.SetPhase(domain.PhaseDone, "Run failed: "+err.Error())
		log.Printf("[orchestrator] run %s failed: %v", run.ID, err)
	} else {
		run.Complete(result)
	}

	if o.registry != nil {
		o.registry.Flush(run)
	}
	o.publish(run)
	if err := o.notifier.Send(notify.RunCompleted(run)); err != nil {
		log.Printf("[orchestrator] notification failed: %v", err)
	}
}

// pipeline is the state machine proper. Setup failures (clone, branch)
// abort the run; everything past branching degrades gracefully.
func (o *Orchestrator) pipeline(ctx context.Context, run *domain.Run) (*domain.Result, error) {
	startTime := time.Now().UTC()
	live := run.Live

	var allFixes []domain.FixEntry
	var timeline []domain.IterationSummary
	commitCount := 0

	o.setPhase(run, domain.PhaseDiscovery, "Cloning repository...")
	co, err := o.git.Clone(ctx, run.RepoURL, run.ID)
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", run.RepoURL, err)
	}
	// The checkout is released on every exit path, including errors,
	// to bound disk usage across concurrent runs.
	defer o.git.Cleanup(co)

	files, err := o.git.SnapshotFiles(co)
	if err != nil {
		log.Printf("[orchestrator] snapshot failed for %s: %v", run.ID, err)
	}
	live.SetFiles(files)
	o.setPhase(run, domain.PhaseDiscovery, fmt.Sprintf("Cloned repo - %d files indexed", len(files)))

	units, err := o.discover(co.Dir)
	if err != nil {
		return nil, fmt.Errorf("discovering tests: %w", err)
	}
	o.setPhase(run, domain.PhaseDiscovery, fmt.Sprintf("Found %d test file(s): %s", len(units), strings.Join(units, ", ")))

	if len(units) == 0 {
		o.setPhase(run, domain.PhaseGeneration, "No tests found. Generating autonomous test suite...")
		units = o.generateTests(ctx, co, files)
		if len(units) == 0 {
			// No testable surface is not a failure.
			o.setPhase(run, domain.PhaseDone, "No test files found and generation produced none.")
			summary := domain.IterationSummary{
				Iteration:     1,
				Status:        domain.IterationPass,
				Timestamp:     startTime,
				FailuresCount: 0,
				Message:       "No test files found - treated as passing",
			}
			live.AddIteration(summary)
			result := o.buildResult(run, startTime, nil, []domain.IterationSummary{summary}, domain.FinalPassed, 0)
			if err := results.Save(result, co.Dir); err != nil {
				log.Printf("[orchestrator] saving results for %s: %v", run.ID, err)
			}
			return result, nil
		}
		o.setPhase(run, domain.PhaseGeneration, fmt.Sprintf("Generated %d test suite(s) for auto-validation.", len(units)))
	}

	// Branch exactly once, before any mutation, so iterations
	// accumulate on one branch and the default branch stays untouched.
	o.setPhase(run, domain.PhaseBranching, "Creating branch: "+run.BranchName)
	if err := o.git.CreateBranch(ctx, co, run.BranchName); err != nil {
		return nil, fmt.Errorf("creating branch %s: %w", run.BranchName, err)
	}

	finalStatus := domain.FinalFailed

	for iteration := 1; iteration <= MaxRetries; iteration++ {
		iterStart := time.Now().UTC()
		o.setPhase(run, domain.PhaseExecution,
			fmt.Sprintf("Iteration %d/%d - running %d test file(s) in parallel...", iteration, MaxRetries, len(units)))
		live.AppendTerminal(fmt.Sprintf("\n>>> Running tests: %s\n", strings.Join(units, ", ")))

		batch := o.runner.RunAll(ctx, co.Dir, units)

		var failures []domain.FailureRecord
		var outputBlocks []string
		for _, res := range batch {
			outputBlocks = append(outputBlocks, fmt.Sprintf("--- OUTPUT FOR %s ---\n%s\n%s\n", res.Unit, res.Stdout, res.Stderr))
			if !res.Passed {
				failures = append(failures, res.Failures...)
			}
		}
		live.AppendTerminal("\n" + strings.Join(outputBlocks, "\n") + "\n")

		summary := domain.IterationSummary{
			Iteration:     iteration,
			Status:        domain.IterationFail,
			Timestamp:     iterStart,
			FailuresCount: len(failures),
			Message:       fmt.Sprintf("%d failure(s) found", len(failures)),
		}
		if len(failures) == 0 {
			summary.Status = domain.IterationPass
			summary.Message = "All tests passed"
		}
		timeline = append(timeline, summary)
		live.AddIteration(summary)

		if len(failures) == 0 {
			finalStatus = domain.FinalPassed
			o.setPhase(run, domain.PhaseDone, fmt.Sprintf("All tests passing after iteration %d", iteration))
			break
		}

		o.setPhase(run, domain.PhaseFixing, fmt.Sprintf("Found %d failure(s) - applying fixes...", len(failures)))
		projectContext := projectContext(files)
		entries := o.fixer.ApplyAll(ctx, co.Dir, failures, iteration, projectContext)
		allFixes = append(allFixes, entries...)

		fixedFiles := fixer.FixedFiles(entries)

		pushOK := false
		if len(fixedFiles) > 0 {
			o.setPhase(run, domain.PhaseCommitting, fmt.Sprintf("Pushing %d fixed file(s)...", len(fixedFiles)))
			commitMsg := fmt.Sprintf("Fix %d failure(s) - iteration %d", len(fixedFiles), iteration)
			sha, err := o.git.CommitAndPush(ctx, co, fixedFiles, commitMsg)
			if err != nil {
				// Push failure downgrades to continue-locally.
				o.setPhase(run, domain.PhaseCommitting, "Push failed. Continuing to next iteration locally.")
				log.Printf("[orchestrator] run %s push failed: %v", run.ID, err)
			} else {
				commitCount++
				pushOK = true
				o.setPhase(run, domain.PhaseCommitting, "Committed and pushed: "+sha)
				// Back-fill the commit identifier into the batch.
				for i := range allFixes {
					if allFixes[i].SHA == "" {
						allFixes[i].SHA = sha
					}
				}
			}
		}

		// CI status is informational only and never drives the loop.
		if o.poller != nil && pushOK {
			o.setPhase(run, domain.PhaseCIPoll, "Waiting for CI to complete...")
			status := o.poller.Poll(ctx, run.RepoURL, run.BranchName)
			o.setPhase(run, domain.PhaseCIPoll, "CI status: "+string(status))
		} else if o.poller != nil {
			o.setPhase(run, domain.PhaseCIPoll, "Skipping CI poll (push failed or no changes).")
		}

		if iteration == MaxRetries {
			o.setPhase(run, domain.PhaseDone, fmt.Sprintf("Max retries (%d) reached - some failures remain.", MaxRetries))
		}
	}

	result := o.buildResult(run, startTime, allFixes, timeline, finalStatus, commitCount)
	if err := results.Save(result, co.Dir); err != nil {
		log.Printf("[orchestrator] saving results for %s: %v", run.ID, err)
	}
	return result, nil
}

func (o *Orchestrator) buildResult(run *domain.Run, startTime time.Time, fixes []domain.FixEntry, timeline []domain.IterationSummary, status domain.FinalStatus, commitCount int) *domain.Result {
	return results.Build(results.Params{
		RunID:       run.ID,
		RepoURL:     run.RepoURL,
		TeamName:    run.TeamName,
		LeaderName:  run.LeaderName,
		BranchName:  run.BranchName,
		Fixes:       fixes,
		Timeline:    timeline,
		StartTime:   startTime,
		EndTime:     time.Now().UTC(),
		FinalStatus: status,
		CommitCount: commitCount,
	})
}

func (o *Orchestrator) setPhase(run *domain.Run, phase domain.Phase, message string) {
	run.Live.SetPhase(phase, message)
	log.Printf("[orchestrator] [%s] [%s] %s", run.ID, phase, message)
	o.publish(run)
}

func (o *Orchestrator) publish(run *domain.Run) {
	if o.events != nil {
		o.events.RunUpdated(run)
	}
}

// projectContext is the accumulated file-path listing passed to the
// patch generator.
func projectContext(files []domain.FileSnapshot) string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return strings.Join(paths, "\n")
}
