package domain

import (
	"fmt"
	"sync"
	"time"
)

// FailureRecord is a structured, deduplicated pointer to one diagnosed problem
type FailureRecord struct {
	File         string  `json:"file"` // repo-relative path
	Line         int     `json:"line"` // 0 when unknown
	ErrorMessage string  `json:"error_message"`
	BugType      BugType `json:"bug_type"`
}

// DedupKey returns the uniqueness key for a failure:
// (file, line, first 100 characters of the message).
func (f FailureRecord) DedupKey() string {
	msg := f.ErrorMessage
	if len(msg) > 100 {
		msg = msg[:100]
	}
	return fmt.Sprintf("%s:%d:%s", f.File, f.Line, msg)
}

// FixEntry is the recorded outcome of attempting to resolve one FailureRecord
type FixEntry struct {
	File          string    `json:"file"`
	BugType       BugType   `json:"bug_type"`
	Line          int       `json:"line"`
	ErrorMessage  string    `json:"error_message"`
	CommitMessage string    `json:"commit_message"`
	Status        FixStatus `json:"status"`
	SHA           string    `json:"sha,omitempty"` // back-filled after a successful push
	Iteration     int       `json:"iteration"`
	Backend       string    `json:"backend,omitempty"` // generation backend that produced the patch
	Error         string    `json:"error,omitempty"`
}

// IterationSummary records one pass of the heal loop
type IterationSummary struct {
	Iteration     int             `json:"iteration"`
	Status        IterationStatus `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	FailuresCount int             `json:"failures_count"`
	Message       string          `json:"message"`
}

// FileSnapshot is one indexed file of the working checkout
type FileSnapshot struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// LiveStatus is the progress record a poller reads for a run in flight.
// It has exactly one writer (the run's orchestrator goroutine) and many
// readers; readers take value snapshots and tolerate mid-update state.
type LiveStatus struct {
	mu             sync.RWMutex
	phase          Phase
	message        string
	iterations     []IterationSummary
	files          []FileSnapshot
	terminalOutput string
}

// LiveSnapshot is a point-in-time copy of a LiveStatus
type LiveSnapshot struct {
	Phase          Phase              `json:"phase"`
	Message        string             `json:"message"`
	Iterations     []IterationSummary `json:"iterations"`
	Files          []FileSnapshot     `json:"files"`
	TerminalOutput string             `json:"terminal_output"`
}

// NewLiveStatus creates a LiveStatus in the queued phase
func NewLiveStatus() *LiveStatus {
	return &LiveStatus{
		phase:      PhaseQueued,
		message:    "Queued - waiting for worker",
		iterations: []IterationSummary{},
		files:      []FileSnapshot{},
	}
}

// SetPhase updates the phase and the human-readable message
func (l *LiveStatus) SetPhase(phase Phase, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phase = phase
	l.message = message
}

// SetMessage updates the message without changing the phase
func (l *LiveStatus) SetMessage(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.message = message
}

// AppendTerminal appends raw execution output to the cumulative buffer
func (l *LiveStatus) AppendTerminal(out string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminalOutput += out
}

// AddIteration appends one iteration summary. Summaries are never mutated.
func (l *LiveStatus) AddIteration(s IterationSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.iterations = append(l.iterations, s)
}

// SetFiles replaces the indexed file snapshot
func (l *LiveStatus) SetFiles(files []FileSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files = files
}

// Iterations returns a copy of the iteration summaries recorded so far
func (l *LiveStatus) Iterations() []IterationSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]IterationSummary, len(l.iterations))
	copy(out, l.iterations)
	return out
}

// Files returns the current file snapshot
func (l *LiveStatus) Files() []FileSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]FileSnapshot, len(l.files))
	copy(out, l.files)
	return out
}

// Phase returns the current phase
func (l *LiveStatus) Phase() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

// Snapshot returns a point-in-time copy for pollers
func (l *LiveStatus) Snapshot() LiveSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	iters := make([]IterationSummary, len(l.iterations))
	copy(iters, l.iterations)
	files := make([]FileSnapshot, len(l.files))
	copy(files, l.files)

	return LiveSnapshot{
		Phase:          l.phase,
		Message:        l.message,
		Iterations:     iters,
		Files:          files,
		TerminalOutput: l.terminalOutput,
	}
}

// Run represents one end-to-end healing attempt against one repository.
// The identity fields are set once at creation; the lifecycle fields
// (Status, FinishedAt, Result, Error) have exactly one writer, the
// run's orchestrator goroutine, and are read concurrently by pollers.
// After creation all lifecycle access goes through the methods below.
type Run struct {
	ID         string
	RepoURL    string
	TeamName   string
	LeaderName string
	BranchName string
	StartedAt  time.Time
	Live       *LiveStatus

	mu         sync.RWMutex
	Status     RunStatus
	FinishedAt *time.Time
	Result     *Result // nil until completion
	Error      string
}

// RunState is a consistent point-in-time view of a run's lifecycle
// fields.
type RunState struct {
	Status     RunStatus
	FinishedAt *time.Time
	Result     *Result
	Error      string
}

// MarkRunning transitions the run out of the queued state
func (r *Run) MarkRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunRunning
}

// Complete records the terminal result of a finished run
func (r *Run) Complete(result *Result) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunCompleted
	r.Result = result
	r.FinishedAt = &now
}

// Fail records a terminal setup failure
func (r *Run) Fail(message string) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunFailed
	r.Error = message
	r.FinishedAt = &now
}

// State returns a snapshot of the lifecycle fields for readers
func (r *Run) State() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RunState{
		Status:     r.Status,
		FinishedAt: r.FinishedAt,
		Result:     r.Result,
		Error:      r.Error,
	}
}
