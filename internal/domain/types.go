package domain

// RunStatus represents the lifecycle state of a run
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Phase represents the pipeline phase a run is currently in.
// Phases advance monotonically except for the heal-loop phases
// (execution, fixing, committing, ci_poll), which repeat up to
// the retry bound.
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseDiscovery  Phase = "discovery"
	PhaseGeneration Phase = "generation"
	PhaseBranching  Phase = "branching"
	PhaseExecution  Phase = "execution"
	PhaseFixing     Phase = "fixing"
	PhaseCommitting Phase = "committing"
	PhaseCIPoll     Phase = "ci_poll"
	PhaseDone       Phase = "done"
)

// BugType is the closed classification tag assigned to a failure
type BugType string

const (
	BugIndentation BugType = "INDENTATION"
	BugSyntax      BugType = "SYNTAX"
	BugImport      BugType = "IMPORT"
	BugTypeError   BugType = "TYPE_ERROR"
	BugLinting     BugType = "LINTING"
	BugLogic       BugType = "LOGIC"
)

// FixStatus is the outcome of one fix attempt
type FixStatus string

const (
	FixApplied FixStatus = "fixed"
	FixFailed  FixStatus = "failed"
)

// IterationStatus is the pass/fail outcome of one heal-loop pass
type IterationStatus string

const (
	IterationPass IterationStatus = "PASS"
	IterationFail IterationStatus = "FAIL"
)

// FinalStatus is the definite outcome of a completed run
type FinalStatus string

const (
	FinalPassed FinalStatus = "PASSED"
	FinalFailed FinalStatus = "FAILED"
)
