package domain

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFailureRecord_DedupKey_TruncatesMessage(t *testing.T) {
	long := strings.Repeat("x", 150)
	a := FailureRecord{File: "src/calc.py", Line: 10, ErrorMessage: long}
	b := FailureRecord{File: "src/calc.py", Line: 10, ErrorMessage: long + "   trailing"}

	if a.DedupKey() != b.DedupKey() {
		t.Error("records differing only past 100 chars should share a dedup key")
	}

	c := FailureRecord{File: "src/calc.py", Line: 11, ErrorMessage: long}
	if a.DedupKey() == c.DedupKey() {
		t.Error("different lines must not share a dedup key")
	}
}

func TestLiveStatus_Snapshot(t *testing.T) {
	live := NewLiveStatus()
	live.SetPhase(PhaseExecution, "running tests")
	live.AppendTerminal("line one\n")
	live.AppendTerminal("line two\n")
	live.AddIteration(IterationSummary{
		Iteration: 1,
		Status:    IterationFail,
		Timestamp: time.Now(),
		Message:   "2 failure(s) found",
	})

	snap := live.Snapshot()
	if snap.Phase != PhaseExecution {
		t.Errorf("got phase %q, want %q", snap.Phase, PhaseExecution)
	}
	if snap.TerminalOutput != "line one\nline two\n" {
		t.Errorf("unexpected terminal output: %q", snap.TerminalOutput)
	}
	if len(snap.Iterations) != 1 {
		t.Fatalf("got %d iterations, want 1", len(snap.Iterations))
	}

	// Snapshot must be a copy: later writes don't leak into it
	live.AddIteration(IterationSummary{Iteration: 2})
	if len(snap.Iterations) != 1 {
		t.Error("snapshot mutated by later writer update")
	}
}

func TestRun_LifecycleTransitions(t *testing.T) {
	run := &Run{ID: "run-1", Status: RunQueued, Live: NewLiveStatus()}

	run.MarkRunning()
	if st := run.State(); st.Status != RunRunning {
		t.Errorf("got %q, want running", st.Status)
	}

	run.Complete(&Result{RunID: "run-1"})
	st := run.State()
	if st.Status != RunCompleted {
		t.Errorf("got %q, want completed", st.Status)
	}
	if st.Result == nil || st.Result.RunID != "run-1" {
		t.Errorf("got result %+v", st.Result)
	}
	if st.FinishedAt == nil {
		t.Error("FinishedAt must be set on completion")
	}

	failed := &Run{ID: "run-2", Status: RunQueued, Live: NewLiveStatus()}
	failed.Fail("clone failed")
	st = failed.State()
	if st.Status != RunFailed || st.Error != "clone failed" {
		t.Errorf("got %+v", st)
	}
	if st.FinishedAt == nil {
		t.Error("FinishedAt must be set on failure")
	}
}

func TestRun_ConcurrentStateReaders(t *testing.T) {
	run := &Run{ID: "run-1", Status: RunQueued, Live: NewLiveStatus()}

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			run.MarkRunning()
		}
		run.Complete(&Result{RunID: "run-1"})
		close(done)
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = run.State()
				}
			}
		}()
	}

	wg.Wait()
}

func TestLiveStatus_ConcurrentReaders(t *testing.T) {
	live := NewLiveStatus()

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			live.SetPhase(PhaseFixing, "applying fixes")
			live.AppendTerminal(".")
		}
		close(done)
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = live.Snapshot()
				}
			}
		}()
	}

	wg.Wait()
}
