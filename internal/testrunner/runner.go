package testrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/config"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/diagnose"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
)

// Result is the outcome of one test unit's execution.
type Result struct {
	Unit     string
	Passed   bool
	Stdout   string
	Stderr   string
	Failures []domain.FailureRecord
}

// Runner executes test units in an isolated environment, preferring a
// network-less container and falling back to a local process when the
// docker CLI is unavailable.
type Runner struct {
	image     string
	timeout   time.Duration
	workers   int
	useDocker bool
	parser    *diagnose.Parser

	dockerOnce sync.Once
	dockerOK   bool
}

func New(cfg config.RunnerConfig, parser *diagnose.Parser) *Runner {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		image:     cfg.Image,
		timeout:   timeout,
		workers:   workers,
		useDocker: cfg.UseDocker,
		parser:    parser,
	}
}

// Run executes one test unit and parses its output into failure
// records. It never returns an error: spawn failures and timeouts are
// converted into the same failure shape so one unit cannot crash its
// siblings.
func (r *Runner) Run(ctx context.Context, repoDir, unit string) Result {
	cmd, err := r.command(repoDir, unit)
	if err != nil {
		return executionFailure(unit, err.Error())
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(runCtx, cmd[0], cmd[1:]...)
	proc.Dir = repoDir
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	runErr := proc.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		log.Printf("[runner] timeout running %s", unit)
		return Result{
			Unit:   unit,
			Passed: false,
			Stderr: fmt.Sprintf("Test run timed out after %d seconds.", int(r.timeout.Seconds())),
			Failures: []domain.FailureRecord{{
				File:         unit,
				Line:         0,
				ErrorMessage: "Timeout",
				BugType:      domain.BugLogic,
			}},
		}
	}

	returnCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			returnCode = exitErr.ExitCode()
		} else {
			log.Printf("[runner] error running %s: %v", unit, runErr)
			return executionFailure(unit, runErr.Error())
		}
	}

	combined := stdout.String() + "\n" + stderr.String()
	return Result{
		Unit:     unit,
		Passed:   returnCode == 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Failures: r.parser.Parse(combined, returnCode, unit),
	}
}

// command picks the execution vehicle for a unit based on its
// extension and docker availability.
func (r *Runner) command(repoDir, unit string) ([]string, error) {
	ext := filepath.Ext(unit)

	if ext == ".py" && r.dockerAvailable() {
		abs, err := filepath.Abs(repoDir)
		if err != nil {
			return nil, err
		}
		script := fmt.Sprintf(
			"pip install pytest --quiet 2>&1 | tail -3 && cd /app && python -m pytest %s --tb=line -p no:cacheprovider -q 2>&1",
			unit)
		return []string{
			"docker", "run", "--rm",
			"--network", "none",
			"-v", abs + ":/app:ro",
			r.image,
			"bash", "-c", script,
		}, nil
	}

	switch {
	case ext == ".py":
		return []string{"python", "-m", "pytest", unit, "--tb=line", "-p", "no:cacheprovider", "-q"}, nil
	case jsExtensions[ext]:
		if _, err := exec.LookPath("bun"); err == nil {
			return []string{"bun", "test", unit}, nil
		}
		return []string{"npx", "jest", unit, "--passWithNoTests"}, nil
	default:
		return nil, fmt.Errorf("unsupported test file extension: %s", ext)
	}
}

func (r *Runner) dockerAvailable() bool {
	if !r.useDocker {
		return false
	}
	r.dockerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := exec.CommandContext(ctx, "docker", "info").Run()
		r.dockerOK = err == nil
		if !r.dockerOK {
			log.Printf("[runner] docker unavailable, falling back to local execution")
		}
	})
	return r.dockerOK
}

func executionFailure(unit, message string) Result {
	return Result{
		Unit:   unit,
		Passed: false,
		Stderr: message,
		Failures: []domain.FailureRecord{{
			File:         unit,
			Line:         0,
			ErrorMessage: message,
			BugType:      domain.BugLogic,
		}},
	}
}
