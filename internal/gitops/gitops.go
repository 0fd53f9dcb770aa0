// Package gitops provides the version-control side-effect service:
// clone with credential, branch creation, stage+commit+push with forced
// non-interactive auth, file snapshots and checkout cleanup.
package gitops

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/config"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
)

// snapshotExtensions are the file types indexed for project context
var snapshotExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".json": true, ".yaml": true, ".yml": true, ".md": true,
}

// skipDirs are directories excluded from discovery and snapshots
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true,
	".venv": true, "venv": true, ".tox": true,
}

// Service performs git operations through the git binary
type Service struct {
	clonesDir string
	pat       string
	depth     int
	forcePush bool
}

// New creates a Service from git configuration
func New(cfg config.GitConfig) *Service {
	depth := cfg.Depth
	if depth <= 0 {
		depth = 50
	}
	return &Service{
		clonesDir: cfg.ClonesDir,
		pat:       cfg.PAT,
		depth:     depth,
		forcePush: cfg.ForcePush,
	}
}

// SetPAT swaps the credential (config hot-reload)
func (s *Service) SetPAT(pat string) { s.pat = pat }

// Checkout is one run's working copy
type Checkout struct {
	Dir     string
	RepoURL string
	Branch  string
}

// ClonePath returns the unique local path for a run's clone
func (s *Service) ClonePath(repoURL, runID string) string {
	name := strings.TrimSuffix(filepath.Base(strings.TrimSuffix(repoURL, "/")), ".git")
	return filepath.Join(s.clonesDir, fmt.Sprintf("%s_%s", runID, name))
}

// Clone clones the repository into a per-run directory. Any leftover
// clone from a crashed run at the same path is removed first.
func (s *Service) Clone(ctx context.Context, repoURL, runID string) (*Checkout, error) {
	path := s.ClonePath(repoURL, runID)

	if _, err := os.Stat(path); err == nil {
		os.RemoveAll(path)
	}
	if err := os.MkdirAll(s.clonesDir, 0755); err != nil {
		return nil, fmt.Errorf("creating clones dir: %w", err)
	}

	authURL := repoURL
	if s.pat != "" {
		authURL = InjectPAT(repoURL, s.pat)
	}

	log.Printf("[gitops] cloning %s", repoURL)
	if out, err := s.git(ctx, "", "clone", "--depth", fmt.Sprintf("%d", s.depth), authURL, path); err != nil {
		return nil, fmt.Errorf("git clone: %s: %w", out, err)
	}

	// Never consult a system credential helper from inside the clone
	if out, err := s.git(ctx, path, "config", "credential.helper", ""); err != nil {
		return nil, fmt.Errorf("git config: %s: %w", out, err)
	}

	return &Checkout{Dir: path, RepoURL: repoURL}, nil
}

// CreateBranch creates and checks out the working branch from the
// default branch. Runs exactly once per run, before any mutation.
func (s *Service) CreateBranch(ctx context.Context, co *Checkout, branch string) error {
	base := s.defaultBranch(ctx, co)
	// Best effort: a fresh clone is already on the default branch
	s.git(ctx, co.Dir, "checkout", base)

	log.Printf("[gitops] creating branch %s from %s", branch, base)
	if out, err := s.git(ctx, co.Dir, "checkout", "-b", branch); err != nil {
		return fmt.Errorf("git checkout -b: %s: %w", out, err)
	}
	co.Branch = branch
	return nil
}

// defaultBranch resolves origin's HEAD branch, falling back to main
func (s *Service) defaultBranch(ctx context.Context, co *Checkout) string {
	out, err := s.git(ctx, co.Dir, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err != nil {
		return "main"
	}
	ref := strings.TrimSpace(out)
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		return ref[idx+1:]
	}
	return "main"
}

// CommitAndPush stages the given files, commits with the [AI-AGENT]
// prefix and pushes the working branch. Returns the short commit SHA.
// The commit survives a failed push; callers treat push failure as
// non-fatal and continue against local state.
func (s *Service) CommitAndPush(ctx context.Context, co *Checkout, files []string, message string) (string, error) {
	if !strings.HasPrefix(message, "[AI-AGENT]") {
		message = "[AI-AGENT] " + message
	}

	args := append([]string{"add", "--"}, files...)
	if out, err := s.git(ctx, co.Dir, args...); err != nil {
		return "", fmt.Errorf("git add: %s: %w", out, err)
	}

	if out, err := s.git(ctx, co.Dir, "commit", "-m", message, "--no-verify"); err != nil {
		return "", fmt.Errorf("git commit: %s: %w", out, err)
	}

	shaOut, err := s.git(ctx, co.Dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	sha := strings.TrimSpace(shaOut)
	log.Printf("[gitops] committed %s: %s", sha, message)

	if s.pat != "" {
		authURL := InjectPAT(co.RepoURL, s.pat)
		if out, err := s.git(ctx, co.Dir, "remote", "set-url", "origin", authURL); err != nil {
			return sha, fmt.Errorf("git remote set-url: %s: %w", out, err)
		}
	}

	pushArgs := []string{"push", "origin", fmt.Sprintf("%s:%s", co.Branch, co.Branch)}
	if s.forcePush {
		pushArgs = append(pushArgs, "--force")
	}
	if out, err := s.git(ctx, co.Dir, pushArgs...); err != nil {
		return sha, fmt.Errorf("git push: %s: %w", out, err)
	}
	log.Printf("[gitops] pushed %s to origin/%s", sha, co.Branch)

	return sha, nil
}

// SnapshotFiles walks the working tree and returns indexed source files
// for project context and the live-status file view.
func (s *Service) SnapshotFiles(co *Checkout) ([]domain.FileSnapshot, error) {
	var files []domain.FileSnapshot

	err := filepath.Walk(co.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !snapshotExtensions[filepath.Ext(path)] {
			return nil
		}

		rel, err := filepath.Rel(co.Dir, path)
		if err != nil {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[gitops] could not read %s: %v", rel, err)
			return nil
		}
		files = append(files, domain.FileSnapshot{
			Path:    filepath.ToSlash(rel),
			Content: string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Cleanup removes the working checkout. Called on every exit path.
func (s *Service) Cleanup(co *Checkout) {
	if co == nil || co.Dir == "" {
		return
	}
	if err := os.RemoveAll(co.Dir); err != nil {
		log.Printf("[gitops] cleanup failed for %s: %v", co.Dir, err)
		return
	}
	log.Printf("[gitops] cleaned up %s", co.Dir)
}

// InjectPAT embeds a token into an HTTPS URL for auth
func InjectPAT(repoURL, pat string) string {
	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" {
		return repoURL
	}
	u.User = url.User(pat)
	return u.String()
}

// git runs a git command with prompts suppressed so a missing or bad
// credential fails fast instead of hanging on interactive input.
func (s *Service) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_ASKPASS=echo",
		"SSH_ASKPASS=echo",
		"GCM_INTERACTIVE=never",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
