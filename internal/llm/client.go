package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/config"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/prompts"
)

// Client tries a ranked list of backends in order under a shared
// per-call timeout budget. The first backend to answer wins.
type Client struct {
	backends []Backend
	loader   *prompts.Loader
	timeout  time.Duration
}

// New creates a client from config: primary OpenAI-compatible endpoint,
// local Ollama fallback.
func New(cfg config.LLMConfig, loader *prompts.Loader) *Client {
	if loader == nil {
		loader = prompts.DefaultLoader()
	}
	return &Client{
		backends: []Backend{
			NewOpenAIBackend(cfg.BaseURL, cfg.APIKey, cfg.Model),
			NewOllamaBackend(cfg.OllamaBaseURL, cfg.OllamaModel),
		},
		loader:  loader,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// NewWithBackends creates a client over explicit backends (tests)
func NewWithBackends(loader *prompts.Loader, timeout time.Duration, backends ...Backend) *Client {
	if loader == nil {
		loader = prompts.DefaultLoader()
	}
	return &Client{backends: backends, loader: loader, timeout: timeout}
}

// FixRequest carries everything a backend needs to rewrite one file
type FixRequest struct {
	BugType        domain.BugType
	FilePath       string
	LineNumber     int
	ErrorMessage   string
	OriginalCode   string
	ProjectContext string
}

// GenerateFix requests a full replacement file for a diagnosed failure.
// Returns the generated content and the name of the backend that
// produced it. When every backend fails, the error is returned and the
// caller treats it as "no fix produced".
func (c *Client) GenerateFix(ctx context.Context, req FixRequest) (string, string, error) {
	prompt, err := c.loader.Execute("heal/fix_file.md", map[string]interface{}{
		"BugType":        string(req.BugType),
		"FilePath":       req.FilePath,
		"LineNumber":     req.LineNumber,
		"ErrorMessage":   req.ErrorMessage,
		"OriginalCode":   req.OriginalCode,
		"ProjectContext": req.ProjectContext,
	})
	if err != nil {
		return "", "", err
	}

	text, backend, err := c.complete(ctx, prompt)
	if err != nil {
		return "", "", err
	}
	return StripFences(text), backend, nil
}

// CommitMessage requests a one-line commit message for a fix. Callers
// degrade to FallbackCommitMessage when this fails.
func (c *Client) CommitMessage(ctx context.Context, bugType domain.BugType, errorMessage string) (string, error) {
	prompt, err := c.loader.Execute("heal/commit_message.md", map[string]interface{}{
		"BugType":      string(bugType),
		"ErrorMessage": errorMessage,
	})
	if err != nil {
		return "", err
	}

	text, _, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	// First non-empty line only
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("empty commit message")
}

// GenerateTests requests a runnable test suite for one source file
func (c *Client) GenerateTests(ctx context.Context, sourceCode, language, projectContext string) (string, error) {
	prompt, err := c.loader.Execute("heal/generate_tests.md", map[string]interface{}{
		"SourceCode":     sourceCode,
		"Language":       language,
		"ProjectContext": projectContext,
	})
	if err != nil {
		return "", err
	}

	text, _, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return StripFences(text), nil
}

// complete tries each backend in rank order
func (c *Client) complete(ctx context.Context, prompt string) (string, string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var lastErr error
	for _, b := range c.backends {
		text, err := b.Complete(ctx, prompt)
		if err != nil {
			log.Printf("[llm] backend %s failed: %v", b.Name(), err)
			lastErr = err
			continue
		}
		return strings.TrimSpace(text), b.Name(), nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no backends configured")
	}
	return "", "", fmt.Errorf("all generation backends failed: %w", lastErr)
}

// FallbackCommitMessage is the templated message used when no backend
// can summarize a fix.
func FallbackCommitMessage(bugType domain.BugType, errorMessage string) string {
	if len(errorMessage) > 60 {
		errorMessage = errorMessage[:60]
	}
	return fmt.Sprintf("Fix %s error: %s", bugType, errorMessage)
}

// fenceLanguages are language tags stripped from the first line of a
// fenced block.
var fenceLanguages = map[string]bool{
	"python": true, "javascript": true, "js": true, "ts": true,
	"typescript": true, "jsx": true, "tsx": true, "html": true, "css": true,
}

// StripFences extracts code from a markdown block if present, otherwise
// returns the input unchanged.
func StripFences(text string) string {
	if !strings.Contains(text, "```") {
		return strings.TrimSpace(text)
	}

	parts := strings.Split(text, "```")
	if len(parts) < 2 {
		return strings.TrimSpace(text)
	}

	content := parts[1]
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && fenceLanguages[strings.ToLower(strings.TrimSpace(lines[0]))] {
		return strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}
	return strings.TrimSpace(content)
}
