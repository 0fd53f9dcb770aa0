// Package ci reports remote check-run status for a pushed branch. The
// result is informational only and never drives healing decisions.
package ci

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/config"
)

// Status is the terminal outcome of one polling session.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusPending   Status = "pending"
	StatusAuthError Status = "auth_error"
	StatusUnknown   Status = "unknown"
)

// Poller queries the GitHub Checks API for a branch's latest commit.
type Poller struct {
	baseURL  string
	token    string
	maxPolls int
	interval time.Duration
	client   *http.Client
}

func New(cfg config.CIConfig, token string) *Poller {
	maxPolls := cfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 10
	}
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{
		baseURL:  "https://api.github.com",
		token:    token,
		maxPolls: maxPolls,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

var repoPattern = regexp.MustCompile(`github\.com[:/](.+?)/(.+?)(?:\.git)?$`)

type checkRunsResponse struct {
	CheckRuns []struct {
		Conclusion string `json:"conclusion"`
	} `json:"check_runs"`
}

// Poll watches the branch's check runs until they resolve or the poll
// budget runs out. Any failure conclusion short-circuits to failure;
// all-success resolves to success; an authorization error stops
// immediately since credentials do not self-heal. Every other outcome,
// including budget exhaustion, reports pending.
func (p *Poller) Poll(ctx context.Context, repoURL, branch string) Status {
	m := repoPattern.FindStringSubmatch(repoURL)
	if m == nil {
		return StatusUnknown
	}
	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s/check-runs", p.baseURL, m[1], m[2], branch)

	for i := 0; i < p.maxPolls; i++ {
		status, done := p.query(ctx, url)
		if done {
			return status
		}
		select {
		case <-ctx.Done():
			return StatusPending
		case <-time.After(p.interval):
		}
	}
	return StatusPending
}

// query performs one check-run request. done reports whether polling
// should stop with the returned status.
func (p *Poller) query(ctx context.Context, url string) (Status, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusPending, true
	}
	req.Header.Set("Authorization", "token "+p.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := p.client.Do(req)
	if err != nil {
		log.Printf("[ci] poll error: %v", err)
		return StatusPending, true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		log.Printf("[ci] auth failed (%d), check token permissions", resp.StatusCode)
		return StatusAuthError, true
	case resp.StatusCode != http.StatusOK:
		log.Printf("[ci] unexpected status %d", resp.StatusCode)
		return StatusPending, true
	}

	var body checkRunsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Printf("[ci] decoding check runs: %v", err)
		return StatusPending, true
	}

	// Only reported conclusions count; runs still in progress have an
	// empty conclusion and are ignored.
	var reported, successes int
	for _, run := range body.CheckRuns {
		switch run.Conclusion {
		case "":
			continue
		case "failure":
			return StatusFailure, true
		case "success":
			successes++
		}
		reported++
	}
	if reported > 0 && successes == reported {
		return StatusSuccess, true
	}
	return StatusPending, false
}
