package ci

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/config"
)

func newTestPoller(t *testing.T, handler http.HandlerFunc) (*Poller, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := New(config.CIConfig{MaxPolls: 3, IntervalSeconds: 1}, "tok")
	p.baseURL = srv.URL
	p.interval = 10 * time.Millisecond
	return p, srv
}

func checkRunsBody(conclusions ...string) string {
	body := `{"check_runs":[`
	for i, c := range conclusions {
		if i > 0 {
			body += ","
		}
		if c == "" {
			body += `{"conclusion":null}`
		} else {
			body += fmt.Sprintf(`{"conclusion":%q}`, c)
		}
	}
	return body + `]}`
}

func TestPoll_AllSuccess(t *testing.T) {
	p, _ := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token tok" {
			t.Errorf("got auth header %q", got)
		}
		fmt.Fprint(w, checkRunsBody("success", "success"))
	})

	got := p.Poll(context.Background(), "https://github.com/owner/repo.git", "TEAM_AI_FIX")
	if got != StatusSuccess {
		t.Errorf("got %q, want success", got)
	}
}

func TestPoll_FailureShortCircuits(t *testing.T) {
	calls := 0
	p, _ := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, checkRunsBody("success", "failure"))
	})

	got := p.Poll(context.Background(), "https://github.com/owner/repo", "B")
	if got != StatusFailure {
		t.Errorf("got %q, want failure", got)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}

func TestPoll_AuthErrorStopsImmediately(t *testing.T) {
	calls := 0
	p, _ := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	})

	got := p.Poll(context.Background(), "https://github.com/owner/repo", "B")
	if got != StatusAuthError {
		t.Errorf("got %q, want auth_error", got)
	}
	if calls != 1 {
		t.Errorf("auth errors are never retried, got %d calls", calls)
	}
}

func TestPoll_ServerErrorYieldsPending(t *testing.T) {
	calls := 0
	p, _ := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	got := p.Poll(context.Background(), "https://github.com/owner/repo", "B")
	if got != StatusPending {
		t.Errorf("got %q, want pending", got)
	}
	if calls != 1 {
		t.Errorf("non-200 stops polling, got %d calls", calls)
	}
}

func TestPoll_NoRunsExhaustsBudget(t *testing.T) {
	calls := 0
	p, _ := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"check_runs":[]}`)
	})

	got := p.Poll(context.Background(), "https://github.com/owner/repo", "B")
	if got != StatusPending {
		t.Errorf("got %q, want pending", got)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want the full poll budget of 3", calls)
	}
}

func TestPoll_KeepsPollingWhileNothingConcluded(t *testing.T) {
	calls := 0
	p, _ := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			fmt.Fprint(w, checkRunsBody("", ""))
			return
		}
		fmt.Fprint(w, checkRunsBody("success", "success"))
	})

	got := p.Poll(context.Background(), "https://github.com/owner/repo", "B")
	if got != StatusSuccess {
		t.Errorf("got %q, want success after the second poll", got)
	}
	if calls != 2 {
		t.Errorf("got %d calls, want 2", calls)
	}
}

func TestPoll_UnparseableRepoURL(t *testing.T) {
	p := New(config.CIConfig{}, "tok")

	got := p.Poll(context.Background(), "/local/path", "B")
	if got != StatusUnknown {
		t.Errorf("got %q, want unknown", got)
	}
}
