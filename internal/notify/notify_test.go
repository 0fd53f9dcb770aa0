package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
)

func TestSlackNotifier_Send(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Healing run passed",
		Message: "3 failures found, 3 fixed",
		Type:    NotifySuccess,
		RunID:   "run-1",
		Branch:  "ALPHA_KIM_AI_FIX",
	})
	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
	if !strings.Contains(gotBody, "run-1 on ALPHA_KIM_AI_FIX") {
		t.Errorf("attachment title missing run reference: %s", gotBody)
	}
}

func TestSlackNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	if err := notifier.Send(Notification{Title: "x"}); err == nil {
		t.Error("expected error on non-200 response")
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestRunCompleted(t *testing.T) {
	finishedRun := func(status domain.FinalStatus) *domain.Run {
		return &domain.Run{
			ID:         "run-1",
			RepoURL:    "https://github.com/owner/repo",
			BranchName: "T_L_AI_FIX",
			Status:     domain.RunCompleted,
			Result: &domain.Result{
				Summary: domain.RunSummary{
					FailuresFound: 2,
					FixesApplied:  2,
					FinalCIStatus: status,
				},
				Score: domain.ScoreBreakdown{Total: 110},
			},
		}
	}

	n := RunCompleted(finishedRun(domain.FinalPassed))
	if n.Type != NotifySuccess {
		t.Errorf("got type %v, want success", n.Type)
	}
	if !strings.Contains(n.Message, "score 110") {
		t.Errorf("got message %q", n.Message)
	}

	n = RunCompleted(finishedRun(domain.FinalFailed))
	if n.Type != NotifyWarning {
		t.Errorf("got type %v, want warning", n.Type)
	}

	n = RunCompleted(&domain.Run{
		ID:     "run-2",
		Status: domain.RunFailed,
		Error:  "clone failed",
	})
	if n.Type != NotifyError || n.Message != "clone failed" {
		t.Errorf("got %+v", n)
	}
}
