// Package notify reports run completions to configured channels.
package notify

import (
	"fmt"
	"log"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/config"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
	Branch  string // Optional branch the run pushed to
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) Send(n Notification) error {
	log.Printf("[notify] %s: %s", n.Title, n.Message)
	return nil
}

// FromConfig builds the notifier fan-out for the given settings. The
// log channel is always active; Slack joins it when a webhook is set.
func FromConfig(cfg config.NotificationsConfig) Notifier {
	notifiers := []Notifier{LogNotifier{}}
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg.SlackWebhook))
	}
	return NewMultiNotifier(notifiers...)
}

// RunCompleted builds the completion notification for a finished run.
func RunCompleted(run *domain.Run) Notification {
	n := Notification{
		RunID:  run.ID,
		Branch: run.BranchName,
	}

	st := run.State()
	if st.Status == domain.RunFailed {
		n.Type = NotifyError
		n.Title = fmt.Sprintf("Healing run failed for %s", run.RepoURL)
		n.Message = st.Error
		return n
	}

	result := st.Result
	if result != nil && result.Summary.FinalCIStatus == domain.FinalPassed {
		n.Type = NotifySuccess
		n.Title = fmt.Sprintf("Healing run passed for %s", run.RepoURL)
	} else {
		n.Type = NotifyWarning
		n.Title = fmt.Sprintf("Healing run exhausted retries for %s", run.RepoURL)
	}
	if result != nil {
		n.Message = fmt.Sprintf("%d failures found, %d fixed, %d failed on branch %s (score %d)",
			result.Summary.FailuresFound,
			result.Summary.FixesApplied,
			result.Summary.FixesFailed,
			run.BranchName,
			result.Score.Total,
		)
	}
	return n
}
