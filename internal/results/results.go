// Package results builds and persists the final result payload of a
// healing run.
package results

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
)

// Params carries everything the payload builder needs from a finished
// run.
type Params struct {
	RunID       string
	RepoURL     string
	TeamName    string
	LeaderName  string
	BranchName  string
	Fixes       []domain.FixEntry
	Timeline    []domain.IterationSummary
	StartTime   time.Time
	EndTime     time.Time
	FinalStatus domain.FinalStatus
	CommitCount int
}

const (
	baseScore       = 100
	timeBonusValue  = 10
	timeBonusLimit  = 5 * time.Minute
	commitAllowance = 20
	commitPenalty   = 2
)

// Build assembles the result payload, including the score breakdown.
func Build(p Params) *domain.Result {
	elapsed := p.EndTime.Sub(p.StartTime)

	bonus := 0
	if elapsed < timeBonusLimit {
		bonus = timeBonusValue
	}
	excess := p.CommitCount - commitAllowance
	if excess < 0 {
		excess = 0
	}
	penalty := excess * commitPenalty
	total := baseScore + bonus - penalty
	if total < 0 {
		total = 0
	}

	notes := []string{fmt.Sprintf("Base score: %d", baseScore)}
	if bonus > 0 {
		notes = append(notes, fmt.Sprintf("Time bonus (+10 if <5 min): +%d", bonus))
	} else {
		notes = append(notes, "No time bonus (run > 5 min)")
	}
	if penalty > 0 {
		notes = append(notes, fmt.Sprintf("Commit penalty (-2 per commit >20): -%d", penalty))
	} else {
		notes = append(notes, "No commit penalty")
	}

	var applied, failed int
	for _, f := range p.Fixes {
		if f.Status == domain.FixApplied {
			applied++
		} else {
			failed++
		}
	}

	fixes := p.Fixes
	if fixes == nil {
		fixes = []domain.FixEntry{}
	}
	timeline := p.Timeline
	if timeline == nil {
		timeline = []domain.IterationSummary{}
	}

	return &domain.Result{
		RunID: p.RunID,
		Summary: domain.RunSummary{
			RepoURL:          p.RepoURL,
			TeamName:         p.TeamName,
			LeaderName:       p.LeaderName,
			Branch:           p.BranchName,
			FailuresFound:    len(p.Fixes),
			FixesApplied:     applied,
			FixesFailed:      failed,
			FinalCIStatus:    p.FinalStatus,
			StartTime:        p.StartTime.UTC().Format(time.RFC3339),
			EndTime:          p.EndTime.UTC().Format(time.RFC3339),
			TotalTimeSeconds: roundTenth(elapsed.Seconds()),
			TotalTimeHuman:   formatDuration(elapsed),
			TotalCommits:     p.CommitCount,
		},
		Score: domain.ScoreBreakdown{
			Base:          baseScore,
			TimeBonus:     bonus,
			CommitPenalty: penalty,
			Total:         total,
			Notes:         notes,
		},
		FixesTable: fixes,
		Timeline:   timeline,
	}
}

// Save writes the payload as results.json under outputDir, creating
// the directory if needed.
func Save(result *domain.Result, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(outputDir, "results.json")

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	log.Printf("[results] saved %s", path)
	return nil
}

func roundTenth(seconds float64) float64 {
	return float64(int(seconds*10+0.5)) / 10
}

func formatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
