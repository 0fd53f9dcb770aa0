package domain

// RunSummary describes the outcome of one run
type RunSummary struct {
	RepoURL          string      `json:"repo_url"`
	TeamName         string      `json:"team_name"`
	LeaderName       string      `json:"leader_name"`
	Branch           string      `json:"branch"`
	FailuresFound    int         `json:"failures_found"`
	FixesApplied     int         `json:"fixes_applied"`
	FixesFailed      int         `json:"fixes_failed"`
	FinalCIStatus    FinalStatus `json:"final_ci_status"`
	StartTime        string      `json:"start_time"`
	EndTime          string      `json:"end_time"`
	TotalTimeSeconds float64     `json:"total_time_seconds"`
	TotalTimeHuman   string      `json:"total_time_human"`
	TotalCommits     int         `json:"total_commits"`
}

// ScoreBreakdown is the scoring section of the result payload
type ScoreBreakdown struct {
	Base          int      `json:"base"`
	TimeBonus     int      `json:"time_bonus"`
	CommitPenalty int      `json:"commit_penalty"`
	Total         int      `json:"total"`
	Notes         []string `json:"breakdown_notes"`
}

// Result is the final payload written once per run
type Result struct {
	RunID      string             `json:"run_id"`
	Summary    RunSummary         `json:"run_summary"`
	Score      ScoreBreakdown     `json:"score_breakdown"`
	FixesTable []FixEntry         `json:"fixes_table"`
	Timeline   []IterationSummary `json:"cicd_timeline"`
}
