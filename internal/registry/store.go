package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed run persistence so finished runs survive
// both memory eviction and process restarts.
type Store struct {
	db *sql.DB
}

// NewStore opens the database at dbPath and applies the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRun inserts or updates one run row. The final result payload is
// stored as JSON.
func (s *Store) UpsertRun(run *domain.Run) error {
	st := run.State()

	var resultJSON sql.NullString
	if st.Result != nil {
		data, err := json.Marshal(st.Result)
		if err != nil {
			return err
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	var finishedAt sql.NullTime
	if st.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *st.FinishedAt, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, repo_url, team_name, leader_name, branch, status, error, result, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			result = excluded.result,
			finished_at = excluded.finished_at
	`,
		run.ID,
		run.RepoURL,
		run.TeamName,
		run.LeaderName,
		run.BranchName,
		string(st.Status),
		st.Error,
		resultJSON,
		run.StartedAt,
		finishedAt,
	)
	return err
}

// GetRun retrieves a persisted run by ID. Returns sql.ErrNoRows when
// the run was never stored.
func (s *Store) GetRun(id string) (*domain.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, repo_url, team_name, leader_name, branch, status, error, result, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	var run domain.Run
	var status string
	var errMsg, resultJSON sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &run.RepoURL, &run.TeamName, &run.LeaderName, &run.BranchName,
		&status, &errMsg, &resultJSON, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result domain.Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, err
		}
		run.Result = &result
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	return &run, nil
}

// DeleteFinishedBefore removes persisted rows for runs that finished
// before the cutoff. Returns the number of rows removed.
func (s *Store) DeleteFinishedBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM runs
		WHERE finished_at IS NOT NULL AND finished_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
