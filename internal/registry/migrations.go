package registry

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    repo_url TEXT NOT NULL,
    team_name TEXT NOT NULL,
    leader_name TEXT NOT NULL,
    branch TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT,
    result TEXT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
`
