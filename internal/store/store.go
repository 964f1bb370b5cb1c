package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/probe"
)

// Store keeps the history of probe runs
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the history database location in the cache dir
func DefaultDBPath() (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "history.db"), nil
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		screenshot TEXT,
		status TEXT NOT NULL,
		stage TEXT,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checks (
		run_id TEXT NOT NULL REFERENCES runs(id),
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		selector TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveReport inserts or replaces a run and its checks
func (s *Store) SaveReport(r *probe.Report) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, url, screenshot, status, stage, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			screenshot = excluded.screenshot,
			status = excluded.status,
			stage = excluded.stage,
			error = excluded.error,
			finished_at = excluded.finished_at
	`, r.ID, r.URL, r.Screenshot, string(r.Status()), string(r.Stage), r.Error,
		r.StartedAt.UTC(), r.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM checks WHERE run_id = ?`, r.ID); err != nil {
		return err
	}

	for i, c := range r.Checks {
		_, err := tx.Exec(`
			INSERT INTO checks (run_id, position, name, selector, outcome, detail)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, i, c.Name, c.Selector, string(c.Outcome), c.Detail)
		if err != nil {
			return fmt.Errorf("failed to save check %q: %w", c.Name, err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns the latest runs, newest first
func (s *Store) RecentRuns(limit int) ([]RunSummary, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.url, r.status, r.error, r.started_at, r.finished_at,
			COALESCE(SUM(c.outcome = 'passed'), 0),
			COALESCE(SUM(c.outcome = 'failed'), 0),
			COALESCE(SUM(c.outcome = 'skipped'), 0)
		FROM runs r
		LEFT JOIN checks c ON c.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var rs RunSummary
		var status string
		var startedAt, finishedAt time.Time

		err := rows.Scan(&rs.ID, &rs.URL, &status, &rs.Error, &startedAt, &finishedAt,
			&rs.Passed, &rs.Failed, &rs.Skipped)
		if err != nil {
			return nil, err
		}

		rs.Status = probe.Status(status)
		rs.StartedAt = startedAt
		rs.Duration = finishedAt.Sub(startedAt)
		runs = append(runs, rs)
	}

	return runs, rows.Err()
}

// GetRun loads a full report by ID
func (s *Store) GetRun(id string) (*probe.Report, error) {
	r := &probe.Report{ID: id}
	var stage string

	err := s.db.QueryRow(`
		SELECT url, screenshot, stage, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(&r.URL, &r.Screenshot, &stage, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	r.Stage = probe.Stage(stage)

	rows, err := s.db.Query(`
		SELECT name, selector, outcome, detail
		FROM checks WHERE run_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c probe.CheckResult
		var outcome string
		if err := rows.Scan(&c.Name, &c.Selector, &outcome, &c.Detail); err != nil {
			return nil, err
		}
		c.Outcome = probe.Outcome(outcome)
		r.Checks = append(r.Checks, c)
	}

	return r, rows.Err()
}

// LatestScreenshot returns the screenshot path of the newest run that wrote one
func (s *Store) LatestScreenshot() (string, error) {
	var path string
	err := s.db.QueryRow(`
		SELECT screenshot FROM runs
		WHERE screenshot != ''
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&path)
	return path, err
}

// ResolveID expands a unique run ID prefix to the full ID. The prefix is
// matched literally.
func (s *Store) ResolveID(prefix string) (string, error) {
	rows, err := s.db.Query(`SELECT id FROM runs WHERE substr(id, 1, length(?)) = ? LIMIT 2`, prefix, prefix)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", sql.ErrNoRows
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run id prefix %q is ambiguous", prefix)
	}
}
