package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteFile is the database file name used inside the store directory.
const SQLiteFile = "runs.db"

// startedLayout sorts lexically in start order.
const startedLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    repository_path TEXT NOT NULL,
    command TEXT NOT NULL,
    success INTEGER NOT NULL,
    exit_code INTEGER,
    duration_ms INTEGER,
    stdout_len INTEGER NOT NULL,
    stderr_len INTEGER NOT NULL,
    record TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// SQLiteStore keeps records in a SQLite database. Summary columns are
// stored next to the full JSON record so the run log can be queried
// directly.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) <dir>/runs.db. An empty dir selects a
// new temp directory.
func OpenSQLiteStore(dir string) (*SQLiteStore, error) {
	if dir == "" {
		d, err := os.MkdirTemp("", "gitcmd-runs-*")
		if err != nil {
			return nil, fmt.Errorf("creating record directory: %w", err)
		}
		dir = d
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating record directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, SQLiteFile)+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts rec, replacing any record with the same ID.
func (s *SQLiteStore) Save(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling record %s: %w", rec.ID, err)
	}
	command, err := json.Marshal(rec.Result.Command)
	if err != nil {
		return fmt.Errorf("marshalling command %s: %w", rec.ID, err)
	}

	var exitCode, durationMs sql.NullInt64
	if rec.Result.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*rec.Result.ExitCode), Valid: true}
	}
	if rec.Result.ExecutionTimeMs != nil {
		durationMs = sql.NullInt64{Int64: int64(*rec.Result.ExecutionTimeMs), Valid: true}
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO runs (id, started_at, repository_path, command, success, exit_code, duration_ms, stdout_len, stderr_len, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StartedAt.UTC().Format(startedLayout), rec.Result.RepositoryPath, string(command),
		rec.Result.Success, exitCode, durationMs, len(rec.Result.Stdout), len(rec.Result.Stderr), string(data))
	if err != nil {
		return fmt.Errorf("writing record %s: %w", rec.ID, err)
	}
	return nil
}

// Load reads the record for runID. An unknown ID yields ErrNotFound.
func (s *SQLiteStore) Load(runID string) (*Record, error) {
	var data string
	err := s.db.QueryRow(`SELECT record FROM runs WHERE id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", runID, err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshalling record %s: %w", runID, err)
	}
	return &rec, nil
}

// Recent returns the IDs of the n most recently started runs, newest first.
func (s *SQLiteStore) Recent(n int) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
