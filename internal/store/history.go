// Package store persists the client's job history: every tracked job that
// reached a terminal state, surviving process restarts. The polling engine
// itself is memory-only; history is what the user sees after reopening the
// app.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

// Entry is one recorded terminal job outcome.
type Entry struct {
	JobID      string
	Kind       string
	Status     string
	StartedAt  int64 // unix millis
	FinishedAt int64 // unix millis
}

// History is the sqlite-backed job history store.
type History struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenHistory opens (or creates) the history database at path.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	h := &History{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("job history opened", "path", path)
	return h, nil
}

func (h *History) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_history (
			job_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL DEFAULT 0,
			finished_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_history_kind ON job_history(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_job_history_finished ON job_history(finished_at)`,
	}
	for _, stmt := range stmts {
		if _, err := h.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Record upserts a terminal outcome. Recording the same job twice keeps the
// latest status, so a re-observed terminal state is harmless.
func (h *History) Record(e Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.db.Exec(`INSERT OR REPLACE INTO job_history (job_id, kind, status, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.JobID, e.Kind, e.Status, e.StartedAt, e.FinishedAt)
	if err != nil {
		return fmt.Errorf("record job outcome: %w", err)
	}
	return nil
}

// Recent returns the most recently finished entries, newest first.
func (h *History) Recent(limit int) ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(`SELECT job_id, kind, status, started_at, finished_at
		FROM job_history ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.JobID, &e.Kind, &e.Status, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}
