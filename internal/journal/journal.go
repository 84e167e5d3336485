// Package journal keeps a local SQLite trail of successful commits, so
// the ids the store handed out can be looked up after the console closes.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/pennh4i/tentacool/internal/model"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal closed")

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id     TEXT NOT NULL,
	prompt_id    TEXT NOT NULL,
	response_ids TEXT NOT NULL,
	count        INTEGER NOT NULL,
	prompt       TEXT NOT NULL,
	committed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_commits_committed_at ON commits(committed_at);
`

// Entry is one journaled commit.
type Entry struct {
	CycleID     string
	PromptID    model.ID
	ResponseIDs []model.ID
	Count       int
	Prompt      string
	CommittedAt time.Time
}

// Journal is a SQLite-backed commit log.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the journal at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Record appends a commit.
func (j *Journal) Record(ctx context.Context, cycleID, prompt string, receipt *model.Receipt) error {
	if j.db == nil {
		return ErrClosed
	}
	if receipt == nil {
		return errors.New("journal: nil receipt")
	}

	ids := receipt.ResponseIDs
	if ids == nil {
		ids = []model.ID{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding response ids: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO commits (cycle_id, prompt_id, response_ids, count, prompt, committed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cycleID, string(receipt.PromptID), string(idsJSON), receipt.Count, prompt, j.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("recording commit: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT cycle_id, prompt_id, response_ids, count, prompt, committed_at
		 FROM commits ORDER BY committed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			promptID string
			ids      string
			created  int64
		)
		if err := rows.Scan(&e.CycleID, &promptID, &ids, &e.Count, &e.Prompt, &created); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &e.ResponseIDs); err != nil {
			return nil, fmt.Errorf("decoding response ids: %w", err)
		}
		e.PromptID = model.ID(promptID)
		e.CommittedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
