package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bastiangx/streetmatch/internal/utils"
	"github.com/bastiangx/streetmatch/pkg/model"
	"github.com/bastiangx/streetmatch/pkg/training"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
	id         TEXT PRIMARY KEY,
	name1      TEXT NOT NULL,
	name2      TEXT NOT NULL,
	predicted  INTEGER NOT NULL,
	label      INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS feedback_created_at ON feedback(created_at);
`

// Event is one feedback label supplied by a caller.
type Event struct {
	ID        string
	Name1     string
	Name2     string
	Predicted model.Label
	Label     model.Label
	CreatedAt time.Time
}

// Journal is an append-only SQLite log of feedback events.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens or creates the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// applyPragmas configures SQLite for a single writer process.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an event, filling in ID and CreatedAt when empty.
func (j *Journal) Record(ctx context.Context, e Event) (Event, error) {
	if !e.Label.Valid() || !e.Predicted.Valid() {
		return Event{}, fmt.Errorf("record feedback: %w", model.ErrInvalidLabel)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO feedback (id, name1, name2, predicted, label, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name1, e.Name2, int(e.Predicted), int(e.Label), e.CreatedAt)
	if err != nil {
		return Event{}, fmt.Errorf("record feedback: %w", err)
	}
	return e, nil
}

// Events returns every event in insertion order.
func (j *Journal) Events(ctx context.Context) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, name1, name2, predicted, label, created_at FROM feedback ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var predicted, label int
		if err := rows.Scan(&e.ID, &e.Name1, &e.Name2, &predicted, &label, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		e.Predicted, e.Label = model.Label(predicted), model.Label(label)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of journaled events.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count feedback: %w", err)
	}
	return n, nil
}

// Examples converts every event into a labeled training pair.
func (j *Journal) Examples(ctx context.Context) ([]training.Example, error) {
	events, err := j.Events(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]training.Example, len(events))
	for i, e := range events {
		out[i] = training.Example{Name1: e.Name1, Name2: e.Name2, Label: e.Label}
	}
	return out, nil
}
