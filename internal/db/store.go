// Package db provides SQLite storage for the task-to-event mapping.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned when a task ID has no row.
var ErrNotFound = errors.New("task not found")

// Store persists tasks and their calendar event mappings. Parents of complex
// tasks have a task row but no event mapping; simple tasks and subtasks have
// both.
type Store struct {
	db *sql.DB
}

// Record is one stored task joined with its event mapping. CalendarID and
// EventID are empty for parent rows, which carry no calendar event.
type Record struct {
	ID         string
	Title      string
	ParentID   *string
	CalendarID string
	EventID    string
}

// Open creates the database file if needed and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// modernc sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	handle.SetMaxOpenConns(1)

	if err := handle.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{db: handle}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version < 1 {
		schema := `
			CREATE TABLE IF NOT EXISTS tasks (
				id        TEXT PRIMARY KEY,
				title     TEXT NOT NULL,
				parent_id TEXT
			);
			CREATE TABLE IF NOT EXISTS event_map (
				task_id           TEXT PRIMARY KEY,
				calendar_id       TEXT NOT NULL,
				calendar_event_id TEXT NOT NULL,
				UNIQUE(calendar_id, calendar_event_id),
				FOREIGN KEY (task_id) REFERENCES tasks(id)
			);
			CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
			PRAGMA user_version = 1;
		`
		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("applying schema v1: %w", err)
		}
	}

	return nil
}

// SaveTask upserts a task row without touching the event mapping.
func (s *Store) SaveTask(ctx context.Context, id, title string, parentID *string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tasks (id, title, parent_id) VALUES (?, ?, ?)`,
		id, title, parentID)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", id, err)
	}
	return nil
}

// SaveScheduled upserts a task row together with its event mapping in one
// transaction.
func (s *Store) SaveScheduled(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO tasks (id, title, parent_id) VALUES (?, ?, ?)`,
		rec.ID, rec.Title, rec.ParentID); err != nil {
		return fmt.Errorf("inserting task %s: %w", rec.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO event_map (task_id, calendar_id, calendar_event_id) VALUES (?, ?, ?)`,
		rec.ID, rec.CalendarID, rec.EventID); err != nil {
		return fmt.Errorf("inserting event mapping for %s: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Get returns one task with its event mapping if present.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.title, t.parent_id, COALESCE(e.calendar_id, ''), COALESCE(e.calendar_event_id, '')
		FROM tasks t
		LEFT JOIN event_map e ON e.task_id = t.id
		WHERE t.id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying task %s: %w", id, err)
	}
	return rec, nil
}

// Children returns the subtasks of a parent, with mappings.
func (s *Store) Children(ctx context.Context, parentID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.parent_id, COALESCE(e.calendar_id, ''), COALESCE(e.calendar_event_id, '')
		FROM tasks t
		LEFT JOIN event_map e ON e.task_id = t.id
		WHERE t.parent_id = ?
		ORDER BY t.id
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("querying children of %s: %w", parentID, err)
	}
	return collectRecords(rows)
}

// List returns every stored task, parents first, then by ID.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.parent_id, COALESCE(e.calendar_id, ''), COALESCE(e.calendar_event_id, '')
		FROM tasks t
		LEFT JOIN event_map e ON e.task_id = t.id
		ORDER BY COALESCE(t.parent_id, t.id), t.parent_id IS NOT NULL, t.id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	return collectRecords(rows)
}

// Delete removes a task row and its event mapping. Deleting a missing task
// is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_map WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("deleting event mapping for %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanRecord(row *sql.Row) (*Record, error) {
	var (
		rec    Record
		parent sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Title, &parent, &rec.CalendarID, &rec.EventID); err != nil {
		return nil, err
	}
	if parent.Valid {
		rec.ParentID = &parent.String
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			rec    Record
			parent sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &parent, &rec.CalendarID, &rec.EventID); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		if parent.Valid {
			rec.ParentID = &parent.String
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}
	return out, nil
}
