package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"

	"github.com/RichardoC/pawtrack/internal/models"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL COLLATE NOCASE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_patient_seq ON messages (patient_id, seq);

CREATE TABLE IF NOT EXISTS purge_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    patient_id TEXT NOT NULL COLLATE NOCASE,
    attempted INTEGER NOT NULL DEFAULT 0,
    confirmed INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    pages INTEGER NOT NULL DEFAULT 0,
    partial BOOLEAN NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS purge_runs_patient ON purge_runs (patient_id, started_at);`

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY under the
	// store's concurrent deletes and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to apply schema: %w", err), db.Close())
	}

	return &Database{db: db}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// SaveMessage inserts msg, assigning an id and timestamp when unset.
func (db *Database) SaveMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO messages (id, patient_id, role, content, created_at, seq)
        VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages))`

	_, err := db.db.ExecContext(ctx, query, msg.ID, msg.PatientID, string(msg.Role), msg.Content, msg.CreatedAt)
	return err
}

// ListMessages returns one window of a patient's messages in insertion order.
func (db *Database) ListMessages(ctx context.Context, patientID string, offset, limit int) ([]models.Message, error) {
	query := `
        SELECT id, patient_id, role, content, created_at
        FROM messages
        WHERE patient_id = ?
        ORDER BY seq
        LIMIT ? OFFSET ?`

	rows, err := db.db.QueryContext(ctx, query, patientID, limit, offset)
	if err != nil {
		return []models.Message{}, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var role string
		err := rows.Scan(&msg.ID, &msg.PatientID, &role, &msg.Content, &msg.CreatedAt)
		if err != nil {
			return []models.Message{}, err
		}
		msg.Role = models.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (db *Database) CountMessages(ctx context.Context, patientID string) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE patient_id = ?", patientID).Scan(&n)
	return n, err
}

// DeleteMessage removes one message, returning ErrNotFound if it is absent.
func (db *Database) DeleteMessage(ctx context.Context, id string) error {
	res, err := db.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPurge stores an audit entry for one purge run.
func (db *Database) RecordPurge(ctx context.Context, run *models.PurgeRun) error {
	query := `
        INSERT INTO purge_runs (patient_id, attempted, confirmed, failed, skipped, pages, partial, status, error, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id`

	return db.db.QueryRowContext(ctx, query,
		run.PatientID, run.Attempted, run.Confirmed, run.Failed, run.Skipped, run.Pages,
		run.Partial, run.Status, run.Error, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	).Scan(&run.ID)
}

// ListPurges returns the most recent purge runs for a patient, newest first.
func (db *Database) ListPurges(ctx context.Context, patientID string, limit int) ([]models.PurgeRun, error) {
	query := `
        SELECT id, patient_id, attempted, confirmed, failed, skipped, pages, partial, status, error, started_at, finished_at
        FROM purge_runs
        WHERE patient_id = ?
        ORDER BY started_at DESC, id DESC
        LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, patientID, limit)
	if err != nil {
		return []models.PurgeRun{}, fmt.Errorf("failed to list purge runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.PurgeRun, 0)
	for rows.Next() {
		var run models.PurgeRun
		if err := rows.Scan(&run.ID, &run.PatientID, &run.Attempted, &run.Confirmed, &run.Failed,
			&run.Skipped, &run.Pages, &run.Partial, &run.Status, &run.Error,
			&run.StartedAt, &run.FinishedAt); err != nil {
			return []models.PurgeRun{}, fmt.Errorf("failed to scan purge run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
