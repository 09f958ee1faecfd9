package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"notisd/internal/notify"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on incompatible schema changes; an old database is
// rejected rather than migrated, the history file is cheap to recreate.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by an incompatible
// version.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// DB persists history entries in SQLite.
type DB struct {
	db   *sql.DB
	path string
}

// OpenDB initializes or connects to the history database.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	d := &DB{db: db, path: path}
	if err := d.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) initSchema(ctx context.Context) error {
	var tableExists int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if _, err := d.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := d.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	}

	var version int
	if err := d.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, d.path)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		time.Sleep(delay)
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Save upserts one entry. The image pixmap is dropped; it is sender-transient
// data that does not belong in the on-disk history.
func (d *DB) Save(e *Entry) error {
	n := e.Notification.Clone()
	n.Image = nil

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %d: %w", n.ID, err)
	}

	var closedAt any
	if !e.ClosedAt.IsZero() {
		closedAt = e.ClosedAt.UTC().Format(time.RFC3339Nano)
	}

	return retryOnBusy(func() error {
		_, err := d.db.Exec(`
INSERT INTO notifications (id, app, summary, closed, reason, closed_at, created_at, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    app = excluded.app,
    summary = excluded.summary,
    closed = excluded.closed,
    reason = excluded.reason,
    closed_at = excluded.closed_at,
    created_at = excluded.created_at,
    payload = excluded.payload`,
			n.ID, n.App, n.Summary, boolToInt(e.Closed), int(e.Reason), closedAt,
			n.CreatedAt.UTC().Format(time.RFC3339Nano), string(payload))
		return err
	})
}

// Delete removes one entry.
func (d *DB) Delete(id uint32) error {
	return retryOnBusy(func() error {
		_, err := d.db.Exec("DELETE FROM notifications WHERE id = ?", id)
		return err
	})
}

// DeleteClosed removes every closed entry.
func (d *DB) DeleteClosed() error {
	return retryOnBusy(func() error {
		_, err := d.db.Exec("DELETE FROM notifications WHERE closed = 1")
		return err
	})
}

// LoadAll returns all persisted entries ordered oldest first, plus the
// highest id seen, so the identifier sequence resumes past anything on disk.
func (d *DB) LoadAll() ([]Entry, uint32, error) {
	rows, err := d.db.Query(
		"SELECT id, closed, reason, closed_at, payload FROM notifications ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, 0, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var (
		entries []Entry
		maxID   uint32
	)
	for rows.Next() {
		var (
			id       uint32
			closed   int
			reason   int
			closedAt sql.NullString
			payload  string
		)
		if err := rows.Scan(&id, &closed, &reason, &closedAt, &payload); err != nil {
			return nil, 0, fmt.Errorf("scan history row: %w", err)
		}

		var n notify.Notification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			// A corrupt row is skipped rather than poisoning startup.
			continue
		}
		n.ID = id

		e := Entry{
			Notification: &n,
			Closed:       closed != 0,
			Reason:       notify.CloseReason(reason),
		}
		if closedAt.Valid {
			if at, err := time.Parse(time.RFC3339Nano, closedAt.String); err == nil {
				e.ClosedAt = at
			}
		}
		entries = append(entries, e)
		if id > maxID {
			maxID = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, maxID, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
