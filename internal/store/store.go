// Package store is the explicit snapshot archive. A session snapshot is
// written only when a user asks for it; live sessions never touch the
// database. Archived snapshots can be listed, fetched and re-imported.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docchat-go/internal/session"
)

// ErrNotFound is returned by Get for an unknown archive id.
var ErrNotFound = errors.New("store: snapshot not found")

// Entry describes one archived snapshot.
type Entry struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	DocumentName string    `json:"document_name"`
	Messages     int       `json:"messages"`
	ArchivedAt   time.Time `json:"archived_at"`
}

// Record is an archived snapshot with its JSON payload, in the session
// export format.
type Record struct {
	Entry
	Payload json.RawMessage `json:"snapshot"`
}

// Archive persists session snapshots. Implementations must be safe for
// concurrent use.
type Archive interface {
	// Save stores a snapshot and returns its archive entry.
	Save(ctx context.Context, snap session.Snapshot) (Entry, error)
	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]Entry, error)
	// Get returns one archived snapshot.
	Get(ctx context.Context, id int64) (*Record, error)
	// Close releases any resources held by the archive.
	Close() error
}

// SQLiteStore is an Archive backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB

	now func() time.Time
}

// DefaultDBPath returns the default path for the archive database. It
// resolves to ~/.docchat/archive.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "archive.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS snapshots (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    TEXT    NOT NULL,
    name          TEXT    NOT NULL,
    document_name TEXT    NOT NULL DEFAULT '',
    message_count INTEGER NOT NULL,
    payload       TEXT    NOT NULL,
    archived_at   INTEGER NOT NULL  -- Unix timestamp (milliseconds)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_archived
    ON snapshots (archived_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save stores snap as JSON.
func (s *SQLiteStore) Save(ctx context.Context, snap session.Snapshot) (Entry, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return Entry{}, fmt.Errorf("store: encode snapshot: %w", err)
	}
	e := Entry{
		SessionID:    snap.ID,
		Name:         snap.Name,
		DocumentName: snap.DocumentName,
		Messages:     len(snap.Messages),
		ArchivedAt:   s.now().UTC().Truncate(time.Millisecond),
	}

	const q = `INSERT INTO snapshots (session_id, name, document_name, message_count, payload, archived_at)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, e.SessionID, e.Name, e.DocumentName, e.Messages, string(payload), e.ArchivedAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("store: save: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return Entry{}, fmt.Errorf("store: save id: %w", err)
	}
	return e, nil
}

// List returns up to limit entries, newest first. A non-positive limit
// returns every entry.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	const q = `
SELECT id, session_id, name, document_name, message_count, archived_at
FROM   snapshots
ORDER  BY archived_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Name, &e.DocumentName, &e.Messages, &ts); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		e.ArchivedAt = time.UnixMilli(ts).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return entries, nil
}

// Get returns the archived snapshot with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Record, error) {
	const q = `
SELECT id, session_id, name, document_name, message_count, payload, archived_at
FROM   snapshots
WHERE  id = ?`

	var r Record
	var payload string
	var ts int64
	err := s.db.QueryRowContext(ctx, q, id).Scan(&r.ID, &r.SessionID, &r.Name, &r.DocumentName, &r.Messages, &payload, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	r.Payload = json.RawMessage(payload)
	r.ArchivedAt = time.UnixMilli(ts).UTC()
	return &r, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
