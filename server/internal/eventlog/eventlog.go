// Package eventlog keeps the request and error history served by GET /log in
// a small SQLite database, trimmed to the newest records.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultMaxRecords is the retention used when none is configured.
const DefaultMaxRecords = 500

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL,
	text       TEXT NOT NULL
);`

// Log is safe for concurrent use.
type Log struct {
	db         *sql.DB
	maxRecords int
	now        func() time.Time
}

// Open opens or creates the log database at path. maxRecords <= 0 keeps
// every record.
func Open(path string, maxRecords int) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: create schema: %w", err)
	}
	return &Log{db: db, maxRecords: maxRecords, now: time.Now}, nil
}

// Close closes the database.
func (l *Log) Close() error { return l.db.Close() }

// Record appends text and trims the log to the retention limit.
func (l *Log) Record(ctx context.Context, text string) error {
	text = strings.TrimRight(text, "\n")
	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO records (created_at, text) VALUES (?, ?)`,
		l.now().UnixNano(), text,
	); err != nil {
		return fmt.Errorf("eventlog: record: %w", err)
	}
	if l.maxRecords <= 0 {
		return nil
	}
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM records WHERE id NOT IN (SELECT id FROM records ORDER BY id DESC LIMIT ?)`,
		l.maxRecords,
	); err != nil {
		return fmt.Errorf("eventlog: trim: %w", err)
	}
	return nil
}

// Dump returns every record, oldest first, one per line as
// "Y:M:D::h:m:s@ text".
func (l *Log) Dump(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT created_at, text FROM records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("eventlog: dump: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ts int64
		var text string
		if err := rows.Scan(&ts, &text); err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		out = append(out, Format(time.Unix(0, ts).In(l.now().Location()), text))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: dump: %w", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (l *Log) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("eventlog: count: %w", err)
	}
	return n, nil
}

// Flush deletes every record.
func (l *Log) Flush(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("eventlog: flush: %w", err)
	}
	return nil
}

// Format renders one record. Fields are not zero padded.
func Format(t time.Time, text string) string {
	return fmt.Sprintf("%d:%d:%d::%d:%d:%d@ %s\n",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), text)
}
