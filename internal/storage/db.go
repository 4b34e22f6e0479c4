package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"exteroid/internal"
)

type DB struct {
	conn *sql.DB
}

// Open creates the database file and its directory if needed and applies the
// schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer; PRAGMAs below stick to this connection.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

var schema = []string{
	`PRAGMA journal_mode = WAL`,
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  message_id TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  received_at TEXT,
  content_hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  raw_path TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, message_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_hash ON emails(provider, content_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_status ON emails(status, received_at)`,
	`CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  trace_id TEXT NOT NULL,
  tool TEXT NOT NULL,
  source TEXT NOT NULL,
  email_id INTEGER REFERENCES emails(id),
  rows_before INTEGER NOT NULL DEFAULT 0,
  rows_after INTEGER NOT NULL DEFAULT 0,
  files_json TEXT NOT NULL,
  stats_json TEXT NOT NULL,
  failures_json TEXT NOT NULL,
  output_path TEXT,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_email_id ON runs(email_id)`,
	`CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
}

func (d *DB) migrate() error {
	for _, stmt := range schema {
		if _, err := d.conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

const emailColumns = `id, provider, message_id, subject, sender, received_at, content_hash, status, raw_path`

func scanEmail(scan func(dest ...any) error) (internal.EmailRow, error) {
	var row internal.EmailRow
	err := scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawPath, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, message_id, subject, sender, received_at, content_hash, status, raw_path)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, message_id) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  received_at=excluded.received_at,
  content_hash=excluded.content_hash,
  raw_path=excluded.raw_path,
  updated_at=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawPath)
	if err != nil {
		return internal.EmailRow{}, err
	}

	return d.MustEmailByProviderMessageID(provider, messageID)
}

// findEmail returns nil without error when nothing matches.
func (d *DB) findEmail(where string, args ...any) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE `+where, args...).Scan)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	return d.findEmail(`provider = ? AND message_id = ?`, provider, messageID)
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	return d.findEmail(`id = ?`, id)
}

// GetEmailByHash finds an earlier copy of the same raw message, possibly
// delivered under another message id.
func (d *DB) GetEmailByHash(provider, hash string) (*internal.EmailRow, error) {
	return d.findEmail(`provider = ? AND content_hash = ? ORDER BY id ASC LIMIT 1`, provider, hash)
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY received_at ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s message_id=%s", provider, messageID)
	}
	return *row, nil
}

// InsertRun records one pipeline run. emailID is 0 for runs that did not
// start from a stored message.
func (d *DB) InsertRun(run internal.RunRecord, emailID int) (int64, error) {
	var email sql.NullInt64
	if emailID > 0 {
		email = sql.NullInt64{Int64: int64(emailID), Valid: true}
	}
	if run.Failures == nil {
		run.Failures = []internal.FileFailure{}
	}
	result, err := d.conn.Exec(`
INSERT INTO runs (trace_id, tool, source, email_id, rows_before, rows_after, files_json, stats_json, failures_json, output_path)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.TraceID, run.Tool, run.Source, email, run.Stats.TotalBefore, run.Stats.Final,
		jsonText(nonNil(run.Files)), jsonText(run.Stats), jsonText(run.Failures), run.OutputPath)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return result.LastInsertId()
}

func jsonText(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// ListRuns returns the most recent runs first.
func (d *DB) ListRuns(limit int) ([]internal.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
SELECT id, trace_id, tool, source, files_json, stats_json, failures_json, COALESCE(output_path, ''), created_at
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRecord
	for rows.Next() {
		var run internal.RunRecord
		var filesJSON, statsJSON, failuresJSON string
		if err := rows.Scan(&run.ID, &run.TraceID, &run.Tool, &run.Source, &filesJSON, &statsJSON, &failuresJSON, &run.OutputPath, &run.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(filesJSON), &run.Files)
		_ = json.Unmarshal([]byte(statsJSON), &run.Stats)
		_ = json.Unmarshal([]byte(failuresJSON), &run.Failures)
		out = append(out, run)
	}
	return out, rows.Err()
}

func nonNil(files []string) []string {
	if files == nil {
		return []string{}
	}
	return files
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
