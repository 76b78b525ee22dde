// Package cache persists the school document between command invocations
// in an embedded SQLite database.
//
// Architecture:
//   - Database file: .jadwal/cache.db (one per data directory)
//   - WAL mode: the hub and a CLI command may read while another writes
//   - Schema: sections (one row per document section), sync_log (outcome
//     of every load or write against the remote store), export_tables
//     (the last denormalized export, served by the hub)
//
// The cache never decides what is authoritative. The load coordinator
// hydrates from the remote store on top of whatever the cache held.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
)

// FileName is the cache database name inside the data directory.
const FileName = "cache.db"

// Cache wraps the SQLite connection.
type Cache struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// SyncRecord is one entry of the sync log.
type SyncRecord struct {
	Status string
	Error  string
	At     time.Time
}

// Open creates or opens the cache at path, creating parent directories and
// the schema as needed.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	c := &Cache{conn: conn, path: path, now: time.Now}

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := c.conn.Exec(p.stmt); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	if err := c.initSchema(context.Background()); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close checkpoints the WAL and closes the connection.
func (c *Cache) Close() error {
	if c.conn == nil {
		return nil
	}
	if _, err := c.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	c.conn = nil
	return nil
}

func (c *Cache) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sections (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,  -- raw JSON
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		status TEXT NOT NULL,
		error TEXT,
		at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS export_tables (
		name TEXT PRIMARY KEY,
		rows TEXT NOT NULL,  -- JSON array of ordered rows
		exported_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sync_log_at ON sync_log(at);
	`
	if _, err := c.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Load returns every cached section. It returns a nil Document when the
// cache is empty.
func (c *Cache) Load(ctx context.Context) (document.Document, error) {
	rows, err := c.conn.QueryContext(ctx, `SELECT key, value FROM sections`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	var doc document.Document
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		if doc == nil {
			doc = document.Document{}
		}
		doc[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sections: %w", err)
	}
	return doc, nil
}

// SaveSection stores one section, replacing any previous value.
func (c *Cache) SaveSection(ctx context.Context, key string, raw json.RawMessage) error {
	if !document.IsSection(key) {
		return fmt.Errorf("unknown section %q", key)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("section %s: value is not valid JSON", key)
	}
	_, err := c.conn.ExecContext(ctx, `
		INSERT INTO sections (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), c.timestamp())
	if err != nil {
		return fmt.Errorf("failed to save section %s: %w", key, err)
	}
	return nil
}

// SaveDocument stores every known section of doc in one transaction.
// Sections absent from doc are left untouched.
func (c *Cache) SaveDocument(ctx context.Context, doc document.Document) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sections (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ts := c.timestamp()
	for _, key := range doc.Present() {
		raw, _ := doc.Get(key)
		if _, err := stmt.ExecContext(ctx, key, string(raw), ts); err != nil {
			return fmt.Errorf("failed to save section %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveTables replaces the stored export tables named in tables.
func (c *Cache) SaveTables(ctx context.Context, tables remote.Tables) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := c.timestamp()
	for name, rows := range tables {
		if rows == nil {
			rows = []remote.Row{}
		}
		data, err := json.Marshal(rows)
		if err != nil {
			return fmt.Errorf("failed to encode table %s: %w", name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO export_tables (name, rows, exported_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET rows = excluded.rows, exported_at = excluded.exported_at`,
			name, string(data), ts)
		if err != nil {
			return fmt.Errorf("failed to save table %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadTables returns every stored export table.
func (c *Cache) LoadTables(ctx context.Context) (remote.Tables, error) {
	rows, err := c.conn.QueryContext(ctx, `SELECT name, rows FROM export_tables`)
	if err != nil {
		return nil, fmt.Errorf("failed to query export tables: %w", err)
	}
	defer rows.Close()

	tables := remote.Tables{}
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("failed to scan export table: %w", err)
		}
		var decoded []remote.Row
		if err := json.Unmarshal([]byte(data), &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode table %s: %w", name, err)
		}
		tables[name] = decoded
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read export tables: %w", err)
	}
	return tables, nil
}

// RecordSync appends an entry to the sync log. A nil syncErr records a
// success.
func (c *Cache) RecordSync(ctx context.Context, status string, syncErr error) error {
	var errText sql.NullString
	if syncErr != nil {
		errText = sql.NullString{String: syncErr.Error(), Valid: true}
	}
	_, err := c.conn.ExecContext(ctx,
		`INSERT INTO sync_log (status, error, at) VALUES (?, ?, ?)`,
		status, errText, c.timestamp())
	if err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	return nil
}

// LastSync returns the most recent sync log entry. ok is false when the
// log is empty.
func (c *Cache) LastSync(ctx context.Context) (rec SyncRecord, ok bool, err error) {
	var errText sql.NullString
	var at string
	err = c.conn.QueryRowContext(ctx,
		`SELECT status, error, at FROM sync_log ORDER BY id DESC LIMIT 1`,
	).Scan(&rec.Status, &errText, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRecord{}, false, nil
	}
	if err != nil {
		return SyncRecord{}, false, fmt.Errorf("failed to query sync log: %w", err)
	}
	rec.Error = errText.String
	rec.At, err = time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return SyncRecord{}, false, fmt.Errorf("failed to parse sync time: %w", err)
	}
	return rec, true, nil
}

func (c *Cache) timestamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}
