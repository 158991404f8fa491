package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection and serves as a ledger backend.
type DB struct {
	conn  *sql.DB
	clock clockwork.Clock
}

// DBOption configures a DB.
type DBOption func(*DB)

// WithClock sets the clock used for timestamps (for testing).
func WithClock(c clockwork.Clock) DBOption {
	return func(db *DB) {
		db.clock = c
	}
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(path string, opts ...DBOption) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posted (
		url TEXT PRIMARY KEY,
		posted_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		score REAL NOT NULL,
		post_id TEXT,
		posted_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_posted_at ON history(posted_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// LoadKeys returns every posted URL.
func (db *DB) LoadKeys(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT url FROM posted`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		keys = append(keys, url)
	}
	return keys, rows.Err()
}

// AppendKeys inserts keys in one transaction; existing keys are ignored.
func (db *DB) AppendKeys(ctx context.Context, keys []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO posted (url, posted_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := db.clock.Now().UTC()
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k, now); err != nil {
			return fmt.Errorf("insert %q: %w", k, err)
		}
	}

	return tx.Commit()
}

// WriteHistory appends a row to the publish history.
func (db *DB) WriteHistory(ctx context.Context, entry HistoryEntry) error {
	postedAt := entry.PostedAt
	if postedAt.IsZero() {
		postedAt = db.clock.Now().UTC()
	}

	query := `INSERT INTO history (url, title, score, post_id, posted_at) VALUES (?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, query, entry.URL, entry.Title, entry.Score, entry.PostID, postedAt)
	return err
}

// GetPostedAt returns when url was recorded.
func (db *DB) GetPostedAt(ctx context.Context, url string) (time.Time, error) {
	var postedAt time.Time
	err := db.conn.QueryRowContext(ctx, `SELECT posted_at FROM posted WHERE url = ?`, url).Scan(&postedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	return postedAt, err
}

// RecentHistory returns the latest history entries, newest first.
func (db *DB) RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	query := `SELECT url, title, score, COALESCE(post_id, ''), posted_at FROM history ORDER BY posted_at DESC, id DESC LIMIT ?`
	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.URL, &e.Title, &e.Score, &e.PostID, &e.PostedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
