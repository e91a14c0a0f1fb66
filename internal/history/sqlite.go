package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS generation_history (
	id         TEXT PRIMARY KEY,
	timestamp  INTEGER NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generation_history_timestamp ON generation_history(timestamp DESC);
`

// SQLiteStore keeps one row per record and enforces the same capacity cap as
// FileStore.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	capacity int
	now      func() time.Time
}

// NewSQLiteStore opens the database at path and creates the table.
func NewSQLiteStore(path string, capacity int) (*SQLiteStore, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("history capacity must be positive, got %d", capacity)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &SQLiteStore{db: db, path: path, capacity: capacity, now: time.Now}, nil
}

// Backend implements Store.
func (s *SQLiteStore) Backend() string { return "sqlite:" + s.path }

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) (Record, error) {
	rec = stamp(rec, s.now())
	payload, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode history record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO generation_history (id, timestamp, payload) VALUES (?, ?, ?)`,
		rec.ID, rec.Timestamp, string(payload)); err != nil {
		return Record{}, fmt.Errorf("failed to insert history record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM generation_history WHERE id NOT IN (
			SELECT id FROM generation_history ORDER BY timestamp DESC, id DESC LIMIT ?
		)`, s.capacity); err != nil {
		return Record{}, fmt.Errorf("failed to trim history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("failed to commit history record: %w", err)
	}
	return rec, nil
}

// List implements Store. The cursor is a decimal offset.
func (s *SQLiteStore) List(ctx context.Context, limit int, cursor string) (*Page, error) {
	limit = normalizeLimit(limit)
	offset := parseOffset(cursor)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generation_history`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}
	records, err := s.query(ctx,
		`SELECT payload FROM generation_history ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	p := &Page{Records: records, Total: total, HasMore: offset+limit < total}
	if p.HasMore {
		p.NextCursor = strconv.Itoa(offset + limit)
	}
	return p, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM generation_history WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	return nil
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	all, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(all), nil
}

// Records implements Store.
func (s *SQLiteStore) Records(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `SELECT payload FROM generation_history ORDER BY timestamp DESC, id DESC`)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []Record{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode history row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return records, nil
}
