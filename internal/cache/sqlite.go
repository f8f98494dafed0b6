// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

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

	_ "github.com/mattn/go-sqlite3"
)

const dbFile = "cache.db"

// SQLiteStore keeps every tier in one SQLite table keyed by (tier, key).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates dir/cache.db and its schema.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	if dir == "" {
		dir = ".cache"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return s, nil
}

// SetClock replaces the time source used for expiry decisions.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			tier TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			stored_at INTEGER NOT NULL,
			ttl INTEGER NOT NULL,
			PRIMARY KEY (tier, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_tier ON entries(tier)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, tier Tier, key string) (json.RawMessage, bool, error) {
	var (
		value    string
		storedAt int64
		ttl      int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, stored_at, ttl FROM entries WHERE tier = ? AND key = ?`, string(tier), key,
	).Scan(&value, &storedAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry %s/%s: %w", tier, key, err)
	}

	entry := Entry{
		Tier:     tier,
		Key:      key,
		Value:    json.RawMessage(value),
		StoredAt: time.Unix(0, storedAt),
		TTL:      time.Duration(ttl),
	}
	if entry.Expired(s.now()) {
		return nil, false, nil
	}
	if !json.Valid(entry.Value) {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Put implements Store. The write is committed before Put returns.
func (s *SQLiteStore) Put(ctx context.Context, tier Tier, key string, value json.RawMessage, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (tier, key, value, stored_at, ttl) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tier, key) DO UPDATE SET
			value=excluded.value, stored_at=excluded.stored_at, ttl=excluded.ttl`,
		string(tier), key, string(value), s.now().UnixNano(), int64(ttl),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry %s/%s: %w", tier, key, err)
	}
	return nil
}

// EvictExpired implements Store.
func (s *SQLiteStore) EvictExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE ttl > 0 AND stored_at + ttl < ?`, s.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("evicting expired entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context, tier Tier) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE tier = ?`, string(tier))
	if err != nil {
		return 0, fmt.Errorf("clearing tier %s: %w", tier, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
