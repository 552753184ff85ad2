package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createLocalTable = `
CREATE TABLE IF NOT EXISTS content_cache (
	key TEXT PRIMARY KEY,
	url TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	user_scope TEXT NOT NULL DEFAULT '',
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS content_cache_expires_at ON content_cache(expires_at);
`

// SQLiteTier is a device-local tier persisted to a single SQLite file, so
// extracted pages survive a restart of the process.
type SQLiteTier struct {
	db *sql.DB
}

// NewSQLiteTier opens (and migrates) the cache database at path.
func NewSQLiteTier(path string) (*SQLiteTier, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local cache db: %w", err)
	}
	// One writer keeps modernc's SQLite free of SQLITE_BUSY under concurrent puts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createLocalTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate local cache db: %w", err)
	}
	return &SQLiteTier{db: db}, nil
}

func (s *SQLiteTier) Name() string { return "sqlite" }

func (s *SQLiteTier) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		e         Entry
		createdMs int64
		expiresMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, url, content, user_scope, created_at, expires_at FROM content_cache WHERE key = ?`, key,
	).Scan(&e.Key, &e.URL, &e.Payload, &e.Scope, &createdMs, &expiresMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("local cache get: %w", err)
	}
	e.CreatedAt = time.UnixMilli(createdMs)
	e.ExpiresAt = time.UnixMilli(expiresMs)
	return e, true, nil
}

func (s *SQLiteTier) Put(ctx context.Context, entry Entry) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO content_cache (key, url, content, user_scope, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Key, entry.URL, entry.Payload, entry.Scope, entry.ExpiresAt.UnixMilli(), entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("local cache put: %w", err)
	}
	return nil
}

func (s *SQLiteTier) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM content_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("local cache delete: %w", err)
	}
	return nil
}

func (s *SQLiteTier) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content_cache WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("local cache sweep: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteTier) Close() error {
	return s.db.Close()
}
