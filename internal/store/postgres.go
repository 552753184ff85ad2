package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"page-assist/internal/cache"
)

// PostgresStore is the durable tier over a single content_cache table:
// content_cache(key, url, content, user_scope, expires_at, created_at).
type PostgresStore struct {
	db    *sql.DB
	table string // quoted identifier
	index string
}

// NewPostgres connects, verifies the connection and migrates the cache table.
func NewPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if table == "" {
		table = DefaultTable
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	s := &PostgresStore{
		db:    db,
		table: pq.QuoteIdentifier(table),
		index: pq.QuoteIdentifier(table + "_expires_at_idx"),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Use advisory lock so several assistant instances starting together
	// do not race on CREATE TABLE.
	const lockID = 741852963

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another instance is migrating; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			key TEXT PRIMARY KEY,
			url TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			user_scope TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS ` + s.index + ` ON ` + s.table + ` (expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate content cache: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Name() string { return "postgres" }

// Get returns the row for key even when it has expired; the caller decides
// validity against its own clock and evicts.
func (s *PostgresStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var e cache.Entry
	row := s.db.QueryRowContext(ctx,
		`SELECT key, url, content, user_scope, created_at, expires_at FROM `+s.table+` WHERE key=$1`, key)
	if err := row.Scan(&e.Key, &e.URL, &e.Payload, &e.Scope, &e.CreatedAt, &e.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("failed to get cache row %s: %w", key, err)
	}
	return e, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, e cache.Entry) error {
	if !e.ExpiresAt.After(e.CreatedAt) {
		return cache.ErrInvalidEntry
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+s.table+`(key, url, content, user_scope, expires_at, created_at)
		VALUES($1,$2,$3,$4,$5,$6)
		ON CONFLICT (key) DO UPDATE SET
			url=excluded.url,
			content=excluded.content,
			user_scope=excluded.user_scope,
			expires_at=excluded.expires_at,
			created_at=excluded.created_at`,
		e.Key, e.URL, e.Payload, e.Scope, e.ExpiresAt.UTC(), e.CreatedAt.UTC())
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE key=$1`, key)
	return err
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
