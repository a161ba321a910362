package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS kv_cache (
	key        TEXT PRIMARY KEY,
	entry      TEXT NOT NULL,
	stored_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_cache_expires_at ON kv_cache(expires_at);
`

// SQLiteCache is a single-node cache backed by modernc.org/sqlite. Times are
// stored as unix milliseconds.
type SQLiteCache struct {
	db  *sql.DB
	now func() time.Time
}

var _ Cache = (*SQLiteCache)(nil)

// NewSQLite opens the database at dsn (":memory:" works), configures WAL mode
// and creates the kv_cache table.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}

	return &SQLiteCache{db: db, now: time.Now}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool) {
	var data string
	err := c.db.QueryRowContext(ctx,
		`SELECT entry FROM kv_cache WHERE key = ? AND expires_at > ?`,
		key, c.now().UnixMilli(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		zap.L().Warn("sqlite: get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	e, err := decodeEntry([]byte(data))
	if err != nil {
		zap.L().Warn("sqlite: corrupt entry treated as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return e.Payload, true
}

func (c *SQLiteCache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	now := c.now()
	data, err := encodeEntry(value, now)
	if err != nil {
		zap.L().Warn("sqlite: encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if ttl <= 0 {
		ttl = noExpiry
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO kv_cache (key, entry, stored_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET entry = excluded.entry, stored_at = excluded.stored_at, expires_at = excluded.expires_at`,
		key, string(data), now.UnixMilli(), now.Add(ttl).UnixMilli(),
	)
	if err != nil {
		zap.L().Warn("sqlite: set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *SQLiteCache) Delete(ctx context.Context, key string) bool {
	res, err := c.db.ExecContext(ctx, `DELETE FROM kv_cache WHERE key = ?`, key)
	if err != nil {
		zap.L().Warn("sqlite: delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

// DeleteByPrefix compares prefixes with substr because SQLite LIKE ignores
// ASCII case.
func (c *SQLiteCache) DeleteByPrefix(ctx context.Context, prefix string) int {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM kv_cache WHERE substr(key, 1, length(?)) = ?`,
		prefix, prefix,
	)
	if err != nil {
		zap.L().Warn("sqlite: delete by prefix failed", zap.String("prefix", prefix), zap.Error(err))
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}

// PurgeExpired deletes rows past their expiry and returns how many were removed.
func (c *SQLiteCache) PurgeExpired(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM kv_cache WHERE expires_at <= ?`, c.now().UnixMilli())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge expired")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
