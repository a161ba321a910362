package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Pool is the subset of pgxpool.Pool used by PostgresCache. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// noExpiry stands in for "never expires" since the table has no native TTL.
const noExpiry = 100 * 365 * 24 * time.Hour

const postgresMigration = `
CREATE TABLE IF NOT EXISTS kv_cache (
	key        TEXT PRIMARY KEY,
	entry      JSONB NOT NULL,
	stored_at  TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_cache_expires_at ON kv_cache(expires_at);
`

// PostgresCache stores entries in a kv_cache table. Expired rows are hidden
// by the read predicate and removed by PurgeExpired.
type PostgresCache struct {
	pool Pool
	now  func() time.Time
}

var _ Cache = (*PostgresCache)(nil)

// NewPostgres opens a pool, pings it and ensures the kv_cache table exists.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresCache, error) {
	if databaseURL == "" {
		return nil, eris.New("postgres: database_url is empty")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	c := &PostgresCache{pool: pool, now: time.Now}
	if err := c.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// Migrate creates the kv_cache table if needed.
func (c *PostgresCache) Migrate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (c *PostgresCache) Get(ctx context.Context, key string) ([]byte, bool) {
	var data []byte
	err := c.pool.QueryRow(ctx,
		`SELECT entry FROM kv_cache WHERE key = $1 AND expires_at > $2`,
		key, c.now().UTC(),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		zap.L().Warn("postgres: get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	e, err := decodeEntry(data)
	if err != nil {
		zap.L().Warn("postgres: corrupt entry treated as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return e.Payload, true
}

func (c *PostgresCache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	now := c.now().UTC()
	data, err := encodeEntry(value, now)
	if err != nil {
		zap.L().Warn("postgres: encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if ttl <= 0 {
		ttl = noExpiry
	}

	_, err = c.pool.Exec(ctx,
		`INSERT INTO kv_cache (key, entry, stored_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET entry = EXCLUDED.entry, stored_at = EXCLUDED.stored_at, expires_at = EXCLUDED.expires_at`,
		key, string(data), now, now.Add(ttl),
	)
	if err != nil {
		zap.L().Warn("postgres: set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *PostgresCache) Delete(ctx context.Context, key string) bool {
	tag, err := c.pool.Exec(ctx, `DELETE FROM kv_cache WHERE key = $1`, key)
	if err != nil {
		zap.L().Warn("postgres: delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return tag.RowsAffected() > 0
}

func (c *PostgresCache) DeleteByPrefix(ctx context.Context, prefix string) int {
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM kv_cache WHERE key LIKE $1 ESCAPE '\'`,
		likePrefix(prefix),
	)
	if err != nil {
		zap.L().Warn("postgres: delete by prefix failed", zap.String("prefix", prefix), zap.Error(err))
		return 0
	}
	return int(tag.RowsAffected())
}

// PurgeExpired deletes rows past their expiry and returns how many were removed.
func (c *PostgresCache) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM kv_cache WHERE expires_at <= $1`, c.now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge expired")
	}
	return int(tag.RowsAffected()), nil
}

func (c *PostgresCache) Close() error {
	c.pool.Close()
	return nil
}

// likePrefix escapes LIKE wildcards in prefix and appends %.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
