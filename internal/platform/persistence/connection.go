// Package persistence is the durable store behind the audit trail and the
// pathway seed library: a Postgres connection pool (jackc/pgx/v5) fronted
// by golang-migrate schema migrations, with a modernc.org/sqlite fallback
// store for development and tests that run without a Postgres instance.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/psp-engine/psp/internal/domain"
)

// DB wraps a pgxpool.Pool with the connection parameters it was built from.
type DB struct {
	Pool *pgxpool.Pool
	log  *logrus.Logger
}

// Connect opens a pooled connection to Postgres using cfg, pinging once
// before returning so callers fail fast on bad credentials or an
// unreachable host rather than on the first query.
func Connect(ctx context.Context, cfg domain.DatabaseConfig, log *logrus.Logger) (*DB, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, cfg.SSLMode,
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.Database,
	}).Info("audit store connection pool established")

	return &DB{Pool: pool, log: log}, nil
}

// Close releases all pooled connections.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info("audit store connection pool closed")
	}
}

// Health pings the pool.
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Stats exposes pgxpool's own counters.
func (db *DB) Stats() *pgxpool.Stat {
	return db.Pool.Stat()
}

// ConnectionString builds the DSN golang-migrate and lib/pq expect, which
// differs from the pgx DSN only in using a URL rather than keyword/value
// pairs.
func ConnectionString(cfg domain.DatabaseConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)
}

// pingTimeout bounds how long Connect waits on the initial ping before
// giving up; separate from any context the caller passes in.
const pingTimeout = 5 * time.Second
