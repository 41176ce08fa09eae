package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/rollup/pkg/config"
)

// ErrDisabled is returned by New when DATABASE_URL is empty
var ErrDisabled = errors.New("database disabled: DATABASE_URL not set")

// pingTimeout bounds the connectivity check done by New
const pingTimeout = 5 * time.Second

// DB owns the connection pool used by the daily value repository
// ⭐ SSOT: DB 연결은 이 패키지에서만 생성
type DB struct {
	Pool *pgxpool.Pool
}

// New opens the pool and verifies it with a ping.
// A pool that cannot be pinged is closed before returning.
func New(ctx context.Context, cfg *config.Config) (*DB, error) {
	if !cfg.Database.Enabled() {
		return nil, ErrDisabled
	}

	pc, err := poolConfig(cfg.Database)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// poolConfig applies the non-zero pool limits on top of the URL settings
func poolConfig(c config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	if c.MaxConns > 0 {
		pc.MaxConns = int32(c.MaxConns)
	}
	if c.MinConns > 0 {
		pc.MinConns = int32(c.MinConns)
	}
	if c.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdleTime
	}
	return pc, nil
}

// Close is safe on a nil DB
func (db *DB) Close() {
	if db == nil || db.Pool == nil {
		return
	}
	db.Pool.Close()
}

// Health is what db-check prints
type Health struct {
	Latency time.Duration `json:"latency"`
	Pool    PoolStats     `json:"pool"`
}

// PoolStats is a snapshot of pgxpool counters
type PoolStats struct {
	MaxConns      int32 `json:"max_conns"`
	TotalConns    int32 `json:"total_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquireCount  int64 `json:"acquire_count"`
}

// HealthCheck pings once and reports the round trip with pool counters
func (db *DB) HealthCheck(ctx context.Context) (Health, error) {
	start := time.Now()
	if err := db.Pool.Ping(ctx); err != nil {
		return Health{}, fmt.Errorf("ping: %w", err)
	}
	return Health{Latency: time.Since(start), Pool: db.Stats()}, nil
}

// Stats reads the current pool counters
func (db *DB) Stats() PoolStats {
	s := db.Pool.Stat()
	return PoolStats{
		MaxConns:      s.MaxConns(),
		TotalConns:    s.TotalConns(),
		AcquiredConns: s.AcquiredConns(),
		IdleConns:     s.IdleConns(),
		AcquireCount:  s.AcquireCount(),
	}
}
