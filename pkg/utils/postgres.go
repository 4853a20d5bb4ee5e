package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
	ping        time.Duration
}

// PoolOption tunes the database/sql pool opened by OpenPostgres.
type PoolOption func(*poolSettings)

func WithMaxConns(open, idle int) PoolOption {
	return func(s *poolSettings) {
		if open > 0 {
			s.maxOpen = open
		}
		if idle > 0 {
			s.maxIdle = idle
		}
	}
}

func WithConnLifetime(lifetime, idle time.Duration) PoolOption {
	return func(s *poolSettings) {
		if lifetime > 0 {
			s.maxLifetime = lifetime
		}
		if idle > 0 {
			s.maxIdleTime = idle
		}
	}
}

func WithPingTimeout(d time.Duration) PoolOption {
	return func(s *poolSettings) {
		if d > 0 {
			s.ping = d
		}
	}
}

func defaultPool() poolSettings {
	return poolSettings{
		maxOpen:     10,
		maxIdle:     5,
		maxLifetime: 30 * time.Minute,
		maxIdleTime: 5 * time.Minute,
		ping:        5 * time.Second,
	}
}

// OpenPostgres opens a pool on the pgx stdlib driver and pings it.
// dsn carries credentials; never log it.
func OpenPostgres(ctx context.Context, dsn string, opts ...PoolOption) (*sql.DB, error) {
	s := defaultPool()
	for _, o := range opts {
		o(&s)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(s.maxOpen)
	db.SetMaxIdleConns(s.maxIdle)
	db.SetConnMaxLifetime(s.maxLifetime)
	db.SetConnMaxIdleTime(s.maxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, s.ping)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

// WithTx commits when fn returns nil and rolls back on error or panic.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(ctx, tx)
}
