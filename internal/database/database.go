// Package database opens the storage backends used by the inventory:
// a PostgreSQL pool via pgx and the shared SQLite file via zombiezen.
package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/model"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PoolConfig holds the pgx pool settings.
type PoolConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
	// Attempts is how many times to try connecting before giving up.
	Attempts int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// NewPool creates and validates a pgxpool connection pool.
// It retries to accommodate containers starting up.
func NewPool(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
			pool = nil
		}
		logger.Warn("db connect attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.Attempts,
			"error", err,
		)
		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to postgres: %w", ctx.Err())
		case <-time.After(cfg.RetryDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	logger.Info("connected to postgres",
		"max_conns", poolCfg.MaxConns,
	)
	return pool, nil
}

// MigratePostgres applies the event and booking schema. It is idempotent.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	if err := backfillTitleKeys(ctx, pool); err != nil {
		return fmt.Errorf("backfill title_key: %w", err)
	}
	return nil
}

// backfillTitleKeys fills title_key for rows written before the column
// existed.
func backfillTitleKeys(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `SELECT id, title FROM events WHERE title_key = ''`)
	if err != nil {
		return err
	}
	stale := map[string]string{}
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			rows.Close()
			return err
		}
		stale[id] = title
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for id, title := range stale {
		if _, err := pool.Exec(ctx,
			`UPDATE events SET title_key = $1 WHERE id = $2`,
			model.TitleKey(title), id,
		); err != nil {
			return err
		}
	}
	return nil
}
