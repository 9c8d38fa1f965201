package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/tickerfeed/internal/config"
)

// Schema creates the latest-price table if it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS latest_prices (
	exchange         TEXT             NOT NULL,
	symbol           TEXT             NOT NULL,
	base_code        TEXT             NOT NULL,
	display_name     TEXT             NOT NULL,
	price            DOUBLE PRECISION NOT NULL,
	absolute_change  DOUBLE PRECISION NOT NULL,
	percent_change   DOUBLE PRECISION NOT NULL,
	formatted_volume TEXT             NOT NULL,
	raw_volume       DOUBLE PRECISION NOT NULL,
	ts               BIGINT           NOT NULL,
	updated_at       TIMESTAMPTZ      NOT NULL DEFAULT now(),
	PRIMARY KEY (exchange, symbol)
)`

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create latest_prices: %w", err)
	}
	return nil
}
