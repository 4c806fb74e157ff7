package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxConns          = 10
	maxConnLifetime   = 30 * time.Minute
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 30 * time.Second
	pingTimeout       = 3 * time.Second
)

var newPoolWithConfig = pgxpool.NewWithConfig

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = 0
	cfg.MaxConnLifetime = maxConnLifetime
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.HealthCheckPeriod = healthCheckPeriod

	rp := cfg.ConnConfig.RuntimeParams
	rp["application_name"] = "shiporch"
	rp["search_path"] = "public"
	rp["timezone"] = "UTC"
	// server-side; wallet and transition statements stay well under this
	rp["statement_timeout"] = "5000"
	rp["idle_in_transaction_session_timeout"] = "5000"

	return newPoolWithConfig(ctx, cfg)
}

func Ping(parent context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(parent, pingTimeout)
	defer cancel()
	return pool.Ping(ctx)
}
