// Package database is the optional alert audit sink. The scanner core runs
// fully in-memory; this package only records promoted alerts for later
// review and survives being absent entirely.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB opens a pooled connection and verifies it with a ping.
func NewDB(cfg Config, log zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{Pool: pool, log: log.With().Str("component", "database").Logger()}
	db.log.Info().Str("database", cfg.Database).Msg("connected to postgres")
	return db, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// RunMigrations creates the audit schema.
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trigger_alerts (
			id UUID PRIMARY KEY,
			setup_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			setup_type TEXT NOT NULL,
			direction TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			est_trigger_at TIMESTAMPTZ NOT NULL,
			minutes_to_trigger INT NOT NULL,
			entry_low DOUBLE PRECISION NOT NULL,
			entry_high DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			target_1 DOUBLE PRECISION NOT NULL,
			target_2 DOUBLE PRECISION,
			risk_reward DOUBLE PRECISION NOT NULL,
			trigger_probability DOUBLE PRECISION NOT NULL,
			win_probability DOUBLE PRECISION NOT NULL,
			expected_value_pct DOUBLE PRECISION NOT NULL,
			setup_score DOUBLE PRECISION NOT NULL,
			strategy_label TEXT NOT NULL,
			reasoning TEXT[] NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			outcome TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_alerts_symbol ON trigger_alerts (symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_alerts_created_at ON trigger_alerts (created_at DESC)`,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	db.log.Info().Msg("migrations applied")
	return nil
}
