package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Database keeps the vision cycle history
type Database struct {
	DB *sql.DB
}

// New opens the connection and verifies it
func New(ctx context.Context, dsn string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Database{DB: db}, nil
}

// Init creates the required tables if they don't exist
func (d *Database) Init(ctx context.Context) error {
	createTables := `
	CREATE TABLE IF NOT EXISTS cycles (
		run_id TEXT PRIMARY KEY,
		seq BIGINT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		elapsed_ms DOUBLE PRECISION NOT NULL,
		stage TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		device TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		top_label TEXT NOT NULL DEFAULT '',
		top_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		person_count INTEGER NOT NULL DEFAULT 0,
		total_ms DOUBLE PRECISION NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS cycles_started_at_idx ON cycles (started_at DESC);
	`

	_, err := d.DB.ExecContext(ctx, createTables)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}
