// Package database wraps the Postgres connection pool used by the
// event store and provides the schema bootstrap for the three core
// tables: canvases, shapes, and events.
package database

import (
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"database/sql"

	"canvashub/config"
	"canvashub/logging"
)

// DB wraps *sql.DB so callers import one package for the pool.
type DB struct {
	*sql.DB
}

// NewConnection opens and pings a Postgres connection pool sized for a
// collaboration server handling many short-lived transactions.
func NewConnection(cfg config.DatabaseConfig) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Info("database connection established", map[string]interface{}{
		"host": cfg.Host,
		"port": cfg.Port,
		"name": cfg.Name,
	})

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// InitializeSchema creates the canvases/shapes/events tables and their
// indexes if they do not already exist. Idempotent: safe to call on
// every process start.
func (db *DB) InitializeSchema() error {
	schemas := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,
		createCanvasesTable(),
		createShapesTable(),
		createEventsTable(),
		createIndexes(),
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	logging.Info("database schema initialized", nil)
	return nil
}

func createCanvasesTable() string {
	return `
	CREATE TABLE IF NOT EXISTS canvases (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT NOW(),
		updated_at TIMESTAMP DEFAULT NOW()
	)`
}

func createShapesTable() string {
	return `
	CREATE TABLE IF NOT EXISTS shapes (
		id UUID PRIMARY KEY,
		canvas_id UUID NOT NULL REFERENCES canvases(id) ON DELETE CASCADE,
		type VARCHAR(20) NOT NULL,
		properties JSONB NOT NULL DEFAULT '{}',
		z_index INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT NOW(),
		updated_at TIMESTAMP DEFAULT NOW(),
		deleted_at TIMESTAMP,
		property_timestamps JSONB NOT NULL DEFAULT '{}',
		vector_clock JSONB NOT NULL DEFAULT '{}'
	)`
}

func createEventsTable() string {
	return `
	CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		canvas_id UUID NOT NULL REFERENCES canvases(id) ON DELETE CASCADE,
		shape_id UUID,
		user_id VARCHAR(255) NOT NULL,
		event_type VARCHAR(40) NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}',
		version BIGINT NOT NULL,
		local_event_id VARCHAR(255),
		had_conflict BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT NOW(),
		UNIQUE(canvas_id, version)
	)`
}

func createIndexes() string {
	return `
	CREATE INDEX IF NOT EXISTS idx_events_canvas_version ON events(canvas_id, version);
	CREATE INDEX IF NOT EXISTS idx_events_shape_id ON events(shape_id);
	CREATE INDEX IF NOT EXISTS idx_events_dedupe ON events(canvas_id, local_event_id) WHERE local_event_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_shapes_canvas_id ON shapes(canvas_id);
	`
}
