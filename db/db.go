package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	id INTEGER PRIMARY KEY CHECK(id=1),
	refresh_token TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS setpoints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	zone TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	has_data BOOLEAN NOT NULL,
	setpoint_now REAL,
	setpoint_30m REAL,
	setpoint_60m REAL
);

CREATE INDEX IF NOT EXISTS idx_setpoints_zone_time ON setpoints (zone, recorded_at);
`

// Open opens (creating if needed) the SQLite database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbConn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite gives every :memory: connection its own database.
	dbConn.SetMaxOpenConns(1)

	if err := ApplyMigrations(dbConn); err != nil {
		dbConn.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("Database ready")
	return dbConn, nil
}

// ApplyMigrations creates any missing tables.
func ApplyMigrations(dbConn *sql.DB) error {
	if _, err := dbConn.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
