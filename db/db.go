// Package db manages the SQLite database connection and schema migrations.
// it exposes a Database struct that wraps *sql.DB and is passed via dependency
// injection to any layer that needs to persist provisioning runs.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	// registers the "sqlite3" driver with database/sql, only the init() side effect is needed
	_ "github.com/mattn/go-sqlite3"
)

/*
Database wraps the connection pool rather than embedding it.
the *sql.DB field is private so callers are restricted to the
provisioning queries defined in this package. if the driver changes
(eg SQLite to PostgreSQL), only this package changes.
*/
type Database struct {
	connection *sql.DB
	logger     *slog.Logger
}

// migrate runs the schema DDL against the database.
// the schema is a constant of this package, callers never need to know about it.
func (database *Database) migrate() error {
	_, err := database.connection.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema migration (create tables & columns): %w", err)
	}
	return nil
}

/*
schema defines the provisionings table.
IF NOT EXISTS makes it safe to run on every startup.
final_paths and commits hold JSON objects keyed by stage name.
*/
const schema = `
CREATE TABLE IF NOT EXISTS provisionings (
    id                  TEXT PRIMARY KEY,
    slug                TEXT UNIQUE NOT NULL,
    source_version      TEXT NOT NULL,
    runtime_variant     TEXT NOT NULL DEFAULT '',
    destination_root    TEXT NOT NULL,
    include_environment INTEGER NOT NULL DEFAULT 0,
    status              TEXT NOT NULL,
    progress            INTEGER NOT NULL DEFAULT 0,
    current_stage       TEXT NOT NULL DEFAULT '',
    current_phase       TEXT NOT NULL DEFAULT '',
    final_paths         TEXT,
    commits             TEXT,
    error_kind          TEXT NOT NULL DEFAULT '',
    error_message       TEXT NOT NULL DEFAULT '',
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_provisionings_destination_root ON provisionings (destination_root);
`

/*
OpenDatabase opens the SQLite database at the given file path, runs the schema
migration, and returns a ready-to-use *Database.
the directory for the database file is created if it does not exist.
*/
func OpenDatabase(dbPath string, logger *slog.Logger) (*Database, error) {
	dir := filepath.Dir(dbPath)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create database directory %q: %w", dir, err)
	}

	// sql.Open only prepares the pool, the first real connection happens in migrate()
	dbConnection, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %q: %w", dbPath, err)
	}

	// SQLite does not support concurrent writes from multiple connections.
	// a single connection prevents "database is locked" errors while
	// several runs report progress at the same time.
	dbConnection.SetMaxOpenConns(1)

	database := &Database{
		connection: dbConnection,
		logger:     logger,
	}

	// the app is useless without a working database, fail fast
	err = database.migrate()
	if err != nil {
		dbConnection.Close()
		return nil, fmt.Errorf("database migration (table & column creation, DDL) failed: %w", err)
	}

	logger.Info("database opened and schema migrated", "path", dbPath)
	return database, nil
}

// CloseDatabase releases the database connection pool.
// this should be deferred immediately after OpenDatabase returns successfully.
func (database *Database) CloseDatabase() error {
	return database.connection.Close()
}

// Ping checks the database file is still reachable, used by the readiness probe.
func (database *Database) Ping(ctx context.Context) error {
	return database.connection.PingContext(ctx)
}
