// Package sqlite implements the workspace state store on SQLite.
//
// SQLite keeps the service a single binary with a single data file, which
// is all the state store needs: the tables here are small (workspaces,
// cells, outputs) and every access is keyed. modernc.org/sqlite is the pure
// Go driver, so no CGo and no cross-compilation pain.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements store.Store.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath (":memory:" for tests) and runs
// migrations. WAL mode lets reads proceed while an output write is in
// flight.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// A single connection keeps every caller on the same database (":memory:"
	// is per-connection) and sidesteps SQLITE_BUSY under write contention.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database connection is still usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS workspaces (
			id          TEXT PRIMARY KEY,
			accelerator TEXT NOT NULL DEFAULT '',
			context_id  TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating workspaces table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS cells (
			id           TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			display_id   TEXT NOT NULL DEFAULT '',
			kind         TEXT NOT NULL DEFAULT 'code',
			content      TEXT NOT NULL DEFAULT '',
			language     TEXT NOT NULL DEFAULT '',
			order_index  INTEGER NOT NULL DEFAULT 0,
			status       TEXT NOT NULL DEFAULT 'idle',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_cells_workspace_id ON cells(workspace_id);
		CREATE INDEX IF NOT EXISTS idx_cells_display_id ON cells(display_id);
	`)
	if err != nil {
		return fmt.Errorf("creating cells table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS cell_outputs (
			id         TEXT PRIMARY KEY,
			cell_id    TEXT NOT NULL,
			display_id TEXT NOT NULL DEFAULT '',
			kind       TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_cell_outputs_cell_id ON cell_outputs(cell_id);
	`)
	if err != nil {
		return fmt.Errorf("creating cell_outputs table: %w", err)
	}

	return nil
}

// touchWorkspace inserts the workspace row if it does not exist yet, so the
// upsert-style setters have a row to update.
func (db *DB) touchWorkspace(workspaceID string) error {
	_, err := db.conn.Exec(
		`INSERT INTO workspaces (id) VALUES (?) ON CONFLICT (id) DO NOTHING`,
		workspaceID,
	)
	return err
}
