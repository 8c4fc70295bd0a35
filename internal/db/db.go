// Package db owns the agent's embedded SQLite store: the video catalog,
// the analysis job queue and the per-exercise results live here. Schema
// changes ship as embedded migration files applied in lexical order, so a
// data directory from any earlier build upgrades in place on startup.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the single SQLite handle shared by the catalog and the API.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the store at dbPath, brings the schema up
// to date and sweeps analysis jobs orphaned by an unclean shutdown. The
// logger may be nil.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	// One connection total. modernc's driver serialises writers anyway and
	// a single connection keeps the WAL checkpointing predictable.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, logger: logger}

	if err := db.applyMigrations(); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	// An analysis job still marked running belongs to a previous process;
	// it will never finish, so fail it rather than leave it stuck.
	if err := db.failOrphanedJobs(); err != nil && logger != nil {
		logger.Warn("failed to sweep orphaned analysis jobs", "error", err)
	}

	return db, nil
}

// Close releases the underlying handle.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn exposes the raw handle for the catalog repository.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) applyMigrations() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("list embedded migrations: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if d.migrationApplied(name) {
			continue
		}

		script, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := d.conn.Exec(string(script)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := d.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}

		if d.logger != nil {
			d.logger.Info("applied migration", "name", name)
		}
	}

	return nil
}

// migrationApplied reports whether name is recorded in _migrations. The
// very first migration creates that table, so a missing table simply means
// nothing has been applied yet.
func (d *DB) migrationApplied(name string) bool {
	var tableExists int
	err := d.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&tableExists)
	if err != nil {
		return false
	}

	var applied int
	err = d.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

// failOrphanedJobs marks every running analysis job as failed. Only this
// process runs jobs, so at open time a running row can only be a leftover
// from a crash or kill mid-analysis.
func (d *DB) failOrphanedJobs() error {
	_, err := d.conn.ExecContext(context.Background(),
		`UPDATE jobs SET status = 'failed', error = 'interrupted by restart', updated_at = datetime('now') WHERE status = 'running'`)
	return err
}
