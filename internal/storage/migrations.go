package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationStatus represents the status of migrations.
type MigrationStatus struct {
	UpToDate bool     `json:"up_to_date"`
	Applied  []string `json:"applied"`
	Pending  []string `json:"pending"`
	Total    int      `json:"total"`
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	db     *sql.DB
	driver string
	files  fs.FS
}

// NewMigrator creates a migrator for the given driver ("sqlite" or "postgres").
func NewMigrator(db *sql.DB, driver string) *Migrator {
	return &Migrator{db: db, driver: driver, files: migrationFiles}
}

// Status reports which migrations have been applied.
func (m *Migrator) Status(ctx context.Context) (*MigrationStatus, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	migrations, err := m.listMigrations()
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	status := &MigrationStatus{Applied: []string{}, Pending: []string{}, Total: len(migrations)}
	for _, name := range migrations {
		if applied[name] {
			status.Applied = append(status.Applied, name)
		} else {
			status.Pending = append(status.Pending, name)
		}
	}
	status.UpToDate = len(status.Pending) == 0
	return status, nil
}

// Up applies every pending migration in name order and returns the ones it ran.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, name := range status.Pending {
		if err := m.run(ctx, name); err != nil {
			return ran, fmt.Errorf("run migration %s: %w", name, err)
		}
		ran = append(ran, name)
	}
	return ran, nil
}

func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	var query string
	switch m.driver {
	case DriverPostgres:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`
	default:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TEXT NOT NULL DEFAULT (datetime('now'))
			)
		`
	}
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// listMigrations returns migration names for the driver. A file named
// NNNN_x_sqlite.sql replaces NNNN_x.sql on SQLite and is ignored on Postgres.
// Names are reported by their base (NNNN_x) so both dialects share history.
func (m *Migrator) listMigrations() ([]string, error) {
	entries, err := fs.ReadDir(m.files, "migrations")
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		base := strings.TrimSuffix(strings.TrimSuffix(name, ".sql"), "_sqlite")
		if !seen[base] {
			seen[base] = true
			names = append(names, base)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Migrator) fileFor(base string) string {
	if m.driver != DriverPostgres {
		sqlite := "migrations/" + base + "_sqlite.sql"
		if _, err := fs.Stat(m.files, sqlite); err == nil {
			return sqlite
		}
	}
	return "migrations/" + base + ".sql"
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) run(ctx context.Context, base string) error {
	data, err := fs.ReadFile(m.files, m.fileFor(base))
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range splitStatements(string(data)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, base); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// splitStatements splits a migration on semicolons. Migrations here contain
// no triggers or string literals with semicolons.
func splitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(content, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
