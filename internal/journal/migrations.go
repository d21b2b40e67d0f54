package journal

import (
	"context"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is append-only; never edit an applied entry.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Command log",
		SQL: `
		CREATE TABLE IF NOT EXISTS commands (
			instrument TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			kind TEXT NOT NULL,
			order_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (instrument, sequence)
		);
		`,
	},
	{
		Version:     2,
		Description: "Event audit log",
		SQL: `
		CREATE TABLE IF NOT EXISTS events (
			instrument TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			position INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (instrument, sequence, position),
			FOREIGN KEY (instrument, sequence) REFERENCES commands(instrument, sequence)
		);

		CREATE INDEX IF NOT EXISTS idx_events_kind ON events(instrument, kind);
		`,
	},
	{
		Version:     3,
		Description: "Order lookup",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_commands_order ON commands(instrument, order_id);
		`,
	},
}

func (j *Journal) initMigrationsTable(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (j *Journal) currentVersion(ctx context.Context) (int, error) {
	var version int
	err := j.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Migrate applies every pending migration in order.
func (j *Journal) Migrate(ctx context.Context) error {
	if err := j.initMigrationsTable(ctx); err != nil {
		return fmt.Errorf("init migrations table: %w", err)
	}
	current, err := j.currentVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := j.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func (j *Journal) applyMigration(ctx context.Context, m Migration) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// MigrationStatus reports applied and pending versions.
func (j *Journal) MigrationStatus(ctx context.Context) (applied, pending []int, err error) {
	if err := j.initMigrationsTable(ctx); err != nil {
		return nil, nil, err
	}
	rows, err := j.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	seen := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, nil, err
		}
		applied = append(applied, v)
		seen[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	for _, m := range migrations {
		if !seen[m.Version] {
			pending = append(pending, m.Version)
		}
	}
	return applied, pending, nil
}
