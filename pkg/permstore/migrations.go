package permstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Migration is one schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the permission store schema in order. The statements
// are portable between PostgreSQL and SQLite.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create actor_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS actor_permissions (
					actor_id VARCHAR(255) NOT NULL,
					tenant_id VARCHAR(255) NOT NULL DEFAULT '',
					permission VARCHAR(255) NOT NULL,
					granted_by VARCHAR(255) NOT NULL DEFAULT '',
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (actor_id, tenant_id, permission)
				);
			`,
		},
		{
			Version:     2,
			Description: "Index actor_permissions by tenant",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_actor_permissions_tenant_id ON actor_permissions(tenant_id);
			`,
		},
	}
}

// Migrate applies pending migrations, each in its own transaction
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NopLogger()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS permstore_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO permstore_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("applied migration")
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM permstore_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
