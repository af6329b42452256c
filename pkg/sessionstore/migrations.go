package sessionstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/assessor/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the PostgreSQL schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and user_roles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(255) PRIMARY KEY,
					email VARCHAR(320) NOT NULL,
					display_name VARCHAR(255),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(lower(email));

				CREATE TABLE IF NOT EXISTS user_roles (
					user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(32) NOT NULL,
					granted_by VARCHAR(255),
					granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, role)
				);

				CREATE INDEX IF NOT EXISTS idx_user_roles_role ON user_roles(role);
			`,
		},
		{
			Version:     2,
			Description: "Create impersonation_sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS impersonation_sessions (
					id VARCHAR(64) PRIMARY KEY,
					admin_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					target_user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					target_email VARCHAR(320) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMPTZ NOT NULL,
					ended_at TIMESTAMPTZ
				);

				-- at most one open session per admin
				CREATE UNIQUE INDEX IF NOT EXISTS idx_impersonation_one_open
					ON impersonation_sessions(admin_id) WHERE ended_at IS NULL;

				CREATE INDEX IF NOT EXISTS idx_impersonation_expires_at
					ON impersonation_sessions(expires_at) WHERE ended_at IS NULL;
			`,
		},
		{
			Version:     3,
			Description: "Create audit_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_records (
					id BIGSERIAL PRIMARY KEY,
					actor_id VARCHAR(255) NOT NULL,
					actor_email VARCHAR(320) NOT NULL DEFAULT '',
					action VARCHAR(64) NOT NULL,
					target_type VARCHAR(64),
					target_id VARCHAR(255),
					details JSONB,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_audit_records_actor ON audit_records(actor_id, created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_records_action ON audit_records(action, created_at DESC);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS assessor_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM assessor_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		log := logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		})
		log.Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO assessor_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Info("migration completed")
	}

	return nil
}
