//go:build integration

package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/rbac"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("assessor_test"),
		postgres.WithUsername("assessor"),
		postgres.WithPassword("assessor_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, RunMigrations(ctx, db, nil))
	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	store, err := NewSQLStore(db, Options{TTL: time.Hour})
	require.NoError(t, err)

	require.NoError(t, store.UpsertUser(ctx, User{ID: "admin", Email: "admin@example.com"}))
	require.NoError(t, store.UpsertUser(ctx, User{ID: "chair", Email: "chair@example.com"}))
	require.NoError(t, store.AssignRole(ctx, "admin", rbac.RoleSuperAdmin, ""))
	require.NoError(t, store.AssignRole(ctx, "chair", rbac.RoleChair, "admin"))
	assert.True(t, errors.Is(store.AssignRole(ctx, "chair", rbac.RoleChair, "admin"), domainerr.ErrAlreadyExists))

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(ctx, db, nil))
	})

	t.Run("one open session per admin", func(t *testing.T) {
		first, err := store.CreateImpersonationSession(ctx, "admin", "chair", "chair@example.com")
		require.NoError(t, err)
		second, err := store.CreateImpersonationSession(ctx, "admin", "chair", "chair@example.com")
		require.NoError(t, err)

		active, err := store.GetActiveImpersonationSession(ctx, "admin")
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, second.ID, active.ID)
		assert.NotEqual(t, first.ID, second.ID)

		// direct insert of a second open row violates the partial index
		_, err = db.ExecContext(ctx, `INSERT INTO impersonation_sessions (id, admin_id, target_user_id, target_email, expires_at) VALUES ('x', 'admin', 'chair', 'chair@example.com', NOW() + INTERVAL '1 hour')`)
		assert.Error(t, err)

		require.NoError(t, store.EndImpersonationSession(ctx, "admin", second.ID))
		active, err = store.GetActiveImpersonationSession(ctx, "admin")
		require.NoError(t, err)
		assert.Nil(t, active)
	})
}
