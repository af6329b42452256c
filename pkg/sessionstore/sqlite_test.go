package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/rbac"
)

// sqliteSchema mirrors GetMigrations in SQLite syntax
const sqliteSchema = `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	display_name TEXT,
	created_at TIMESTAMP
);
CREATE TABLE user_roles (
	user_id TEXT NOT NULL REFERENCES users(id),
	role TEXT NOT NULL,
	granted_by TEXT,
	granted_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, role)
);
CREATE TABLE impersonation_sessions (
	id TEXT PRIMARY KEY,
	admin_id TEXT NOT NULL,
	target_user_id TEXT NOT NULL,
	target_email TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP
);
CREATE UNIQUE INDEX idx_impersonation_one_open ON impersonation_sessions(admin_id) WHERE ended_at IS NULL;
CREATE TABLE audit_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor_id TEXT NOT NULL,
	actor_email TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	target_type TEXT,
	target_id TEXT,
	details TEXT,
	created_at TIMESTAMP NOT NULL
);
`

type sqliteFixture struct {
	store *SQLStore
	clock *clockwork.FakeClock
	db    *sql.DB
}

func newSQLiteFixture(t *testing.T) *sqliteFixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(testNow)
	ids := 0
	store, err := NewSQLStore(db, Options{
		TTL:   time.Hour,
		Clock: clock,
		NewID: func() string {
			ids++
			return "sess-" + string(rune('0'+ids))
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, User{ID: "admin", Email: "admin@example.com"}))
	require.NoError(t, store.UpsertUser(ctx, User{ID: "chair", Email: "chair@example.com", DisplayName: "Chair"}))
	require.NoError(t, store.AssignRole(ctx, "admin", rbac.RoleSuperAdmin, ""))
	require.NoError(t, store.AssignRole(ctx, "chair", rbac.RoleChair, "admin"))

	return &sqliteFixture{store: store, clock: clock, db: db}
}

func TestSQLiteStore_RoleAssignments(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.AssignRole(ctx, "chair", rbac.RoleEM, "admin"))
	roles, err := f.store.GetRolesForUser(ctx, "chair")
	require.NoError(t, err)
	assert.ElementsMatch(t, []rbac.Role{rbac.RoleChair, rbac.RoleEM}, roles)

	err = f.store.AssignRole(ctx, "chair", rbac.RoleEM, "admin")
	assert.True(t, errors.Is(err, domainerr.ErrAlreadyExists))

	err = f.store.AssignRole(ctx, "nobody", rbac.RoleEM, "admin")
	assert.True(t, errors.Is(err, domainerr.ErrNotFound))

	require.NoError(t, f.store.RevokeRole(ctx, "chair", rbac.RoleEM))
	roles, err = f.store.GetRolesForUser(ctx, "chair")
	require.NoError(t, err)
	assert.Equal(t, []rbac.Role{rbac.RoleChair}, roles)

	user, err := f.store.GetUser(ctx, "chair")
	require.NoError(t, err)
	assert.Equal(t, "Chair", user.DisplayName)
}

func TestSQLiteStore_ImpersonationLifecycle(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	first, err := f.store.CreateImpersonationSession(ctx, "admin", "chair", "chair@example.com")
	require.NoError(t, err)

	active, err := f.store.GetActiveImpersonationSession(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)
	assert.True(t, active.ExpiresAt.Equal(testNow.Add(time.Hour)))

	// starting again replaces the open session
	f.clock.Advance(time.Minute)
	second, err := f.store.CreateImpersonationSession(ctx, "admin", "chair", "chair@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	var open int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM impersonation_sessions WHERE ended_at IS NULL`).Scan(&open))
	assert.Equal(t, 1, open)

	require.NoError(t, f.store.EndImpersonationSession(ctx, "admin", second.ID))
	require.NoError(t, f.store.EndImpersonationSession(ctx, "admin", second.ID), "ending twice succeeds")

	active, err = f.store.GetActiveImpersonationSession(ctx, "admin")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestSQLiteStore_ExpiredSessionIsAbsent(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateImpersonationSession(ctx, "admin", "chair", "chair@example.com")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	active, err := f.store.GetActiveImpersonationSession(ctx, "admin")
	require.NoError(t, err)
	assert.Nil(t, active, "session expiring exactly now is dead")

	n, err := f.store.SweepExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.store.SweepExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStore_NonSuperAdminCannotImpersonate(t *testing.T) {
	f := newSQLiteFixture(t)

	_, err := f.store.CreateImpersonationSession(context.Background(), "chair", "admin", "admin@example.com")
	assert.True(t, errors.Is(err, domainerr.ErrUnauthorized))
}

func TestSQLiteStore_AuditTrail(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	records := []*audit.Record{
		{ActorID: "admin", ActorEmail: "admin@example.com", Action: audit.ActionLogin, Timestamp: testNow},
		{
			ActorID: "admin", ActorEmail: "admin@example.com", Action: audit.ActionUserImpersonation,
			TargetType: audit.TargetUser, TargetID: "chair",
			Details:   map[string]interface{}{audit.DetailTargetEmail: "chair@example.com"},
			Timestamp: testNow.Add(time.Second),
		},
		{ActorID: "chair", ActorEmail: "chair@example.com", Action: audit.ActionLogin, Timestamp: testNow.Add(2 * time.Second)},
	}
	for _, rec := range records {
		require.NoError(t, f.store.AppendAuditRecord(ctx, rec))
		assert.NotZero(t, rec.ID)
	}

	got, err := f.store.ListAuditRecords(ctx, audit.Filter{ActorID: "admin"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, audit.ActionUserImpersonation, got[0].Action, "newest first")
	assert.Equal(t, "chair@example.com", got[0].Details[audit.DetailTargetEmail])

	got, err = f.store.ListAuditRecords(ctx, audit.Filter{Action: audit.ActionLogin, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "chair", got[0].ActorID)
}
