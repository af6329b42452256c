package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/observability"
	"github.com/platinummonkey/assessor/pkg/rbac"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation
const uniqueViolation = "23505"

// Options configures a store
type Options struct {
	TTL     time.Duration
	Clock   clockwork.Clock
	Metrics *observability.Metrics
	// NewID generates session tokens; uuid.NewString when nil.
	NewID func() string
}

func (o *Options) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = DefaultImpersonationTTL
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

// SQLStore implements Store on PostgreSQL through database/sql and lib/pq
type SQLStore struct {
	db      *sql.DB
	audit   *audit.DBAppender
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
	newID   func() string
}

// NewSQLStore creates a store over db. The schema must already be migrated.
func NewSQLStore(db *sql.DB, opts Options) (*SQLStore, error) {
	appender, err := audit.NewDBAppender(db)
	if err != nil {
		return nil, err
	}
	opts.setDefaults()
	return &SQLStore{
		db:      db,
		audit:   appender,
		ttl:     opts.TTL,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		newID:   opts.NewID,
	}, nil
}

// trace starts a span and returns a completion func recording err
func (s *SQLStore) trace(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "sessionstore."+op, attrs...)
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		observability.EndSpan(span, err)
		s.metrics.ObserveStore(op, start, err)
	}
}

func (s *SQLStore) now() time.Time {
	return s.clock.Now().UTC()
}

// GetRolesForUser returns the roles assigned to userID
func (s *SQLStore) GetRolesForUser(ctx context.Context, userID string) (roles []rbac.Role, err error) {
	ctx, done := s.trace(ctx, "get_roles", attribute.String("user.id", userID))
	defer done(&err)

	rows, err := s.db.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, domainerr.StoreFailure("sessionstore.GetRolesForUser", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, domainerr.StoreFailure("sessionstore.GetRolesForUser", err)
		}
		roles = append(roles, rbac.Role(name))
	}
	if err := rows.Err(); err != nil {
		return nil, domainerr.StoreFailure("sessionstore.GetRolesForUser", err)
	}
	return roles, nil
}

// GetUser looks up a user by id
func (s *SQLStore) GetUser(ctx context.Context, userID string) (user User, err error) {
	ctx, done := s.trace(ctx, "get_user", attribute.String("user.id", userID))
	defer done(&err)

	var displayName sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name FROM users WHERE id = $1`, userID,
	).Scan(&user.ID, &user.Email, &displayName)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, domainerr.NotFound("sessionstore.GetUser", "user not found")
	}
	if err != nil {
		return User{}, domainerr.StoreFailure("sessionstore.GetUser", err)
	}
	user.DisplayName = displayName.String
	return user, nil
}

// CreateImpersonationSession implements Store
func (s *SQLStore) CreateImpersonationSession(ctx context.Context, adminID, targetUserID, targetEmail string) (session ImpersonationSession, err error) {
	const op = "sessionstore.CreateImpersonationSession"
	ctx, done := s.trace(ctx, "create_impersonation",
		attribute.String("admin.id", adminID),
		attribute.String("target.id", targetUserID),
	)
	defer done(&err)

	if adminID == targetUserID {
		return session, domainerr.Invalid(op, "cannot impersonate yourself")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session, domainerr.StoreFailure(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2`,
		adminID, string(rbac.RoleSuperAdmin),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return session, domainerr.Unauthorized(op, "only super admins may impersonate users")
	}
	if err != nil {
		return session, domainerr.StoreFailure(op, err)
	}

	var storedEmail string
	err = tx.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, targetUserID).Scan(&storedEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return session, domainerr.NotFound(op, "user not found")
	}
	if err != nil {
		return session, domainerr.StoreFailure(op, err)
	}
	if !emailMatches(targetEmail, storedEmail) {
		return session, domainerr.Invalid(op, "email does not match target user")
	}

	now := s.now()
	if _, err = tx.ExecContext(ctx,
		`UPDATE impersonation_sessions SET ended_at = $1 WHERE admin_id = $2 AND ended_at IS NULL`,
		now, adminID,
	); err != nil {
		return session, domainerr.StoreFailure(op, err)
	}

	session = ImpersonationSession{
		ID:           s.newID(),
		AdminID:      adminID,
		TargetUserID: targetUserID,
		TargetEmail:  storedEmail,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO impersonation_sessions (id, admin_id, target_user_id, target_email, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.AdminID, session.TargetUserID, session.TargetEmail, session.CreatedAt, session.ExpiresAt,
	); err != nil {
		return ImpersonationSession{}, domainerr.StoreFailure(op, err)
	}

	if err = tx.Commit(); err != nil {
		return ImpersonationSession{}, domainerr.StoreFailure(op, err)
	}
	return session, nil
}

// GetActiveImpersonationSession implements Store. Expiry is evaluated here,
// at read time.
func (s *SQLStore) GetActiveImpersonationSession(ctx context.Context, adminID string) (session *ImpersonationSession, err error) {
	ctx, done := s.trace(ctx, "get_active_impersonation", attribute.String("admin.id", adminID))
	defer done(&err)

	var sess ImpersonationSession
	err = s.db.QueryRowContext(ctx, `
		SELECT id, admin_id, target_user_id, target_email, created_at, expires_at
		FROM impersonation_sessions
		WHERE admin_id = $1 AND ended_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`,
		adminID, s.now(),
	).Scan(&sess.ID, &sess.AdminID, &sess.TargetUserID, &sess.TargetEmail, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domainerr.StoreFailure("sessionstore.GetActiveImpersonationSession", err)
	}
	return &sess, nil
}

// EndImpersonationSession implements Store
func (s *SQLStore) EndImpersonationSession(ctx context.Context, adminID, sessionID string) (err error) {
	const op = "sessionstore.EndImpersonationSession"
	ctx, done := s.trace(ctx, "end_impersonation",
		attribute.String("admin.id", adminID),
		attribute.String("session.id", sessionID),
	)
	defer done(&err)

	var (
		owner   string
		endedAt sql.NullTime
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT admin_id, ended_at FROM impersonation_sessions WHERE id = $1`, sessionID,
	).Scan(&owner, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domainerr.NotFound(op, "impersonation session not found")
	}
	if err != nil {
		return domainerr.StoreFailure(op, err)
	}
	if owner != adminID {
		return domainerr.Unauthorized(op, "impersonation session belongs to another admin")
	}
	if endedAt.Valid {
		return nil
	}

	if _, err = s.db.ExecContext(ctx,
		`UPDATE impersonation_sessions SET ended_at = $1 WHERE id = $2 AND ended_at IS NULL`,
		s.now(), sessionID,
	); err != nil {
		return domainerr.StoreFailure(op, err)
	}
	return nil
}

// AssignRole implements rbac.AssignmentStore
func (s *SQLStore) AssignRole(ctx context.Context, userID string, role rbac.Role, grantedBy string) (err error) {
	const op = "sessionstore.AssignRole"
	ctx, done := s.trace(ctx, "assign_role",
		attribute.String("user.id", userID),
		attribute.String("role", string(role)),
	)
	defer done(&err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domainerr.StoreFailure(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domainerr.NotFound(op, "user not found")
	}
	if err != nil {
		return domainerr.StoreFailure(op, err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role),
	).Scan(&one)
	if err == nil {
		return domainerr.AlreadyExists(op, "user already holds the %s role", role)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domainerr.StoreFailure(op, err)
	}

	var grantor sql.NullString
	if grantedBy != "" {
		grantor = sql.NullString{String: grantedBy, Valid: true}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role, granted_by, granted_at) VALUES ($1, $2, $3, $4)`,
		userID, string(role), grantor, s.now(),
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domainerr.AlreadyExists(op, "user already holds the %s role", role)
		}
		return domainerr.StoreFailure(op, err)
	}

	if err = tx.Commit(); err != nil {
		return domainerr.StoreFailure(op, err)
	}
	return nil
}

// RevokeRole implements rbac.AssignmentStore
func (s *SQLStore) RevokeRole(ctx context.Context, userID string, role rbac.Role) (err error) {
	const op = "sessionstore.RevokeRole"
	ctx, done := s.trace(ctx, "revoke_role",
		attribute.String("user.id", userID),
		attribute.String("role", string(role)),
	)
	defer done(&err)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role),
	)
	if err != nil {
		return domainerr.StoreFailure(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domainerr.StoreFailure(op, err)
	}
	if n == 0 {
		return domainerr.NotFound(op, "user does not hold the %s role", role)
	}
	return nil
}

// AppendAuditRecord implements Store
func (s *SQLStore) AppendAuditRecord(ctx context.Context, rec *audit.Record) (err error) {
	ctx, done := s.trace(ctx, "append_audit", attribute.String("audit.action", string(rec.Action)))
	defer done(&err)

	if err = s.audit.Append(ctx, rec); err != nil {
		return domainerr.AuditWriteFailure("sessionstore.AppendAuditRecord", err)
	}
	return nil
}

// ListAuditRecords implements Store
func (s *SQLStore) ListAuditRecords(ctx context.Context, filter audit.Filter) (records []audit.Record, err error) {
	ctx, done := s.trace(ctx, "list_audit")
	defer done(&err)

	records, err = s.audit.List(ctx, filter)
	if err != nil {
		return nil, domainerr.StoreFailure("sessionstore.ListAuditRecords", err)
	}
	return records, nil
}

// SweepExpiredSessions stamps ended_at on sessions that expired without
// being ended.
func (s *SQLStore) SweepExpiredSessions(ctx context.Context) (n int64, err error) {
	ctx, done := s.trace(ctx, "sweep_expired")
	defer done(&err)

	res, err := s.db.ExecContext(ctx,
		`UPDATE impersonation_sessions SET ended_at = expires_at WHERE ended_at IS NULL AND expires_at <= $1`,
		s.now(),
	)
	if err != nil {
		return 0, domainerr.StoreFailure("sessionstore.SweepExpiredSessions", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, domainerr.StoreFailure("sessionstore.SweepExpiredSessions", err)
	}
	return n, nil
}

// UpsertUser creates or updates a user row. Identity providers call this on
// first sign-in so impersonation targets can be resolved.
func (s *SQLStore) UpsertUser(ctx context.Context, user User) (err error) {
	ctx, done := s.trace(ctx, "upsert_user", attribute.String("user.id", user.ID))
	defer done(&err)

	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Email) == "" {
		return domainerr.Invalid("sessionstore.UpsertUser", "user id and email are required")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, display_name = EXCLUDED.display_name`,
		user.ID, user.Email, user.DisplayName, s.now(),
	)
	if err != nil {
		return domainerr.StoreFailure("sessionstore.UpsertUser", fmt.Errorf("upsert %s: %w", user.ID, err))
	}
	return nil
}
