package sessionstore

import (
	"context"
	"strings"
	"time"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/rbac"
)

// DefaultImpersonationTTL is the lifetime of an impersonation session when
// none is configured.
const DefaultImpersonationTTL = 2 * time.Hour

// User is the minimal user record needed to resolve impersonation targets
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// ImpersonationSession is a super admin acting as another user until
// ExpiresAt or until explicitly ended.
type ImpersonationSession struct {
	ID           string     `json:"id"`
	AdminID      string     `json:"admin_id"`
	TargetUserID string     `json:"target_user_id"`
	TargetEmail  string     `json:"target_email"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// ActiveAt reports whether the session is usable at now. A session is
// dead once now reaches ExpiresAt, whether or not it was ended.
func (s ImpersonationSession) ActiveAt(now time.Time) bool {
	return s.EndedAt == nil && now.Before(s.ExpiresAt)
}

// emailMatches reports whether a caller-supplied email confirms the stored
// one. An empty confirmation is accepted.
func emailMatches(given, stored string) bool {
	given = strings.TrimSpace(given)
	return given == "" || strings.EqualFold(given, stored)
}

// Store is the single source of truth for role assignments, impersonation
// sessions and the audit trail.
type Store interface {
	rbac.AssignmentStore

	// GetUser fails with domainerr.ErrNotFound when the user does not exist.
	GetUser(ctx context.Context, userID string) (User, error)

	// CreateImpersonationSession verifies that adminID holds super_admin
	// before anything about the target is looked at. It then resolves the
	// target, checks targetEmail against the stored address when one is
	// given, ends any session the admin still has open and creates a new one
	// with the store's fixed lifetime.
	CreateImpersonationSession(ctx context.Context, adminID, targetUserID, targetEmail string) (ImpersonationSession, error)

	// GetActiveImpersonationSession returns nil when the admin has no
	// session that is both un-ended and unexpired.
	GetActiveImpersonationSession(ctx context.Context, adminID string) (*ImpersonationSession, error)

	// EndImpersonationSession ends a session owned by adminID. Ending an
	// already ended or expired session succeeds.
	EndImpersonationSession(ctx context.Context, adminID, sessionID string) error

	AppendAuditRecord(ctx context.Context, rec *audit.Record) error
	ListAuditRecords(ctx context.Context, filter audit.Filter) ([]audit.Record, error)
}

// Sweeper closes sessions whose expiry has passed. Reads already treat
// expired sessions as absent; sweeping only tidies storage.
type Sweeper interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}
