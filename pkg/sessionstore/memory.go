package sessionstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/rbac"
)

// MemoryStore is an in-process Store for development and tests. It follows
// the same rules as SQLStore, including read-time expiry.
type MemoryStore struct {
	mu       sync.Mutex
	opts     Options
	users    map[string]User
	roles    map[string]map[rbac.Role]bool
	sessions map[string]*ImpersonationSession
	audit    *audit.MemoryAppender

	// Err, when set, fails every operation with a store error.
	err error
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore(opts Options) *MemoryStore {
	opts.setDefaults()
	return &MemoryStore{
		opts:     opts,
		users:    make(map[string]User),
		roles:    make(map[string]map[rbac.Role]bool),
		sessions: make(map[string]*ImpersonationSession),
		audit:    audit.NewMemoryAppender(),
	}
}

// AddUser registers a user holding roles
func (m *MemoryStore) AddUser(user User, roles ...rbac.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	held := m.roles[user.ID]
	if held == nil {
		held = make(map[rbac.Role]bool)
		m.roles[user.ID] = held
	}
	for _, r := range roles {
		held[r] = true
	}
}

// SetErr makes every subsequent operation fail with err until cleared
func (m *MemoryStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// AuditRecords returns everything appended so far
func (m *MemoryStore) AuditRecords() []audit.Record {
	return m.audit.Records()
}

func (m *MemoryStore) failure(op string) error {
	if m.err == nil {
		return nil
	}
	return domainerr.StoreFailure(op, m.err)
}

func (m *MemoryStore) now() time.Time {
	return m.opts.Clock.Now().UTC()
}

// GetRolesForUser implements rbac.RoleSource
func (m *MemoryStore) GetRolesForUser(ctx context.Context, userID string) ([]rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("sessionstore.GetRolesForUser"); err != nil {
		return nil, err
	}
	var roles []rbac.Role
	for r := range m.roles[userID] {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles, nil
}

// GetUser implements Store
func (m *MemoryStore) GetUser(ctx context.Context, userID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("sessionstore.GetUser"); err != nil {
		return User{}, err
	}
	user, ok := m.users[userID]
	if !ok {
		return User{}, domainerr.NotFound("sessionstore.GetUser", "user not found")
	}
	return user, nil
}

// CreateImpersonationSession implements Store
func (m *MemoryStore) CreateImpersonationSession(ctx context.Context, adminID, targetUserID, targetEmail string) (ImpersonationSession, error) {
	const op = "sessionstore.CreateImpersonationSession"
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(op); err != nil {
		return ImpersonationSession{}, err
	}
	if adminID == targetUserID {
		return ImpersonationSession{}, domainerr.Invalid(op, "cannot impersonate yourself")
	}
	if !m.roles[adminID][rbac.RoleSuperAdmin] {
		return ImpersonationSession{}, domainerr.Unauthorized(op, "only super admins may impersonate users")
	}
	target, ok := m.users[targetUserID]
	if !ok {
		return ImpersonationSession{}, domainerr.NotFound(op, "user not found")
	}
	if !emailMatches(targetEmail, target.Email) {
		return ImpersonationSession{}, domainerr.Invalid(op, "email does not match target user")
	}

	now := m.now()
	for _, s := range m.sessions {
		if s.AdminID == adminID && s.EndedAt == nil {
			ended := now
			s.EndedAt = &ended
		}
	}

	session := ImpersonationSession{
		ID:           m.opts.NewID(),
		AdminID:      adminID,
		TargetUserID: targetUserID,
		TargetEmail:  target.Email,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.opts.TTL),
	}
	stored := session
	m.sessions[session.ID] = &stored
	return session, nil
}

// GetActiveImpersonationSession implements Store
func (m *MemoryStore) GetActiveImpersonationSession(ctx context.Context, adminID string) (*ImpersonationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("sessionstore.GetActiveImpersonationSession"); err != nil {
		return nil, err
	}
	now := m.now()
	var latest *ImpersonationSession
	for _, s := range m.sessions {
		if s.AdminID != adminID || !s.ActiveAt(now) {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// EndImpersonationSession implements Store
func (m *MemoryStore) EndImpersonationSession(ctx context.Context, adminID, sessionID string) error {
	const op = "sessionstore.EndImpersonationSession"
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(op); err != nil {
		return err
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return domainerr.NotFound(op, "impersonation session not found")
	}
	if s.AdminID != adminID {
		return domainerr.Unauthorized(op, "impersonation session belongs to another admin")
	}
	if s.EndedAt == nil {
		now := m.now()
		s.EndedAt = &now
	}
	return nil
}

// AssignRole implements rbac.AssignmentStore
func (m *MemoryStore) AssignRole(ctx context.Context, userID string, role rbac.Role, grantedBy string) error {
	const op = "sessionstore.AssignRole"
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(op); err != nil {
		return err
	}
	if _, ok := m.users[userID]; !ok {
		return domainerr.NotFound(op, "user not found")
	}
	held := m.roles[userID]
	if held == nil {
		held = make(map[rbac.Role]bool)
		m.roles[userID] = held
	}
	if held[role] {
		return domainerr.AlreadyExists(op, "user already holds the %s role", role)
	}
	held[role] = true
	return nil
}

// RevokeRole implements rbac.AssignmentStore
func (m *MemoryStore) RevokeRole(ctx context.Context, userID string, role rbac.Role) error {
	const op = "sessionstore.RevokeRole"
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(op); err != nil {
		return err
	}
	if !m.roles[userID][role] {
		return domainerr.NotFound(op, "user does not hold the %s role", role)
	}
	delete(m.roles[userID], role)
	return nil
}

// AppendAuditRecord implements Store
func (m *MemoryStore) AppendAuditRecord(ctx context.Context, rec *audit.Record) error {
	m.mu.Lock()
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return domainerr.AuditWriteFailure("sessionstore.AppendAuditRecord", err)
	}
	return m.audit.Append(ctx, rec)
}

// ListAuditRecords implements Store
func (m *MemoryStore) ListAuditRecords(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	m.mu.Lock()
	err := m.failure("sessionstore.ListAuditRecords")
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.audit.List(ctx, filter)
}

// SweepExpiredSessions implements Sweeper
func (m *MemoryStore) SweepExpiredSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("sessionstore.SweepExpiredSessions"); err != nil {
		return 0, err
	}
	now := m.now()
	var n int64
	for _, s := range m.sessions {
		if s.EndedAt == nil && !now.Before(s.ExpiresAt) {
			ended := s.ExpiresAt
			s.EndedAt = &ended
			n++
		}
	}
	return n, nil
}

// UpsertUser implements the same contract as SQLStore.UpsertUser
func (m *MemoryStore) UpsertUser(ctx context.Context, user User) error {
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Email) == "" {
		return domainerr.Invalid("sessionstore.UpsertUser", "user id and email are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("sessionstore.UpsertUser"); err != nil {
		return err
	}
	m.users[user.ID] = user
	return nil
}
