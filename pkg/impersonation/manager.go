package impersonation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/auth"
	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/observability"
	"github.com/platinummonkey/assessor/pkg/sessionstore"
)

// State is the lifecycle position of an admin's impersonation
type State int

const (
	StateNoSession State = iota
	StatePending
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "no_session"
	}
}

// MarshalText renders the state by name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionStore is the part of sessionstore.Store the manager needs
type SessionStore interface {
	CreateImpersonationSession(ctx context.Context, adminID, targetUserID, targetEmail string) (sessionstore.ImpersonationSession, error)
	GetActiveImpersonationSession(ctx context.Context, adminID string) (*sessionstore.ImpersonationSession, error)
	EndImpersonationSession(ctx context.Context, adminID, sessionID string) error
}

// User identifies the impersonated user
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Snapshot is a consistent copy of the manager for rendering
type Snapshot struct {
	State            State      `json:"state"`
	IsImpersonating  bool       `json:"is_impersonating"`
	IsLoading        bool       `json:"is_loading"`
	ImpersonatedUser *User      `json:"impersonated_user,omitempty"`
	SessionID        string     `json:"session_id,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// Config wires a Manager to its collaborators
type Config struct {
	Admin    auth.Identity
	Store    SessionStore
	Recorder audit.Recorder
	Clock    clockwork.Clock
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// Manager drives one admin's impersonation session. Start, End and Refresh
// are serialized; a failed call leaves the previous state in place.
type Manager struct {
	admin    auth.Identity
	store    SessionStore
	recorder audit.Recorder
	clock    clockwork.Clock
	logger   *observability.Logger
	metrics  *observability.Metrics

	// op serializes store round trips; mu guards the fields below it.
	op      sync.Mutex
	mu      sync.RWMutex
	state   State
	session *sessionstore.ImpersonationSession
}

// New creates a Manager in StateNoSession
func New(cfg Config) *Manager {
	if cfg.Recorder == nil {
		cfg.Recorder = audit.NopRecorder()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	return &Manager{
		admin:    cfg.Admin,
		store:    cfg.Store,
		recorder: cfg.Recorder,
		clock:    cfg.Clock,
		logger:   cfg.Logger.WithComponent("impersonation").WithField("admin_id", cfg.Admin.UserID),
		metrics:  cfg.Metrics,
	}
}

// Start begins impersonating targetUserID. The super admin requirement is
// enforced by the store; any session the admin already has is superseded.
// targetEmail may be empty, otherwise it must match the stored user.
func (m *Manager) Start(ctx context.Context, targetUserID, targetEmail string) (err error) {
	const op = "impersonation.Start"
	m.op.Lock()
	defer m.op.Unlock()
	defer func() { m.count("start", err) }()

	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return domainerr.Invalid(op, "a target user is required")
	}
	if targetUserID == m.admin.UserID {
		return domainerr.Invalid(op, "cannot impersonate yourself")
	}

	prevState, prevSession := m.begin()

	// The store checks super_admin before it resolves the target, so a
	// rejected caller learns nothing about targetUserID or targetEmail.
	session, err := m.store.CreateImpersonationSession(ctx, m.admin.UserID, targetUserID, targetEmail)
	if err != nil {
		m.restore(prevState, prevSession)
		m.logger.WithError(err).WithField("target_id", targetUserID).Warn("impersonation start rejected")
		return domainerr.StoreFailure(op, err)
	}

	now := m.clock.Now().UTC()
	m.recorder.Record(ctx, audit.Record{
		ActorID:    m.admin.UserID,
		ActorEmail: m.admin.Email,
		Action:     audit.ActionUserImpersonation,
		TargetType: audit.TargetUser,
		TargetID:   session.TargetUserID,
		Details: map[string]interface{}{
			audit.DetailTargetEmail: session.TargetEmail,
			audit.DetailSessionID:   session.ID,
			audit.DetailExpiresAt:   session.ExpiresAt.Format(time.RFC3339),
			audit.DetailTimestamp:   now.Format(time.RFC3339),
		},
		Timestamp: now,
	})

	// Read back what the store now considers active; fall back to the
	// session just created if that read fails.
	current, err := m.store.GetActiveImpersonationSession(ctx, m.admin.UserID)
	if err != nil {
		m.logger.WithError(err).Warn("failed to refresh session after start")
		current = &session
	}
	if current == nil {
		m.set(StateEnded, nil)
		return nil
	}
	m.set(StateActive, current)
	return nil
}

// End stops the cached session. With nothing cached it does nothing. The
// exit is recorded before the store is asked to end the session; if the
// store call fails the cached session is kept so the caller can retry.
func (m *Manager) End(ctx context.Context) (err error) {
	const op = "impersonation.End"
	m.op.Lock()
	defer m.op.Unlock()

	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()
	if session == nil {
		return nil
	}
	defer func() { m.count("end", err) }()

	now := m.clock.Now().UTC()
	m.recorder.Record(ctx, audit.Record{
		ActorID:    m.admin.UserID,
		ActorEmail: m.admin.Email,
		Action:     audit.ActionExitImpersonation,
		TargetType: audit.TargetSession,
		TargetID:   session.ID,
		Details: map[string]interface{}{
			audit.DetailSessionID:   session.ID,
			audit.DetailTargetEmail: session.TargetEmail,
			audit.DetailSubjectID:   session.TargetUserID,
			audit.DetailTimestamp:   now.Format(time.RFC3339),
		},
		Timestamp: now,
	})

	if err := m.store.EndImpersonationSession(ctx, m.admin.UserID, session.ID); err != nil {
		m.logger.WithError(err).WithField("session_id", session.ID).Error("failed to end impersonation session")
		return domainerr.StoreFailure(op, err)
	}

	m.set(StateEnded, nil)
	return nil
}

// Refresh replaces the cached session with the store's view. Call it when
// the client mounts and on every auth-state change.
func (m *Manager) Refresh(ctx context.Context) (err error) {
	const op = "impersonation.Refresh"
	m.op.Lock()
	defer m.op.Unlock()
	defer func() { m.count("refresh", err) }()

	current, err := m.store.GetActiveImpersonationSession(ctx, m.admin.UserID)
	if err != nil {
		m.logger.WithError(err).Warn("failed to refresh impersonation session")
		return domainerr.StoreFailure(op, err)
	}

	if current != nil && current.ActiveAt(m.clock.Now()) {
		m.set(StateActive, current)
		return nil
	}

	m.mu.RLock()
	had := m.session != nil
	m.mu.RUnlock()
	if had {
		m.set(StateEnded, nil)
	}
	return nil
}

// Snapshot returns the current view. A cached session past its expiry is
// reported as ended without waiting for the next Refresh.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{State: m.state, IsLoading: m.state == StatePending}
	s := m.session
	if s == nil {
		return snap
	}
	if !s.ActiveAt(m.clock.Now()) {
		if snap.State == StateActive {
			snap.State = StateEnded
		}
		return snap
	}
	expires := s.ExpiresAt
	snap.IsImpersonating = true
	snap.ImpersonatedUser = &User{ID: s.TargetUserID, Email: s.TargetEmail}
	snap.SessionID = s.ID
	snap.ExpiresAt = &expires
	return snap
}

// Admin returns the identity the manager acts for
func (m *Manager) Admin() auth.Identity {
	return m.admin
}

// Close drops any cached session from the active gauge. It does not end the
// session in the store.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(StateNoSession, nil)
}

func (m *Manager) begin() (State, *sessionstore.ImpersonationSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prevState, prevSession := m.state, m.session
	m.state = StatePending
	return prevState, prevSession
}

func (m *Manager) restore(state State, session *sessionstore.ImpersonationSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.session = session
}

func (m *Manager) set(state State, session *sessionstore.ImpersonationSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(state, session)
}

// transitionLocked keeps the active-impersonation gauge in step with the
// cached session.
func (m *Manager) transitionLocked(state State, session *sessionstore.ImpersonationSession) {
	wasActive := m.session != nil
	m.state = state
	m.session = session
	if m.metrics == nil {
		return
	}
	switch isActive := session != nil; {
	case isActive && !wasActive:
		m.metrics.ActiveImpersonations.Inc()
	case !isActive && wasActive:
		m.metrics.ActiveImpersonations.Dec()
	}
}

func (m *Manager) count(event string, err error) {
	if m.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(domainerr.KindOf(err))
		if outcome == "" {
			outcome = "failure"
		}
	}
	m.metrics.ImpersonationEvents.WithLabelValues(event, outcome).Inc()
}
