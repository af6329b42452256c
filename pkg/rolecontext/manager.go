package rolecontext

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/auth"
	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/observability"
	"github.com/platinummonkey/assessor/pkg/preference"
	"github.com/platinummonkey/assessor/pkg/rbac"
)

// State is the lifecycle position of a role context
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// MarshalText renders the state by name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a consistent copy of the context for rendering
type Snapshot struct {
	State          State       `json:"state"`
	UserID         string      `json:"user_id,omitempty"`
	Email          string      `json:"email,omitempty"`
	HeldRoles      []rbac.Role `json:"held_roles"`
	AvailableRoles []rbac.Role `json:"available_roles"`
	// ActiveRole is empty when the user holds no roles.
	ActiveRole   rbac.Role `json:"active_role,omitempty"`
	IsSuperAdmin bool      `json:"is_super_admin"`
	IsLoading    bool      `json:"is_loading"`
}

// SwitchResult describes an accepted role switch
type SwitchResult struct {
	From   rbac.Role    `json:"from"`
	To     rbac.Role    `json:"to"`
	Action audit.Action `json:"action"`
}

// Config wires a Manager to its collaborators
type Config struct {
	// ClientID scopes the persisted preference to one client instance.
	ClientID    string
	Roles       rbac.RoleSource
	Preferences preference.Store
	Recorder    audit.Recorder
	Clock       clockwork.Clock
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// Manager tracks one client's identity, held roles and active role
type Manager struct {
	clientID    string
	roles       rbac.RoleSource
	preferences preference.Store
	recorder    audit.Recorder
	clock       clockwork.Clock
	logger      *observability.Logger
	metrics     *observability.Metrics

	mu         sync.RWMutex
	state      State
	identity   auth.Identity
	held       []rbac.Role
	available  []rbac.Role
	active     rbac.Role
	superAdmin bool
}

// New creates a Manager in StateUninitialized
func New(cfg Config) *Manager {
	if cfg.Preferences == nil {
		cfg.Preferences = preference.NewMemoryStore()
	}
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
		clientID:    cfg.ClientID,
		roles:       cfg.Roles,
		preferences: cfg.Preferences,
		recorder:    cfg.Recorder,
		clock:       cfg.Clock,
		logger:      cfg.Logger.WithComponent("rolecontext").WithField("client_id", cfg.ClientID),
		metrics:     cfg.Metrics,
	}
}

// Load fetches the identity's held roles and selects the active role. It is
// called when the identity first becomes available, on every auth-state
// change and whenever held roles should be re-read. A reload for the same
// identity keeps the context ready and keeps the active role if it is still
// available. A login is recorded only when the identity changes.
func (m *Manager) Load(ctx context.Context, identity auth.Identity) error {
	const op = "rolecontext.Load"

	if !identity.Valid() {
		m.mu.Lock()
		m.resetLocked(StateUnauthenticated)
		m.mu.Unlock()
		return domainerr.Unauthorized(op, "authentication required")
	}

	m.mu.Lock()
	prevState := m.state
	newLogin := prevState != StateReady || m.identity.UserID != identity.UserID
	current := m.active
	if newLogin {
		m.state = StateLoading
		current = ""
	}
	m.mu.Unlock()

	held, err := m.roles.GetRolesForUser(ctx, identity.UserID)
	if err != nil {
		m.mu.Lock()
		m.state = prevState
		m.mu.Unlock()
		m.logger.WithError(err).WithField("user_id", identity.UserID).Error("failed to load held roles")
		return domainerr.StoreFailure(op, err)
	}
	held = rbac.SortByRank(held)

	preferred, ok, err := m.preferences.GetActiveRole(ctx, m.clientID)
	if err != nil {
		m.logger.WithError(err).Warn("failed to read active role preference")
		ok = false
	}

	superAdmin := rbac.Contains(held, rbac.RoleSuperAdmin)
	available := held
	if superAdmin {
		available = rbac.AllRoles()
	}

	active, _ := rbac.Highest(held)
	switch {
	case current != "" && rbac.Contains(available, current):
		active = current
	case ok && rbac.Contains(available, preferred):
		active = preferred
	}

	m.mu.Lock()
	m.state = StateReady
	m.identity = identity
	m.held = held
	m.available = available
	m.active = active
	m.superAdmin = superAdmin
	m.mu.Unlock()

	if newLogin {
		m.recorder.Record(ctx, audit.Record{
			ActorID:    identity.UserID,
			ActorEmail: identity.Email,
			Action:     audit.ActionLogin,
			TargetType: audit.TargetUser,
			TargetID:   identity.UserID,
			Details:    map[string]interface{}{audit.DetailRole: string(active)},
			Timestamp:  m.clock.Now().UTC(),
		})
	}
	return nil
}

// SwitchRole makes target the active role. It is allowed when target is
// held, or for any registered role when the user is a super admin; in the
// latter case the switch is recorded as role_impersonation.
func (m *Manager) SwitchRole(ctx context.Context, target rbac.Role) (SwitchResult, error) {
	const op = "rolecontext.SwitchRole"

	if _, err := rbac.ParseRole(string(target)); err != nil {
		return SwitchResult{}, err
	}

	m.mu.Lock()
	switch m.state {
	case StateReady:
	case StateUnauthenticated:
		m.mu.Unlock()
		return SwitchResult{}, domainerr.Unauthorized(op, "authentication required")
	default:
		m.mu.Unlock()
		return SwitchResult{}, domainerr.Invalid(op, "roles are still loading")
	}

	holds := rbac.Contains(m.held, target)
	action := audit.ActionRoleSwitch
	if m.superAdmin && !holds {
		action = audit.ActionRoleImpersonation
	}
	if !m.superAdmin && !holds {
		m.mu.Unlock()
		m.countSwitch(action, "denied")
		return SwitchResult{}, domainerr.Unauthorized(op, "you do not hold the %s role", target)
	}

	// Optimistic by intent: the switch is committed here, before the
	// preference write and the audit record. Neither can undo it.
	result := SwitchResult{From: m.active, To: target, Action: action}
	m.active = target
	identity := m.identity
	m.mu.Unlock()

	if err := m.preferences.SetActiveRole(ctx, m.clientID, target); err != nil {
		m.logger.WithError(err).WithField("role", string(target)).Warn("failed to persist active role")
		if m.metrics != nil {
			m.metrics.PreferenceWriteFailures.Inc()
		}
	}

	m.recorder.Record(ctx, audit.Record{
		ActorID:    identity.UserID,
		ActorEmail: identity.Email,
		Action:     action,
		TargetType: audit.TargetRole,
		TargetID:   string(target),
		Details: map[string]interface{}{
			audit.DetailFromRole:  string(result.From),
			audit.DetailToRole:    string(result.To),
			audit.DetailTimestamp: m.clock.Now().UTC().Format(time.RFC3339),
		},
		Timestamp: m.clock.Now().UTC(),
	})
	m.countSwitch(action, "success")
	return result, nil
}

// Logout resets the context to StateUnauthenticated and clears the
// persisted preference.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	identity := m.identity
	wasReady := m.state == StateReady
	active := m.active
	m.resetLocked(StateUnauthenticated)
	m.mu.Unlock()

	if err := m.preferences.Clear(ctx, m.clientID); err != nil {
		m.logger.WithError(err).Warn("failed to clear active role preference")
		if m.metrics != nil {
			m.metrics.PreferenceWriteFailures.Inc()
		}
	}

	if wasReady {
		m.recorder.Record(ctx, audit.Record{
			ActorID:    identity.UserID,
			ActorEmail: identity.Email,
			Action:     audit.ActionLogout,
			TargetType: audit.TargetUser,
			TargetID:   identity.UserID,
			Details:    map[string]interface{}{audit.DetailRole: string(active)},
			Timestamp:  m.clock.Now().UTC(),
		})
	}
}

// Snapshot returns a copy of the current state
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		State:          m.state,
		UserID:         m.identity.UserID,
		Email:          m.identity.Email,
		HeldRoles:      append([]rbac.Role{}, m.held...),
		AvailableRoles: append([]rbac.Role{}, m.available...),
		ActiveRole:     m.active,
		IsSuperAdmin:   m.superAdmin,
		IsLoading:      m.state == StateLoading,
	}
}

// ActiveRole returns the active role, empty when none
func (m *Manager) ActiveRole() rbac.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Identity returns the loaded identity
func (m *Manager) Identity() (auth.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity, m.state == StateReady
}

// HasPermission answers for the UI only. Mutations are authorized by
// rbac.Enforcer against freshly read roles.
func (m *Manager) HasPermission(p rbac.Permission) rbac.Decision {
	return rbac.Hint(m.ActiveRole(), p)
}

func (m *Manager) resetLocked(state State) {
	m.state = state
	m.identity = auth.Identity{}
	m.held = nil
	m.available = nil
	m.active = ""
	m.superAdmin = false
}

func (m *Manager) countSwitch(action audit.Action, outcome string) {
	if m.metrics == nil {
		return
	}
	m.metrics.RoleSwitchesTotal.WithLabelValues(string(action), outcome).Inc()
}
