package rbac

import (
	"context"

	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/observability"
)

// Enforcement tags where a permission verdict came from. ClientHint
// verdicts only drive what the UI shows; ServerEnforced verdicts are
// computed from freshly fetched role assignments and gate mutations.
type Enforcement int

const (
	ClientHint Enforcement = iota
	ServerEnforced
)

func (e Enforcement) String() string {
	if e == ServerEnforced {
		return "server_enforced"
	}
	return "client_hint"
}

// Decision is the outcome of a permission check
type Decision struct {
	Allowed     bool
	Enforcement Enforcement
	Permission  Permission
	// Roles are the roles the verdict was evaluated against.
	Roles  []Role
	Reason string
}

// Hint evaluates p against the active role only. It is never a security
// boundary.
func Hint(active Role, p Permission) Decision {
	d := Decision{
		Allowed:     HasPermission(active, p),
		Enforcement: ClientHint,
		Permission:  p,
		Roles:       []Role{active},
	}
	if !d.Allowed {
		d.Reason = "active role lacks permission"
	}
	return d
}

// ActingMode describes whose privileges a request runs under
type ActingMode string

const (
	ActingAsSelf ActingMode = "self"
	// ActingAsRole narrows the actor to a single role (role-level impersonation).
	ActingAsRole ActingMode = "role"
	// ActingAsUser runs under another user's identity (user-level impersonation).
	ActingAsUser ActingMode = "user"
)

// Principal identifies the human behind a request and the subject whose
// privileges apply to it.
type Principal struct {
	ActorID      string
	ActorEmail   string
	SubjectID    string
	SubjectEmail string
	// ActiveRole narrows the actor's own privileges. Ignored when acting as
	// another user.
	ActiveRole Role
}

// Mode reports how the principal is acting
func (p Principal) Mode() ActingMode {
	if p.SubjectID != "" && p.SubjectID != p.ActorID {
		return ActingAsUser
	}
	if p.ActiveRole != "" {
		return ActingAsRole
	}
	return ActingAsSelf
}

// Subject returns the user whose role assignments govern the request
func (p Principal) Subject() string {
	if p.SubjectID != "" {
		return p.SubjectID
	}
	return p.ActorID
}

// RoleSource returns the roles currently assigned to a user
type RoleSource interface {
	GetRolesForUser(ctx context.Context, userID string) ([]Role, error)
}

// Enforcer performs ServerEnforced checks. Held roles are re-read from the
// source on every call; nothing is cached.
type Enforcer struct {
	roles   RoleSource
	metrics *observability.Metrics
}

// NewEnforcer creates an Enforcer. metrics may be nil.
func NewEnforcer(roles RoleSource, metrics *observability.Metrics) *Enforcer {
	return &Enforcer{roles: roles, metrics: metrics}
}

// Authorize evaluates p for principal. A narrowing active role can only
// remove permissions: the verdict requires both the subject's held roles
// and the active role to grant p.
func (e *Enforcer) Authorize(ctx context.Context, principal Principal, p Permission) (Decision, error) {
	const op = "rbac.Authorize"

	decision := Decision{Enforcement: ServerEnforced, Permission: p}

	subject := principal.Subject()
	if subject == "" {
		return decision, domainerr.Unauthorized(op, "authentication required")
	}

	held, err := e.roles.GetRolesForUser(ctx, subject)
	if err != nil {
		return decision, domainerr.StoreFailure(op, err)
	}
	held = SortByRank(held)
	decision.Roles = held

	if principal.Mode() == ActingAsRole {
		active := principal.ActiveRole
		if !active.Valid() {
			return decision, unknownRole(op, string(active))
		}
		if !Contains(held, active) && !Contains(held, RoleSuperAdmin) {
			decision.Reason = "active role is not held"
			e.observe(decision)
			return decision, nil
		}
		decision.Roles = []Role{active}
		decision.Allowed = HasPermission(active, p) && AnyHasPermission(held, p)
	} else {
		decision.Allowed = AnyHasPermission(held, p)
	}

	if !decision.Allowed && decision.Reason == "" {
		decision.Reason = "no held role grants " + string(p)
	}
	e.observe(decision)
	return decision, nil
}

// Require is Authorize that turns a denial into an Unauthorized error
func (e *Enforcer) Require(ctx context.Context, principal Principal, p Permission) (Decision, error) {
	decision, err := e.Authorize(ctx, principal, p)
	if err != nil {
		return decision, err
	}
	if !decision.Allowed {
		return decision, domainerr.Unauthorized("rbac.Require", "missing permission %s", p)
	}
	return decision, nil
}

func (e *Enforcer) observe(d Decision) {
	if e.metrics == nil {
		return
	}
	result := "deny"
	if d.Allowed {
		result = "allow"
	}
	e.metrics.PermissionChecksTotal.WithLabelValues(d.Enforcement.String(), result).Inc()
}
