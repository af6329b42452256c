package rbac

import (
	"context"
	"strings"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/domainerr"
	"github.com/platinummonkey/assessor/pkg/observability"
)

// AssignmentStore persists user role assignments
type AssignmentStore interface {
	RoleSource
	// AssignRole fails with domainerr.ErrAlreadyExists when the role is held.
	AssignRole(ctx context.Context, userID string, role Role, grantedBy string) error
	RevokeRole(ctx context.Context, userID string, role Role) error
}

// Assigner grants and revokes roles. Every call is ServerEnforced: the
// actor's roles are re-read, manage_roles is required and the actor's
// acting role must be able to manage the target role.
type Assigner struct {
	store    AssignmentStore
	enforcer *Enforcer
	recorder audit.Recorder
	logger   *observability.Logger
}

// NewAssigner creates an Assigner
func NewAssigner(store AssignmentStore, enforcer *Enforcer, recorder audit.Recorder, logger *observability.Logger) *Assigner {
	if recorder == nil {
		recorder = audit.NopRecorder()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Assigner{
		store:    store,
		enforcer: enforcer,
		recorder: recorder,
		logger:   logger.WithComponent("rbac"),
	}
}

// Assign grants role to userID on behalf of actor
func (a *Assigner) Assign(ctx context.Context, actor Principal, userID string, role Role) error {
	const op = "rbac.Assign"

	if err := a.authorize(ctx, op, actor, userID, role); err != nil {
		return err
	}
	if err := a.store.AssignRole(ctx, userID, role, actor.ActorID); err != nil {
		return domainerr.StoreFailure(op, err)
	}

	a.record(ctx, actor, audit.ActionAssignedRole, userID, role)
	return nil
}

// Revoke removes role from userID on behalf of actor
func (a *Assigner) Revoke(ctx context.Context, actor Principal, userID string, role Role) error {
	const op = "rbac.Revoke"

	if err := a.authorize(ctx, op, actor, userID, role); err != nil {
		return err
	}
	if err := a.store.RevokeRole(ctx, userID, role); err != nil {
		return domainerr.StoreFailure(op, err)
	}

	a.record(ctx, actor, audit.ActionRevokedRole, userID, role)
	return nil
}

func (a *Assigner) authorize(ctx context.Context, op string, actor Principal, userID string, role Role) error {
	if strings.TrimSpace(userID) == "" {
		return domainerr.Invalid(op, "user id is required")
	}
	if !role.Valid() {
		return unknownRole(op, string(role))
	}

	decision, err := a.enforcer.Require(ctx, actor, PermManageRoles)
	if err != nil {
		a.logger.WithFields(map[string]interface{}{
			"actor_id": actor.ActorID,
			"user_id":  userID,
			"role":     string(role),
		}).WithError(err).Warn("role management denied")
		return err
	}

	acting, ok := Highest(decision.Roles)
	if !ok {
		return domainerr.Unauthorized(op, "no role held")
	}
	allowed, err := CanManage(acting, role)
	if err != nil {
		return err
	}
	if !allowed {
		return domainerr.Unauthorized(op, "%s cannot manage the %s role", acting, role)
	}
	return nil
}

func (a *Assigner) record(ctx context.Context, actor Principal, action audit.Action, userID string, role Role) {
	details := map[string]interface{}{
		audit.DetailRole:     string(role),
		audit.DetailActingAs: string(actor.Mode()),
	}
	if actor.Mode() == ActingAsUser {
		details[audit.DetailSubjectID] = actor.SubjectID
	}
	a.recorder.Record(ctx, audit.Record{
		ActorID:    actor.ActorID,
		ActorEmail: actor.ActorEmail,
		Action:     action,
		TargetType: audit.TargetUser,
		TargetID:   userID,
		Details:    details,
	})
}
