package audit

import (
	"errors"
	"time"
)

// Action is the kind of privilege-sensitive event being recorded
type Action string

const (
	ActionLogin             Action = "login"
	ActionLogout            Action = "logout"
	ActionRoleSwitch        Action = "role_switch"
	ActionRoleImpersonation Action = "role_impersonation"
	ActionUserImpersonation Action = "user_impersonation"
	ActionExitImpersonation Action = "exit_impersonation"
	ActionAssignedRole      Action = "assigned_role"
	ActionRevokedRole       Action = "revoked_role"
)

// KnownActions lists the recorded vocabulary
func KnownActions() []Action {
	return []Action{
		ActionLogin,
		ActionLogout,
		ActionRoleSwitch,
		ActionRoleImpersonation,
		ActionUserImpersonation,
		ActionExitImpersonation,
		ActionAssignedRole,
		ActionRevokedRole,
	}
}

// TargetType names what an action was applied to
type TargetType string

const (
	TargetUser    TargetType = "user"
	TargetRole    TargetType = "role"
	TargetSession TargetType = "impersonation_session"
)

// Detail keys shared by producers so that records can be queried uniformly
const (
	DetailFromRole    = "from_role"
	DetailToRole      = "to_role"
	DetailRole        = "role"
	DetailSessionID   = "session_id"
	DetailTargetEmail = "target_email"
	DetailExpiresAt   = "expires_at"
	DetailActingAs    = "acting_as"
	DetailSubjectID   = "subject_id"
	DetailTimestamp   = "timestamp"
)

// Record is an append-only audit entry
type Record struct {
	ID         int64                  `json:"id,omitempty"`
	ActorID    string                 `json:"actor_id"`
	ActorEmail string                 `json:"actor_email"`
	Action     Action                 `json:"action"`
	TargetType TargetType             `json:"target_type,omitempty"`
	TargetID   string                 `json:"target_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Validate checks the fields every record must carry
func (r *Record) Validate() error {
	if r.ActorID == "" {
		return errors.New("audit record requires an actor id")
	}
	if r.Action == "" {
		return errors.New("audit record requires an action")
	}
	if r.TargetID != "" && r.TargetType == "" {
		return errors.New("audit record target id requires a target type")
	}
	return nil
}

// Filter narrows a listing of audit records
type Filter struct {
	ActorID string
	Action  Action
	Since   time.Time
	Limit   int
}

// DefaultListLimit caps listings that do not set Filter.Limit
const DefaultListLimit = 100

// EffectiveLimit returns the limit to apply, clamped to [1, 1000]
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > 1000:
		return 1000
	default:
		return f.Limit
	}
}
