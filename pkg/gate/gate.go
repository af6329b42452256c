package gate

import (
	"github.com/platinummonkey/assessor/pkg/rbac"
)

// View is the projection of a feature catalog onto an active role
type View struct {
	ActiveRole rbac.Role `json:"active_role"`
	// Baseline is the most privileged role the holder has; empty without roles.
	Baseline rbac.Role `json:"baseline_role,omitempty"`
	Visible  []Feature `json:"visible"`
	Hidden   []Feature `json:"hidden"`
	// HiddenByNarrowing lists features the holder could see at Baseline
	// but not under ActiveRole.
	HiddenByNarrowing []Feature `json:"hidden_by_narrowing"`
	Narrowed          bool      `json:"narrowed"`
}

// HiddenCount is the number behind the "N features hidden under this role"
// notice.
func (v View) HiddenCount() int {
	return len(v.HiddenByNarrowing)
}

// Evaluate filters features for active. held are the roles the viewer
// actually has; their highest member is the baseline that narrowing is
// measured against. The result is a ClientHint projection only.
func Evaluate(features []Feature, active rbac.Role, held []rbac.Role) View {
	view := View{
		ActiveRole:        active,
		Visible:           []Feature{},
		Hidden:            []Feature{},
		HiddenByNarrowing: []Feature{},
	}
	baseline, ok := rbac.Highest(held)
	if ok {
		view.Baseline = baseline
		senior, err := rbac.IsSenior(baseline, active)
		view.Narrowed = err != nil || senior
	}

	for _, f := range features {
		if rbac.HasPermission(active, f.Permission) {
			view.Visible = append(view.Visible, f)
			continue
		}
		view.Hidden = append(view.Hidden, f)
		if view.Narrowed && rbac.HasPermission(baseline, f.Permission) {
			view.HiddenByNarrowing = append(view.HiddenByNarrowing, f)
		}
	}
	return view
}
