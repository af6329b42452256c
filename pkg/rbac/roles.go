package rbac

import (
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/assessor/pkg/domainerr"
)

// Role is a privilege tier from the fixed hierarchy
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleChair      Role = "chair"
	RoleCoChair    Role = "co_chair"
	RoleEM         Role = "em"
	RoleUser       Role = "user"
)

// Permission is a named capability granted by a role
type Permission string

const (
	PermViewDashboard        Permission = "view_dashboard"
	PermViewCandidates       Permission = "view_candidates"
	PermViewCandidateDetails Permission = "view_candidate_details"
	PermTagCandidates        Permission = "tag_candidates"
	PermAnnotateCandidates   Permission = "annotate_candidates"
	PermCompareCandidates    Permission = "compare_candidates"
	PermExportResults        Permission = "export_results"
	PermManageAssessments    Permission = "manage_assessments"
	PermManageUsers          Permission = "manage_users"
	PermManageRoles          Permission = "manage_roles"
	PermImpersonateUsers     Permission = "impersonate_users"
	PermViewAuditLog         Permission = "view_audit_log"
	PermTakeAssessment       Permission = "take_assessment"
	PermViewOwnResults       Permission = "view_own_results"
)

// AllPermissions lists every permission in the vocabulary
func AllPermissions() []Permission {
	return []Permission{
		PermViewDashboard,
		PermViewCandidates,
		PermViewCandidateDetails,
		PermTagCandidates,
		PermAnnotateCandidates,
		PermCompareCandidates,
		PermExportResults,
		PermManageAssessments,
		PermManageUsers,
		PermManageRoles,
		PermImpersonateUsers,
		PermViewAuditLog,
		PermTakeAssessment,
		PermViewOwnResults,
	}
}

type roleDefinition struct {
	rank        int
	label       string
	permissions map[Permission]struct{}
}

func permissionSet(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

func without(perms []Permission, drop ...Permission) []Permission {
	out := make([]Permission, 0, len(perms))
next:
	for _, p := range perms {
		for _, d := range drop {
			if p == d {
				continue next
			}
		}
		out = append(out, p)
	}
	return out
}

var (
	chairPermissions = []Permission{
		PermViewDashboard,
		PermViewCandidates,
		PermViewCandidateDetails,
		PermTagCandidates,
		PermAnnotateCandidates,
		PermCompareCandidates,
		PermExportResults,
		PermTakeAssessment,
		PermViewOwnResults,
	}

	// registry is read-only after package init. Callers only ever receive
	// copies of the permission sets.
	registry = map[Role]roleDefinition{
		RoleSuperAdmin: {rank: 100, label: "Super Admin", permissions: permissionSet(AllPermissions()...)},
		RoleAdmin:      {rank: 80, label: "Admin", permissions: permissionSet(without(AllPermissions(), PermImpersonateUsers)...)},
		RoleChair:      {rank: 60, label: "Chair", permissions: permissionSet(chairPermissions...)},
		RoleCoChair:    {rank: 40, label: "Co-Chair", permissions: permissionSet(without(chairPermissions, PermExportResults)...)},
		RoleEM:         {rank: 20, label: "EM", permissions: permissionSet(PermViewDashboard, PermViewCandidates, PermTakeAssessment, PermViewOwnResults)},
		RoleUser:       {rank: 10, label: "User", permissions: permissionSet(PermTakeAssessment, PermViewOwnResults)},
	}
)

// AllRoles returns every registered role, most privileged first
func AllRoles() []Role {
	roles := make([]Role, 0, len(registry))
	for r := range registry {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool {
		return registry[roles[i]].rank > registry[roles[j]].rank
	})
	return roles
}

// ParseRole converts a string into a registered Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if _, ok := registry[r]; !ok {
		return "", unknownRole("rbac.ParseRole", s)
	}
	return r, nil
}

// Valid reports whether r is a registered role
func (r Role) Valid() bool {
	_, ok := registry[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// Rank returns the hierarchy rank of r; higher is more privileged
func Rank(r Role) (int, error) {
	def, ok := registry[r]
	if !ok {
		return 0, unknownRole("rbac.Rank", string(r))
	}
	return def.rank, nil
}

// Label returns the display label of r
func Label(r Role) (string, error) {
	def, ok := registry[r]
	if !ok {
		return "", unknownRole("rbac.Label", string(r))
	}
	return def.label, nil
}

// PermissionsOf returns a sorted copy of the permissions granted by r
func PermissionsOf(r Role) ([]Permission, error) {
	def, ok := registry[r]
	if !ok {
		return nil, unknownRole("rbac.PermissionsOf", string(r))
	}
	perms := make([]Permission, 0, len(def.permissions))
	for p := range def.permissions {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms, nil
}

// ErrUnknownRole matches every error produced for a role outside the registry.
var ErrUnknownRole = domainerr.ErrUnknownRole

func unknownRole(op, name string) *domainerr.Error {
	return &domainerr.Error{Kind: domainerr.KindUnknownRole, Op: op, Message: fmt.Sprintf("unknown role %q", name)}
}
