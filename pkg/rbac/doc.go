// Package rbac implements the role hierarchy of the assessment platform and
// the checks built on it.
//
// # Roles
//
// The hierarchy is closed and fixed at compile time:
//
//	super_admin (100) > admin (80) > chair (60) > co_chair (40) > em (20) > user (10)
//
// Each role carries a label and an immutable permission set. Lookups on a
// name outside the registry fail with ErrUnknownRole; HasPermission simply
// returns false for them.
//
// # Evaluation
//
//	rbac.HasPermission(rbac.RoleChair, rbac.PermExportResults) // true
//	rbac.IsSenior(rbac.RoleAdmin, rbac.RoleChair)              // true, nil
//	rbac.CanManage(rbac.RoleAdmin, rbac.RoleAdmin)             // false, nil
//
// # Enforcement
//
// Two kinds of verdict exist. Hint evaluates the active role alone and only
// decides what a UI shows. Enforcer re-reads the subject's role assignments
// on every call and is the only verdict that may gate a mutation:
//
//	enforcer := rbac.NewEnforcer(store, metrics)
//	decision, err := enforcer.Require(ctx, principal, rbac.PermManageRoles)
//
// A Principal separates the authenticated actor from the subject whose
// roles apply. Impersonating a user switches the subject; previewing a
// role narrows through ActiveRole. Neither can add a permission the subject
// does not hold.
//
// # Assignment
//
// Assigner grants and revokes roles, requiring manage_roles and CanManage
// over the target role, and records assigned_role / revoked_role audit
// entries. Handlers exposes it under /admin/users/{id}/roles.
package rbac
