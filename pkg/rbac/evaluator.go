package rbac

import "sort"

// HasPermission reports whether role r grants p. Unknown roles grant nothing.
func HasPermission(r Role, p Permission) bool {
	def, ok := registry[r]
	if !ok {
		return false
	}
	_, granted := def.permissions[p]
	return granted
}

// AnyHasPermission reports whether any of roles grants p
func AnyHasPermission(roles []Role, p Permission) bool {
	for _, r := range roles {
		if HasPermission(r, p) {
			return true
		}
	}
	return false
}

// IsSenior reports whether a ranks strictly above b
func IsSenior(a, b Role) (bool, error) {
	rankA, err := Rank(a)
	if err != nil {
		return false, err
	}
	rankB, err := Rank(b)
	if err != nil {
		return false, err
	}
	return rankA > rankB, nil
}

// CanManage reports whether a holder of acting may assign or revoke target.
// Roles manage strictly below their own rank, except super_admin which has
// no ceiling.
func CanManage(acting, target Role) (bool, error) {
	if !target.Valid() {
		return false, unknownRole("rbac.CanManage", string(target))
	}
	if acting == RoleSuperAdmin {
		return true, nil
	}
	return IsSenior(acting, target)
}

// Contains reports whether roles includes r
func Contains(roles []Role, r Role) bool {
	for _, held := range roles {
		if held == r {
			return true
		}
	}
	return false
}

// Highest returns the most privileged registered role in roles. Unknown
// entries are ignored; ok is false when nothing registered remains.
func Highest(roles []Role) (Role, bool) {
	var best Role
	bestRank := -1
	for _, r := range roles {
		def, known := registry[r]
		if known && def.rank > bestRank {
			best, bestRank = r, def.rank
		}
	}
	return best, bestRank >= 0
}

// SortByRank returns the registered roles from roles, deduplicated and
// ordered most privileged first.
func SortByRank(roles []Role) []Role {
	seen := make(map[Role]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if _, known := registry[r]; !known {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return registry[out[i]].rank > registry[out[j]].rank
	})
	return out
}
