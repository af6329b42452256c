package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission_FailClosed(t *testing.T) {
	for _, unknown := range []Role{"", "owner", "SUPER_ADMIN", "super_admin "} {
		for _, p := range AllPermissions() {
			assert.False(t, HasPermission(unknown, p), "%q must not grant %s", unknown, p)
		}
	}
	assert.False(t, HasPermission(RoleSuperAdmin, "launch_missiles"))
}

func TestHasPermission_ManageRoles(t *testing.T) {
	assert.False(t, HasPermission(RoleUser, PermManageRoles))
	assert.True(t, HasPermission(RoleSuperAdmin, PermManageRoles))
}

func TestIsSenior_Totality(t *testing.T) {
	roles := AllRoles()
	for _, a := range roles {
		for _, b := range roles {
			if a == b {
				senior, err := IsSenior(a, b)
				require.NoError(t, err)
				assert.False(t, senior)
				continue
			}
			ab, err := IsSenior(a, b)
			require.NoError(t, err)
			ba, err := IsSenior(b, a)
			require.NoError(t, err)
			assert.True(t, ab != ba, "exactly one of %s>%s or %s>%s must hold", a, b, b, a)
		}
	}
}

func TestIsSenior_UnknownRole(t *testing.T) {
	_, err := IsSenior("owner", RoleUser)
	assert.ErrorIs(t, err, ErrUnknownRole)
	_, err = IsSenior(RoleUser, "owner")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestCanManage(t *testing.T) {
	tests := []struct {
		acting, target Role
		want           bool
	}{
		{RoleSuperAdmin, RoleSuperAdmin, true},
		{RoleSuperAdmin, RoleUser, true},
		{RoleAdmin, RoleChair, true},
		{RoleAdmin, RoleAdmin, false},
		{RoleAdmin, RoleSuperAdmin, false},
		{RoleChair, RoleCoChair, true},
		{RoleEM, RoleChair, false},
		{RoleUser, RoleUser, false},
	}
	for _, tt := range tests {
		got, err := CanManage(tt.acting, tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s managing %s", tt.acting, tt.target)
	}

	_, err := CanManage(RoleSuperAdmin, "owner")
	assert.ErrorIs(t, err, ErrUnknownRole)
	_, err = CanManage("owner", RoleUser)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestHighest(t *testing.T) {
	r, ok := Highest([]Role{RoleEM, "owner", RoleChair})
	assert.True(t, ok)
	assert.Equal(t, RoleChair, r)

	_, ok = Highest(nil)
	assert.False(t, ok)
	_, ok = Highest([]Role{"owner"})
	assert.False(t, ok)
}

func TestSortByRank(t *testing.T) {
	got := SortByRank([]Role{RoleUser, RoleAdmin, "owner", RoleUser, RoleChair})
	assert.Equal(t, []Role{RoleAdmin, RoleChair, RoleUser}, got)
}

func TestAnyHasPermission(t *testing.T) {
	assert.True(t, AnyHasPermission([]Role{RoleUser, RoleChair}, PermExportResults))
	assert.False(t, AnyHasPermission([]Role{RoleUser, RoleEM}, PermExportResults))
	assert.False(t, AnyHasPermission(nil, PermViewOwnResults))
}
