package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllRoles_OrderedByRank(t *testing.T) {
	assert.Equal(t, []Role{RoleSuperAdmin, RoleAdmin, RoleChair, RoleCoChair, RoleEM, RoleUser}, AllRoles())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" chair ")
	require.NoError(t, err)
	assert.Equal(t, RoleChair, r)

	_, err = ParseRole("owner")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownRole))
}

func TestRankLabel_UnknownRole(t *testing.T) {
	_, err := Rank("owner")
	assert.ErrorIs(t, err, ErrUnknownRole)
	_, err = Label("owner")
	assert.ErrorIs(t, err, ErrUnknownRole)
	_, err = PermissionsOf("owner")
	assert.ErrorIs(t, err, ErrUnknownRole)

	label, err := Label(RoleCoChair)
	require.NoError(t, err)
	assert.Equal(t, "Co-Chair", label)
}

func TestPermissionsOf_ReturnsCopy(t *testing.T) {
	perms, err := PermissionsOf(RoleUser)
	require.NoError(t, err)
	assert.Equal(t, []Permission{PermTakeAssessment, PermViewOwnResults}, perms)

	perms[0] = PermManageRoles
	assert.False(t, HasPermission(RoleUser, PermManageRoles), "mutating the returned slice must not affect the registry")
}

func TestRegistry_PermissionsNest(t *testing.T) {
	roles := AllRoles()
	for i := 0; i < len(roles)-1; i++ {
		lower, err := PermissionsOf(roles[i+1])
		require.NoError(t, err)
		for _, p := range lower {
			assert.True(t, HasPermission(roles[i], p), "%s should hold %s granted to %s", roles[i], p, roles[i+1])
		}
	}
}

func TestRegistry_AdminCannotImpersonate(t *testing.T) {
	assert.True(t, HasPermission(RoleSuperAdmin, PermImpersonateUsers))
	assert.False(t, HasPermission(RoleAdmin, PermImpersonateUsers))
	assert.True(t, HasPermission(RoleChair, PermExportResults))
	assert.False(t, HasPermission(RoleCoChair, PermExportResults))
}
