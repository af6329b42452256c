package preference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/assessor/pkg/rbac"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SetActiveRole(ctx, "c", rbac.RoleAdmin))
	role, ok, err := store.GetActiveRole(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rbac.RoleAdmin, role)

	store.SetErr(errors.New("offline"))
	_, _, err = store.GetActiveRole(ctx, "c")
	assert.Error(t, err)
	store.SetErr(nil)

	require.NoError(t, store.Clear(ctx, "c"))
	_, ok, _ = store.GetActiveRole(ctx, "c")
	assert.False(t, ok)
}

func TestStoresSatisfyInterface(t *testing.T) {
	var _ Store = (*MemoryStore)(nil)
	var _ Store = (*RedisStore)(nil)
}
