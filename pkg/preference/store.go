package preference

import (
	"context"
	"sync"

	"github.com/platinummonkey/assessor/pkg/rbac"
)

// Store persists the active role chosen on a client across reloads. The
// stored value is a preference only; it is validated against held roles
// every time it is read back.
type Store interface {
	// GetActiveRole reports false when nothing usable is stored.
	GetActiveRole(ctx context.Context, clientID string) (rbac.Role, bool, error)
	SetActiveRole(ctx context.Context, clientID string, role rbac.Role) error
	Clear(ctx context.Context, clientID string) error
}

// MemoryStore keeps preferences in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	roles map[string]rbac.Role
	err   error
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{roles: make(map[string]rbac.Role)}
}

// SetErr makes every call fail with err until cleared
func (m *MemoryStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// GetActiveRole implements Store
func (m *MemoryStore) GetActiveRole(ctx context.Context, clientID string) (rbac.Role, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return "", false, m.err
	}
	role, ok := m.roles[clientID]
	return role, ok, nil
}

// SetActiveRole implements Store
func (m *MemoryStore) SetActiveRole(ctx context.Context, clientID string, role rbac.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.roles[clientID] = role
	return nil
}

// Clear implements Store
func (m *MemoryStore) Clear(ctx context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.roles, clientID)
	return nil
}
