package rbac

import (
	"context"
	"sync"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/domainerr"
)

// fakeStore is an in-memory AssignmentStore
type fakeStore struct {
	mu    sync.Mutex
	roles map[string][]Role
	err   error
}

func newFakeStore(seed map[string][]Role) *fakeStore {
	roles := make(map[string][]Role, len(seed))
	for k, v := range seed {
		roles[k] = append([]Role(nil), v...)
	}
	return &fakeStore{roles: roles}
}

func (f *fakeStore) GetRolesForUser(ctx context.Context, userID string) ([]Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Role(nil), f.roles[userID]...), nil
}

func (f *fakeStore) AssignRole(ctx context.Context, userID string, role Role, grantedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if Contains(f.roles[userID], role) {
		return domainerr.AlreadyExists("fake.AssignRole", "role already held")
	}
	f.roles[userID] = append(f.roles[userID], role)
	return nil
}

func (f *fakeStore) RevokeRole(ctx context.Context, userID string, role Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	held := f.roles[userID]
	for i, r := range held {
		if r == role {
			f.roles[userID] = append(held[:i], held[i+1:]...)
			return nil
		}
	}
	return domainerr.NotFound("fake.RevokeRole", "role not held")
}

// captureRecorder records synchronously for assertions
type captureRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (c *captureRecorder) Record(ctx context.Context, rec audit.Record) {
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
}

func (c *captureRecorder) all() []audit.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audit.Record(nil), c.records...)
}
