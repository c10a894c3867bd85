package directory

import (
	"context"
	"fmt"
	"sync"

	"elaqe.org/internal/auth"
)

// InMemory is a process-local directory used by tests and local runs.
type InMemory struct {
	mu           sync.RWMutex
	institutions map[string]Institution
	employees    map[string]Employee
	users        map[string]User
}

var (
	_ Reader           = (*InMemory)(nil)
	_ auth.ActorSource = (*InMemory)(nil)
)

func NewInMemory() *InMemory {
	return &InMemory{
		institutions: make(map[string]Institution),
		employees:    make(map[string]Employee),
		users:        make(map[string]User),
	}
}

func (m *InMemory) PutInstitution(inst Institution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst.CorporationIDs = append([]int(nil), inst.CorporationIDs...)
	m.institutions[inst.ID] = inst
}

func (m *InMemory) PutEmployee(emp Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
}

func (m *InMemory) PutUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *InMemory) Institution(_ context.Context, id string) (Institution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.institutions[id]
	if !ok {
		return Institution{}, fmt.Errorf("%w: institution %s", ErrNotFound, id)
	}
	inst.CorporationIDs = append([]int(nil), inst.CorporationIDs...)
	return inst, nil
}

func (m *InMemory) Employee(_ context.Context, id string) (Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emp, ok := m.employees[id]
	if !ok {
		return Employee{}, fmt.Errorf("%w: employee %s", ErrNotFound, id)
	}
	return emp, nil
}

func (m *InMemory) Employees(_ context.Context, ids []string) ([]Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Employee, 0, len(ids))
	for _, id := range ids {
		if emp, ok := m.employees[id]; ok {
			out = append(out, emp)
		}
	}
	return out, nil
}

func (m *InMemory) User(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

// ActorByID resolves a platform user into an authorization actor.
func (m *InMemory) ActorByID(ctx context.Context, id string) (auth.Actor, error) {
	u, err := m.User(ctx, id)
	if err != nil {
		return auth.Actor{}, fmt.Errorf("%w: %s", auth.ErrActorNotFound, id)
	}
	if !u.IsActive {
		return auth.Actor{}, fmt.Errorf("%w: %s", auth.ErrActorInactive, id)
	}
	return u.Actor(), nil
}
