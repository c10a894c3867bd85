package groups

import "context"

// Query selects active groups.
type Query struct {
	// InstitutionID restricts results to one institution when non-empty.
	InstitutionID string
	// NameContains matches the group name case-insensitively.
	NameContains string
	// ByName orders alphabetically; otherwise newest first.
	ByName bool
	Offset int
	// Limit <= 0 returns every match.
	Limit int
}

// Store persists groups. Mutate applies fn atomically per group: concurrent
// mutations of the same group are serialized and fn sees the latest state.
type Store interface {
	Create(ctx context.Context, g Group) (Group, error)
	Get(ctx context.Context, id string) (Group, error)
	List(ctx context.Context, q Query) ([]Group, int, error)
	ByMember(ctx context.Context, employeeID string) ([]Group, error)
	Mutate(ctx context.Context, id string, fn func(*Group) error) (Group, error)
}
