package groups

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"elaqe.org/internal/ids"
)

// InMemory implements Store with a single mutex guarding every group.
type InMemory struct {
	mu     sync.RWMutex
	groups map[string]*Group
	now    func() time.Time
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{groups: make(map[string]*Group), now: time.Now}
}

func (s *InMemory) Create(_ context.Context, g Group) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTakenLocked(g.InstitutionID, g.Name, "") {
		return Group{}, ErrNameTaken
	}
	if g.ID == "" {
		g.ID = ids.New()
	}
	now := s.now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now
	stored := g.Clone()
	s.groups[g.ID] = &stored
	return stored.Clone(), nil
}

func (s *InMemory) Get(_ context.Context, id string) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return Group{}, ErrNotFound
	}
	return g.Clone(), nil
}

func (s *InMemory) List(_ context.Context, q Query) ([]Group, int, error) {
	s.mu.RLock()
	matches := make([]Group, 0)
	needle := strings.ToLower(q.NameContains)
	for _, g := range s.groups {
		if !g.IsActive {
			continue
		}
		if q.InstitutionID != "" && g.InstitutionID != q.InstitutionID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(g.Name), needle) {
			continue
		}
		matches = append(matches, g.Clone())
	}
	s.mu.RUnlock()

	if q.ByName {
		sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	} else {
		sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	}
	total := len(matches)
	if q.Offset >= total {
		return []Group{}, total, nil
	}
	matches = matches[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matches) {
		matches = matches[:q.Limit]
	}
	return matches, total, nil
}

func (s *InMemory) ByMember(_ context.Context, employeeID string) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Group, 0)
	for _, g := range s.groups {
		if g.IsActive && g.IsMember(employeeID) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) Mutate(_ context.Context, id string, fn func(*Group) error) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.groups[id]
	if !ok {
		return Group{}, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return Group{}, err
	}
	if s.nameTakenLocked(next.InstitutionID, next.Name, id) {
		return Group{}, ErrNameTaken
	}
	next.ID = id
	next.UpdatedAt = s.now().UTC()
	*cur = next
	return next.Clone(), nil
}

func (s *InMemory) nameTakenLocked(institutionID, name, exceptID string) bool {
	for id, g := range s.groups {
		if id != exceptID && g.InstitutionID == institutionID && g.Name == name {
			return true
		}
	}
	return false
}
