package messaging

import (
	"context"
	"sort"
	"sync"
)

// Store persists group and direct messages in their sealed form.
type Store interface {
	CreateMessage(ctx context.Context, m *Message) error
	Message(ctx context.Context, id string) (Message, error)
	// UpdateMessage applies fn atomically; nothing is written when fn fails.
	UpdateMessage(ctx context.Context, id string, fn func(*Message) error) (Message, error)
	// GroupMessages lists non-deleted messages newest first. limit <= 0 returns all.
	GroupMessages(ctx context.Context, groupID string, offset, limit int) ([]Message, int, error)
	CountByGroups(ctx context.Context, groupIDs []string) (int, error)
	UnreadCount(ctx context.Context, groupID, employeeID string) (int, error)

	CreateDirect(ctx context.Context, m *DirectMessage) error
	// DirectMessages lists the non-deleted messages actorUserID sent to receiverID, newest first.
	DirectMessages(ctx context.Context, receiverID, actorUserID string, offset, limit int) ([]DirectMessage, int, error)
}

// InMemory implements Store for tests and local runs.
type InMemory struct {
	mu       sync.RWMutex
	messages map[string]*Message
	direct   []DirectMessage
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{messages: make(map[string]*Message)}
}

func (s *InMemory) CreateMessage(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := m.clone()
	cp.Content = ""
	s.messages[m.ID] = &cp
	return nil
}

func (s *InMemory) Message(_ context.Context, id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	return m.clone(), nil
}

func (s *InMemory) UpdateMessage(_ context.Context, id string, fn func(*Message) error) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.messages[id]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	next := cur.clone()
	if err := fn(&next); err != nil {
		return Message{}, err
	}
	next.Content = ""
	*cur = next
	return next.clone(), nil
}

func (s *InMemory) GroupMessages(_ context.Context, groupID string, offset, limit int) ([]Message, int, error) {
	s.mu.RLock()
	out := make([]Message, 0)
	for _, m := range s.messages {
		if m.GroupID == groupID && !m.IsDeleted {
			out = append(out, m.clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, offset, limit), len(out), nil
}

func (s *InMemory) CountByGroups(_ context.Context, groupIDs []string) (int, error) {
	want := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if want[m.GroupID] && !m.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) UnreadCount(_ context.Context, groupID, employeeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.GroupID == groupID && !m.IsDeleted && !m.IsReadBy(employeeID) {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) CreateDirect(_ context.Context, m *DirectMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	cp.Content = ""
	s.direct = append(s.direct, cp)
	return nil
}

func (s *InMemory) DirectMessages(_ context.Context, receiverID, actorUserID string, offset, limit int) ([]DirectMessage, int, error) {
	s.mu.RLock()
	out := make([]DirectMessage, 0)
	for _, m := range s.direct {
		if m.ReceiverID == receiverID && m.ActorUserID == actorUserID && !m.IsDeleted {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, offset, limit), len(out), nil
}

// Direct returns every stored direct message in insertion order.
func (s *InMemory) Direct() []DirectMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]DirectMessage(nil), s.direct...)
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
