package audit

import (
	"context"
	"sort"
	"sync"
)

// MessageFilter narrows a message log query. Empty fields match everything.
type MessageFilter struct {
	ActorUserID string
	Type        Kind
	Action      Action
	Offset      int
	Limit       int
}

// Store appends and queries audit entries. Entries are never updated or deleted.
type Store interface {
	AppendMessage(ctx context.Context, entry *MessageLog) error
	AppendUser(ctx context.Context, entry *UserLog) error
	MessageLogs(ctx context.Context, f MessageFilter) ([]MessageLog, int, error)
	UserLogs(ctx context.Context, userID string, offset, limit int) ([]UserLog, int, error)
}

// InMemory keeps audit entries in insertion order.
type InMemory struct {
	mu       sync.RWMutex
	messages []MessageLog
	users    []UserLog
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory { return &InMemory{} }

func (s *InMemory) AppendMessage(_ context.Context, entry *MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *entry)
	return nil
}

func (s *InMemory) AppendUser(_ context.Context, entry *UserLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	cp.Changes = cloneChanges(entry.Changes)
	s.users = append(s.users, cp)
	return nil
}

func (s *InMemory) MessageLogs(_ context.Context, f MessageFilter) ([]MessageLog, int, error) {
	s.mu.RLock()
	out := make([]MessageLog, 0)
	for _, l := range s.messages {
		if f.ActorUserID != "" && l.ActorUserID != f.ActorUserID {
			continue
		}
		if f.Type != "" && l.Type != f.Type {
			continue
		}
		if f.Action != "" && l.Action != f.Action {
			continue
		}
		out = append(out, l)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, f.Offset, f.Limit), len(out), nil
}

func (s *InMemory) UserLogs(_ context.Context, userID string, offset, limit int) ([]UserLog, int, error) {
	s.mu.RLock()
	out := make([]UserLog, 0)
	for _, l := range s.users {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, offset, limit), len(out), nil
}

// Messages returns every message entry in insertion order.
func (s *InMemory) Messages() []MessageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]MessageLog(nil), s.messages...)
}

// Users returns every user entry in insertion order.
func (s *InMemory) Users() []UserLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]UserLog(nil), s.users...)
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

func cloneChanges(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
