package audit

import (
	"context"
	"fmt"

	"elaqe.org/internal/auth"
	"elaqe.org/internal/paging"
)

const defaultLogPageSize = 50

// Reader exposes audit history with visibility rules applied.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader { return &Reader{store: store} }

// MessageLogs lists entries newest first. Super-admins see every entry, other
// actors only the entries they produced.
func (r *Reader) MessageLogs(ctx context.Context, actor auth.Actor, kind Kind, action Action, req paging.Request) ([]MessageLog, paging.Info, error) {
	if kind != "" && !kind.Valid() {
		return nil, paging.Info{}, fmt.Errorf("%w: unknown type %q", ErrInvalidEntry, kind)
	}
	if action != "" && !action.Valid() {
		return nil, paging.Info{}, fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, action)
	}
	req = req.Normalize(defaultLogPageSize)
	f := MessageFilter{Type: kind, Action: action, Offset: req.Offset(), Limit: req.Limit}
	if !actor.IsSuperAdmin() {
		f.ActorUserID = actor.UserID
	}
	logs, total, err := r.store.MessageLogs(ctx, f)
	if err != nil {
		return nil, paging.Info{}, err
	}
	return logs, paging.NewInfo(req, total), nil
}

// UserLogs lists the entries about userID. Only super-admins and the user themself may read them.
func (r *Reader) UserLogs(ctx context.Context, actor auth.Actor, userID string, req paging.Request) ([]UserLog, paging.Info, error) {
	if !actor.IsSuperAdmin() && actor.UserID != userID {
		return nil, paging.Info{}, fmt.Errorf("%w: user logs of %s", auth.ErrForbidden, userID)
	}
	req = req.Normalize(defaultLogPageSize)
	logs, total, err := r.store.UserLogs(ctx, userID, req.Offset(), req.Limit)
	if err != nil {
		return nil, paging.Info{}, err
	}
	return logs, paging.NewInfo(req, total), nil
}
