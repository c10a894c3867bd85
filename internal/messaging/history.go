package messaging

import (
	"context"
	"fmt"
	"strings"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/auth"
	"elaqe.org/internal/directory"
	"elaqe.org/internal/groups"
	"elaqe.org/internal/paging"
)

// UpdateMessage replaces the content of a group message, sealing it with a fresh IV.
func (e *Engine) UpdateMessage(ctx context.Context, actor auth.Actor, messageID, content string) (Message, error) {
	content, err := validateContent(content)
	if err != nil {
		return Message{}, err
	}
	msg, g, err := e.liveMessage(ctx, messageID)
	if err != nil {
		return Message{}, err
	}
	if !g.IsActive {
		return Message{}, fmt.Errorf("%w: %s", groups.ErrInactive, g.ID)
	}
	target := groups.TargetFor(ctx, e.dir, g.InstitutionID)
	if err := auth.Require(actor, target, auth.AxisWrite); err != nil {
		return Message{}, err
	}

	e.audit.TryMessage(ctx, audit.MessageLog{
		Type:           audit.KindGroup,
		Action:         audit.ActionUpdate,
		ActorUserID:    actor.UserID,
		SenderID:       msg.SenderID,
		GroupID:        g.ID,
		InstitutionID:  g.InstitutionID,
		ContentPreview: content,
	})

	sealed, err := e.codec.Seal(content)
	if err != nil {
		return Message{}, err
	}
	updated, err := e.store.UpdateMessage(ctx, messageID, func(m *Message) error {
		now := e.now().UTC()
		m.Sealed = sealed
		m.EditedAt = &now
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	updated.Content = content
	return updated, nil
}

// DeleteMessage soft-deletes a group message.
func (e *Engine) DeleteMessage(ctx context.Context, actor auth.Actor, messageID string) error {
	_, g, err := e.liveMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := auth.Require(actor, groups.TargetFor(ctx, e.dir, g.InstitutionID), auth.AxisWrite); err != nil {
		return err
	}
	_, err = e.store.UpdateMessage(ctx, messageID, func(m *Message) error {
		now := e.now().UTC()
		m.IsDeleted = true
		m.DeletedAt = &now
		m.UpdatedAt = now
		return nil
	})
	return err
}

// GroupMessages lists a group's messages newest first, decrypted.
func (e *Engine) GroupMessages(ctx context.Context, actor auth.Actor, groupID string, req paging.Request) ([]Message, paging.Info, error) {
	g, err := e.groups.Get(ctx, groupID)
	if err != nil {
		return nil, paging.Info{}, err
	}
	if err := auth.Require(actor, groups.TargetFor(ctx, e.dir, g.InstitutionID), auth.AxisView); err != nil {
		return nil, paging.Info{}, err
	}
	req = req.Normalize(defaultPageSize)
	msgs, total, err := e.store.GroupMessages(ctx, g.ID, req.Offset(), req.Limit)
	if err != nil {
		return nil, paging.Info{}, err
	}
	for i := range msgs {
		msgs[i] = e.open(msgs[i])
	}
	return msgs, paging.NewInfo(req, total), nil
}

// SearchGroupMessages returns text messages whose decrypted content contains term, case-insensitively.
func (e *Engine) SearchGroupMessages(ctx context.Context, actor auth.Actor, groupID, term string) ([]Message, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term is required", directory.ErrInvalidInput)
	}
	g, err := e.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(actor, groups.TargetFor(ctx, e.dir, g.InstitutionID), auth.AxisView); err != nil {
		return nil, err
	}
	all, _, err := e.store.GroupMessages(ctx, g.ID, 0, 0)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(term)
	out := make([]Message, 0)
	for _, m := range all {
		if m.Type != TypeText {
			continue
		}
		m = e.open(m)
		if strings.Contains(strings.ToLower(m.Content), needle) {
			out = append(out, m)
		}
	}
	return out, nil
}

// DirectMessages lists what the actor has sent to one employee, newest first.
func (e *Engine) DirectMessages(ctx context.Context, actor auth.Actor, employeeID string, req paging.Request) ([]DirectMessage, paging.Info, error) {
	emp, err := directory.ActiveEmployee(ctx, e.dir, employeeID)
	if err != nil {
		return nil, paging.Info{}, err
	}
	inst, err := directory.ActiveInstitution(ctx, e.dir, emp.InstitutionID)
	if err != nil {
		return nil, paging.Info{}, err
	}
	if err := auth.Require(actor, inst.Target(), auth.AxisDirect); err != nil {
		return nil, paging.Info{}, err
	}
	req = req.Normalize(defaultPageSize)
	msgs, total, err := e.store.DirectMessages(ctx, emp.ID, actor.UserID, req.Offset(), req.Limit)
	if err != nil {
		return nil, paging.Info{}, err
	}
	for i := range msgs {
		msgs[i].Content = e.codec.OpenOrPlaceholder(msgs[i].Sealed)
	}
	return msgs, paging.NewInfo(req, total), nil
}

// InstitutionMessageCount counts non-deleted messages across the institution's active groups.
func (e *Engine) InstitutionMessageCount(ctx context.Context, actor auth.Actor, institutionID string) (int, error) {
	inst, err := e.dir.Institution(ctx, institutionID)
	if err != nil {
		return 0, err
	}
	if err := auth.Require(actor, inst.Target(), auth.AxisView); err != nil {
		return 0, err
	}
	active, _, err := e.groups.List(ctx, groups.Query{InstitutionID: inst.ID})
	if err != nil {
		return 0, err
	}
	if len(active) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(active))
	for _, g := range active {
		ids = append(ids, g.ID)
	}
	return e.store.CountByGroups(ctx, ids)
}

// MarkRead records that employeeID has read the message. It is disabled unless
// the engine was built WithReadTracking(true).
func (e *Engine) MarkRead(ctx context.Context, actor auth.Actor, messageID, employeeID string) error {
	if !e.readTracking {
		return ErrReadTrackingDisabled
	}
	_, g, err := e.liveMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := auth.Require(actor, groups.TargetFor(ctx, e.dir, g.InstitutionID), auth.AxisView); err != nil {
		return err
	}
	if !g.IsMember(employeeID) {
		return ErrNotGroupMember
	}
	_, err = e.store.UpdateMessage(ctx, messageID, func(m *Message) error {
		if !m.IsReadBy(employeeID) {
			m.ReadBy = append(m.ReadBy, ReadReceipt{EmployeeID: employeeID, ReadAt: e.now().UTC()})
		}
		return nil
	})
	return err
}

// UnreadCount counts the group's messages employeeID has not read.
func (e *Engine) UnreadCount(ctx context.Context, actor auth.Actor, groupID, employeeID string) (int, error) {
	g, err := e.groups.Get(ctx, groupID)
	if err != nil {
		return 0, err
	}
	if err := auth.Require(actor, groups.TargetFor(ctx, e.dir, g.InstitutionID), auth.AxisView); err != nil {
		return 0, err
	}
	if !g.IsMember(employeeID) {
		return 0, ErrNotGroupMember
	}
	return e.store.UnreadCount(ctx, g.ID, employeeID)
}

// liveMessage loads a non-deleted message and its group.
func (e *Engine) liveMessage(ctx context.Context, id string) (Message, groups.Group, error) {
	msg, err := e.store.Message(ctx, id)
	if err != nil {
		return Message{}, groups.Group{}, err
	}
	if msg.IsDeleted {
		return Message{}, groups.Group{}, ErrMessageNotFound
	}
	g, err := e.groups.Get(ctx, msg.GroupID)
	if err != nil {
		return Message{}, groups.Group{}, err
	}
	return msg, g, nil
}
