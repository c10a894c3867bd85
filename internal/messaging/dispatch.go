package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/auth"
	"elaqe.org/internal/directory"
	"elaqe.org/internal/gateway"
	"elaqe.org/internal/groups"
	"elaqe.org/internal/ids"
	"elaqe.org/internal/obs"
)

const (
	reasonNoBroadcastTargets = "no target users or corporation configured"
	reasonNoDirectTarget     = "employee has no TIMS username or institution has no corporation"
)

// SendGroupMessage posts a message to a group on behalf of a super-admin or the
// institution's responsible person. The stored message is returned whatever the
// delivery outcome.
func (e *Engine) SendGroupMessage(ctx context.Context, actor auth.Actor, groupID string, in GroupMessageInput) (Message, error) {
	g, err := e.activeGroup(ctx, groupID)
	if err != nil {
		return Message{}, err
	}
	inst, err := e.dir.Institution(ctx, g.InstitutionID)
	if err != nil {
		return Message{}, err
	}
	content, err := validateContent(in.Content)
	if err != nil {
		return Message{}, err
	}
	if in.Type == "" {
		in.Type = TypeText
	}
	if !in.Type.Valid() {
		return Message{}, fmt.Errorf("%w: unknown message type %q", directory.ErrInvalidInput, in.Type)
	}
	if err := auth.Require(actor, inst.Target(), auth.AxisImpersonate); err != nil {
		return Message{}, err
	}
	senderID, err := e.pickSender(g)
	if err != nil {
		return Message{}, err
	}
	if in.ReplyTo != "" {
		if !ids.Valid(in.ReplyTo) {
			return Message{}, fmt.Errorf("%w: malformed reply target", directory.ErrInvalidInput)
		}
		parent, err := e.store.Message(ctx, in.ReplyTo)
		if err != nil || parent.GroupID != g.ID {
			return Message{}, fmt.Errorf("%w: reply target %s is not in this group", directory.ErrInvalidInput, in.ReplyTo)
		}
	}

	sealed, err := e.codec.Seal(content)
	if err != nil {
		return Message{}, err
	}
	now := e.now().UTC()
	msg := Message{
		ID:        ids.New(),
		GroupID:   g.ID,
		SenderID:  senderID,
		Sealed:    sealed,
		Type:      in.Type,
		FileURL:   in.FileURL,
		FileName:  in.FileName,
		FileSize:  in.FileSize,
		ReplyTo:   in.ReplyTo,
		ReadBy:    []ReadReceipt{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateMessage(ctx, &msg); err != nil {
		return Message{}, fmt.Errorf("messaging: store message: %w", err)
	}

	entry := audit.MessageLog{
		Type:           audit.KindGroup,
		ActorUserID:    actor.UserID,
		SenderID:       senderID,
		GroupID:        g.ID,
		InstitutionID:  inst.ID,
		ContentPreview: content,
	}
	send := entry
	send.Action = audit.ActionSend
	e.audit.TryMessage(ctx, send)

	usernames, err := e.recipients(ctx, g.Members)
	switch {
	case err != nil:
		e.recordOutcome(ctx, entry, gateway.Response{}, fmt.Errorf("resolve recipients: %w", err))
	case len(usernames) > 0 && len(inst.CorporationIDs) > 0:
		res, sendErr := e.gateway.Send(ctx, gateway.Request{
			Recipients:     usernames,
			CorporationIDs: inst.CorporationIDs,
			Message:        content,
			Notify:         true,
		}, credentials(inst))
		e.recordOutcome(ctx, entry, res, sendErr)
	default:
		obs.ObserveDispatch(string(audit.KindGroup), "skipped")
	}

	msg.Content = content
	return msg, nil
}

// SendInstitutionMessage broadcasts content to every active member of the
// institution's active groups in a single gateway call.
func (e *Engine) SendInstitutionMessage(ctx context.Context, actor auth.Actor, institutionID, content string) (Outcome, error) {
	inst, err := directory.ActiveInstitution(ctx, e.dir, institutionID)
	if err != nil {
		return Outcome{}, err
	}
	content, err = validateContent(content)
	if err != nil {
		return Outcome{}, err
	}
	if err := auth.Require(actor, inst.Target(), auth.AxisBroadcast); err != nil {
		return Outcome{}, err
	}

	entry := audit.MessageLog{
		Type:           audit.KindInstitution,
		ActorUserID:    actor.UserID,
		InstitutionID:  inst.ID,
		ContentPreview: content,
	}
	send := entry
	send.Action = audit.ActionSend
	e.audit.TryMessage(ctx, send)

	usernames, err := e.broadcastRecipients(ctx, inst.ID)
	if err != nil {
		e.recordOutcome(ctx, entry, gateway.Response{}, err)
		return Outcome{}, err
	}
	if len(usernames) == 0 || len(inst.CorporationIDs) == 0 {
		obs.ObserveDispatch(string(audit.KindInstitution), "skipped")
		return Outcome{Delivered: false, Reason: reasonNoBroadcastTargets}, nil
	}

	res, sendErr := e.gateway.Send(ctx, gateway.Request{
		Recipients:     usernames,
		CorporationIDs: inst.CorporationIDs,
		Message:        content,
		Notify:         true,
	}, credentials(inst))
	delivered := e.recordOutcome(ctx, entry, res, sendErr)
	if sendErr != nil {
		return Outcome{Delivered: false, Reason: sendErr.Error()}, nil
	}
	return Outcome{Delivered: delivered, Response: &res}, nil
}

func (e *Engine) broadcastRecipients(ctx context.Context, institutionID string) ([]string, error) {
	active, _, err := e.groups.List(ctx, groups.Query{InstitutionID: institutionID})
	if err != nil {
		return nil, fmt.Errorf("list institution groups: %w", err)
	}
	var memberIDs []string
	for _, g := range active {
		memberIDs = append(memberIDs, g.Members...)
	}
	usernames, err := e.recipients(ctx, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	return usernames, nil
}

// SendDirectMessage delivers content to a single employee and keeps a DirectMessage record of the outcome.
func (e *Engine) SendDirectMessage(ctx context.Context, actor auth.Actor, employeeID, content string) (Outcome, error) {
	emp, err := directory.ActiveEmployee(ctx, e.dir, employeeID)
	if err != nil {
		return Outcome{}, err
	}
	inst, err := directory.ActiveInstitution(ctx, e.dir, emp.InstitutionID)
	if err != nil {
		return Outcome{}, err
	}
	content, err = validateContent(content)
	if err != nil {
		return Outcome{}, err
	}
	if err := auth.Require(actor, inst.Target(), auth.AxisDirect); err != nil {
		return Outcome{}, err
	}

	entry := audit.MessageLog{
		Type:           audit.KindDirect,
		ActorUserID:    actor.UserID,
		ReceiverID:     emp.ID,
		InstitutionID:  inst.ID,
		ContentPreview: content,
	}
	send := entry
	send.Action = audit.ActionSend
	e.audit.TryMessage(ctx, send)

	if emp.TimsUsername == "" || len(inst.CorporationIDs) == 0 {
		obs.ObserveDispatch(string(audit.KindDirect), "skipped")
		return Outcome{Delivered: false, Reason: reasonNoDirectTarget}, nil
	}

	e.audit.TryUser(ctx, audit.UserLog{
		UserID:      actor.UserID,
		ActorUserID: actor.UserID,
		Action:      audit.UserUpdate,
		Message:     fmt.Sprintf("Direct message sent: %s (%s)", emp.FullName(), emp.Email),
		Changes:     map[string]any{"employeeId": emp.ID, "institutionId": inst.ID},
	})

	res, sendErr := e.gateway.Send(ctx, gateway.Request{
		Recipients:     []string{emp.TimsUsername},
		CorporationIDs: inst.CorporationIDs,
		Message:        content,
		Notify:         true,
	}, credentials(inst))

	e.persistDirect(ctx, actor, emp, inst, content, res, sendErr)
	delivered := e.recordOutcome(ctx, entry, res, sendErr)

	changes := map[string]any{"employeeId": emp.ID, "institutionId": inst.ID}
	if sendErr == nil {
		changes["responseCode"] = res.StatusCode
	}
	result := "Direct message failed: " + emp.FullName()
	if delivered {
		result = "Direct message delivered: " + emp.FullName()
	}
	e.audit.TryUser(ctx, audit.UserLog{
		UserID:      actor.UserID,
		ActorUserID: actor.UserID,
		Action:      audit.UserUpdate,
		Message:     result,
		Changes:     changes,
	})

	if sendErr != nil {
		return Outcome{Delivered: false, Reason: sendErr.Error()}, nil
	}
	return Outcome{Delivered: delivered, Response: &res}, nil
}

// persistDirect stores the direct message record. Failures are logged and do not affect the dispatch.
func (e *Engine) persistDirect(ctx context.Context, actor auth.Actor, emp directory.Employee, inst directory.Institution, content string, res gateway.Response, sendErr error) {
	dm := DirectMessage{
		ID:            ids.New(),
		ActorUserID:   actor.UserID,
		ReceiverID:    emp.ID,
		InstitutionID: inst.ID,
		Type:          TypeText,
		CreatedAt:     e.now().UTC(),
	}
	if sendErr != nil {
		dm.ResponseBody, _ = json.Marshal(map[string]string{"error": sendErr.Error()})
	} else {
		dm.Delivered = res.Delivered()
		dm.ResponseCode = audit.Code(res.StatusCode)
		dm.ResponseBody = res.Data
	}
	sealed, err := e.codec.Seal(content)
	if err == nil {
		dm.Sealed = sealed
		err = e.store.CreateDirect(ctx, &dm)
	}
	if err != nil {
		obs.LoggerFrom(ctx).Error("direct message persist failed",
			zap.String("receiver_id", emp.ID),
			zap.Error(err))
	}
}
