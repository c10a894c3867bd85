package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"elaqe.org/internal/audit"
)

// Audit appends to message_logs and user_logs. Rows are never updated.
type Audit struct {
	db *sql.DB
}

var _ audit.Store = (*Audit)(nil)

func (a *Audit) AppendMessage(ctx context.Context, e *audit.MessageLog) error {
	_, err := a.db.ExecContext(ctx, `
		insert into message_logs (id, type, action, actor_user_id, sender_id, receiver_id, group_id, institution_id,
			content_preview, response_code, error_message, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, e.ID, string(e.Type), string(e.Action), e.ActorUserID, e.SenderID, e.ReceiverID, e.GroupID, e.InstitutionID,
		e.ContentPreview, nullInt(e.ResponseCode), e.ErrorMessage, e.CreatedAt)
	return err
}

func (a *Audit) AppendUser(ctx context.Context, e *audit.UserLog) error {
	changes := e.Changes
	if changes == nil {
		changes = map[string]any{}
	}
	raw, err := marshalJSON(changes)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		insert into user_logs (id, user_id, actor_user_id, action, message, changes, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, e.ID, e.UserID, e.ActorUserID, string(e.Action), e.Message, string(raw), e.CreatedAt)
	return err
}

func (a *Audit) MessageLogs(ctx context.Context, f audit.MessageFilter) ([]audit.MessageLog, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("actor_user_id", f.ActorUserID)
	add("type", string(f.Type))
	add("action", string(f.Action))
	cond := ""
	if len(where) > 0 {
		cond = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := a.db.QueryRowContext(ctx, `select count(*) from message_logs`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `select id, type, action, actor_user_id, sender_id, receiver_id, group_id, institution_id,
		content_preview, response_code, error_message, created_at
		from message_logs` + cond + ` order by created_at desc`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" offset $%d", len(args))
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]audit.MessageLog, 0)
	for rows.Next() {
		var (
			e    audit.MessageLog
			code sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Action, &e.ActorUserID, &e.SenderID, &e.ReceiverID, &e.GroupID,
			&e.InstitutionID, &e.ContentPreview, &code, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.ResponseCode = intPtr(code)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (a *Audit) UserLogs(ctx context.Context, userID string, offset, limit int) ([]audit.UserLog, int, error) {
	var total int
	if err := a.db.QueryRowContext(ctx, `select count(*) from user_logs where user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `select id, user_id, actor_user_id, action, message, changes, created_at
		from user_logs where user_id = $1 order by created_at desc offset $2`
	args := []any{userID, offset}
	if limit > 0 {
		query += ` limit $3`
		args = append(args, limit)
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]audit.UserLog, 0)
	for rows.Next() {
		var (
			e   audit.UserLog
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.ActorUserID, &e.Action, &e.Message, &raw, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Changes = map[string]any{}
		if err := unmarshalJSON(raw, &e.Changes); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
