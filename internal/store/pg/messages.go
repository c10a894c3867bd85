package pg

import (
	"context"
	"database/sql"
	"errors"

	"elaqe.org/internal/messaging"
	"elaqe.org/internal/msgcrypt"
)

// Messages stores group and direct messages. Only the sealed body is written.
type Messages struct {
	db *sql.DB
}

var _ messaging.Store = (*Messages)(nil)

const messageColumns = `id, group_id, sender_id, ciphertext, iv, message_type, file_url, file_name, file_size,
	coalesce(reply_to,''), read_by, is_deleted, deleted_at, edited_at, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (messaging.Message, error) {
	var (
		m               messaging.Message
		readBy          []byte
		deleted, edited sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.Sealed.Ciphertext, &m.Sealed.IV, &m.Type, &m.FileURL,
		&m.FileName, &m.FileSize, &m.ReplyTo, &readBy, &m.IsDeleted, &deleted, &edited, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return messaging.Message{}, err
	}
	m.ReadBy = []messaging.ReadReceipt{}
	if err := unmarshalJSON(readBy, &m.ReadBy); err != nil {
		return messaging.Message{}, err
	}
	m.DeletedAt = timePtr(deleted)
	m.EditedAt = timePtr(edited)
	return m, nil
}

func (s *Messages) CreateMessage(ctx context.Context, m *messaging.Message) error {
	readBy, err := marshalJSON(append([]messaging.ReadReceipt{}, m.ReadBy...))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into messages (id, group_id, sender_id, ciphertext, iv, message_type, file_url, file_name, file_size,
			reply_to, read_by, is_deleted, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,false,$12,$13)
	`, m.ID, m.GroupID, m.SenderID, m.Sealed.Ciphertext, m.Sealed.IV, string(m.Type), m.FileURL, m.FileName,
		m.FileSize, nullString(m.ReplyTo), string(readBy), m.CreatedAt, m.UpdatedAt)
	return mapWriteError(err, messaging.ErrMessageNotFound)
}

func (s *Messages) Message(ctx context.Context, id string) (messaging.Message, error) {
	return s.message(ctx, s.db, id, false)
}

func (s *Messages) message(ctx context.Context, q queryer, id string, lock bool) (messaging.Message, error) {
	query := `select ` + messageColumns + ` from messages where id = $1`
	if lock {
		query += ` for update`
	}
	m, err := scanMessage(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return messaging.Message{}, messaging.ErrMessageNotFound
	}
	return m, err
}

func (s *Messages) UpdateMessage(ctx context.Context, id string, fn func(*messaging.Message) error) (messaging.Message, error) {
	var out messaging.Message
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := s.message(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&m); err != nil {
			return err
		}
		readBy, err := marshalJSON(append([]messaging.ReadReceipt{}, m.ReadBy...))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update messages
			set ciphertext = $2, iv = $3, read_by = $4, is_deleted = $5, deleted_at = $6, edited_at = $7, updated_at = $8
			where id = $1
		`, id, m.Sealed.Ciphertext, m.Sealed.IV, string(readBy), m.IsDeleted, nullTime(m.DeletedAt),
			nullTime(m.EditedAt), m.UpdatedAt); err != nil {
			return err
		}
		m.Content = ""
		out = m
		return nil
	})
	if err != nil {
		return messaging.Message{}, err
	}
	return out, nil
}

func (s *Messages) GroupMessages(ctx context.Context, groupID string, offset, limit int) ([]messaging.Message, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from messages where group_id = $1 and not is_deleted
	`, groupID).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `select ` + messageColumns + `
		from messages
		where group_id = $1 and not is_deleted
		order by created_at desc
		offset $2`
	args := []any{groupID, offset}
	if limit > 0 {
		query += ` limit $3`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]messaging.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Messages) CountByGroups(ctx context.Context, groupIDs []string) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	raw, err := marshalJSON(groupIDs)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `
		select count(*) from messages
		where not is_deleted and group_id in (select jsonb_array_elements_text($1::jsonb))
	`, string(raw)).Scan(&n)
	return n, err
}

func (s *Messages) UnreadCount(ctx context.Context, groupID, employeeID string) (int, error) {
	receipt, err := marshalJSON([]map[string]string{{"employee": employeeID}})
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `
		select count(*) from messages
		where group_id = $1 and not is_deleted and not (read_by @> $2::jsonb)
	`, groupID, string(receipt)).Scan(&n)
	return n, err
}

func (s *Messages) CreateDirect(ctx context.Context, m *messaging.DirectMessage) error {
	var body any
	if len(m.ResponseBody) > 0 {
		body = string(m.ResponseBody)
	}
	_, err := s.db.ExecContext(ctx, `
		insert into direct_messages (id, actor_user_id, receiver_id, institution_id, ciphertext, iv, message_type,
			delivered, response_code, response_body, is_deleted, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false,$11)
	`, m.ID, m.ActorUserID, m.ReceiverID, m.InstitutionID, m.Sealed.Ciphertext, m.Sealed.IV, string(m.Type),
		m.Delivered, nullInt(m.ResponseCode), body, m.CreatedAt)
	return err
}

func (s *Messages) DirectMessages(ctx context.Context, receiverID, actorUserID string, offset, limit int) ([]messaging.DirectMessage, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from direct_messages
		where receiver_id = $1 and actor_user_id = $2 and not is_deleted
	`, receiverID, actorUserID).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `
		select id, actor_user_id, receiver_id, institution_id, ciphertext, iv, message_type, delivered,
			response_code, response_body, is_deleted, created_at
		from direct_messages
		where receiver_id = $1 and actor_user_id = $2 and not is_deleted
		order by created_at desc
		offset $3`
	args := []any{receiverID, actorUserID, offset}
	if limit > 0 {
		query += ` limit $4`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]messaging.DirectMessage, 0)
	for rows.Next() {
		var (
			m      messaging.DirectMessage
			sealed msgcrypt.Sealed
			code   sql.NullInt64
			body   []byte
		)
		if err := rows.Scan(&m.ID, &m.ActorUserID, &m.ReceiverID, &m.InstitutionID, &sealed.Ciphertext, &sealed.IV,
			&m.Type, &m.Delivered, &code, &body, &m.IsDeleted, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		m.Sealed = sealed
		m.ResponseCode = intPtr(code)
		m.ResponseBody = body
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
