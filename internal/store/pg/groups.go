package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"elaqe.org/internal/groups"
	"elaqe.org/internal/ids"
)

// Groups stores groups with members and admins as JSON arrays on the row.
type Groups struct {
	db  *sql.DB
	now func() time.Time
}

var _ groups.Store = (*Groups)(nil)

const groupColumns = `id, institution_id, name, description, members, admins, max_members, is_active,
	created_by, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }) (groups.Group, error) {
	var (
		g               groups.Group
		members, admins []byte
	)
	if err := row.Scan(&g.ID, &g.InstitutionID, &g.Name, &g.Description, &members, &admins, &g.MaxMembers,
		&g.IsActive, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return groups.Group{}, err
	}
	g.Members, g.Admins = []string{}, []string{}
	if err := unmarshalJSON(members, &g.Members); err != nil {
		return groups.Group{}, err
	}
	if err := unmarshalJSON(admins, &g.Admins); err != nil {
		return groups.Group{}, err
	}
	return g, nil
}

func encodeMembership(g groups.Group) (string, string, error) {
	members, err := marshalJSON(append([]string{}, g.Members...))
	if err != nil {
		return "", "", err
	}
	admins, err := marshalJSON(append([]string{}, g.Admins...))
	if err != nil {
		return "", "", err
	}
	return string(members), string(admins), nil
}

func (s *Groups) Create(ctx context.Context, g groups.Group) (groups.Group, error) {
	if g.ID == "" {
		g.ID = ids.New()
	}
	members, admins, err := encodeMembership(g)
	if err != nil {
		return groups.Group{}, err
	}
	now := s.now().UTC()
	row := s.db.QueryRowContext(ctx, `
		insert into groups (id, institution_id, name, description, members, admins, max_members, is_active,
			created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		returning `+groupColumns,
		g.ID, g.InstitutionID, g.Name, g.Description, members, admins, g.MaxMembers, g.IsActive, g.CreatedBy, now)
	created, err := scanGroup(row)
	if err != nil {
		return groups.Group{}, mapWriteError(err, groups.ErrNameTaken)
	}
	return created, nil
}

func (s *Groups) Get(ctx context.Context, id string) (groups.Group, error) {
	return s.get(ctx, s.db, id, false)
}

func (s *Groups) get(ctx context.Context, q queryer, id string, lock bool) (groups.Group, error) {
	query := `select ` + groupColumns + ` from groups where id = $1`
	if lock {
		query += ` for update`
	}
	g, err := scanGroup(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return groups.Group{}, groups.ErrNotFound
	}
	return g, err
}

func (s *Groups) List(ctx context.Context, q groups.Query) ([]groups.Group, int, error) {
	var (
		where = []string{"is_active"}
		args  []any
	)
	if q.InstitutionID != "" {
		args = append(args, q.InstitutionID)
		where = append(where, fmt.Sprintf("institution_id = $%d", len(args)))
	}
	if q.NameContains != "" {
		args = append(args, "%"+escapeLike(q.NameContains)+"%")
		where = append(where, fmt.Sprintf("name ilike $%d", len(args)))
	}
	cond := strings.Join(where, " and ")

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from groups where `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "created_at desc"
	if q.ByName {
		order = "name asc"
	}
	query := `select ` + groupColumns + ` from groups where ` + cond + ` order by ` + order
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" offset $%d", len(args))
	}
	list, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *Groups) ByMember(ctx context.Context, employeeID string) ([]groups.Group, error) {
	raw, err := marshalJSON([]string{employeeID})
	if err != nil {
		return nil, err
	}
	return s.query(ctx, `
		select `+groupColumns+`
		from groups
		where is_active and members @> $1::jsonb
		order by name asc
	`, string(raw))
}

// Mutate locks the group row for the duration of fn so concurrent membership
// changes of the same group are serialized.
func (s *Groups) Mutate(ctx context.Context, id string, fn func(*groups.Group) error) (groups.Group, error) {
	var out groups.Group
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.get(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next := cur.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		members, admins, err := encodeMembership(next)
		if err != nil {
			return err
		}
		next.ID = id
		next.UpdatedAt = s.now().UTC()
		if _, err := tx.ExecContext(ctx, `
			update groups
			set name = $2, description = $3, members = $4, admins = $5, max_members = $6, is_active = $7, updated_at = $8
			where id = $1
		`, id, next.Name, next.Description, members, admins, next.MaxMembers, next.IsActive, next.UpdatedAt); err != nil {
			return mapWriteError(err, groups.ErrNameTaken)
		}
		out = next
		return nil
	})
	if err != nil {
		return groups.Group{}, err
	}
	return out, nil
}

func (s *Groups) query(ctx context.Context, query string, args ...any) ([]groups.Group, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]groups.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
