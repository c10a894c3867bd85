package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"elaqe.org/internal/auth"
	"elaqe.org/internal/directory"
)

// Directory reads institutions, employees and users.
type Directory struct {
	db *sql.DB
}

var (
	_ directory.Reader = (*Directory)(nil)
	_ auth.ActorSource = (*Directory)(nil)
)

const institutionColumns = `id, long_name, short_name, type, coalesce(responsible_person_id,''), message_limit,
	is_active, tims_uuid, tims_access_token, corporation_ids, coalesce(created_by,''), created_at, updated_at`

func (d *Directory) Institution(ctx context.Context, id string) (directory.Institution, error) {
	var (
		inst directory.Institution
		corp []byte
	)
	err := d.db.QueryRowContext(ctx, `select `+institutionColumns+` from institutions where id = $1`, id).Scan(
		&inst.ID, &inst.LongName, &inst.ShortName, &inst.Type, &inst.ResponsiblePersonID, &inst.MessageLimit,
		&inst.IsActive, &inst.TimsUUID, &inst.TimsAccessToken, &corp, &inst.CreatedBy, &inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Institution{}, fmt.Errorf("%w: institution %s", directory.ErrNotFound, id)
	}
	if err != nil {
		return directory.Institution{}, err
	}
	if err := unmarshalJSON(corp, &inst.CorporationIDs); err != nil {
		return directory.Institution{}, err
	}
	return inst, nil
}

const employeeColumns = `id, institution_id, first_name, last_name, email, phone, position, tims_username,
	is_active, created_at, updated_at`

func scanEmployee(row interface{ Scan(...any) error }) (directory.Employee, error) {
	var e directory.Employee
	err := row.Scan(&e.ID, &e.InstitutionID, &e.FirstName, &e.LastName, &e.Email, &e.Phone, &e.Position,
		&e.TimsUsername, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (d *Directory) Employee(ctx context.Context, id string) (directory.Employee, error) {
	e, err := scanEmployee(d.db.QueryRowContext(ctx, `select `+employeeColumns+` from employees where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Employee{}, fmt.Errorf("%w: employee %s", directory.ErrNotFound, id)
	}
	return e, err
}

// Employees preserves the order of ids and skips unknown ones.
func (d *Directory) Employees(ctx context.Context, ids []string) ([]directory.Employee, error) {
	if len(ids) == 0 {
		return []directory.Employee{}, nil
	}
	raw, err := marshalJSON(ids)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, `
		select `+employeeColumns+`
		from employees
		where id in (select jsonb_array_elements_text($1::jsonb))
	`, string(raw))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]directory.Employee, len(ids))
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]directory.Employee, 0, len(byID))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
			delete(byID, id)
		}
	}
	return out, nil
}

func (d *Directory) User(ctx context.Context, id string) (directory.User, error) {
	var (
		u     directory.User
		inst  sql.NullString
		perms []byte
	)
	err := d.db.QueryRowContext(ctx, `
		select id, name, email, institution_id, permissions, is_active, created_at
		from users where id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &inst, &perms, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, fmt.Errorf("%w: user %s", directory.ErrNotFound, id)
	}
	if err != nil {
		return directory.User{}, err
	}
	u.InstitutionID = inst.String
	if err := unmarshalJSON(perms, &u.Permissions); err != nil {
		return directory.User{}, err
	}
	return u, nil
}

func (d *Directory) ActorByID(ctx context.Context, id string) (auth.Actor, error) {
	u, err := d.User(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return auth.Actor{}, fmt.Errorf("%w: %s", auth.ErrActorNotFound, id)
	}
	if err != nil {
		return auth.Actor{}, err
	}
	if !u.IsActive {
		return auth.Actor{}, fmt.Errorf("%w: %s", auth.ErrActorInactive, id)
	}
	return u.Actor(), nil
}

// PutInstitution inserts or replaces an institution row. The directory is
// owned by the administration service; this exists for provisioning and tests.
func (d *Directory) PutInstitution(ctx context.Context, inst directory.Institution) error {
	corp, err := marshalJSON(append([]int{}, inst.CorporationIDs...))
	if err != nil {
		return err
	}
	if inst.MessageLimit <= 0 {
		inst.MessageLimit = directory.DefaultMessageLimit
	}
	_, err = d.db.ExecContext(ctx, `
		insert into institutions (id, long_name, short_name, type, responsible_person_id, message_limit,
			is_active, tims_uuid, tims_access_token, corporation_ids, created_by)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		on conflict (id) do update set
			long_name = excluded.long_name, short_name = excluded.short_name, type = excluded.type,
			responsible_person_id = excluded.responsible_person_id, message_limit = excluded.message_limit,
			is_active = excluded.is_active, tims_uuid = excluded.tims_uuid,
			tims_access_token = excluded.tims_access_token, corporation_ids = excluded.corporation_ids,
			updated_at = now()
	`, inst.ID, inst.LongName, inst.ShortName, inst.Type, nullString(inst.ResponsiblePersonID), inst.MessageLimit,
		inst.IsActive, inst.TimsUUID, inst.TimsAccessToken, string(corp), nullString(inst.CreatedBy))
	return mapWriteError(err, directory.ErrConflict)
}

func (d *Directory) PutEmployee(ctx context.Context, e directory.Employee) error {
	_, err := d.db.ExecContext(ctx, `
		insert into employees (id, institution_id, first_name, last_name, email, phone, position, tims_username, is_active)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		on conflict (id) do update set
			institution_id = excluded.institution_id, first_name = excluded.first_name,
			last_name = excluded.last_name, email = excluded.email, phone = excluded.phone,
			position = excluded.position, tims_username = excluded.tims_username,
			is_active = excluded.is_active, updated_at = now()
	`, e.ID, e.InstitutionID, e.FirstName, e.LastName, e.Email, e.Phone, e.Position, e.TimsUsername, e.IsActive)
	return mapWriteError(err, directory.ErrConflict)
}

func (d *Directory) PutUser(ctx context.Context, u directory.User) error {
	perms, err := marshalJSON(u.Permissions)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `
		insert into users (id, name, email, institution_id, permissions, is_active)
		values ($1,$2,$3,$4,$5,$6)
		on conflict (id) do update set
			name = excluded.name, email = excluded.email, institution_id = excluded.institution_id,
			permissions = excluded.permissions, is_active = excluded.is_active
	`, u.ID, u.Name, u.Email, nullString(u.InstitutionID), string(perms), u.IsActive)
	return mapWriteError(err, directory.ErrConflict)
}
