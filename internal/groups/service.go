package groups

import (
	"context"
	"fmt"
	"strings"

	"elaqe.org/internal/auth"
	"elaqe.org/internal/directory"
	"elaqe.org/internal/paging"
)

const defaultPageSize = 10

// CreateInput describes a new group.
type CreateInput struct {
	InstitutionID string   `json:"institution"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Members       []string `json:"members"`
	Admins        []string `json:"admins"`
	MaxMembers    int      `json:"maxMembers"`
}

// UpdateInput carries the fields to change; nil fields are left as they are.
type UpdateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	MaxMembers  *int    `json:"maxMembers"`
	IsActive    *bool   `json:"isActive"`
}

// Service applies the permission lattice in front of a Store.
type Service struct {
	store Store
	dir   directory.Reader
}

func NewService(store Store, dir directory.Reader) *Service {
	return &Service{store: store, dir: dir}
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (Group, error) {
	if strings.TrimSpace(in.InstitutionID) == "" {
		return Group{}, fmt.Errorf("%w: institution is required", directory.ErrInvalidInput)
	}
	inst, err := s.dir.Institution(ctx, in.InstitutionID)
	if err != nil {
		return Group{}, err
	}
	if err := auth.Require(actor, inst.Target(), auth.AxisWrite); err != nil {
		return Group{}, err
	}
	if !inst.IsActive {
		return Group{}, fmt.Errorf("%w: institution %s", directory.ErrInactive, inst.ID)
	}

	g := Group{
		InstitutionID: inst.ID,
		Name:          in.Name,
		Description:   in.Description,
		Members:       in.Members,
		Admins:        in.Admins,
		MaxMembers:    in.MaxMembers,
		IsActive:      true,
		CreatedBy:     actor.UserID,
	}
	g.Normalize()
	if err := g.Validate(); err != nil {
		return Group{}, err
	}
	if err := s.checkEmployees(ctx, inst.ID, g.Members); err != nil {
		return Group{}, err
	}
	return s.store.Create(ctx, g)
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id string) (Group, error) {
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return Group{}, err
	}
	if err := s.authorize(ctx, actor, g.InstitutionID, auth.AxisRead); err != nil {
		return Group{}, err
	}
	return g, nil
}

// List returns active groups newest first. Institution-scoped readers only see their own institution.
func (s *Service) List(ctx context.Context, actor auth.Actor, institutionID string, req paging.Request) ([]Group, paging.Info, error) {
	return s.find(ctx, actor, Query{InstitutionID: institutionID}, req)
}

// Search matches active group names case-insensitively, ordered by name.
func (s *Service) Search(ctx context.Context, actor auth.Actor, term, institutionID string, req paging.Request) ([]Group, paging.Info, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, paging.Info{}, fmt.Errorf("%w: search term is required", directory.ErrInvalidInput)
	}
	return s.find(ctx, actor, Query{InstitutionID: institutionID, NameContains: term, ByName: true}, req)
}

func (s *Service) find(ctx context.Context, actor auth.Actor, q Query, req paging.Request) ([]Group, paging.Info, error) {
	req = req.Normalize(defaultPageSize)
	scope, ok, err := readScope(actor, q.InstitutionID)
	if err != nil {
		return nil, paging.Info{}, err
	}
	if !ok {
		return []Group{}, paging.NewInfo(req, 0), nil
	}
	q.InstitutionID = scope
	q.Offset, q.Limit = req.Offset(), req.Limit
	items, total, err := s.store.List(ctx, q)
	if err != nil {
		return nil, paging.Info{}, err
	}
	return items, paging.NewInfo(req, total), nil
}

// readScope decides which institution a listing may cover. ok=false means an empty result.
func readScope(actor auth.Actor, requested string) (string, bool, error) {
	p := actor.Permissions
	switch {
	case p.IsSuperAdmin || p.CanReadAllGroups:
		return requested, true, nil
	case p.CanReadInstitutionGroups:
		if actor.InstitutionID == "" {
			return "", false, nil
		}
		return actor.InstitutionID, true, nil
	}
	return "", false, fmt.Errorf("%w: read access denied", auth.ErrForbidden)
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, in UpdateInput) (Group, error) {
	if err := s.authorizeGroup(ctx, actor, id); err != nil {
		return Group{}, err
	}
	return s.store.Mutate(ctx, id, func(g *Group) error {
		if in.Name != nil {
			g.Name = *in.Name
		}
		if in.Description != nil {
			g.Description = *in.Description
		}
		if in.MaxMembers != nil {
			g.MaxMembers = *in.MaxMembers
			if g.MaxMembers == 0 {
				return fmt.Errorf("%w: maxMembers must be between 1 and %d", directory.ErrInvalidInput, MaxMembersLimit)
			}
		}
		if in.IsActive != nil {
			g.IsActive = *in.IsActive
		}
		g.Normalize()
		return g.Validate()
	})
}

// Delete deactivates the group; its messages and logs are kept.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if err := s.authorizeGroup(ctx, actor, id); err != nil {
		return err
	}
	_, err := s.store.Mutate(ctx, id, func(g *Group) error {
		g.IsActive = false
		return nil
	})
	return err
}

func (s *Service) AddMember(ctx context.Context, actor auth.Actor, groupID, employeeID string) (Group, error) {
	return s.addEmployee(ctx, actor, groupID, employeeID, (*Group).AddMember)
}

func (s *Service) AddAdmin(ctx context.Context, actor auth.Actor, groupID, employeeID string) (Group, error) {
	return s.addEmployee(ctx, actor, groupID, employeeID, (*Group).AddAdmin)
}

func (s *Service) RemoveMember(ctx context.Context, actor auth.Actor, groupID, employeeID string) (Group, error) {
	if err := s.authorizeGroup(ctx, actor, groupID); err != nil {
		return Group{}, err
	}
	return s.store.Mutate(ctx, groupID, func(g *Group) error { return g.RemoveMember(employeeID) })
}

func (s *Service) RemoveAdmin(ctx context.Context, actor auth.Actor, groupID, employeeID string) (Group, error) {
	if err := s.authorizeGroup(ctx, actor, groupID); err != nil {
		return Group{}, err
	}
	return s.store.Mutate(ctx, groupID, func(g *Group) error { return g.RemoveAdmin(employeeID) })
}

func (s *Service) addEmployee(ctx context.Context, actor auth.Actor, groupID, employeeID string, add func(*Group, string) error) (Group, error) {
	g, err := s.store.Get(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if err := s.authorize(ctx, actor, g.InstitutionID, auth.AxisWrite); err != nil {
		return Group{}, err
	}
	if !g.IsActive {
		return Group{}, ErrInactive
	}
	if err := s.checkEmployees(ctx, g.InstitutionID, []string{employeeID}); err != nil {
		return Group{}, err
	}
	return s.store.Mutate(ctx, groupID, func(g *Group) error {
		if !g.IsActive {
			return ErrInactive
		}
		return add(g, employeeID)
	})
}

// EmployeeGroups lists the active groups an employee belongs to.
func (s *Service) EmployeeGroups(ctx context.Context, actor auth.Actor, employeeID string) ([]Group, error) {
	emp, err := s.dir.Employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, emp.InstitutionID, auth.AxisRead); err != nil {
		return nil, err
	}
	return s.store.ByMember(ctx, employeeID)
}

// InstitutionGroups lists every active group of an institution by name.
func (s *Service) InstitutionGroups(ctx context.Context, actor auth.Actor, institutionID string) ([]Group, error) {
	inst, err := s.dir.Institution(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(actor, inst.Target(), auth.AxisRead); err != nil {
		return nil, err
	}
	items, _, err := s.store.List(ctx, Query{InstitutionID: inst.ID, ByName: true})
	return items, err
}

func (s *Service) authorizeGroup(ctx context.Context, actor auth.Actor, groupID string) error {
	g, err := s.store.Get(ctx, groupID)
	if err != nil {
		return err
	}
	return s.authorize(ctx, actor, g.InstitutionID, auth.AxisWrite)
}

func (s *Service) authorize(ctx context.Context, actor auth.Actor, institutionID string, axis auth.Axis) error {
	return auth.Require(actor, TargetFor(ctx, s.dir, institutionID), axis)
}

// TargetFor builds the authorization target of an institution, falling back to
// the bare ID when the institution cannot be loaded.
func TargetFor(ctx context.Context, dir directory.Reader, institutionID string) auth.Target {
	if inst, err := dir.Institution(ctx, institutionID); err == nil {
		return inst.Target()
	}
	return auth.Target{InstitutionID: institutionID}
}

// checkEmployees requires every ID to be an active employee of institutionID.
func (s *Service) checkEmployees(ctx context.Context, institutionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	emps, err := s.dir.Employees(ctx, ids)
	if err != nil {
		return err
	}
	valid := make(map[string]bool, len(emps))
	for _, e := range emps {
		if e.IsActive && e.InstitutionID == institutionID {
			valid[e.ID] = true
		}
	}
	for _, id := range ids {
		if !valid[id] {
			return fmt.Errorf("%w: employee %s in institution %s", directory.ErrNotFound, id, institutionID)
		}
	}
	return nil
}
