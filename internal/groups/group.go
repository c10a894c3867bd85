package groups

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"elaqe.org/internal/directory"
)

const (
	DefaultMaxMembers = 500
	MaxMembersLimit   = 500
	nameMinLen        = 2
	nameMaxLen        = 100
	descriptionMaxLen = 500
)

var (
	ErrNotFound         = fmt.Errorf("%w: group", directory.ErrNotFound)
	ErrInactive         = fmt.Errorf("%w: group", directory.ErrInactive)
	ErrCapacityExceeded = fmt.Errorf("%w: group has reached its member limit", directory.ErrInvalidInput)
	ErrAlreadyMember    = fmt.Errorf("%w: employee is already a member", directory.ErrInvalidInput)
	ErrAlreadyAdmin     = fmt.Errorf("%w: employee is already an admin", directory.ErrInvalidInput)
	ErrNotMember        = fmt.Errorf("%w: employee is not a member", directory.ErrInvalidInput)
	ErrNotAdmin         = fmt.Errorf("%w: employee is not an admin", directory.ErrInvalidInput)
	ErrNameTaken        = fmt.Errorf("%w: group name already exists in institution", directory.ErrConflict)
)

// Group is a named set of employees within one institution. Admins is always a subset of Members.
type Group struct {
	ID            string    `json:"id"`
	InstitutionID string    `json:"institution"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Members       []string  `json:"members"`
	Admins        []string  `json:"admins"`
	MaxMembers    int       `json:"maxMembers"`
	IsActive      bool      `json:"isActive"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (g *Group) IsMember(employeeID string) bool {
	return slices.Contains(g.Members, employeeID)
}

func (g *Group) IsAdmin(employeeID string) bool {
	return slices.Contains(g.Admins, employeeID)
}

// AddMember appends employeeID, leaving the group untouched on error.
func (g *Group) AddMember(employeeID string) error {
	if g.IsMember(employeeID) {
		return ErrAlreadyMember
	}
	if len(g.Members) >= g.capacity() {
		return ErrCapacityExceeded
	}
	g.Members = append(g.Members, employeeID)
	return nil
}

// RemoveMember drops employeeID from the members and, if present, from the admins.
func (g *Group) RemoveMember(employeeID string) error {
	if !g.IsMember(employeeID) {
		return ErrNotMember
	}
	g.Members = without(g.Members, employeeID)
	g.Admins = without(g.Admins, employeeID)
	return nil
}

// AddAdmin promotes employeeID, adding it as a member first when needed.
func (g *Group) AddAdmin(employeeID string) error {
	if g.IsAdmin(employeeID) {
		return ErrAlreadyAdmin
	}
	if !g.IsMember(employeeID) {
		if err := g.AddMember(employeeID); err != nil {
			return err
		}
	}
	g.Admins = append(g.Admins, employeeID)
	return nil
}

func (g *Group) RemoveAdmin(employeeID string) error {
	if !g.IsAdmin(employeeID) {
		return ErrNotAdmin
	}
	g.Admins = without(g.Admins, employeeID)
	return nil
}

// Normalize trims text fields, defaults MaxMembers, dedupes lists and folds admins into members.
func (g *Group) Normalize() {
	g.Name = strings.TrimSpace(g.Name)
	g.Description = strings.TrimSpace(g.Description)
	if g.MaxMembers == 0 {
		g.MaxMembers = DefaultMaxMembers
	}
	g.Members = dedupe(g.Members)
	g.Admins = dedupe(g.Admins)
	for _, id := range g.Admins {
		if !g.IsMember(id) {
			g.Members = append(g.Members, id)
		}
	}
}

// Validate checks field limits and membership invariants.
func (g *Group) Validate() error {
	n := utf8.RuneCountInString(g.Name)
	if n < nameMinLen || n > nameMaxLen {
		return fmt.Errorf("%w: group name must be %d-%d characters", directory.ErrInvalidInput, nameMinLen, nameMaxLen)
	}
	if utf8.RuneCountInString(g.Description) > descriptionMaxLen {
		return fmt.Errorf("%w: description must be at most %d characters", directory.ErrInvalidInput, descriptionMaxLen)
	}
	if g.MaxMembers < 1 || g.MaxMembers > MaxMembersLimit {
		return fmt.Errorf("%w: maxMembers must be between 1 and %d", directory.ErrInvalidInput, MaxMembersLimit)
	}
	if len(g.Members) > g.MaxMembers {
		return ErrCapacityExceeded
	}
	for _, id := range g.Admins {
		if !g.IsMember(id) {
			return fmt.Errorf("%w: admin %s is not a member", directory.ErrInvalidInput, id)
		}
	}
	return nil
}

// Clone returns a deep copy safe to mutate.
func (g Group) Clone() Group {
	g.Members = slices.Clone(g.Members)
	g.Admins = slices.Clone(g.Admins)
	if g.Members == nil {
		g.Members = []string{}
	}
	if g.Admins == nil {
		g.Admins = []string{}
	}
	return g
}

func (g *Group) capacity() int {
	if g.MaxMembers <= 0 {
		return DefaultMaxMembers
	}
	return g.MaxMembers
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
