package auth

import "fmt"

// Actor is the authenticated platform user on whose behalf an operation runs.
// Actors never receive messages; employees do.
type Actor struct {
	UserID        string
	InstitutionID string
	Permissions   Permissions
}

// IsSuperAdmin reports the absolute override flag.
func (a Actor) IsSuperAdmin() bool { return a.Permissions.IsSuperAdmin }

// Target is the institution an operation touches, with its delegated administrator.
type Target struct {
	InstitutionID       string
	ResponsiblePersonID string
}

// Axis selects which pair of flags grants access.
type Axis int

const (
	AxisRead Axis = iota + 1
	AxisWrite
	AxisMessage
	// AxisView is read access to message history: any group flag qualifies.
	AxisView
	AxisBroadcast
	AxisDirect
	// AxisImpersonate only honours super-admin and the responsible person.
	AxisImpersonate
)

func (a Axis) String() string {
	switch a {
	case AxisRead:
		return "read"
	case AxisWrite:
		return "write"
	case AxisMessage:
		return "message"
	case AxisView:
		return "view"
	case AxisBroadcast:
		return "broadcast"
	case AxisDirect:
		return "direct"
	case AxisImpersonate:
		return "impersonate"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// IsResponsibleFor reports whether the actor is the delegated administrator of target.
func (a Actor) IsResponsibleFor(t Target) bool {
	return a.UserID != "" && t.ResponsiblePersonID == a.UserID
}

// SameInstitution reports whether the actor belongs to the target institution.
func (a Actor) SameInstitution(t Target) bool {
	return a.InstitutionID != "" && a.InstitutionID == t.InstitutionID
}

// Authorize evaluates the permission lattice: super-admin, responsible person,
// the axis' global flag, then the axis' institution flag with a matching institution.
func Authorize(actor Actor, target Target, axis Axis) bool {
	if actor.Permissions.IsSuperAdmin {
		return true
	}
	if actor.IsResponsibleFor(target) {
		return true
	}
	global, scoped := axisFlags(actor.Permissions, axis)
	if global {
		return true
	}
	return scoped && actor.SameInstitution(target)
}

// Require is Authorize returning ErrForbidden on denial.
func Require(actor Actor, target Target, axis Axis) error {
	if Authorize(actor, target, axis) {
		return nil
	}
	return fmt.Errorf("%w: %s access denied", ErrForbidden, axis)
}

func axisFlags(p Permissions, axis Axis) (global, scoped bool) {
	switch axis {
	case AxisRead:
		return p.CanReadAllGroups, p.CanReadInstitutionGroups
	case AxisWrite:
		return p.CanWriteAllGroups, p.CanWriteInstitutionGroups
	case AxisMessage:
		return p.CanMessageAllGroups, p.CanMessageInstitutionGroups
	case AxisView:
		return p.CanReadAllGroups || p.CanWriteAllGroups || p.CanMessageAllGroups,
			p.CanReadInstitutionGroups || p.CanWriteInstitutionGroups || p.CanMessageInstitutionGroups
	case AxisBroadcast:
		return false, p.CanMessageInstitutionGroups
	case AxisDirect:
		return false, p.CanMessageDirect
	}
	return false, false
}
