package auth

import (
	"errors"
	"fmt"
	"testing"
)

func TestAuthorizeExamples(t *testing.T) {
	target := Target{InstitutionID: "inst-a", ResponsiblePersonID: "resp"}

	cases := []struct {
		name  string
		actor Actor
		axis  Axis
		want  bool
	}{
		{"super admin overrides everything", Actor{UserID: "u", Permissions: Permissions{IsSuperAdmin: true}}, AxisImpersonate, true},
		{"responsible person without flags", Actor{UserID: "resp", InstitutionID: "inst-z"}, AxisWrite, true},
		{"responsible person impersonates", Actor{UserID: "resp"}, AxisImpersonate, true},
		{"empty user id is never responsible", Actor{}, AxisImpersonate, false},
		{"global write flag", Actor{UserID: "u", InstitutionID: "inst-z", Permissions: Permissions{CanWriteAllGroups: true}}, AxisWrite, true},
		{"institution write flag same institution", Actor{UserID: "u", InstitutionID: "inst-a", Permissions: Permissions{CanWriteInstitutionGroups: true}}, AxisWrite, true},
		{"institution write flag other institution", Actor{UserID: "u", InstitutionID: "inst-b", Permissions: Permissions{CanWriteInstitutionGroups: true}}, AxisWrite, false},
		{"read flag does not grant write", Actor{UserID: "u", InstitutionID: "inst-a", Permissions: Permissions{CanReadAllGroups: true}}, AxisWrite, false},
		{"global message flag", Actor{UserID: "u", Permissions: Permissions{CanMessageAllGroups: true}}, AxisMessage, true},
		{"global read flag", Actor{UserID: "u", Permissions: Permissions{CanReadAllGroups: true}}, AxisRead, true},
		{"institution read flag", Actor{UserID: "u", InstitutionID: "inst-a", Permissions: Permissions{CanReadInstitutionGroups: true}}, AxisRead, true},
		{"view via message flag", Actor{UserID: "u", InstitutionID: "inst-a", Permissions: Permissions{CanMessageInstitutionGroups: true}}, AxisView, true},
		{"view via global write", Actor{UserID: "u", Permissions: Permissions{CanWriteAllGroups: true}}, AxisView, true},
		{"view denied other institution", Actor{UserID: "u", InstitutionID: "inst-b", Permissions: Permissions{CanReadInstitutionGroups: true}}, AxisView, false},
		{"broadcast needs institution flag", Actor{UserID: "u", InstitutionID: "inst-a", Permissions: Permissions{CanMessageInstitutionGroups: true}}, AxisBroadcast, true},
		{"broadcast ignores global message flag", Actor{UserID: "u", InstitutionID: "inst-b", Permissions: Permissions{CanMessageAllGroups: true}}, AxisBroadcast, false},
		{"direct same institution", Actor{UserID: "u", InstitutionID: "inst-a", Permissions: Permissions{CanMessageDirect: true}}, AxisDirect, true},
		{"direct other institution", Actor{UserID: "u", InstitutionID: "inst-b", Permissions: Permissions{CanMessageDirect: true}}, AxisDirect, false},
		{"impersonate ignores all group flags", Actor{UserID: "u", InstitutionID: "inst-a", Permissions: Permissions{
			CanMessageAllGroups: true, CanMessageInstitutionGroups: true, CanWriteAllGroups: true,
		}}, AxisImpersonate, false},
		{"empty actor institution never matches", Actor{UserID: "u", Permissions: Permissions{CanWriteInstitutionGroups: true}}, AxisWrite, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := Authorize(tc.actor, target, tc.axis); got != tc.want {
				t.Fatalf("Authorize(%s) = %v, want %v", tc.axis, got, tc.want)
			}
		})
	}
}

// TestAuthorizeLattice walks every combination of super-admin, responsible
// person, the axis' global flag, the axis' institution flag and institution
// match, per axis.
func TestAuthorizeLattice(t *testing.T) {
	target := Target{InstitutionID: "inst-a", ResponsiblePersonID: "resp"}

	axes := []struct {
		name   string
		axis   Axis
		global func(*Permissions)
		scoped func(*Permissions)
	}{
		{"read", AxisRead, func(p *Permissions) { p.CanReadAllGroups = true }, func(p *Permissions) { p.CanReadInstitutionGroups = true }},
		{"write", AxisWrite, func(p *Permissions) { p.CanWriteAllGroups = true }, func(p *Permissions) { p.CanWriteInstitutionGroups = true }},
		{"message", AxisMessage, func(p *Permissions) { p.CanMessageAllGroups = true }, func(p *Permissions) { p.CanMessageInstitutionGroups = true }},
		{"view by read", AxisView, func(p *Permissions) { p.CanReadAllGroups = true }, func(p *Permissions) { p.CanReadInstitutionGroups = true }},
		{"view by write", AxisView, func(p *Permissions) { p.CanWriteAllGroups = true }, func(p *Permissions) { p.CanWriteInstitutionGroups = true }},
		{"view by message", AxisView, func(p *Permissions) { p.CanMessageAllGroups = true }, func(p *Permissions) { p.CanMessageInstitutionGroups = true }},
		{"broadcast", AxisBroadcast, nil, func(p *Permissions) { p.CanMessageInstitutionGroups = true }},
		{"direct", AxisDirect, nil, func(p *Permissions) { p.CanMessageDirect = true }},
		{"impersonate", AxisImpersonate, nil, nil},
	}

	for _, ax := range axes {
		ax := ax
		t.Run(ax.name, func(t *testing.T) {
			checked := 0
			for mask := 0; mask < 1<<5; mask++ {
				super := mask&1 != 0
				responsible := mask&2 != 0
				global := mask&4 != 0
				scoped := mask&8 != 0
				same := mask&16 != 0
				if (global && ax.global == nil) || (scoped && ax.scoped == nil) {
					continue
				}

				actor := Actor{UserID: "u", InstitutionID: "inst-b"}
				if responsible {
					actor.UserID = "resp"
				}
				if same {
					actor.InstitutionID = "inst-a"
				}
				actor.Permissions.IsSuperAdmin = super
				if global {
					ax.global(&actor.Permissions)
				}
				if scoped {
					ax.scoped(&actor.Permissions)
				}

				want := super || responsible || global || (scoped && same)
				name := fmt.Sprintf("super=%t responsible=%t global=%t scoped=%t same=%t", super, responsible, global, scoped, same)
				if got := Authorize(actor, target, ax.axis); got != want {
					t.Fatalf("%s: Authorize = %v, want %v", name, got, want)
				}
				checked++
			}
			if checked == 0 {
				t.Fatalf("no combinations checked")
			}
		})
	}
}

// Institution-scoped flags must never match an institution with an empty ID.
func TestAuthorizeEmptyTargetInstitution(t *testing.T) {
	actor := Actor{UserID: "u", Permissions: Permissions{CanWriteInstitutionGroups: true}}
	if Authorize(actor, Target{}, AxisWrite) {
		t.Fatalf("expected denial for blank institutions")
	}
}

func TestRequireWrapsForbidden(t *testing.T) {
	actor := Actor{UserID: "u2", InstitutionID: "inst-b", Permissions: Permissions{CanWriteInstitutionGroups: true}}
	err := Require(actor, Target{InstitutionID: "inst-a"}, AxisWrite)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := Require(actor, Target{InstitutionID: "inst-b"}, AxisWrite); err != nil {
		t.Fatalf("expected access, got %v", err)
	}
}

func TestAxisString(t *testing.T) {
	if AxisBroadcast.String() != "broadcast" {
		t.Fatalf("unexpected %s", AxisBroadcast)
	}
	if Axis(99).String() != "axis(99)" {
		t.Fatalf("unexpected %s", Axis(99))
	}
}
