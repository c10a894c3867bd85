package directory

import (
	"context"
	"errors"
	"testing"

	"elaqe.org/internal/auth"
)

func TestInactiveWrapsNotFound(t *testing.T) {
	if !errors.Is(ErrInactive, ErrNotFound) {
		t.Fatalf("expected ErrInactive to wrap ErrNotFound")
	}
}

func TestActiveLookups(t *testing.T) {
	ctx := context.Background()
	dir := NewInMemory()
	dir.PutInstitution(Institution{ID: "i1", IsActive: true, CorporationIDs: []int{10}})
	dir.PutInstitution(Institution{ID: "i2"})
	dir.PutEmployee(Employee{ID: "e1", InstitutionID: "i1", IsActive: true})
	dir.PutEmployee(Employee{ID: "e2", InstitutionID: "i1"})

	if _, err := ActiveInstitution(ctx, dir, "i1"); err != nil {
		t.Fatalf("ActiveInstitution: %v", err)
	}
	if _, err := ActiveInstitution(ctx, dir, "i2"); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
	if _, err := ActiveInstitution(ctx, dir, "missing"); !errors.Is(err, ErrNotFound) || errors.Is(err, ErrInactive) {
		t.Fatalf("expected plain ErrNotFound, got %v", err)
	}
	if _, err := ActiveEmployee(ctx, dir, "e2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected inactive employee to read as not found, got %v", err)
	}

	emps, err := dir.Employees(ctx, []string{"e1", "ghost", "e2"})
	if err != nil {
		t.Fatalf("Employees: %v", err)
	}
	if len(emps) != 2 || emps[0].ID != "e1" || emps[1].ID != "e2" {
		t.Fatalf("unexpected employees %+v", emps)
	}
}

func TestInstitutionCopiesCorporationIDs(t *testing.T) {
	dir := NewInMemory()
	dir.PutInstitution(Institution{ID: "i1", CorporationIDs: []int{1, 2}})
	inst, _ := dir.Institution(context.Background(), "i1")
	inst.CorporationIDs[0] = 99
	again, _ := dir.Institution(context.Background(), "i1")
	if again.CorporationIDs[0] != 1 {
		t.Fatalf("stored institution was mutated through a returned copy")
	}
}

func TestActorByID(t *testing.T) {
	dir := NewInMemory()
	dir.PutUser(User{ID: "u1", InstitutionID: "i1", IsActive: true, Permissions: auth.Permissions{CanMessageDirect: true}})
	dir.PutUser(User{ID: "u2"})

	actor, err := dir.ActorByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ActorByID: %v", err)
	}
	if actor.InstitutionID != "i1" || !actor.Permissions.CanMessageDirect {
		t.Fatalf("unexpected actor %+v", actor)
	}
	if _, err := dir.ActorByID(context.Background(), "u2"); !errors.Is(err, auth.ErrActorInactive) {
		t.Fatalf("expected ErrActorInactive, got %v", err)
	}
	if _, err := dir.ActorByID(context.Background(), "nobody"); !errors.Is(err, auth.ErrActorNotFound) {
		t.Fatalf("expected ErrActorNotFound, got %v", err)
	}
}
