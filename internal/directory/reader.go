package directory

import (
	"context"
	"fmt"
)

// Reader is the read model over institutions, employees and users.
type Reader interface {
	Institution(ctx context.Context, id string) (Institution, error)
	Employee(ctx context.Context, id string) (Employee, error)
	// Employees returns the employees with the given IDs; unknown IDs are skipped.
	Employees(ctx context.Context, ids []string) ([]Employee, error)
	User(ctx context.Context, id string) (User, error)
}

// ActiveInstitution loads an institution and rejects deactivated ones.
func ActiveInstitution(ctx context.Context, r Reader, id string) (Institution, error) {
	inst, err := r.Institution(ctx, id)
	if err != nil {
		return Institution{}, err
	}
	if !inst.IsActive {
		return Institution{}, fmt.Errorf("%w: institution %s", ErrInactive, id)
	}
	return inst, nil
}

// ActiveEmployee loads an employee and rejects deactivated ones.
func ActiveEmployee(ctx context.Context, r Reader, id string) (Employee, error) {
	emp, err := r.Employee(ctx, id)
	if err != nil {
		return Employee{}, err
	}
	if !emp.IsActive {
		return Employee{}, fmt.Errorf("%w: employee %s", ErrInactive, id)
	}
	return emp, nil
}
