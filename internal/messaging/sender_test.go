package messaging

import (
	"errors"
	"testing"

	"elaqe.org/internal/groups"
)

func TestAdminFirst(t *testing.T) {
	cases := []struct {
		name string
		g    groups.Group
		want string
		err  error
	}{
		{"admin wins", groups.Group{Members: []string{"m1", "a1"}, Admins: []string{"a1"}}, "a1", nil},
		{"first member", groups.Group{Members: []string{"m1", "m2"}}, "m1", nil},
		{"empty", groups.Group{}, "", ErrNoSenderAvailable},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := AdminFirst(tc.g)
			if !errors.Is(err, tc.err) || got != tc.want {
				t.Fatalf("AdminFirst = %q, %v; want %q, %v", got, err, tc.want, tc.err)
			}
		})
	}
}
