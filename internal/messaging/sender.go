package messaging

import "elaqe.org/internal/groups"

// SenderStrategy picks the employee recorded as the sender when a platform
// user posts to a group on its behalf.
type SenderStrategy func(g groups.Group) (string, error)

// AdminFirst attributes the message to the first admin, else the first member.
func AdminFirst(g groups.Group) (string, error) {
	if len(g.Admins) > 0 {
		return g.Admins[0], nil
	}
	if len(g.Members) > 0 {
		return g.Members[0], nil
	}
	return "", ErrNoSenderAvailable
}
