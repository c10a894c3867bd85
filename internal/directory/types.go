package directory

import (
	"errors"
	"fmt"
	"time"

	"elaqe.org/internal/auth"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	// ErrInactive is reported for deactivated records; callers treat it as a missing record.
	ErrInactive = fmt.Errorf("%w: inactive", ErrNotFound)
)

// InstitutionTypes is the closed catalogue of institution kinds.
var InstitutionTypes = []string{
	"dövlət",
	"özəl",
	"beynəlxalq",
	"qeyri-hökumət",
	"təhsil",
	"səhiyyə",
	"maliyyə",
	"digər",
}

// DefaultMessageLimit is assigned to institutions that do not set one. It is advisory.
const DefaultMessageLimit = 10

// Institution is an organizational tenant owning employees and groups.
type Institution struct {
	ID                  string    `json:"id"`
	LongName            string    `json:"longName"`
	ShortName           string    `json:"shortName"`
	Type                string    `json:"type"`
	ResponsiblePersonID string    `json:"responsiblePerson,omitempty"`
	MessageLimit        int       `json:"messageLimit"`
	IsActive            bool      `json:"isActive"`
	TimsUUID            string    `json:"-"`
	TimsAccessToken     string    `json:"-"`
	CorporationIDs      []int     `json:"corporationIds"`
	CreatedBy           string    `json:"createdBy,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Target is the authorization target this institution represents.
func (i Institution) Target() auth.Target {
	return auth.Target{InstitutionID: i.ID, ResponsiblePersonID: i.ResponsiblePersonID}
}

// Employee is a message recipient belonging to exactly one institution.
type Employee struct {
	ID            string    `json:"id"`
	InstitutionID string    `json:"institution"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	Position      string    `json:"position,omitempty"`
	TimsUsername  string    `json:"timsUsername,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (e Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

// User is a platform login identity. Users send messages, they never receive them.
type User struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	InstitutionID string           `json:"institution,omitempty"`
	Permissions   auth.Permissions `json:"permissions"`
	IsActive      bool             `json:"isActive"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Actor converts the user into the authenticated principal used by authorization.
func (u User) Actor() auth.Actor {
	return auth.Actor{UserID: u.ID, InstitutionID: u.InstitutionID, Permissions: u.Permissions}
}
