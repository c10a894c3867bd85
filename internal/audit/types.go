package audit

import (
	"errors"
	"time"
)

// Kind is the dispatch path a message log entry belongs to.
type Kind string

const (
	KindDirect      Kind = "direct"
	KindGroup       Kind = "group"
	KindInstitution Kind = "institution"
)

// Action is the lifecycle transition recorded by a message log entry.
type Action string

const (
	ActionSend      Action = "send"
	ActionDelivered Action = "delivered"
	ActionFailed    Action = "failed"
	ActionUpdate    Action = "update"
)

// UserAction is the change recorded by a user log entry.
type UserAction string

const (
	UserCreate            UserAction = "create"
	UserUpdate            UserAction = "update"
	UserDelete            UserAction = "delete"
	UserUpdatePermissions UserAction = "update_permissions"
)

var ErrInvalidEntry = errors.New("audit: invalid entry")

func (k Kind) Valid() bool {
	switch k {
	case KindDirect, KindGroup, KindInstitution:
		return true
	}
	return false
}

func (a Action) Valid() bool {
	switch a {
	case ActionSend, ActionDelivered, ActionFailed, ActionUpdate:
		return true
	}
	return false
}

func (a UserAction) Valid() bool {
	switch a {
	case UserCreate, UserUpdate, UserDelete, UserUpdatePermissions:
		return true
	}
	return false
}

// MessageLog is an append-only record of a dispatch transition. ContentPreview
// holds the plaintext as sent and is not encrypted.
type MessageLog struct {
	ID             string    `json:"id"`
	Type           Kind      `json:"type"`
	Action         Action    `json:"action"`
	ActorUserID    string    `json:"actorUserId"`
	SenderID       string    `json:"sender,omitempty"`
	ReceiverID     string    `json:"receiver,omitempty"`
	GroupID        string    `json:"group,omitempty"`
	InstitutionID  string    `json:"institution,omitempty"`
	ContentPreview string    `json:"contentPreview"`
	ResponseCode   *int      `json:"responseCode"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UserLog records an action performed on behalf of a platform user.
type UserLog struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	ActorUserID string         `json:"actorUserId"`
	Action      UserAction     `json:"action"`
	Message     string         `json:"message"`
	Changes     map[string]any `json:"changes"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (l *MessageLog) validate() error {
	if !l.Type.Valid() || !l.Action.Valid() || l.ActorUserID == "" {
		return ErrInvalidEntry
	}
	return nil
}

func (l *UserLog) validate() error {
	if !l.Action.Valid() || l.UserID == "" {
		return ErrInvalidEntry
	}
	return nil
}

// Code returns a pointer for the nullable ResponseCode field.
func Code(c int) *int { return &c }
