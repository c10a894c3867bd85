package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"elaqe.org/internal/auth"
	"elaqe.org/internal/directory"
	"elaqe.org/internal/gateway"
	"elaqe.org/internal/msgcrypt"
)

const (
	MaxContentLength = 5000
	defaultPageSize  = 50
)

var (
	ErrMessageNotFound      = fmt.Errorf("%w: message", directory.ErrNotFound)
	ErrNoSenderAvailable    = fmt.Errorf("%w: group has no admins or members to send as", directory.ErrInvalidInput)
	ErrInvalidContent       = fmt.Errorf("%w: content must be 1-%d characters", directory.ErrInvalidInput, MaxContentLength)
	ErrReadTrackingDisabled = errors.New("messaging: read tracking is disabled")
	ErrNotGroupMember       = fmt.Errorf("%w: employee is not a member of the group", auth.ErrForbidden)
)

// Type classifies a group message.
type Type string

const (
	TypeText   Type = "text"
	TypeFile   Type = "file"
	TypeImage  Type = "image"
	TypeSystem Type = "system"
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeFile, TypeImage, TypeSystem:
		return true
	}
	return false
}

// ReadReceipt records that an employee has read a message.
type ReadReceipt struct {
	EmployeeID string    `json:"employee"`
	ReadAt     time.Time `json:"readAt"`
}

// Message is a group message. Only Sealed is persisted; Content is filled in on read.
type Message struct {
	ID        string          `json:"id"`
	GroupID   string          `json:"group"`
	SenderID  string          `json:"sender"`
	Sealed    msgcrypt.Sealed `json:"-"`
	Content   string          `json:"content"`
	Type      Type            `json:"messageType"`
	FileURL   string          `json:"fileUrl,omitempty"`
	FileName  string          `json:"fileName,omitempty"`
	FileSize  int64           `json:"fileSize,omitempty"`
	ReplyTo   string          `json:"replyTo,omitempty"`
	ReadBy    []ReadReceipt   `json:"isRead"`
	IsDeleted bool            `json:"isDeleted"`
	DeletedAt *time.Time      `json:"deletedAt,omitempty"`
	EditedAt  *time.Time      `json:"editedAt,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (m *Message) IsReadBy(employeeID string) bool {
	return slices.ContainsFunc(m.ReadBy, func(r ReadReceipt) bool { return r.EmployeeID == employeeID })
}

func (m Message) clone() Message {
	m.ReadBy = slices.Clone(m.ReadBy)
	return m
}

// DirectMessage is a message sent by a platform user to one employee, with its delivery outcome.
type DirectMessage struct {
	ID            string          `json:"id"`
	ActorUserID   string          `json:"actorUserId"`
	ReceiverID    string          `json:"receiver"`
	InstitutionID string          `json:"institution"`
	Sealed        msgcrypt.Sealed `json:"-"`
	Content       string          `json:"content"`
	Type          Type            `json:"messageType"`
	Delivered     bool            `json:"delivered"`
	ResponseCode  *int            `json:"responseCode"`
	ResponseBody  json.RawMessage `json:"responseBody,omitempty"`
	IsDeleted     bool            `json:"isDeleted"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Outcome is the result of a broadcast or direct dispatch. Delivery failures
// are reported here rather than as errors.
type Outcome struct {
	Delivered bool              `json:"delivered"`
	Reason    string            `json:"reason,omitempty"`
	Response  *gateway.Response `json:"response,omitempty"`
}

// GroupMessageInput is the body of a group send.
type GroupMessageInput struct {
	Content  string `json:"content"`
	Type     Type   `json:"messageType"`
	ReplyTo  string `json:"replyTo"`
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}
