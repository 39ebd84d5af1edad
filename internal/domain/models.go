// Package domain defines the persistence models for conversations, messages,
// and superstar profiles. These types are mapped with GORM and form the core
// data layer of the messaging backend.
package domain

import "time"

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

// Known conversation statuses. A status update may move a conversation to any
// of these values; no transition is forbidden beyond membership in this set.
const (
	StatusActive  ConversationStatus = "active"
	StatusEnded   ConversationStatus = "ended"
	StatusBlocked ConversationStatus = "blocked"
)

// ValidStatus reports whether s is one of the known conversation statuses.
func ValidStatus(s ConversationStatus) bool {
	switch s {
	case StatusActive, StatusEnded, StatusBlocked:
		return true
	}
	return false
}

// Conversation is a persistent pairing of one user and one superstar.
// At most one conversation exists per (user, superstar) pair; the start
// operation is a find-or-create against the unique index below.
//
// Fields:
//   - ID: surrogate integer primary key.
//   - UserID / SuperstarID: the two participants; unique as a pair.
//   - Status: active, ended, or blocked.
//   - StartedAt: set when the conversation first becomes active.
//   - EndedAt: set when the conversation enters the ended status.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Conversation struct {
	ID          uint               `json:"id"           gorm:"primaryKey"`
	UserID      uint               `json:"user_id"      gorm:"not null;index;uniqueIndex:ux_conversation_pair,priority:1"`
	SuperstarID uint               `json:"superstar_id" gorm:"not null;index;uniqueIndex:ux_conversation_pair,priority:2"`
	Status      ConversationStatus `json:"status"       gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','ended','blocked')"`
	StartedAt   *time.Time         `json:"started_at"`
	EndedAt     *time.Time         `json:"ended_at"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"   gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// HasParticipant reports whether the given identity is one of the two
// participants of the conversation. This is the single ownership predicate
// evaluated by every conversation and message operation.
func (c Conversation) HasParticipant(id Identity) bool {
	switch id.Role {
	case RoleUser:
		return c.UserID == id.ID
	case RoleSuperstar:
		return c.SuperstarID == id.ID
	}
	return false
}

// MessageType classifies the payload of a message.
type MessageType string

// Known message types. Text messages require a body; the other types carry
// an attachment, a body, or both.
const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVideo MessageType = "video"
	TypeFile  MessageType = "file"
)

// ValidMessageType reports whether t is one of the known message types.
func ValidMessageType(t MessageType) bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeFile:
		return true
	}
	return false
}

// Message is a single utterance within a conversation, authored either by
// the user side or the superstar side of the pair.
//
// Invariants:
//   - Body is required unless an attachment is present.
//   - IsRead/ReadAt only ever transition false→true; the transition is
//     performed by the counterpart's mark-read action.
//   - Ordering is (CreatedAt, ID); the surrogate id breaks wall-clock ties.
type Message struct {
	ID             uint        `json:"id"              gorm:"primaryKey"`
	ConversationID uint        `json:"conversation_id" gorm:"not null;index:idx_conversation_msgs,priority:1"`
	SenderType     Role        `json:"sender_type"     gorm:"type:varchar(16);not null;check:sender_type IN ('user','superstar')"`
	SenderID       uint        `json:"sender_id"       gorm:"not null;index"`
	MessageType    MessageType `json:"message_type"    gorm:"type:varchar(16);not null;default:'text';check:message_type IN ('text','image','video','file')"`
	Body           string      `json:"body"            gorm:"type:text"`
	FilePath       *string     `json:"file_path"       gorm:"type:varchar(512)"`
	FileName       *string     `json:"file_name"       gorm:"type:varchar(255)"`
	FileSize       *int64      `json:"file_size"`
	IsRead         bool        `json:"is_read"         gorm:"not null;default:false;index"`
	ReadAt         *time.Time  `json:"read_at"`
	CreatedAt      time.Time   `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`

	// Conversation is the parent pairing. Messages are cascade-deleted if
	// their conversation is ever removed at the storage level.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// HasAttachment reports whether the message carries a stored file.
func (m Message) HasAttachment() bool {
	return m.FilePath != nil && *m.FilePath != ""
}

// SentBy reports whether the given identity authored the message.
func (m Message) SentBy(id Identity) bool {
	return m.SenderType == id.Role && m.SenderID == id.ID
}

// Superstar is a content-creator account. Only the profile fields needed to
// enrich conversation listings and the public directory live here; account
// credentials are owned by the identity provider.
type Superstar struct {
	ID          uint      `json:"id"           gorm:"primaryKey"`
	Handle      string    `json:"handle"       gorm:"type:varchar(64);not null;uniqueIndex"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(120)"`
	Bio         string    `json:"bio"          gorm:"type:text"`
	AvatarPath  *string   `json:"avatar_path"  gorm:"type:varchar(512)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Superstar.
func (Superstar) TableName() string { return "superstars" }

// SuperstarSummary is the denormalized profile preview attached to each
// conversation in list responses.
type SuperstarSummary struct {
	ID          uint    `json:"id"`
	Handle      string  `json:"handle"`
	DisplayName string  `json:"display_name"`
	AvatarPath  *string `json:"avatar_path"`
}
