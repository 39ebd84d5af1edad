// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency records the outcome of a previously processed message send,
// keyed by (sender role, sender id, conversation id, key). It enables safe
// retries for POST /conversations/{id}/messages by returning the originally
// created message without inserting a duplicate.
type Idempotency struct {
	ID             string    `gorm:"type:varchar(36);primaryKey"`
	SenderType     Role      `gorm:"type:varchar(16);not null;uniqueIndex:ux_sender_conversation_key,priority:1"`
	SenderID       uint      `gorm:"not null;uniqueIndex:ux_sender_conversation_key,priority:2"`
	ConversationID uint      `gorm:"not null;uniqueIndex:ux_sender_conversation_key,priority:3"`
	// Key is stored as idem_key; KEY is a reserved word in MySQL and an
	// unquoted "key = ?" condition fails to parse there.
	Key            string    `gorm:"column:idem_key;type:varchar(200);not null;uniqueIndex:ux_sender_conversation_key,priority:4"`
	MessageID      uint      `gorm:"not null"`
	Status         int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	ExpiresAt      time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
