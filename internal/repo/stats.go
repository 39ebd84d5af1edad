// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries: the unread-message
// counter surfaced by the API and the conversation-list statistics used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
)

// UnreadCount returns the number of unread messages addressed to the caller
// across every conversation they participate in. Only counterpart-authored
// messages count; the caller's own unread sends are excluded.
func UnreadCount(ctx context.Context, db *gorm.DB, caller domain.Identity) (int64, error) {
	participantCol := "conversations.user_id"
	if caller.Role == domain.RoleSuperstar {
		participantCol = "conversations.superstar_id"
	}

	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where(participantCol+" = ?", caller.ID).
		Where("messages.sender_type = ? AND messages.is_read = ?", caller.Role.Counterpart(), false).
		Count(&total).Error
	return total, err
}

// ConversationsStats returns aggregate metadata for a user's conversations:
// the total number of rows and the maximum UpdatedAt timestamp among them.
// When the user has no conversations, count is 0 and maxUpdatedAt is nil.
//
// The HTTP layer combines both values into a weak ETag so unchanged listings
// can short-circuit to 304.
func ConversationsStats(ctx context.Context, db *gorm.DB, userID uint) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
