// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including read-state transitions.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
)

// CreateMessage inserts a new message row. New messages always start unread.
func CreateMessage(db *gorm.DB, m *domain.Message) (*domain.Message, error) {
	m.IsRead = false
	m.ReadAt = nil
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return m, db.Create(m).Error
}

// GetMessage fetches a message by id, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, conversationID uint) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered newest-first
// (CreatedAt DESC, ID DESC). Page 1 is the most recent messages; callers
// that want reading order reverse the returned page.
func ListMessagesPage(db *gorm.DB, conversationID uint, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteMessage removes a message row by id. Returns ErrNotFound when the
// row is already gone.
func DeleteMessage(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Message{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkConversationRead flips every unread message in the conversation that
// was authored by senderType to read, stamping ReadAt. It returns the number
// of rows affected, so a second call reports 0. The false→true transition is
// one-way: already-read rows are excluded by the predicate and never touched.
func MarkConversationRead(ctx context.Context, db *gorm.DB, conversationID uint, senderType domain.Role) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_type = ? AND is_read = ?", conversationID, senderType, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
