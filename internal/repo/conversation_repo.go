// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FindConversation fetches the conversation for a (user, superstar) pair,
// or ErrNotFound when the pair has never talked.
func FindConversation(ctx context.Context, db *gorm.DB, userID, superstarID uint) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("user_id = ? AND superstar_id = ?", userID, superstarID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateConversation inserts a new active conversation for the pair, with
// StartedAt stamped to the current UTC time.
func CreateConversation(ctx context.Context, db *gorm.DB, userID, superstarID uint) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		UserID:      userID,
		SuperstarID: superstarID,
		Status:      domain.StatusActive,
		StartedAt:   &now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversation fetches a conversation by id, or ErrNotFound.
// Participation checks belong to the service layer; this lookup is not
// scoped to a caller.
func GetConversation(ctx context.Context, db *gorm.DB, id uint) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CountConversations returns the number of conversations the user
// participates in, optionally filtered by status (empty string = all).
func CountConversations(ctx context.Context, db *gorm.DB, userID uint, status domain.ConversationStatus) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListConversationsPage returns a page of the user's conversations ordered
// by most recent activity (UpdatedAt descending, id as tiebreak).
func ListConversationsPage(ctx context.Context, db *gorm.DB, userID uint, status domain.ConversationStatus, offset, limit int) ([]domain.Conversation, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Conversation
	err := q.Order("updated_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateConversationStatus persists a status change together with the
// lifecycle timestamps the service computed. If no rows are affected the
// conversation vanished between read and write, reported as ErrNotFound.
func UpdateConversationStatus(ctx context.Context, db *gorm.DB, c *domain.Conversation) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", c.ID).
		Updates(map[string]any{
			"status":     c.Status,
			"started_at": c.StartedAt,
			"ended_at":   c.EndedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchConversation bumps UpdatedAt so recency-ordered listings surface the
// conversation after a new message arrives.
func TouchConversation(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}

// LastMessage returns the most recent message in a conversation, or
// (nil, nil) when the conversation has none.
func LastMessage(ctx context.Context, db *gorm.DB, conversationID uint) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
