// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of conversation messages: sending (with optional
// attachments), paginated listing, read-state transitions, unread counters,
// and sender-scoped deletion.
//
// Read policy: listing never mutates read state. The explicit mark-read
// operation is the only place the unread→read transition happens, so GET
// endpoints stay side-effect free.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation/caller identifiers and pagination parameters where
// applicable.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
	"github.com/fanwire/go-fanwire-backend/internal/repo"
	"github.com/fanwire/go-fanwire-backend/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attachment is an inbound file accompanying a send: the raw content plus
// the client-supplied name. Size/extension policy is enforced at the
// transport edge before the service sees it.
type Attachment struct {
	Reader io.Reader
	Name   string
}

// MessageService coordinates message persistence, read state, and the blob
// store backing attachments.
type MessageService struct {
	DB    *gorm.DB
	Store storage.BlobStore

	// MaxBodyRunes caps message bodies by rune length; 0 disables the cap.
	MaxBodyRunes int
}

// Send validates and persists a new message in the conversation on behalf of
// caller. The sender side is derived from the caller's role. When an
// attachment is supplied it is stored first; the row is only created once the
// blob is durable, and a failed insert removes the orphaned blob again.
func (s *MessageService) Send(ctx context.Context, caller domain.Identity, conversationID uint, messageType, body string, att *Attachment) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.Int64("conversation.id", int64(conversationID)),
			attribute.String("sender.role", string(caller.Role)),
			attribute.Int64("sender.id", int64(caller.ID)),
		),
	)
	defer span.End()

	msgType := domain.MessageType(strings.TrimSpace(messageType))
	if msgType == "" {
		msgType = domain.TypeText
	}
	if !domain.ValidMessageType(msgType) {
		return nil, ErrInvalidMessageType
	}

	body = strings.TrimSpace(body)
	if body == "" && (att == nil || msgType == domain.TypeText) {
		// Text messages always need a body; other types need a body or a file.
		return nil, ErrEmptyBody
	}
	if s.MaxBodyRunes > 0 && utf8.RuneCountInString(body) > s.MaxBodyRunes {
		return nil, ErrBodyTooLong
	}

	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if !conv.HasParticipant(caller) {
		return nil, ErrNotParticipant
	}

	m := &domain.Message{
		ConversationID: conv.ID,
		SenderType:     caller.Role,
		SenderID:       caller.ID,
		MessageType:    msgType,
		Body:           body,
	}

	var stored *storage.StoredFile
	if att != nil {
		stored, err = s.Store.Store(ctx, att.Reader, storage.CategoryChat, att.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAttachmentStore, err)
		}
		m.FilePath = &stored.Path
		m.FileName = &stored.Name
		m.FileSize = &stored.Size
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateMessage(tx, m); err != nil {
			return err
		}
		return repo.TouchConversation(ctx, tx, conv.ID)
	})
	if err != nil {
		if stored != nil {
			// All-or-nothing: a blob without its row is garbage.
			_ = s.Store.Delete(ctx, stored.Path)
		}
		return nil, err
	}
	return m, nil
}

// ListPage returns a page of the conversation's messages. Pagination walks
// backward through time (page 1 holds the newest messages), but each
// returned page is reordered oldest-first so clients append pages in
// reading order.
func (s *MessageService) ListPage(ctx context.Context, caller domain.Identity, conversationID uint, page, perPage int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int64("conversation.id", int64(conversationID)),
			attribute.Int("page", page),
			attribute.Int("per_page", perPage),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrConversationNotFound
		}
		return nil, 0, err
	}
	if !conv.HasParticipant(caller) {
		return nil, 0, ErrNotParticipant
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, perPage)
	if err != nil {
		return nil, 0, err
	}

	// Storage order is newest-first; flip the page into reading order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, total, nil
}

// MarkRead flips every unread counterpart-authored message in the
// conversation to read and returns the number of rows affected. Idempotent:
// a second call returns 0. The caller's own messages are never touched.
func (s *MessageService) MarkRead(ctx context.Context, caller domain.Identity, conversationID uint) (int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(attribute.Int64("conversation.id", int64(conversationID))),
	)
	defer span.End()

	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrConversationNotFound
		}
		return 0, err
	}
	if !conv.HasParticipant(caller) {
		return 0, ErrNotParticipant
	}

	return repo.MarkConversationRead(ctx, s.DB, conversationID, caller.Role.Counterpart())
}

// Unread returns the caller's aggregate unread count across all of their
// conversations. Pure read; no side effects.
func (s *MessageService) Unread(ctx context.Context, caller domain.Identity) (int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Unread",
		trace.WithAttributes(
			attribute.String("caller.role", string(caller.Role)),
			attribute.Int64("caller.id", int64(caller.ID)),
		),
	)
	defer span.End()

	return repo.UnreadCount(ctx, s.DB, caller)
}

// Delete removes a message. Only the original sender may delete; when the
// message has an attachment the backing blob is removed first. An
// already-absent blob is treated as done, but a hard storage error aborts
// the delete and the row is retained.
func (s *MessageService) Delete(ctx context.Context, caller domain.Identity, messageID uint) error {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.Int64("message.id", int64(messageID))),
	)
	defer span.End()

	m, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if !m.SentBy(caller) {
		return ErrNotSender
	}

	if m.HasAttachment() {
		if err := s.Store.Delete(ctx, *m.FilePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrAttachmentDelete, err)
		}
	}

	err = repo.DeleteMessage(ctx, s.DB, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Concurrent delete already removed the row; the outcome stands.
		return nil
	}
	return err
}
