// Message HTTP handlers.
//
// This file exposes REST endpoints for conversation messages:
//   - POST   /conversations/{id}/messages  (send text or attachment)
//   - GET    /conversations/{id}/messages  (list paginated messages)
//   - POST   /conversations/{id}/read      (mark counterpart messages read)
//   - DELETE /messages/{id}                (sender-only delete)
//   - GET    /unread-count                 (aggregate unread for the caller)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (body text, attachment size and extension)
//   - delegate to application services (MessageService)
//   - implement idempotency semantics for sends
//
// Sends accept either JSON ({"message_type","body"}) or multipart/form-data
// with the same field names plus a "file" part for the attachment.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (sender, conversation, key), the handler returns that
// recorded message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
	"github.com/fanwire/go-fanwire-backend/internal/http/middleware"
	"github.com/fanwire/go-fanwire-backend/internal/services"
	"github.com/fanwire/go-fanwire-backend/internal/storage"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a text message.
//
// Body is normalized by the handler (line endings and excessive blank lines)
// before being passed to the service layer. The service also enforces a
// maximum rune count, which can be configured in MessageService.
type PostMessageRequest struct {
	// MessageType defaults to "text" when empty.
	MessageType string `json:"message_type" example:"text"`
	// Body is the message text. Required unless a file is attached.
	Body string `json:"body" example:"see you at the meet and greet!"`
}

// PostMessageResponse is the JSON envelope for a newly created message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a page of messages (oldest first within the
// page) and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// MarkReadResponse reports how many messages a read marker affected.
type MarkReadResponse struct {
	Message        string `json:"message"`
	MessagesMarked int64  `json:"messages_marked"`
}

// DeleteMessageResponse confirms a deletion.
type DeleteMessageResponse struct {
	Message string `json:"message"`
}

// UnreadCountResponse carries the caller's aggregate unread total.
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeBody normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeBody(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// defaultMaxBodyRunes bounds message bodies when no limit is configured.
const defaultMaxBodyRunes = 4000

// allowedExtensions maps a message type to the file extensions accepted for
// its attachment. The generic "file" type takes anything with an extension.
var allowedExtensions = map[domain.MessageType]map[string]struct{}{
	domain.TypeImage: {".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}},
	domain.TypeVideo: {".mp4": {}, ".mov": {}, ".webm": {}, ".avi": {}},
}

// validateAttachmentName checks the (sanitized) client filename against the
// declared message type. Returns a field error message, or "" when valid.
func validateAttachmentName(messageType domain.MessageType, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "file must have an extension"
	}
	if allowed, ok := allowedExtensions[messageType]; ok {
		if _, hit := allowed[ext]; !hit {
			return fmt.Sprintf("%s is not a valid %s extension", ext, messageType)
		}
	}
	return ""
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message into a conversation
// @Description Persists a text message (JSON) or an attachment message (multipart/form-data with a "file" part).
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       id               path    int     true  "Conversation ID"  minimum(1)
// @Param       body             body    handlers.PostMessageRequest  false "Text message payload"
//
// @Success     200  {object}  handlers.PostMessageResponse  "Created message; replays set Idempotency-Replayed: true"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse        "Caller is not a participant"
// @Failure     404  {object}  handlers.ErrorResponse        "Conversation not found"
// @Failure     422  {object}  handlers.ErrorResponse        "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal or storage error"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	id, okID := requireCaller(c)
	if !okID {
		return
	}
	conversationID, okP := idParam(c, "id")
	if !okP {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a positive integer")
		return
	}

	var (
		messageType string
		body        string
		att         *services.Attachment
	)

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		messageType = strings.TrimSpace(c.PostForm("message_type"))
		body = c.PostForm("body")

		file, header, err := c.Request.FormFile("file")
		if err == nil {
			defer file.Close()
			name := storage.SanitizeName(header.Filename)
			if msg := validateAttachmentName(domain.MessageType(messageType), name); msg != "" {
				failValidation(c, map[string]string{"file": msg})
				return
			}
			if h.MaxUploadBytes > 0 && header.Size > h.MaxUploadBytes {
				failValidation(c, map[string]string{
					"file": fmt.Sprintf("file exceeds the %d byte limit", h.MaxUploadBytes),
				})
				return
			}
			att = &services.Attachment{Reader: file, Name: name}
		}
	} else {
		var req PostMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
		messageType = strings.TrimSpace(req.MessageType)
		body = req.Body
	}

	// Sanitize + early size cap to fail fast at the edge.
	body = sanitizeBody(body)
	maxRunes := h.MaxBodyRunes
	if maxRunes <= 0 {
		maxRunes = defaultMaxBodyRunes
	}
	if utf8.RuneCountInString(body) > maxRunes {
		failValidation(c, map[string]string{
			"body": fmt.Sprintf("body too long: max %d characters", maxRunes),
		})
		return
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.Replay != nil {
		if prev, err := h.Replay(ctx, id, conversationID, idemKey); err == nil && prev != nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, PostMessageResponse{Message: prev})
			return
		}
	}

	m, err := h.msgSvc.Send(ctx, id, conversationID, messageType, body, att)
	if err != nil {
		switch err {
		case services.ErrConversationNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case services.ErrNotParticipant:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "caller is not a participant of this conversation")
		case services.ErrInvalidMessageType:
			failValidation(c, map[string]string{"message_type": err.Error()})
		case services.ErrEmptyBody:
			failValidation(c, map[string]string{"body": err.Error()})
		case services.ErrBodyTooLong:
			failValidation(c, map[string]string{
				"body": fmt.Sprintf("body too long: max %d characters", maxRunes),
			})
		case services.ErrAttachmentStore:
			fail(c, http.StatusInternalServerError, ErrCodeAttachmentFailed, "failed to store attachment")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}

	if m.HasAttachment() && m.FileSize != nil {
		middleware.ObserveAttachmentSize(string(m.MessageType), *m.FileSize)
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && h.Record != nil {
		_ = h.Record(ctx, id, conversationID, idemKey, m.ID)
	}

	ok(c, http.StatusOK, PostMessageResponse{Message: m})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Returns a paginated slice of messages. Pages are taken newest-first; items within a page are ordered oldest to newest. Listing never changes read state.
// @Tags        Messages
// @Produce     json
//
// @Param       id        path   int  true  "Conversation ID" minimum(1)
// @Param       page      query  int  false "Page number"     minimum(1) default(1)
// @Param       per_page  query  int  false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Caller is not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	id, okID := requireCaller(c)
	if !okID {
		return
	}
	conversationID, okP := idParam(c, "id")
	if !okP {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a positive integer")
		return
	}
	page, perPage := clampPagination(c)

	items, total, err := h.msgSvc.ListPage(c.Request.Context(), id, conversationID, page, perPage)
	if err != nil {
		switch err {
		case services.ErrConversationNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case services.ErrNotParticipant:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "caller is not a participant of this conversation")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, perPage, len(items), total),
	})
}

// MarkConversationRead godoc
// @ID          markConversationRead
// @Summary     Mark a conversation as read
// @Description Marks all unread counterpart-authored messages in the conversation as read. Idempotent: a second call reports zero.
// @Tags        Messages
// @Produce     json
//
// @Param       id  path  int  true  "Conversation ID"  minimum(1)
//
// @Success     200  {object} handlers.MarkReadResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Caller is not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/read [post]
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	id, okID := requireCaller(c)
	if !okID {
		return
	}
	conversationID, okP := idParam(c, "id")
	if !okP {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a positive integer")
		return
	}

	marked, err := h.msgSvc.MarkRead(c.Request.Context(), id, conversationID)
	if err != nil {
		switch err {
		case services.ErrConversationNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case services.ErrNotParticipant:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "caller is not a participant of this conversation")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{
		Message:        "conversation marked as read",
		MessagesMarked: marked,
	})
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete a message
// @Description Deletes a message the caller sent. The stored attachment, if any, is removed first; the row is only deleted once storage succeeds.
// @Tags        Messages
// @Produce     json
//
// @Param       id  path  int  true  "Message ID"  minimum(1)
//
// @Success     200  {object} handlers.DeleteMessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Caller did not send this message"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal or storage error"
// @Router      /messages/{id} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	id, okID := requireCaller(c)
	if !okID {
		return
	}
	messageID, okP := idParam(c, "id")
	if !okP {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a positive integer")
		return
	}

	if err := h.msgSvc.Delete(c.Request.Context(), id, messageID); err != nil {
		switch err {
		case services.ErrMessageNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case services.ErrNotSender:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "only the sender can delete a message")
		case services.ErrAttachmentDelete:
			fail(c, http.StatusInternalServerError, ErrCodeAttachmentFailed, "failed to delete attachment")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, DeleteMessageResponse{Message: "message deleted"})
}

// UnreadCount godoc
// @ID          unreadCount
// @Summary     Aggregate unread count for the caller
// @Description Returns the number of unread counterpart-authored messages across all of the caller's conversations.
// @Tags        Messages
// @Produce     json
//
// @Success     200  {object} handlers.UnreadCountResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /unread-count [get]
func (h *Handlers) UnreadCount(c *gin.Context) {
	id, okID := requireCaller(c)
	if !okID {
		return
	}

	n, err := h.msgSvc.Unread(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{UnreadCount: n})
}
