// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversation resources:
//   - POST /conversations/start/{superstarId}  (find-or-create)
//   - GET  /conversations                      (list, paginated, ETag support)
//   - PUT  /conversations/{id}/status          (status transition)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
	"github.com/fanwire/go-fanwire-backend/internal/http/middleware"
	"github.com/fanwire/go-fanwire-backend/internal/services"
	"github.com/fanwire/go-fanwire-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ConversationService defines conversation lifecycle operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ConversationService interface {
	// StartOrGet returns the pair's conversation, creating it when absent.
	StartOrGet(ctx context.Context, userID, superstarID uint) (*domain.Conversation, error)
	// ListPage returns a page of the user's conversations with previews.
	ListPage(ctx context.Context, userID uint, status string, page, perPage int) ([]services.ConversationPreview, int64, error)
	// UpdateStatus transitions a conversation's status on behalf of caller.
	UpdateStatus(ctx context.Context, caller domain.Identity, conversationID uint, newStatus string) (*domain.Conversation, error)
}

// MessageService defines message operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageService interface {
	// Send persists a new message, optionally with an attachment.
	Send(ctx context.Context, caller domain.Identity, conversationID uint, messageType, body string, att *services.Attachment) (*domain.Message, error)
	// ListPage returns one page of a conversation's messages, oldest first
	// within the page, plus the total count.
	ListPage(ctx context.Context, caller domain.Identity, conversationID uint, page, perPage int) ([]domain.Message, int64, error)
	// MarkRead marks counterpart-authored messages read, returning how many.
	MarkRead(ctx context.Context, caller domain.Identity, conversationID uint) (int64, error)
	// Unread returns the caller's aggregate unread count.
	Unread(ctx context.Context, caller domain.Identity) (int64, error)
	// Delete removes a message the caller sent, attachment included.
	Delete(ctx context.Context, caller domain.Identity, messageID uint) error
}

// SuperstarService exposes the public superstar directory.
type SuperstarService interface {
	// ListPage returns a page of superstar profile summaries and the total.
	ListPage(ctx context.Context, page, perPage int) ([]domain.SuperstarSummary, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for conversations, messages, and the
// superstar directory. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	convSvc ConversationService
	msgSvc  MessageService
	starSvc SuperstarService

	// MaxUploadBytes caps the size of a single attachment accepted by
	// PostMessage; 0 disables the handler-level check (the body-size
	// middleware still applies).
	MaxUploadBytes int64

	// MaxBodyRunes caps the message body length checked at the edge,
	// before the service runs its own validation; 0 falls back to a
	// conservative default.
	MaxBodyRunes int

	// Replay returns the message previously recorded for an idempotency
	// key, or nil when no live record exists. nil disables replays.
	Replay func(ctx context.Context, sender domain.Identity, conversationID uint, key string) (*domain.Message, error)

	// Record persists the idempotency outcome after a successful send.
	// nil disables recording.
	Record func(ctx context.Context, sender domain.Identity, conversationID uint, key string, messageID uint) error

	// Stats reports the caller's conversation count and latest update
	// time, backing the conversation-list ETag. nil disables ETags.
	Stats func(ctx context.Context, userID uint) (int64, *time.Time, error)
}

// New constructs and returns a Handlers instance bound to the given services.
func New(convSvc ConversationService, msgSvc MessageService, starSvc SuperstarService) *Handlers {
	return &Handlers{convSvc: convSvc, msgSvc: msgSvc, starSvc: starSvc}
}

// caller extracts the authenticated identity from Gin context (set by the
// bearer-auth middleware). The zero Identity means anonymous; request
// headers are never consulted, so a client cannot assert its own identity.
func caller(c *gin.Context) domain.Identity {
	if id, ok := middleware.IdentityFrom(c); ok {
		return id
	}
	return domain.Identity{}
}

// requireCaller resolves the caller identity or writes a 401 envelope.
// The bool result reports whether the handler may proceed.
func requireCaller(c *gin.Context) (domain.Identity, bool) {
	id := caller(c)
	if id.Zero() {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return domain.Identity{}, false
	}
	return id, true
}

// idParam parses the named route parameter as a positive integer id.
func idParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

//
// DTOs
//

// UpdateStatusRequest is the JSON payload for a status transition.
type UpdateStatusRequest struct {
	// Status is the target conversation status (active, ended, blocked).
	Status string `json:"status" binding:"required" example:"ended"`
}

// Pagination carries pagination metadata for list responses.
//
// From and To are the one-based positions of the first and last item on the
// current page; both are null when the page is empty.
type Pagination struct {
	CurrentPage  int   `json:"current_page"`
	LastPage     int   `json:"last_page"`
	PerPage      int   `json:"per_page"`
	Total        int64 `json:"total"`
	From         *int  `json:"from"`
	To           *int  `json:"to"`
	HasMorePages bool  `json:"has_more_pages"`
}

// newPagination builds the metadata for a page that carried `count` items.
func newPagination(page, perPage, count int, total int64) Pagination {
	lastPage := int((total + int64(perPage) - 1) / int64(perPage))
	if lastPage < 1 {
		lastPage = 1
	}
	p := Pagination{
		CurrentPage:  page,
		LastPage:     lastPage,
		PerPage:      perPage,
		Total:        total,
		HasMorePages: page < lastPage,
	}
	if count > 0 {
		from := (page-1)*perPage + 1
		to := from + count - 1
		p.From = &from
		p.To = &to
	}
	return p
}

// ListConversationsResponse wraps a page of conversation previews and
// pagination information.
type ListConversationsResponse struct {
	Conversations []services.ConversationPreview `json:"conversations"`
	Pagination    Pagination                     `json:"pagination"`
}

// StartConversationResponse wraps the started (or resumed) conversation.
type StartConversationResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
}

// UpdateStatusResponse confirms a status transition and returns the
// updated conversation.
type UpdateStatusResponse struct {
	Message      string               `json:"message"`
	Conversation *domain.Conversation `json:"conversation"`
}

//
// Helpers
//

// clampPagination parses and bounds page and per_page query params to sane
// defaults and limits, returning (page, perPage).
func clampPagination(c *gin.Context) (page, perPage int) {
	const (
		defaultPage    = 1
		defaultPerPage = 20
		maxPerPage     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	perPage = utils.Clamp(utils.AtoiDefault(c.Query("per_page"), defaultPerPage), 1, maxPerPage)
	return
}

//
// Handlers
//

// StartConversation godoc
// @ID          startConversation
// @Summary     Start (or resume) a conversation with a superstar
// @Description Returns the caller's conversation with the superstar, creating an active one on first contact. Repeated calls return the same conversation.
// @Tags        Conversations
// @Produce     json
//
// @Param       superstarId  path  int  true  "Superstar ID"  minimum(1)
//
// @Success     200  {object}  handlers.StartConversationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Caller is not a user account"
// @Failure     404  {object}  handlers.ErrorResponse  "Superstar not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/start/{superstarId} [post]
func (h *Handlers) StartConversation(c *gin.Context) {
	id, okID := requireCaller(c)
	if !okID {
		return
	}
	if id.Role != domain.RoleUser {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only user accounts can start conversations")
		return
	}

	superstarID, okP := idParam(c, "superstarId")
	if !okP {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "superstar id must be a positive integer")
		return
	}

	conv, err := h.convSvc.StartOrGet(c.Request.Context(), id.ID, superstarID)
	if err != nil {
		switch err {
		case services.ErrSuperstarNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "superstar not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeStartFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, StartConversationResponse{Conversation: conv})
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List the caller's conversations (paginated)
// @Description Returns a page of conversations, most recently updated first, each enriched with the superstar summary and last message. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"      minimum(1) default(1)
// @Param       per_page       query   int     false "Items per page"   minimum(1) maximum(100) default(20)
// @Param       status         query   string  false "Filter by status" Enums(active, ended, blocked)
//
// @Success     200  {object} handlers.ListConversationsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     422  {object} handlers.ErrorResponse "Invalid status filter"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	id, okID := requireCaller(c)
	if !okID {
		return
	}
	if id.Role != domain.RoleUser {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only user accounts list conversations")
		return
	}
	page, perPage := clampPagination(c)
	status := strings.TrimSpace(c.Query("status"))

	// ETag pre-check (best effort).
	if h.Stats != nil && status == "" {
		count, maxTS, err := h.Stats(ctx, id.ID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"conversations:%d:%d:%d"`, id.ID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.convSvc.ListPage(ctx, id.ID, status, page, perPage)
	if err != nil {
		switch err {
		case services.ErrInvalidStatus:
			failValidation(c, map[string]string{"status": err.Error()})
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, ListConversationsResponse{
		Conversations: items,
		Pagination:    newPagination(page, perPage, len(items), total),
	})
}

// UpdateConversationStatus godoc
// @ID          updateConversationStatus
// @Summary     Change a conversation's status
// @Description Transitions the conversation to active, ended, or blocked. Either participant may transition.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                             true "Conversation ID" minimum(1)
// @Param       body  body  handlers.UpdateStatusRequest    true "Target status"
//
// @Success     200  {object} handlers.UpdateStatusResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Caller is not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     422  {object} handlers.ErrorResponse "Unknown status value"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/status [put]
func (h *Handlers) UpdateConversationStatus(c *gin.Context) {
	id, okID := requireCaller(c)
	if !okID {
		return
	}
	conversationID, okP := idParam(c, "id")
	if !okP {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a positive integer")
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, map[string]string{"status": "status is required"})
		return
	}

	conv, err := h.convSvc.UpdateStatus(c.Request.Context(), id, conversationID, req.Status)
	if err != nil {
		switch err {
		case services.ErrInvalidStatus:
			failValidation(c, map[string]string{"status": err.Error()})
		case services.ErrConversationNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case services.ErrNotParticipant:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "caller is not a participant of this conversation")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, UpdateStatusResponse{
		Message:      "conversation status updated",
		Conversation: conv,
	})
}
