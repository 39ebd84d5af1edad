// Package services – ConversationService
//
// This file implements the ConversationService, which manages the lifecycle
// of user↔superstar conversations: find-or-create on start, recency-ordered
// listing with profile and last-message previews, and status transitions.
// Ownership rules are enforced here, against the single participant
// predicate, so handlers stay transport-thin.
//
// Service-level errors (e.g., ErrConversationNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fanwire/go-fanwire-backend/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ConversationRepo defines the repository contract required by
// ConversationService. Implementations are responsible for persistence of
// conversation aggregates and the lookups the previews need.
type ConversationRepo interface {
	// Find returns the conversation for a (user, superstar) pair.
	Find(ctx context.Context, db *gorm.DB, userID, superstarID uint) (*domain.Conversation, error)

	// Create inserts a new active conversation for the pair.
	Create(ctx context.Context, db *gorm.DB, userID, superstarID uint) (*domain.Conversation, error)

	// Get fetches a conversation by id.
	Get(ctx context.Context, db *gorm.DB, id uint) (*domain.Conversation, error)

	// Count returns the user's conversation total for pagination.
	Count(ctx context.Context, db *gorm.DB, userID uint, status domain.ConversationStatus) (int64, error)

	// ListPage returns a page of the user's conversations, most recent first.
	ListPage(ctx context.Context, db *gorm.DB, userID uint, status domain.ConversationStatus, offset, limit int) ([]domain.Conversation, error)

	// UpdateStatus persists a status change with its lifecycle timestamps.
	UpdateStatus(ctx context.Context, db *gorm.DB, c *domain.Conversation) error

	// GetSuperstar fetches one superstar profile.
	GetSuperstar(ctx context.Context, db *gorm.DB, id uint) (*domain.Superstar, error)

	// GetSuperstars fetches profiles for the given ids in one query.
	GetSuperstars(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.Superstar, error)

	// LastMessage returns the newest message of a conversation, nil when none.
	LastMessage(ctx context.Context, db *gorm.DB, conversationID uint) (*domain.Message, error)
}

// ConversationPreview is a conversation enriched with the counterpart's
// profile summary and the most recent message, ready for list responses.
type ConversationPreview struct {
	domain.Conversation
	Superstar   *domain.SuperstarSummary `json:"superstar,omitempty"`
	LastMessage *domain.Message          `json:"last_message,omitempty"`
}

// ConversationService provides conversation-level operations: starting,
// listing, and status transitions. It enforces participation constraints.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the conversation repository used by this service.
	Repo ConversationRepo
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB, r ConversationRepo) *ConversationService {
	return &ConversationService{DB: db, Repo: r}
}

// StartOrGet finds the conversation for (userID, superstarID), creating an
// active one when the pair has never talked. Repeated calls with the same
// pair return the same record. Fails with ErrSuperstarNotFound when the
// counterpart does not exist.
func (s *ConversationService) StartOrGet(ctx context.Context, userID, superstarID uint) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "StartOrGet",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int64("superstar.id", int64(superstarID)),
		),
	)
	defer span.End()

	if _, err := s.Repo.GetSuperstar(ctx, s.DB, superstarID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSuperstarNotFound
		}
		return nil, err
	}

	conv, err := s.Repo.Find(ctx, s.DB, userID, superstarID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv, err = s.Repo.Create(ctx, s.DB, userID, superstarID)
	if err != nil {
		// A concurrent start can win the unique (user, superstar) index race;
		// the existing row is the correct answer either way.
		if existing, ferr := s.Repo.Find(ctx, s.DB, userID, superstarID); ferr == nil {
			return existing, nil
		}
		return nil, err
	}
	return conv, nil
}

// ListPage returns a page of the caller's conversations, most recently
// updated first, optionally filtered by status. Each item carries the
// superstar's profile summary and the newest message as a preview.
func (s *ConversationService) ListPage(ctx context.Context, userID uint, status string, page, perPage int) ([]ConversationPreview, int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int("page", page),
			attribute.Int("per_page", perPage),
		),
	)
	defer span.End()

	filter := domain.ConversationStatus(strings.TrimSpace(status))
	if filter != "" && !domain.ValidStatus(filter) {
		return nil, 0, ErrInvalidStatus
	}

	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	total, err := s.Repo.Count(ctx, s.DB, userID, filter)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []ConversationPreview{}, 0, nil
	}

	convs, err := s.Repo.ListPage(ctx, s.DB, userID, filter, offset, perPage)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uint, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.SuperstarID)
	}
	profiles, err := s.Repo.GetSuperstars(ctx, s.DB, ids)
	if err != nil {
		return nil, 0, err
	}

	out := make([]ConversationPreview, 0, len(convs))
	for _, c := range convs {
		p := ConversationPreview{Conversation: c}
		if prof, ok := profiles[c.SuperstarID]; ok {
			sum := Summarize(prof)
			p.Superstar = &sum
		}
		last, err := s.Repo.LastMessage(ctx, s.DB, c.ID)
		if err != nil {
			return nil, 0, err
		}
		p.LastMessage = last
		out = append(out, p)
	}
	return out, total, nil
}

// UpdateStatus transitions a conversation to newStatus on behalf of caller.
// Either participant may transition; entering active stamps StartedAt when
// unset and clears EndedAt, entering ended stamps EndedAt.
func (s *ConversationService) UpdateStatus(ctx context.Context, caller domain.Identity, conversationID uint, newStatus string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.Int64("conversation.id", int64(conversationID)),
			attribute.String("status", newStatus),
		),
	)
	defer span.End()

	target := domain.ConversationStatus(strings.TrimSpace(newStatus))
	if !domain.ValidStatus(target) {
		return nil, ErrInvalidStatus
	}

	conv, err := s.Repo.Get(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if !conv.HasParticipant(caller) {
		return nil, ErrNotParticipant
	}

	now := time.Now().UTC()
	conv.Status = target
	switch target {
	case domain.StatusActive:
		if conv.StartedAt == nil {
			conv.StartedAt = &now
		}
		conv.EndedAt = nil
	case domain.StatusEnded:
		conv.EndedAt = &now
	}

	if err := s.Repo.UpdateStatus(ctx, s.DB, conv); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// Summarize reduces a full superstar profile to the preview shape used in
// listings. A blank display name falls back to a title-cased rendering of
// the handle ("dj.khaled" → "Dj Khaled").
func Summarize(s domain.Superstar) domain.SuperstarSummary {
	name := strings.TrimSpace(s.DisplayName)
	if name == "" {
		name = displayNameFromHandle(s.Handle)
	}
	return domain.SuperstarSummary{
		ID:          s.ID,
		Handle:      s.Handle,
		DisplayName: name,
		AvatarPath:  s.AvatarPath,
	}
}

// handleSepRE splits handles on the separators commonly used in them.
var handleSepRE = regexp.MustCompile(`[._\-]+`)

// displayNameFromHandle derives a presentable name from an account handle.
func displayNameFromHandle(handle string) string {
	words := strings.TrimSpace(handleSepRE.ReplaceAllString(handle, " "))
	if words == "" {
		return handle
	}
	return cases.Title(language.English).String(strings.ToLower(words))
}
