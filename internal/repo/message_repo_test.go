package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
)

func seedConversation(t *testing.T, db *gorm.DB, userID, superstarID uint) *domain.Conversation {
	t.Helper()
	c, err := CreateConversation(context.Background(), db, userID, superstarID)
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return c
}

func seedMessage(t *testing.T, db *gorm.DB, convID uint, sender domain.Identity, body string, at time.Time) *domain.Message {
	t.Helper()
	m := &domain.Message{
		ConversationID: convID,
		SenderType:     sender.Role,
		SenderID:       sender.ID,
		MessageType:    domain.TypeText,
		Body:           body,
		CreatedAt:      at,
	}
	if _, err := CreateMessage(db, m); err != nil {
		t.Fatalf("seed message %q: %v", body, err)
	}
	return m
}

func TestCreateMessage_AlwaysStartsUnread(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{}, &domain.Message{})
	c := seedConversation(t, db, 7, 3)

	readAt := time.Now().UTC()
	m := &domain.Message{
		ConversationID: c.ID,
		SenderType:     domain.RoleUser,
		SenderID:       7,
		MessageType:    domain.TypeText,
		Body:           "hello",
		IsRead:         true, // must be ignored
		ReadAt:         &readAt,
	}
	created, err := CreateMessage(db, m)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if created.IsRead || created.ReadAt != nil {
		t.Fatalf("new messages must start unread: %+v", created)
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be defaulted")
	}

	got, err := GetMessage(context.Background(), db, created.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Body != "hello" || got.SenderType != domain.RoleUser || got.SenderID != 7 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.IsRead {
		t.Fatalf("persisted message should be unread")
	}
}

func TestListMessagesPage_PagesNeverOverlapOrSkip(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{}, &domain.Message{})
	c := seedConversation(t, db, 7, 3)
	user := domain.Identity{Role: domain.RoleUser, ID: 7}

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	const total = 7
	for i := 0; i < total; i++ {
		seedMessage(t, db, c.ID, user, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	const perPage = 3
	var seen []string
	for page := 1; ; page++ {
		items, err := ListMessagesPage(db, c.ID, (page-1)*perPage, perPage)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if len(items) == 0 {
			break
		}
		for _, m := range items {
			seen = append(seen, m.Body)
		}
	}

	if len(seen) != total {
		t.Fatalf("pages skipped or repeated rows: got %d items %v", len(seen), seen)
	}
	// Newest-first across the concatenation: m6, m5, ..., m0.
	for i, body := range seen {
		if want := fmt.Sprintf("m%d", total-1-i); body != want {
			t.Fatalf("position %d = %q; want %q (full: %v)", i, body, want, seen)
		}
	}

	n, err := CountMessages(db, c.ID)
	if err != nil || n != total {
		t.Fatalf("CountMessages = %d, %v; want %d, nil", n, err, total)
	}
}

func TestListMessagesPage_TieBreakOnID(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{}, &domain.Message{})
	c := seedConversation(t, db, 7, 3)
	user := domain.Identity{Role: domain.RoleUser, ID: 7}

	// Same wall-clock timestamp: the surrogate id must break the tie.
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	first := seedMessage(t, db, c.ID, user, "first", at)
	second := seedMessage(t, db, c.ID, user, "second", at)

	items, err := ListMessagesPage(db, c.ID, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != second.ID || items[1].ID != first.ID {
		t.Fatalf("expected id-descending tie-break, got %+v", items)
	}
}

func TestDeleteMessage(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{}, &domain.Message{})
	c := seedConversation(t, db, 7, 3)
	m := seedMessage(t, db, c.ID, domain.Identity{Role: domain.RoleUser, ID: 7}, "bye", time.Now().UTC())

	if err := DeleteMessage(context.Background(), db, m.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if err := DeleteMessage(context.Background(), db, m.ID); err != ErrNotFound {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestMarkConversationRead_IdempotentAndScoped(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{}, &domain.Message{})
	ctx := context.Background()

	c1 := seedConversation(t, db, 7, 3)
	c2 := seedConversation(t, db, 7, 4)
	user := domain.Identity{Role: domain.RoleUser, ID: 7}
	star := domain.Identity{Role: domain.RoleSuperstar, ID: 3}

	now := time.Now().UTC()
	seedMessage(t, db, c1.ID, star, "s1", now)
	seedMessage(t, db, c1.ID, star, "s2", now.Add(time.Second))
	seedMessage(t, db, c1.ID, user, "u1", now.Add(2*time.Second))
	seedMessage(t, db, c2.ID, star, "other conv", now)

	// The user reads conversation 1: only the superstar's messages flip.
	marked, err := MarkConversationRead(ctx, db, c1.ID, domain.RoleSuperstar)
	if err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	if marked != 2 {
		t.Fatalf("marked = %d; want 2", marked)
	}

	// Idempotent: nothing left to mark.
	marked, err = MarkConversationRead(ctx, db, c1.ID, domain.RoleSuperstar)
	if err != nil || marked != 0 {
		t.Fatalf("second call = %d, %v; want 0, nil", marked, err)
	}

	// The user's own message stays unread for the counterpart to mark.
	var own domain.Message
	if err := db.Where("conversation_id = ? AND sender_type = ?", c1.ID, domain.RoleUser).First(&own).Error; err != nil {
		t.Fatalf("load own message: %v", err)
	}
	if own.IsRead {
		t.Fatalf("user-authored message must not be marked by the user's own read")
	}

	// The other conversation is untouched.
	var other domain.Message
	if err := db.Where("conversation_id = ?", c2.ID).First(&other).Error; err != nil {
		t.Fatalf("load other conv message: %v", err)
	}
	if other.IsRead {
		t.Fatalf("read marking leaked into another conversation")
	}
}
