package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
)

// fakeConvRepo implements ConversationRepo with overridable function fields.
type fakeConvRepo struct {
	find          func(ctx context.Context, db *gorm.DB, userID, superstarID uint) (*domain.Conversation, error)
	create        func(ctx context.Context, db *gorm.DB, userID, superstarID uint) (*domain.Conversation, error)
	get           func(ctx context.Context, db *gorm.DB, id uint) (*domain.Conversation, error)
	count         func(ctx context.Context, db *gorm.DB, userID uint, status domain.ConversationStatus) (int64, error)
	listPage      func(ctx context.Context, db *gorm.DB, userID uint, status domain.ConversationStatus, offset, limit int) ([]domain.Conversation, error)
	updateStatus  func(ctx context.Context, db *gorm.DB, c *domain.Conversation) error
	getSuperstar  func(ctx context.Context, db *gorm.DB, id uint) (*domain.Superstar, error)
	getSuperstars func(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.Superstar, error)
	lastMessage   func(ctx context.Context, db *gorm.DB, conversationID uint) (*domain.Message, error)
}

func (f *fakeConvRepo) Find(ctx context.Context, db *gorm.DB, userID, superstarID uint) (*domain.Conversation, error) {
	return f.find(ctx, db, userID, superstarID)
}

func (f *fakeConvRepo) Create(ctx context.Context, db *gorm.DB, userID, superstarID uint) (*domain.Conversation, error) {
	return f.create(ctx, db, userID, superstarID)
}

func (f *fakeConvRepo) Get(ctx context.Context, db *gorm.DB, id uint) (*domain.Conversation, error) {
	return f.get(ctx, db, id)
}

func (f *fakeConvRepo) Count(ctx context.Context, db *gorm.DB, userID uint, status domain.ConversationStatus) (int64, error) {
	return f.count(ctx, db, userID, status)
}

func (f *fakeConvRepo) ListPage(ctx context.Context, db *gorm.DB, userID uint, status domain.ConversationStatus, offset, limit int) ([]domain.Conversation, error) {
	return f.listPage(ctx, db, userID, status, offset, limit)
}

func (f *fakeConvRepo) UpdateStatus(ctx context.Context, db *gorm.DB, c *domain.Conversation) error {
	return f.updateStatus(ctx, db, c)
}

func (f *fakeConvRepo) GetSuperstar(ctx context.Context, db *gorm.DB, id uint) (*domain.Superstar, error) {
	return f.getSuperstar(ctx, db, id)
}

func (f *fakeConvRepo) GetSuperstars(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.Superstar, error) {
	return f.getSuperstars(ctx, db, ids)
}

func (f *fakeConvRepo) LastMessage(ctx context.Context, db *gorm.DB, conversationID uint) (*domain.Message, error) {
	return f.lastMessage(ctx, db, conversationID)
}

// knownStar returns a getSuperstar func that recognizes only the given id.
func knownStar(id uint) func(context.Context, *gorm.DB, uint) (*domain.Superstar, error) {
	return func(_ context.Context, _ *gorm.DB, got uint) (*domain.Superstar, error) {
		if got == id {
			return &domain.Superstar{ID: id, Handle: "star"}, nil
		}
		return nil, gorm.ErrRecordNotFound
	}
}

func TestStartOrGet_CreatesOnceThenReturnsSame(t *testing.T) {
	creates := 0
	var stored *domain.Conversation

	repo := &fakeConvRepo{
		getSuperstar: knownStar(3),
		find: func(_ context.Context, _ *gorm.DB, userID, superstarID uint) (*domain.Conversation, error) {
			if stored != nil {
				return stored, nil
			}
			return nil, gorm.ErrRecordNotFound
		},
		create: func(_ context.Context, _ *gorm.DB, userID, superstarID uint) (*domain.Conversation, error) {
			creates++
			now := time.Now().UTC()
			stored = &domain.Conversation{ID: 1, UserID: userID, SuperstarID: superstarID, Status: domain.StatusActive, StartedAt: &now}
			return stored, nil
		},
	}
	svc := NewConversationService(nil, repo)

	first, err := svc.StartOrGet(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := svc.StartOrGet(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("starting twice must return the same conversation: %d vs %d", first.ID, second.ID)
	}
	if creates != 1 {
		t.Fatalf("expected exactly one create, got %d", creates)
	}
}

func TestStartOrGet_UnknownSuperstar(t *testing.T) {
	repo := &fakeConvRepo{getSuperstar: knownStar(3)}
	svc := NewConversationService(nil, repo)

	if _, err := svc.StartOrGet(context.Background(), 7, 99); err != ErrSuperstarNotFound {
		t.Fatalf("expected ErrSuperstarNotFound, got %v", err)
	}
}

func TestStartOrGet_LosesCreateRaceGracefully(t *testing.T) {
	winner := &domain.Conversation{ID: 42, UserID: 7, SuperstarID: 3}
	calls := 0

	repo := &fakeConvRepo{
		getSuperstar: knownStar(3),
		find: func(_ context.Context, _ *gorm.DB, _, _ uint) (*domain.Conversation, error) {
			calls++
			if calls == 1 {
				// Not there yet when we first look.
				return nil, gorm.ErrRecordNotFound
			}
			// A concurrent start inserted it in the meantime.
			return winner, nil
		},
		create: func(_ context.Context, _ *gorm.DB, _, _ uint) (*domain.Conversation, error) {
			return nil, errors.New("UNIQUE constraint failed: conversations.user_id, conversations.superstar_id")
		},
	}
	svc := NewConversationService(nil, repo)

	got, err := svc.StartOrGet(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("StartOrGet after race: %v", err)
	}
	if got.ID != winner.ID {
		t.Fatalf("expected the winner's row, got %+v", got)
	}
}

func TestListPage_RejectsUnknownStatusFilter(t *testing.T) {
	svc := NewConversationService(nil, &fakeConvRepo{})
	if _, _, err := svc.ListPage(context.Background(), 7, "archived", 1, 20); err != ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestListPage_EnrichesWithProfileAndLastMessage(t *testing.T) {
	convs := []domain.Conversation{
		{ID: 1, UserID: 7, SuperstarID: 3, Status: domain.StatusActive},
		{ID: 2, UserID: 7, SuperstarID: 4, Status: domain.StatusActive},
	}
	last := &domain.Message{ID: 9, ConversationID: 1, Body: "latest"}

	repo := &fakeConvRepo{
		count: func(_ context.Context, _ *gorm.DB, _ uint, _ domain.ConversationStatus) (int64, error) {
			return int64(len(convs)), nil
		},
		listPage: func(_ context.Context, _ *gorm.DB, _ uint, _ domain.ConversationStatus, offset, limit int) ([]domain.Conversation, error) {
			return convs, nil
		},
		getSuperstars: func(_ context.Context, _ *gorm.DB, ids []uint) (map[uint]domain.Superstar, error) {
			if len(ids) != 2 {
				t.Fatalf("expected batched profile lookup for 2 ids, got %v", ids)
			}
			return map[uint]domain.Superstar{
				3: {ID: 3, Handle: "dj.khaled"},
			}, nil
		},
		lastMessage: func(_ context.Context, _ *gorm.DB, conversationID uint) (*domain.Message, error) {
			if conversationID == 1 {
				return last, nil
			}
			return nil, nil
		},
	}
	svc := NewConversationService(nil, repo)

	out, total, err := svc.ListPage(context.Background(), 7, "", 1, 20)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 2 || len(out) != 2 {
		t.Fatalf("total=%d len=%d; want 2, 2", total, len(out))
	}
	if out[0].Superstar == nil || out[0].Superstar.Handle != "dj.khaled" {
		t.Fatalf("missing profile enrichment: %+v", out[0])
	}
	if out[0].LastMessage == nil || out[0].LastMessage.Body != "latest" {
		t.Fatalf("missing last-message enrichment: %+v", out[0])
	}
	// Missing profile or empty conversation stays nil rather than failing.
	if out[1].Superstar != nil || out[1].LastMessage != nil {
		t.Fatalf("absent enrichments should be nil: %+v", out[1])
	}
}

func TestListPage_EmptyShortCircuit(t *testing.T) {
	repo := &fakeConvRepo{
		count: func(_ context.Context, _ *gorm.DB, _ uint, _ domain.ConversationStatus) (int64, error) {
			return 0, nil
		},
	}
	svc := NewConversationService(nil, repo)

	out, total, err := svc.ListPage(context.Background(), 7, "", 1, 20)
	if err != nil || total != 0 || len(out) != 0 {
		t.Fatalf("empty list = %v, %d, %v; want [], 0, nil", out, total, err)
	}
}

func TestUpdateStatus_Transitions(t *testing.T) {
	ended := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	stored := &domain.Conversation{ID: 1, UserID: 7, SuperstarID: 3, Status: domain.StatusEnded, EndedAt: &ended}
	var persisted *domain.Conversation

	repo := &fakeConvRepo{
		get: func(_ context.Context, _ *gorm.DB, id uint) (*domain.Conversation, error) {
			cp := *stored
			return &cp, nil
		},
		updateStatus: func(_ context.Context, _ *gorm.DB, c *domain.Conversation) error {
			persisted = c
			return nil
		},
	}
	svc := NewConversationService(nil, repo)
	user := domain.Identity{Role: domain.RoleUser, ID: 7}

	// ended -> active: StartedAt is stamped, EndedAt cleared.
	got, err := svc.UpdateStatus(context.Background(), user, 1, "active")
	if err != nil {
		t.Fatalf("to active: %v", err)
	}
	if got.Status != domain.StatusActive || got.StartedAt == nil || got.EndedAt != nil {
		t.Fatalf("unexpected active transition: %+v", got)
	}
	if persisted == nil || persisted.Status != domain.StatusActive {
		t.Fatalf("transition not persisted")
	}

	// -> ended: EndedAt is stamped.
	got, err = svc.UpdateStatus(context.Background(), user, 1, "ended")
	if err != nil {
		t.Fatalf("to ended: %v", err)
	}
	if got.Status != domain.StatusEnded || got.EndedAt == nil {
		t.Fatalf("unexpected ended transition: %+v", got)
	}

	// -> blocked: timestamps untouched.
	got, err = svc.UpdateStatus(context.Background(), user, 1, "blocked")
	if err != nil {
		t.Fatalf("to blocked: %v", err)
	}
	if got.Status != domain.StatusBlocked {
		t.Fatalf("unexpected blocked transition: %+v", got)
	}
}

func TestUpdateStatus_Guards(t *testing.T) {
	stored := &domain.Conversation{ID: 1, UserID: 7, SuperstarID: 3, Status: domain.StatusActive}
	repo := &fakeConvRepo{
		get: func(_ context.Context, _ *gorm.DB, id uint) (*domain.Conversation, error) {
			if id == 1 {
				cp := *stored
				return &cp, nil
			}
			return nil, gorm.ErrRecordNotFound
		},
		updateStatus: func(_ context.Context, _ *gorm.DB, _ *domain.Conversation) error { return nil },
	}
	svc := NewConversationService(nil, repo)
	user := domain.Identity{Role: domain.RoleUser, ID: 7}
	star := domain.Identity{Role: domain.RoleSuperstar, ID: 3}
	outsider := domain.Identity{Role: domain.RoleUser, ID: 8}

	if _, err := svc.UpdateStatus(context.Background(), user, 1, "archived"); err != ErrInvalidStatus {
		t.Fatalf("unknown status: got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), user, 99, "ended"); err != ErrConversationNotFound {
		t.Fatalf("missing conversation: got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), outsider, 1, "ended"); err != ErrNotParticipant {
		t.Fatalf("outsider: got %v", err)
	}
	// Either participant may transition.
	if _, err := svc.UpdateStatus(context.Background(), star, 1, "blocked"); err != nil {
		t.Fatalf("superstar side should be allowed: %v", err)
	}
}

func TestSummarize_DisplayNameFallback(t *testing.T) {
	avatar := "avatars/x.png"
	cases := []struct {
		in   domain.Superstar
		want string
	}{
		{domain.Superstar{ID: 1, Handle: "dj.khaled"}, "Dj Khaled"},
		{domain.Superstar{ID: 2, Handle: "lil-nas_x"}, "Lil Nas X"},
		{domain.Superstar{ID: 3, Handle: "plain"}, "Plain"},
		{domain.Superstar{ID: 4, Handle: "h", DisplayName: "  Named  "}, "Named"},
		{domain.Superstar{ID: 5, Handle: "UPPER.CASE"}, "Upper Case"},
	}
	for _, tc := range cases {
		tc.in.AvatarPath = &avatar
		sum := Summarize(tc.in)
		if sum.DisplayName != tc.want {
			t.Fatalf("Summarize(%q/%q).DisplayName = %q; want %q", tc.in.Handle, tc.in.DisplayName, sum.DisplayName, tc.want)
		}
		if sum.ID != tc.in.ID || sum.Handle != tc.in.Handle || sum.AvatarPath == nil {
			t.Fatalf("summary dropped fields: %+v", sum)
		}
	}
}
