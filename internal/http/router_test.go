package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fanwire/go-fanwire-backend/internal/config"
	"github.com/fanwire/go-fanwire-backend/internal/domain"
	"github.com/fanwire/go-fanwire-backend/internal/http/middleware"
	"github.com/fanwire/go-fanwire-backend/internal/storage"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// schema so handlers don't explode on list endpoints
	if err := db.AutoMigrate(&domain.Conversation{}, &domain.Message{}, &domain.Superstar{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) storage.BlobStore {
	t.Helper()
	s, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	return s
}

const testJWTSecret = "router-test-secret"

// mintToken signs a short-lived HS256 token for the given identity, the same
// shape the platform's identity provider issues.
func mintToken(t *testing.T, id domain.Identity) string {
	t.Helper()
	claims := middleware.AuthClaims{
		AccountID: id.ID,
		Role:      string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		JWTSecret:      testJWTSecret,
		RateRPS:        100,
		RateBurst:      50,
		MaxUploadBytes: 1 << 20,
		MaxBodyRunes:   4000,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), newTestStore(t), baseConfig())

	// /health works
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404 JSON envelope
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["code"] != "not_found" {
		t.Fatalf("404 envelope: %v (%v)", body, err)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := baseConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	RegisterRoutes(r, newTestDB(t), newTestStore(t), cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

// End-to-end conversation flow through the full middleware pipeline, with
// callers authenticated by signed bearer tokens.
func TestRegisterRoutes_ConversationFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	if err := db.Create(&domain.Superstar{ID: 3, Handle: "mega.star"}).Error; err != nil {
		t.Fatalf("seed superstar: %v", err)
	}
	RegisterRoutes(r, db, newTestStore(t), baseConfig())

	do := func(method, path, body string, as domain.Identity) *httptest.ResponseRecorder {
		var rd io.Reader
		if body != "" {
			rd = bytes.NewBufferString(body)
		}
		req := httptest.NewRequest(method, path, rd)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if !as.Zero() {
			req.Header.Set("Authorization", "Bearer "+mintToken(t, as))
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	user := domain.Identity{Role: domain.RoleUser, ID: 7}
	star := domain.Identity{Role: domain.RoleSuperstar, ID: 3}

	// Start a conversation
	w := do(http.MethodPost, "/api/v1/conversations/start/3", "", user)
	if w.Code != http.StatusOK {
		t.Fatalf("start -> %d: %s", w.Code, w.Body.String())
	}
	var started struct {
		Conversation *domain.Conversation `json:"conversation"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil || started.Conversation == nil || started.Conversation.ID == 0 {
		t.Fatalf("start payload: %s (%v)", w.Body.String(), err)
	}
	conv := *started.Conversation

	// Superstar replies
	w = do(http.MethodPost, fmt.Sprintf("/api/v1/conversations/%d/messages", conv.ID), `{"body":"thanks for the support!"}`, star)
	if w.Code != http.StatusOK {
		t.Fatalf("send -> %d: %s", w.Code, w.Body.String())
	}

	// The user sees one unread message
	w = do(http.MethodGet, "/api/v1/unread-count", "", user)
	if w.Code != http.StatusOK {
		t.Fatalf("unread -> %d", w.Code)
	}
	var uc struct {
		UnreadCount int64 `json:"unread_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &uc); err != nil || uc.UnreadCount != 1 {
		t.Fatalf("unread = %+v (%v), want 1", uc, err)
	}

	// Listing does not consume the unread counter
	w = do(http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages", conv.ID), "", user)
	if w.Code != http.StatusOK {
		t.Fatalf("list messages -> %d", w.Code)
	}
	w = do(http.MethodGet, "/api/v1/unread-count", "", user)
	_ = json.Unmarshal(w.Body.Bytes(), &uc)
	if uc.UnreadCount != 1 {
		t.Fatalf("listing must not mark read; unread = %d", uc.UnreadCount)
	}

	// Explicit marker clears it
	w = do(http.MethodPost, fmt.Sprintf("/api/v1/conversations/%d/read", conv.ID), "", user)
	if w.Code != http.StatusOK {
		t.Fatalf("mark read -> %d", w.Code)
	}
	w = do(http.MethodGet, "/api/v1/unread-count", "", user)
	_ = json.Unmarshal(w.Body.Bytes(), &uc)
	if uc.UnreadCount != 0 {
		t.Fatalf("unread after read = %d, want 0", uc.UnreadCount)
	}

	// The conversation list shows the enriched preview
	w = do(http.MethodGet, "/api/v1/conversations", "", user)
	if w.Code != http.StatusOK {
		t.Fatalf("list conversations -> %d", w.Code)
	}
	var list struct {
		Conversations []struct {
			ID        uint `json:"id"`
			Superstar *struct {
				Handle string `json:"handle"`
			} `json:"superstar"`
			LastMessage *struct {
				Body string `json:"body"`
			} `json:"last_message"`
		} `json:"conversations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Conversations) != 1 || list.Conversations[0].Superstar == nil || list.Conversations[0].LastMessage == nil {
		t.Fatalf("preview not enriched: %s", w.Body.String())
	}
	if list.Conversations[0].LastMessage.Body != "thanks for the support!" {
		t.Fatalf("last message wrong: %q", list.Conversations[0].LastMessage.Body)
	}

	// Anonymous requests are rejected at the API surface
	w = do(http.MethodGet, "/api/v1/conversations", "", domain.Identity{})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous -> %d", w.Code)
	}

	// Identity headers without a token grant nothing; only signed bearer
	// tokens authenticate a caller.
	w = httptest.NewRecorder()
	forged := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	forged.Header.Set("X-User-Role", "user")
	forged.Header.Set("X-User-ID", "42")
	r.ServeHTTP(w, forged)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged identity headers -> %d, want 401", w.Code)
	}

	// A token signed with the wrong secret is rejected too.
	w = httptest.NewRecorder()
	bad := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	wrong, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.AuthClaims{
		AccountID: 42,
		Role:      "user",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("not-the-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	bad.Header.Set("Authorization", "Bearer "+wrong)
	r.ServeHTTP(w, bad)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong-secret token -> %d, want 401", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

// Smoke test that a request traverses idempotency + ratelimit + otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := baseConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // enabled (but only set on https)
	RegisterRoutes(r, newTestDB(t), newTestStore(t), cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	// simulate https so HSTS could be eligible if middleware checks scheme
	req.URL.Scheme = "https"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}
