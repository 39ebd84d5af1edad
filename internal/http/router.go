// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/fanwire/go-fanwire-backend/internal/config"
	"github.com/fanwire/go-fanwire-backend/internal/domain"
	"github.com/fanwire/go-fanwire-backend/internal/http/handlers"
	"github.com/fanwire/go-fanwire-backend/internal/http/middleware"
	"github.com/fanwire/go-fanwire-backend/internal/repo"
	"github.com/fanwire/go-fanwire-backend/internal/services"
	"github.com/fanwire/go-fanwire-backend/internal/storage"
)

// conversationRepoShim adapts the repository free functions to the
// services.ConversationRepo interface expected by the ConversationService.
// This keeps services decoupled from the concrete repo package while reusing
// existing functions.
type conversationRepoShim struct{}

// Find proxies repo.FindConversation.
func (conversationRepoShim) Find(ctx context.Context, db *gorm.DB, userID, superstarID uint) (*domain.Conversation, error) {
	return repo.FindConversation(ctx, db, userID, superstarID)
}

// Create proxies repo.CreateConversation.
func (conversationRepoShim) Create(ctx context.Context, db *gorm.DB, userID, superstarID uint) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, userID, superstarID)
}

// Get proxies repo.GetConversation.
func (conversationRepoShim) Get(ctx context.Context, db *gorm.DB, id uint) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}

// Count proxies repo.CountConversations (pagination support).
func (conversationRepoShim) Count(ctx context.Context, db *gorm.DB, userID uint, status domain.ConversationStatus) (int64, error) {
	return repo.CountConversations(ctx, db, userID, status)
}

// ListPage proxies repo.ListConversationsPage (pagination support).
func (conversationRepoShim) ListPage(ctx context.Context, db *gorm.DB, userID uint, status domain.ConversationStatus, offset, limit int) ([]domain.Conversation, error) {
	return repo.ListConversationsPage(ctx, db, userID, status, offset, limit)
}

// UpdateStatus proxies repo.UpdateConversationStatus.
func (conversationRepoShim) UpdateStatus(ctx context.Context, db *gorm.DB, c *domain.Conversation) error {
	return repo.UpdateConversationStatus(ctx, db, c)
}

// GetSuperstar proxies repo.GetSuperstar.
func (conversationRepoShim) GetSuperstar(ctx context.Context, db *gorm.DB, id uint) (*domain.Superstar, error) {
	return repo.GetSuperstar(ctx, db, id)
}

// GetSuperstars proxies repo.GetSuperstars (preview enrichment).
func (conversationRepoShim) GetSuperstars(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.Superstar, error) {
	return repo.GetSuperstars(ctx, db, ids)
}

// LastMessage proxies repo.LastMessage (preview enrichment).
func (conversationRepoShim) LastMessage(ctx context.Context, db *gorm.DB, conversationID uint) (*domain.Message, error) {
	return repo.LastMessage(ctx, db, conversationID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health and metrics endpoints, and then mounts the versioned,
// bearer-authenticated public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (sized for attachment uploads)
//  6. Metrics
//  7. CORS and Security headers
//
// On the API group (after authentication, which the identity-keyed
// middlewares need):
//  8. BearerAuth: resolve the caller identity from the JWT
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per caller/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store storage.BlobStore, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit, sized for multipart uploads plus headroom
	r.Use(limitBody(cfg.MaxUploadBytes + 1<<20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/store
	convSvc := services.NewConversationService(db, conversationRepoShim{})
	msgSvc := &services.MessageService{
		DB:           db,
		Store:        store,
		MaxBodyRunes: cfg.MaxBodyRunes,
	}
	starSvc := &services.SuperstarService{DB: db}

	h := handlers.New(convSvc, msgSvc, starSvc)
	h.MaxUploadBytes = cfg.MaxUploadBytes
	h.MaxBodyRunes = cfg.MaxBodyRunes

	// Idempotency and ETag backends, injected so handlers stay decoupled
	// from the repo package.
	idemTTL := cfg.IdempotencyTTL
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	h.Replay = func(ctx context.Context, sender domain.Identity, conversationID uint, key string) (*domain.Message, error) {
		rec, err := repo.GetIdempotency(ctx, db, sender, conversationID, key, time.Now().UTC())
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return repo.GetMessage(ctx, db, rec.MessageID)
	}
	h.Record = func(ctx context.Context, sender domain.Identity, conversationID uint, key string, messageID uint) error {
		_, err := repo.CreateIdempotency(ctx, db, sender, conversationID, key, messageID, http.StatusOK, idemTTL)
		if errors.Is(err, repo.ErrDuplicate) {
			return nil
		}
		return err
	}
	h.Stats = func(ctx context.Context, userID uint) (int64, *time.Time, error) {
		return repo.ConversationsStats(ctx, db, userID)
	}

	// Public API (bearer-authenticated)
	api := groupWithPrefix(r, cfg.APIBasePath)

	// 8) Resolve the caller; identity-keyed middlewares depend on it.
	// Always installed: config validation guarantees a non-empty secret,
	// and nothing under the API group may run unauthenticated.
	api.Use(middleware.BearerAuth(cfg.JWTSecret))

	// 9) Idempotency validation (before rate limiting)
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, sender domain.Identity, conversationID uint, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, sender, conversationID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 10) Token-bucket rate limiter per caller/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCallerOrIP())
	api.Use(rl.Handler())

	{
		// Conversations
		api.POST("/conversations/start/:superstarId", h.StartConversation)
		api.GET("/conversations", h.ListConversations)
		api.PUT("/conversations/:id/status", h.UpdateConversationStatus)

		// Messages
		api.GET("/conversations/:id/messages", h.ListMessages)
		api.POST("/conversations/:id/messages", h.PostMessage)
		api.POST("/conversations/:id/read", h.MarkConversationRead)
		api.DELETE("/messages/:id", h.DeleteMessage)
		api.GET("/unread-count", h.UnreadCount)

		// Superstar directory
		api.GET("/superstars", h.ListSuperstars)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
