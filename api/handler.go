// Package api provides the HTTP surface of the assistant.
package api

import (
	"net/http"

	"github.com/antigravity-app/antigravity/chat"
	"github.com/antigravity-app/antigravity/cloud"
	"github.com/antigravity-app/antigravity/config"
	"github.com/antigravity-app/antigravity/ratelimit"
	"github.com/antigravity-app/antigravity/store"
	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests.
type Handler struct {
	store    store.Store
	service  *chat.Service
	sessions *chat.SessionManager
	limiter  *ratelimit.RateLimiter
	sync     *cloud.SyncEngine
	config   *config.Config
}

// NewHandler creates a new handler.
func NewHandler(st store.Store, service *chat.Service, sessions *chat.SessionManager, limiter *ratelimit.RateLimiter, sync *cloud.SyncEngine, cfg *config.Config) *Handler {
	return &Handler{
		store:    st,
		service:  service,
		sessions: sessions,
		limiter:  limiter,
		sync:     sync,
		config:   cfg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Chat
	e.POST("/v1/chat", h.SendMessage)
	e.POST("/v1/chat/stream", h.SendMessageStream)

	// Sessions
	e.GET("/v1/sessions", h.ListSessions)
	e.POST("/v1/sessions", h.NewChat)
	e.DELETE("/v1/sessions", h.ClearSessions)
	e.GET("/v1/sessions/current", h.CurrentSession)
	e.POST("/v1/sessions/:session_id/open", h.OpenSession)
	e.POST("/v1/sessions/:session_id/archive", h.ArchiveSession)
	e.POST("/v1/sessions/:session_id/unarchive", h.UnarchiveSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)

	// Memory
	e.GET("/v1/profile", h.GetProfile)
	e.PUT("/v1/profile", h.UpdateProfile)
	e.DELETE("/v1/profile/facts/:index", h.DeleteFact)
	e.POST("/v1/profile/wipe", h.WipeMemory)

	// Cloud sync
	e.GET("/v1/sync/status", h.SyncStatus)
	e.POST("/v1/sync/code", h.GenerateCode)
	e.POST("/v1/sync/connect", h.SyncConnect)
	e.POST("/v1/sync/force", h.ForceSync)
	e.POST("/v1/sync/disconnect", h.SyncDisconnect)

	// Usage and settings
	e.GET("/v1/usage", h.UsageStatus)
	e.GET("/v1/settings", h.GetSettings)
	e.PUT("/v1/settings", h.UpdateSettings)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
