package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListSessions returns every session, newest first as stored.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions":   h.sessions.Sessions(),
		"current_id": h.sessions.CurrentID(),
	})
}

// NewChat starts a fresh session.
// POST /v1/sessions
func (h *Handler) NewChat(c echo.Context) error {
	if err := h.sessions.StartNewChat(c.Request().Context()); err != nil {
		log.Printf("ERROR: failed to start new chat: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to start new chat"})
	}
	return c.JSON(http.StatusOK, map[string]string{"session_id": h.sessions.CurrentID()})
}

// CurrentSession returns the open session's transcript.
// GET /v1/sessions/current
func (h *Handler) CurrentSession(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": h.sessions.CurrentID(),
		"messages":   h.sessions.CurrentMessages(),
	})
}

// OpenSession switches the open session.
// POST /v1/sessions/:session_id/open
func (h *Handler) OpenSession(c echo.Context) error {
	if !h.sessions.OpenChat(c.Param("session_id")) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, map[string]string{"session_id": h.sessions.CurrentID()})
}

// ArchiveSession marks a session archived.
// POST /v1/sessions/:session_id/archive
func (h *Handler) ArchiveSession(c echo.Context) error {
	if err := h.sessions.ArchiveSession(c.Request().Context(), c.Param("session_id")); err != nil {
		log.Printf("ERROR: failed to archive session: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to archive session"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// UnarchiveSession puts a session back into the active list.
// POST /v1/sessions/:session_id/unarchive
func (h *Handler) UnarchiveSession(c echo.Context) error {
	if err := h.sessions.UnarchiveSession(c.Request().Context(), c.Param("session_id")); err != nil {
		log.Printf("ERROR: failed to unarchive session: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to unarchive session"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// DeleteSession removes a session.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.sessions.DeleteSession(c.Request().Context(), c.Param("session_id")); err != nil {
		log.Printf("ERROR: failed to delete session: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete session"})
	}
	return c.JSON(http.StatusOK, map[string]string{"session_id": h.sessions.CurrentID()})
}

// ClearSessions deletes all chat history.
// DELETE /v1/sessions
func (h *Handler) ClearSessions(c echo.Context) error {
	if err := h.sessions.ClearAllSessions(c.Request().Context()); err != nil {
		log.Printf("ERROR: failed to clear sessions: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to clear sessions"})
	}
	return c.JSON(http.StatusOK, map[string]string{"session_id": h.sessions.CurrentID()})
}
