package api

import (
	"log"
	"net/http"

	"github.com/antigravity-app/antigravity/cloud"
	"github.com/labstack/echo/v4"
)

// SyncConnectRequest is the request to join a sync namespace.
type SyncConnectRequest struct {
	Code string `json:"code"`
}

// SyncStatus reports the sync engine state.
// GET /v1/sync/status
func (h *Handler) SyncStatus(c echo.Context) error {
	status, code, errMsg := h.sync.Status()
	cfg, err := h.store.GetCloudConfig(c.Request().Context())
	if err != nil {
		log.Printf("ERROR: failed to read cloud config: %v", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    status,
		"code":      code,
		"error":     errMsg,
		"last_sync": cfg.LastSync,
	})
}

// GenerateCode mints a fresh sync code without connecting.
// POST /v1/sync/code
func (h *Handler) GenerateCode(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"code": cloud.GenerateSyncCode()})
}

// SyncConnect joins a sync namespace.
// POST /v1/sync/connect
func (h *Handler) SyncConnect(c echo.Context) error {
	var req SyncConnectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if !cloud.ValidSyncCode(req.Code) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid sync code"})
	}

	if err := h.sync.Connect(c.Request().Context(), req.Code); err != nil {
		log.Printf("ERROR: failed to connect sync: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "failed to connect"})
	}

	status, code, _ := h.sync.Status()
	return c.JSON(http.StatusOK, map[string]interface{}{"status": status, "code": code})
}

// ForceSync uploads local state immediately.
// POST /v1/sync/force
func (h *Handler) ForceSync(c echo.Context) error {
	if err := h.sync.ForceSync(c.Request().Context()); err != nil {
		log.Printf("ERROR: force sync failed: %v", err)
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// SyncDisconnect leaves the sync namespace and forgets the code.
// POST /v1/sync/disconnect
func (h *Handler) SyncDisconnect(c echo.Context) error {
	h.sync.Disconnect(c.Request().Context(), true)
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
