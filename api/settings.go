package api

import (
	"log"
	"net/http"

	"github.com/antigravity-app/antigravity/domain"
	"github.com/antigravity-app/antigravity/ratelimit"
	"github.com/labstack/echo/v4"
)

// SettingsRequest carries a partial settings update; empty fields are
// left untouched.
type SettingsRequest struct {
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	InputMode string `json:"input_mode"`
}

func (h *Handler) currentModel(c echo.Context) string {
	model, err := h.store.GetModel(c.Request().Context())
	if err != nil {
		log.Printf("ERROR: failed to read model setting: %v", err)
	}
	if model == "" {
		model = h.config.DefaultModel
	}
	return model
}

// GetSettings returns the current settings. The API key itself is never
// echoed back, only whether one is stored.
// GET /v1/settings
func (h *Handler) GetSettings(c echo.Context) error {
	ctx := c.Request().Context()

	key, err := h.store.GetAPIKey(ctx)
	if err != nil {
		log.Printf("ERROR: failed to read api key: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read settings"})
	}
	mode, err := h.store.GetInputMode(ctx)
	if err != nil {
		log.Printf("ERROR: failed to read input mode: %v", err)
	}
	if mode == "" {
		mode = domain.InputPlain
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"has_api_key": key != "",
		"model":       h.currentModel(c),
		"input_mode":  mode,
	})
}

// UpdateSettings applies a partial settings update.
// PUT /v1/settings
func (h *Handler) UpdateSettings(c echo.Context) error {
	ctx := c.Request().Context()

	var req SettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.APIKey != "" {
		if err := h.store.SetAPIKey(ctx, req.APIKey); err != nil {
			log.Printf("ERROR: failed to store api key: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store settings"})
		}
	}
	if req.Model != "" {
		if err := h.store.SetModel(ctx, req.Model); err != nil {
			log.Printf("ERROR: failed to store model: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store settings"})
		}
	}
	if req.InputMode != "" {
		mode := domain.InputMode(req.InputMode)
		if mode != domain.InputPlain && mode != domain.InputMarkdown {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid input mode"})
		}
		if err := h.store.SetInputMode(ctx, mode); err != nil {
			log.Printf("ERROR: failed to store input mode: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store settings"})
		}
	}

	return h.GetSettings(c)
}

// UsageStatus reports the traffic light for the active model along with
// the raw usage counters.
// GET /v1/usage
func (h *Handler) UsageStatus(c echo.Context) error {
	ctx := c.Request().Context()
	model := h.currentModel(c)

	status, detail, err := h.limiter.CheckStatus(ctx, model)
	if err != nil {
		log.Printf("ERROR: failed to check usage status: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to check usage"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": status,
		"detail": detail,
		"model":  model,
		"tier":   ratelimit.TierOf(model),
		"usage":  h.limiter.Metrics(),
	})
}
