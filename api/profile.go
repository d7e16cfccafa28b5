package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/antigravity-app/antigravity/domain"
	"github.com/labstack/echo/v4"
)

// GetProfile returns the distilled user profile.
// GET /v1/profile
func (h *Handler) GetProfile(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.Profile())
}

// UpdateProfile overwrites the user profile.
// PUT /v1/profile
func (h *Handler) UpdateProfile(c echo.Context) error {
	var profile domain.UserProfile
	if err := c.Bind(&profile); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if profile.Facts == nil {
		profile.Facts = []string{}
	}
	if profile.LastUpdated == 0 {
		profile.LastUpdated = domain.NowMillis()
	}

	if err := h.sessions.UpdateProfile(c.Request().Context(), profile); err != nil {
		log.Printf("ERROR: failed to update profile: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update profile"})
	}
	return c.JSON(http.StatusOK, h.sessions.Profile())
}

// DeleteFact removes one learned fact by index.
// DELETE /v1/profile/facts/:index
func (h *Handler) DeleteFact(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid fact index"})
	}
	if err := h.sessions.DeleteFact(c.Request().Context(), index); err != nil {
		log.Printf("ERROR: failed to delete fact: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete fact"})
	}
	return c.JSON(http.StatusOK, h.sessions.Profile())
}

// WipeMemory resets the profile to its defaults.
// POST /v1/profile/wipe
func (h *Handler) WipeMemory(c echo.Context) error {
	if err := h.sessions.WipeMemory(c.Request().Context()); err != nil {
		log.Printf("ERROR: failed to wipe memory: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to wipe memory"})
	}
	return c.JSON(http.StatusOK, h.sessions.Profile())
}
