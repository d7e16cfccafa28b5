package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ChatRequest is the request to send a chat message.
type ChatRequest struct {
	Content string `json:"content"`
}

// SendMessage runs one buffered chat exchange.
// POST /v1/chat
func (h *Handler) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	reply, err := h.service.SendMessage(ctx, req.Content)
	if err != nil {
		log.Printf("ERROR: failed to send message: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to send message"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":    reply,
		"session_id": h.sessions.CurrentID(),
	})
}

// SendMessageStream runs one chat exchange, streaming the reply as SSE.
// POST /v1/chat/stream
func (h *Handler) SendMessageStream(c echo.Context) error {
	ctx := c.Request().Context()

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported")
	}

	reply, err := h.service.SendMessageStream(ctx, req.Content, func(fragment string) error {
		data, err := json.Marshal(map[string]string{"delta": fragment})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		log.Printf("ERROR: failed to stream message: %v", err)
	}

	done, _ := json.Marshal(map[string]interface{}{
		"message":    reply,
		"session_id": h.sessions.CurrentID(),
	})
	fmt.Fprintf(c.Response().Writer, "event: done\ndata: %s\n\n", done)
	flusher.Flush()
	return nil
}
