package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/antigravity-app/antigravity/chat"
	"github.com/antigravity-app/antigravity/cloud"
	"github.com/antigravity-app/antigravity/config"
	"github.com/antigravity-app/antigravity/domain"
	"github.com/antigravity-app/antigravity/gemini"
	"github.com/antigravity-app/antigravity/ratelimit"
	"github.com/antigravity-app/antigravity/store"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nullRemote is a RemoteStore that stores nothing and never pushes.
type nullRemote struct{}

func (nullRemote) Read(ctx context.Context, code string) (*domain.SyncPayload, error) {
	return nil, nil
}

func (nullRemote) Write(ctx context.Context, code string, payload domain.SyncPayload) error {
	return nil
}

func (nullRemote) Subscribe(ctx context.Context, code string, onChange cloud.ChangeCallback) (func(), error) {
	return func() {}, nil
}

type testFixture struct {
	handler  *Handler
	provider *gemini.MockProvider
	store    store.Store
}

func newTestHandler(t *testing.T) *testFixture {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	cfg := &config.Config{DefaultModel: "gemini-2.0-flash"}
	provider := gemini.NewMockProvider("Hello from the model.")

	usage, err := ratelimit.NewUsageStore(ctx, st)
	require.NoError(t, err)
	engine, err := ratelimit.NewEngine(ctx, ratelimit.DefaultPolicy)
	require.NoError(t, err)
	limiter := ratelimit.New(usage, engine)

	sessions := chat.NewSessionManager(st)
	require.NoError(t, sessions.Load(ctx))

	orchestrator := chat.NewOrchestrator(provider, limiter)
	service := chat.NewService(st, sessions, orchestrator, chat.NewDistiller(provider), cfg.DefaultModel)
	t.Cleanup(service.WaitDistillation)

	syncEngine := cloud.NewSyncEngine(st, nullRemote{}, sessions)
	h := NewHandler(st, service, sessions, limiter, syncEngine, cfg)

	require.NoError(t, st.SetAPIKey(ctx, "test-key"))
	return &testFixture{handler: h, provider: provider, store: st}
}

func doJSON(t *testing.T, h *Handler, method, path, body string, handler echo.HandlerFunc, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(params[i])
		c.SetParamValues(params[i+1])
	}
	require.NoError(t, handler(c))
	return rec
}

func TestHealth(t *testing.T) {
	f := newTestHandler(t)
	rec := doJSON(t, f.handler, http.MethodGet, "/health", "", f.handler.Health)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestSendMessageValidation(t *testing.T) {
	f := newTestHandler(t)
	rec := doJSON(t, f.handler, http.MethodPost, "/v1/chat", `{"content":"   "}`, f.handler.SendMessage)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageSuccess(t *testing.T) {
	f := newTestHandler(t)
	rec := doJSON(t, f.handler, http.MethodPost, "/v1/chat", `{"content":"Hi there"}`, f.handler.SendMessage)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "assistant", resp.Message.Role)
	assert.Equal(t, "Hello from the model.", resp.Message.Content)
	assert.NotEmpty(t, resp.SessionID)
}

func TestSendMessageStreamEmitsSSE(t *testing.T) {
	f := newTestHandler(t)
	f.provider.StreamChunks = []string{"Hello ", "world"}

	rec := doJSON(t, f.handler, http.MethodPost, "/v1/chat/stream", `{"content":"Hi"}`, f.handler.SendMessageStream)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, body, `data: {"delta":"Hello "}`)
	assert.Contains(t, body, `data: {"delta":"world"}`)
	assert.Contains(t, body, "event: done")
}

func TestSessionLifecycle(t *testing.T) {
	f := newTestHandler(t)

	rec := doJSON(t, f.handler, http.MethodPost, "/v1/chat", `{"content":"First message"}`, f.handler.SendMessage)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, f.handler, http.MethodPost, "/v1/sessions", "", f.handler.NewChat)
	require.Equal(t, http.StatusOK, rec.Code)
	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, f.handler, http.MethodGet, "/v1/sessions", "", f.handler.ListSessions)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Sessions  []json.RawMessage `json:"sessions"`
		CurrentID string            `json:"current_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Sessions, 2)
	assert.Equal(t, created.SessionID, listed.CurrentID)

	rec = doJSON(t, f.handler, http.MethodPost, "/v1/sessions/:session_id/open", "", f.handler.OpenSession, "session_id", "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, f.handler, http.MethodDelete, "/v1/sessions", "", f.handler.ClearSessions)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, f.handler, http.MethodGet, "/v1/sessions", "", f.handler.ListSessions)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Sessions, 1)
}

func TestArchiveEndpoints(t *testing.T) {
	f := newTestHandler(t)
	doJSON(t, f.handler, http.MethodPost, "/v1/chat", `{"content":"hi"}`, f.handler.SendMessage)
	id := f.handler.sessions.CurrentID()

	rec := doJSON(t, f.handler, http.MethodPost, "/v1/sessions/:session_id/archive", "", f.handler.ArchiveSession, "session_id", id)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, f.handler, http.MethodPost, "/v1/sessions/:session_id/unarchive", "", f.handler.UnarchiveSession, "session_id", id)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	f := newTestHandler(t)

	rec := doJSON(t, f.handler, http.MethodPut, "/v1/profile", `{"name":"Ada","facts":["likes tea","writes Go"]}`, f.handler.UpdateProfile)
	require.Equal(t, http.StatusOK, rec.Code)

	var profile struct {
		Name  string   `json:"name"`
		Facts []string `json:"facts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "Ada", profile.Name)
	assert.Len(t, profile.Facts, 2)

	rec = doJSON(t, f.handler, http.MethodDelete, "/v1/profile/facts/:index", "", f.handler.DeleteFact, "index", "0")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, []string{"writes Go"}, profile.Facts)

	rec = doJSON(t, f.handler, http.MethodDelete, "/v1/profile/facts/:index", "", f.handler.DeleteFact, "index", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, f.handler, http.MethodPost, "/v1/profile/wipe", "", f.handler.WipeMemory)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Empty(t, profile.Facts)
}

func TestSettingsEndpoints(t *testing.T) {
	f := newTestHandler(t)

	rec := doJSON(t, f.handler, http.MethodGet, "/v1/settings", "", f.handler.GetSettings)
	require.Equal(t, http.StatusOK, rec.Code)
	var settings struct {
		HasAPIKey bool   `json:"has_api_key"`
		Model     string `json:"model"`
		InputMode string `json:"input_mode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.True(t, settings.HasAPIKey)
	assert.Equal(t, "gemini-2.0-flash", settings.Model)
	assert.Equal(t, "plain", settings.InputMode)

	rec = doJSON(t, f.handler, http.MethodPut, "/v1/settings", `{"model":"gemini-2.5-flash","input_mode":"markdown"}`, f.handler.UpdateSettings)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, "gemini-2.5-flash", settings.Model)
	assert.Equal(t, "markdown", settings.InputMode)

	rec = doJSON(t, f.handler, http.MethodPut, "/v1/settings", `{"input_mode":"pictures"}`, f.handler.UpdateSettings)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsageStatus(t *testing.T) {
	f := newTestHandler(t)

	rec := doJSON(t, f.handler, http.MethodGet, "/v1/usage", "", f.handler.UsageStatus)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
		Detail string `json:"detail"`
		Tier   string `json:"tier"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "GREEN", resp.Status)
	assert.Equal(t, "FLASH", resp.Tier)
	assert.Contains(t, resp.Detail, "RPM")
}

func TestSyncConnectValidation(t *testing.T) {
	f := newTestHandler(t)
	rec := doJSON(t, f.handler, http.MethodPost, "/v1/sync/connect", `{"code":"!!"}`, f.handler.SyncConnect)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncStatusIdle(t *testing.T) {
	f := newTestHandler(t)
	rec := doJSON(t, f.handler, http.MethodGet, "/v1/sync/status", "", f.handler.SyncStatus)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"idle"`)
}

func TestGenerateCode(t *testing.T) {
	f := newTestHandler(t)
	rec := doJSON(t, f.handler, http.MethodPost, "/v1/sync/code", "", f.handler.GenerateCode)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Code, 8)
	assert.True(t, cloud.ValidSyncCode(resp.Code))
}
