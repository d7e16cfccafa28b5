// Package cloud implements cross-device synchronization against a
// remote realtime store.
package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/antigravity-app/antigravity/domain"
)

// ChangeCallback receives each remote payload as it is written, the
// subscriber's own writes included. A nil payload means the remote key
// was cleared.
type ChangeCallback func(payload *domain.SyncPayload)

// RemoteStore defines the remote sync store collaborator.
type RemoteStore interface {
	// Read downloads the document for a sync code, nil when absent.
	Read(ctx context.Context, code string) (*domain.SyncPayload, error)

	// Write uploads the full document for a sync code.
	Write(ctx context.Context, code string, payload domain.SyncPayload) error

	// Subscribe opens a push channel for remote changes and returns an
	// unsubscribe function.
	Subscribe(ctx context.Context, code string, onChange ChangeCallback) (func(), error)
}

var syncCodePattern = regexp.MustCompile(`^[a-z0-9]{4,16}$`)

// CanonicalizeSyncCode lowers the code and strips everything but
// alphanumerics, yielding the remote namespace key.
func CanonicalizeSyncCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	var b strings.Builder
	for _, r := range code {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidSyncCode reports whether a code canonicalizes to an acceptable key.
func ValidSyncCode(code string) bool {
	return syncCodePattern.MatchString(CanonicalizeSyncCode(code))
}

// GenerateSyncCode returns a random 8-character sync code.
func GenerateSyncCode() string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))]
	}
	return string(b)
}

// FirebaseClient talks to a Firebase Realtime Database over its REST
// interface. Documents live under /users/<code>.json; the push channel
// is the database's SSE streaming endpoint.
type FirebaseClient struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no timeout: the SSE connection is long-lived.
	streamClient *http.Client
}

// NewFirebaseClient creates a new client for the given database URL.
func NewFirebaseClient(baseURL string, timeout time.Duration) *FirebaseClient {
	return &FirebaseClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

// Ensure FirebaseClient implements RemoteStore.
var _ RemoteStore = (*FirebaseClient)(nil)

func (c *FirebaseClient) docURL(code string) string {
	return fmt.Sprintf("%s/users/%s.json", c.baseURL, code)
}

// Read downloads the document for a sync code.
func (c *FirebaseClient) Read(ctx context.Context, code string) (*domain.SyncPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.docURL(code), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote store error [%d]: %s", resp.StatusCode, string(body))
	}

	// Absent keys come back as the JSON literal null.
	if string(bytes.TrimSpace(body)) == "null" {
		return nil, nil
	}

	var payload domain.SyncPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode remote document: %w", err)
	}
	return &payload, nil
}

// Write uploads the full document for a sync code.
func (c *FirebaseClient) Write(ctx context.Context, code string, payload domain.SyncPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.docURL(code), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("remote store error [%d]: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// streamEvent is the envelope of a database SSE data line.
type streamEvent struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// Subscribe opens the SSE streaming endpoint and delivers every remote
// write to the callback until unsubscribed.
func (c *FirebaseClient) Subscribe(ctx context.Context, code string, onChange ChangeCallback) (func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.docURL(code), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("remote store error [%d]", resp.StatusCode)
	}

	go func() {
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		event := ""
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if streamCtx.Err() == nil && err != io.EOF {
					log.Printf("ERROR: sync stream read failed: %v", err)
				}
				return
			}

			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				// Only put/patch carry document changes; keep-alive,
				// cancel and auth_revoked are ignored.
				if event != "put" && event != "patch" {
					continue
				}
				data := strings.TrimPrefix(line, "data: ")

				var ev streamEvent
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					continue
				}
				if string(bytes.TrimSpace(ev.Data)) == "null" || len(ev.Data) == 0 {
					onChange(nil)
					continue
				}
				var payload domain.SyncPayload
				if err := json.Unmarshal(ev.Data, &payload); err != nil {
					log.Printf("ERROR: undecodable sync payload: %v", err)
					continue
				}
				onChange(&payload)
			}
		}
	}()

	return cancel, nil
}
