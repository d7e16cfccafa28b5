package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/antigravity-app/antigravity/domain"
)

// KeySource resolves the current API key. Returning an empty key is not
// an error here; calls fail with a missing-key error instead.
type KeySource func(ctx context.Context) (string, error)

// Client is the Gemini provider client. The underlying genai client is
// built lazily from the key source on first use and rebuilt whenever the
// key changes, so a key added or replaced at runtime takes effect on the
// next call.
type Client struct {
	keySource KeySource

	mu     sync.Mutex
	apiKey string
	client *genai.Client
}

// NewClient creates a Gemini client over the given key source.
func NewClient(keySource KeySource) *Client {
	return &Client{keySource: keySource}
}

// conn returns a genai client for the current key, rebuilding on change.
func (c *Client) conn(ctx context.Context) (*genai.Client, error) {
	key, err := c.keySource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve api key: %w", err)
	}
	if key == "" {
		return nil, fmt.Errorf("no api key configured")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.apiKey == key {
		return c.client, nil
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if c.client != nil {
		c.client.Close()
	}
	c.client = cl
	c.apiKey = key
	return cl, nil
}

// Close closes the underlying client, if one was built.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.apiKey = ""
	return err
}

// model configures a generative model with permissive safety settings,
// matching what the chat UI expects.
func model(cl *genai.Client, modelID string) *genai.GenerativeModel {
	m := cl.GenerativeModel(modelID)
	m.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}
	return m
}

// history converts turns to genai chat history.
func history(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "model"
		if t.Role == domain.RoleUser {
			role = "user"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return contents
}

// responseText flattens the first candidate's text parts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// Send sends a buffered generation request.
func (c *Client) Send(ctx context.Context, modelID, systemInstruction string, turns []Turn, lastUser string) (string, error) {
	cl, err := c.conn(ctx)
	if err != nil {
		return "", err
	}

	m := model(cl, modelID)
	if systemInstruction != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemInstruction)},
		}
	}

	cs := m.StartChat()
	cs.History = history(turns)

	resp, err := cs.SendMessage(ctx, genai.Text(lastUser))
	if err != nil {
		return "", fmt.Errorf("gemini send: %w", err)
	}
	return responseText(resp), nil
}

// SendStream sends a streaming generation request, invoking the callback
// for each text fragment.
func (c *Client) SendStream(ctx context.Context, modelID, systemInstruction string, turns []Turn, lastUser string, callback StreamCallback) error {
	cl, err := c.conn(ctx)
	if err != nil {
		return err
	}

	m := model(cl, modelID)
	if systemInstruction != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemInstruction)},
		}
	}

	cs := m.StartChat()
	cs.History = history(turns)

	iter := cs.SendMessageStream(ctx, genai.Text(lastUser))
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		if fragment := responseText(resp); fragment != "" {
			if err := callback(fragment); err != nil {
				return err
			}
		}
	}
}

// GenerateJSON sends a single-prompt request with JSON output enforced.
func (c *Client) GenerateJSON(ctx context.Context, modelID, prompt string) (string, error) {
	cl, err := c.conn(ctx)
	if err != nil {
		return "", err
	}

	m := cl.GenerativeModel(modelID)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate json: %w", err)
	}
	return responseText(resp), nil
}
