// Package gemini provides an abstraction over the generative-text provider.
package gemini

import (
	"context"

	"github.com/antigravity-app/antigravity/domain"
)

// Turn is a single entry of provider turn history.
type Turn struct {
	Role domain.Role
	Text string
}

// StreamCallback is called for each text fragment of a streaming response.
type StreamCallback func(fragment string) error

// Provider defines the interface for generative-text operations.
type Provider interface {
	// Send sends a buffered generation request and returns the complete text.
	Send(ctx context.Context, modelID, systemInstruction string, history []Turn, lastUser string) (string, error)

	// SendStream sends a streaming generation request. The callback is
	// called for each text fragment as it arrives.
	SendStream(ctx context.Context, modelID, systemInstruction string, history []Turn, lastUser string, callback StreamCallback) error

	// GenerateJSON sends a single-prompt request with structured (JSON)
	// output enforced and returns the raw response text.
	GenerateJSON(ctx context.Context, modelID, prompt string) (string, error)
}

// Ensure Client implements Provider.
var _ Provider = (*Client)(nil)
