package gemini

import "context"

// MockProvider is a scriptable Provider implementation for testing.
// Errors are injected per model id; calls are recorded in order.
type MockProvider struct {
	// Reply is the buffered/streamed response when no error is injected.
	Reply string
	// JSONReply is the structured-output response.
	JSONReply string
	// Errs maps a model id to the error every call on it returns.
	Errs map[string]error
	// StreamChunks overrides Reply for streaming when non-empty.
	StreamChunks []string
	// Calls records the model id of every call in order.
	Calls []string
}

// NewMockProvider creates a mock provider with a canned reply.
func NewMockProvider(reply string) *MockProvider {
	return &MockProvider{Reply: reply, Errs: map[string]error{}}
}

// Ensure MockProvider implements Provider.
var _ Provider = (*MockProvider)(nil)

// Send returns the canned reply or the injected error for the model.
func (m *MockProvider) Send(ctx context.Context, modelID, systemInstruction string, history []Turn, lastUser string) (string, error) {
	m.Calls = append(m.Calls, modelID)
	if err := m.Errs[modelID]; err != nil {
		return "", err
	}
	return m.Reply, nil
}

// SendStream streams the canned reply in fragments or fails up front.
func (m *MockProvider) SendStream(ctx context.Context, modelID, systemInstruction string, history []Turn, lastUser string, callback StreamCallback) error {
	m.Calls = append(m.Calls, modelID)
	if err := m.Errs[modelID]; err != nil {
		return err
	}
	chunks := m.StreamChunks
	if len(chunks) == 0 {
		chunks = []string{m.Reply}
	}
	for _, chunk := range chunks {
		if err := callback(chunk); err != nil {
			return err
		}
	}
	return nil
}

// GenerateJSON returns the canned structured reply or the injected error.
func (m *MockProvider) GenerateJSON(ctx context.Context, modelID, prompt string) (string, error) {
	m.Calls = append(m.Calls, modelID)
	if err := m.Errs[modelID]; err != nil {
		return "", err
	}
	return m.JSONReply, nil
}
