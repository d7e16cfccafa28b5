package chat

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/antigravity-app/antigravity/domain"
	"github.com/antigravity-app/antigravity/gemini"
	"github.com/antigravity-app/antigravity/store"
)

// missingKeyPrompt is shown instead of calling the provider when no API
// key is stored. Not an error state.
const missingKeyPrompt = "Add your Gemini API key in Settings to start chatting."

// Service drives a full chat exchange: persist the user message, run
// the orchestrator, persist the reply, and kick off memory distillation
// in the background.
type Service struct {
	store        store.Store
	sessions     *SessionManager
	orchestrator *Orchestrator
	distiller    *Distiller
	defaultModel string

	distillWG sync.WaitGroup

	now   func() int64
	newID func() string
}

// NewService creates the chat service.
func NewService(s store.Store, sessions *SessionManager, orchestrator *Orchestrator, distiller *Distiller, defaultModel string) *Service {
	return &Service{
		store:        s,
		sessions:     sessions,
		orchestrator: orchestrator,
		distiller:    distiller,
		defaultModel: defaultModel,
		now:          domain.NowMillis,
		newID:        func() string { return uuid.NewString() },
	}
}

// Sessions exposes the session manager.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// model returns the selected model, falling back to the default.
func (s *Service) model(ctx context.Context) string {
	model, err := s.store.GetModel(ctx)
	if err != nil || model == "" {
		return s.defaultModel
	}
	return model
}

// assistantMessage builds an assistant message stamped now.
func (s *Service) assistantMessage(id, content string) domain.Message {
	return domain.Message{
		ID:        id,
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: s.now(),
	}
}

// SendMessage runs a buffered exchange and returns the assistant reply.
func (s *Service) SendMessage(ctx context.Context, content string) (domain.Message, error) {
	userMsg := domain.Message{
		ID:        s.newID(),
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: s.now(),
	}
	if err := s.sessions.SaveMessage(ctx, userMsg); err != nil {
		return domain.Message{}, err
	}

	apiKey, err := s.store.GetAPIKey(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	if apiKey == "" {
		reply := s.assistantMessage(s.newID(), missingKeyPrompt)
		if err := s.sessions.SaveMessage(ctx, reply); err != nil {
			return domain.Message{}, err
		}
		return reply, nil
	}

	transcript := s.sessions.CurrentMessages()
	profile := s.sessions.Profile()

	text, err := s.orchestrator.Generate(ctx, s.model(ctx), transcript, profile, "")
	if err != nil {
		return domain.Message{}, err
	}

	reply := s.assistantMessage(s.newID(), text)
	if err := s.sessions.SaveMessage(ctx, reply); err != nil {
		return domain.Message{}, err
	}

	s.distillAsync()
	return reply, nil
}

// SendMessageStream runs a streaming exchange. The assistant message is
// created up front and rewritten in place as fragments arrive; the
// callback receives each fragment for transport.
func (s *Service) SendMessageStream(ctx context.Context, content string, callback gemini.StreamCallback) (domain.Message, error) {
	userMsg := domain.Message{
		ID:        s.newID(),
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: s.now(),
	}
	if err := s.sessions.SaveMessage(ctx, userMsg); err != nil {
		return domain.Message{}, err
	}

	apiKey, err := s.store.GetAPIKey(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	if apiKey == "" {
		reply := s.assistantMessage(s.newID(), missingKeyPrompt)
		if err := s.sessions.SaveMessage(ctx, reply); err != nil {
			return domain.Message{}, err
		}
		return reply, nil
	}

	transcript := s.sessions.CurrentMessages()
	profile := s.sessions.Profile()
	replyID := s.newID()

	reply := s.assistantMessage(replyID, "")
	full, err := s.orchestrator.GenerateStream(ctx, s.model(ctx), transcript, profile, "", func(fragment string) error {
		reply.Content += fragment
		reply.Timestamp = s.now()
		if saveErr := s.sessions.SaveMessage(ctx, reply); saveErr != nil {
			return saveErr
		}
		return callback(fragment)
	})
	if err != nil {
		return reply, err
	}

	reply.Content = full
	if err := s.sessions.SaveMessage(ctx, reply); err != nil {
		return reply, err
	}

	s.distillAsync()
	return reply, nil
}

// distillAsync fires memory distillation for the current transcript
// without blocking the reply. Failures no-op silently.
func (s *Service) distillAsync() {
	transcript := s.sessions.CurrentMessages()
	if len(transcript) < minDistillMessages {
		return
	}
	profile := s.sessions.Profile()

	s.distillWG.Add(1)
	go func() {
		defer s.distillWG.Done()
		ctx := context.Background()
		updated := s.distiller.Distill(ctx, transcript, profile)
		if err := s.sessions.UpdateProfile(ctx, updated); err != nil {
			log.Printf("ERROR: failed to persist distilled profile: %v", err)
		}
	}()
}

// WaitDistillation blocks until pending background distillations finish.
// Used on shutdown so learned facts are not lost.
func (s *Service) WaitDistillation() {
	s.distillWG.Wait()
}
