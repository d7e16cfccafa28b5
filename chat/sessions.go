// Package chat implements the conversation core: session state, the
// generation orchestrator, and memory distillation.
package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/antigravity-app/antigravity/domain"
	"github.com/antigravity-app/antigravity/store"
)

const titleLimit = 40

// SessionManager owns the session list, the denormalized current
// transcript, and the user profile. Every mutation keeps the current
// transcript and the session list consistent, persists, and notifies
// the mutation hook (used by the sync engine's debounced upload).
type SessionManager struct {
	mu sync.Mutex

	store     store.Store
	sessions  []domain.ChatSession
	current   []domain.Message
	currentID string
	profile   domain.UserProfile

	// OnMutate, when set, is invoked after every persisted local
	// mutation to sessions or profile.
	OnMutate func()

	now   func() int64
	newID func() string
}

// NewSessionManager creates a session manager over the given store.
func NewSessionManager(s store.Store) *SessionManager {
	return &SessionManager{
		store: s,
		now:   domain.NowMillis,
		newID: func() string { return uuid.NewString() },
	}
}

// Load reads persisted sessions and profile, opening the most recently
// touched session, or starting a new chat when history is empty.
func (m *SessionManager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, err := m.store.GetProfile(ctx)
	if err != nil {
		return err
	}
	m.profile = profile

	sessions, err := m.store.GetSessions(ctx)
	if err != nil {
		return err
	}
	m.sessions = sessions

	if len(m.sessions) == 0 {
		return m.startNewChatLocked(ctx)
	}

	latest := m.sessions[0]
	for _, s := range m.sessions[1:] {
		if s.Timestamp > latest.Timestamp {
			latest = s
		}
	}
	m.currentID = latest.ID
	m.current = append([]domain.Message(nil), latest.Messages...)
	return nil
}

// notify fires the mutation hook outside internal state updates.
func (m *SessionManager) notify() {
	if m.OnMutate != nil {
		m.OnMutate()
	}
}

func (m *SessionManager) persistSessionsLocked(ctx context.Context) error {
	return m.store.SetSessions(ctx, m.sessions)
}

// startNewChatLocked creates a fresh current session. An already-empty
// current session is reused, and previous empty sessions are pruned.
func (m *SessionManager) startNewChatLocked(ctx context.Context) error {
	if m.currentID != "" && len(m.current) == 0 {
		return nil
	}

	session := domain.ChatSession{
		ID:        m.newID(),
		Title:     "New Chat",
		Messages:  []domain.Message{},
		Timestamp: m.now(),
	}

	kept := []domain.ChatSession{session}
	for _, s := range m.sessions {
		if len(s.Messages) > 0 {
			kept = append(kept, s)
		}
	}
	m.sessions = kept
	m.currentID = session.ID
	m.current = []domain.Message{}

	return m.persistSessionsLocked(ctx)
}

// StartNewChat begins a new conversation.
func (m *SessionManager) StartNewChat(ctx context.Context) error {
	m.mu.Lock()
	err := m.startNewChatLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.notify()
	return nil
}

// OpenChat makes the given session current. Unknown ids are a no-op.
func (m *SessionManager) OpenChat(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.ID == sessionID {
			m.currentID = s.ID
			m.current = append([]domain.Message(nil), s.Messages...)
			return true
		}
	}
	return false
}

// SaveMessage appends a message to the current session, or updates an
// existing message in place when the id matches (streaming rewrites).
// The session title is derived from the first user message.
func (m *SessionManager) SaveMessage(ctx context.Context, msg domain.Message) error {
	m.mu.Lock()

	updated := false
	for i, existing := range m.current {
		if existing.ID == msg.ID {
			m.current[i] = msg
			updated = true
			break
		}
	}
	if !updated {
		m.current = append(m.current, msg)
	}

	for i := range m.sessions {
		s := &m.sessions[i]
		if s.ID != m.currentID {
			continue
		}
		if msg.Role == domain.RoleUser && len(s.Messages) <= 1 {
			title := []rune(msg.Content)
			if len(title) > titleLimit {
				s.Title = string(title[:titleLimit]) + "..."
			} else {
				s.Title = string(title)
			}
		}
		found := false
		for j, existing := range s.Messages {
			if existing.ID == msg.ID {
				s.Messages[j] = msg
				found = true
				break
			}
		}
		if !found {
			s.Messages = append(s.Messages, msg)
		}
		s.Timestamp = m.now()
		break
	}

	err := m.persistSessionsLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.notify()
	return nil
}

// DeleteSession removes a session. Deleting the current session opens
// the next one, or starts a new chat when none remain.
func (m *SessionManager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()

	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if s.ID != sessionID {
			kept = append(kept, s)
		}
	}
	m.sessions = kept

	var err error
	if m.currentID == sessionID {
		m.currentID = ""
		m.current = nil
		if len(m.sessions) > 0 {
			m.currentID = m.sessions[0].ID
			m.current = append([]domain.Message(nil), m.sessions[0].Messages...)
			err = m.persistSessionsLocked(ctx)
		} else {
			err = m.startNewChatLocked(ctx)
		}
	} else {
		err = m.persistSessionsLocked(ctx)
	}

	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.notify()
	return nil
}

// setArchived flips the archive flag on a session.
func (m *SessionManager) setArchived(ctx context.Context, sessionID string, archived bool) error {
	m.mu.Lock()

	for i := range m.sessions {
		if m.sessions[i].ID == sessionID {
			m.sessions[i].IsArchived = archived
			break
		}
	}

	var err error
	if archived && m.currentID == sessionID {
		m.currentID = ""
		m.current = nil
		err = m.startNewChatLocked(ctx)
	} else {
		err = m.persistSessionsLocked(ctx)
	}

	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.notify()
	return nil
}

// ArchiveSession soft-deletes a session. Archiving the current session
// starts a new chat.
func (m *SessionManager) ArchiveSession(ctx context.Context, sessionID string) error {
	return m.setArchived(ctx, sessionID, true)
}

// UnarchiveSession restores an archived session.
func (m *SessionManager) UnarchiveSession(ctx context.Context, sessionID string) error {
	return m.setArchived(ctx, sessionID, false)
}

// ClearAllSessions deletes the whole history and starts a new chat.
func (m *SessionManager) ClearAllSessions(ctx context.Context) error {
	m.mu.Lock()
	m.sessions = nil
	m.currentID = ""
	m.current = nil
	err := m.startNewChatLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.notify()
	return nil
}

// Profile returns a copy of the current profile.
func (m *SessionManager) Profile() domain.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}

// UpdateProfile replaces the profile and persists it.
func (m *SessionManager) UpdateProfile(ctx context.Context, profile domain.UserProfile) error {
	m.mu.Lock()
	m.profile = profile
	err := m.store.SetProfile(ctx, profile)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.notify()
	return nil
}

// DeleteFact removes a fact by index.
func (m *SessionManager) DeleteFact(ctx context.Context, index int) error {
	m.mu.Lock()
	if index >= 0 && index < len(m.profile.Facts) {
		m.profile.Facts = append(m.profile.Facts[:index], m.profile.Facts[index+1:]...)
		m.profile.LastUpdated = m.now()
	}
	err := m.store.SetProfile(ctx, m.profile)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.notify()
	return nil
}

// WipeMemory resets the profile to defaults and clears all sessions.
func (m *SessionManager) WipeMemory(ctx context.Context) error {
	m.mu.Lock()
	m.profile = domain.DefaultProfile()
	err := m.store.SetProfile(ctx, m.profile)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.ClearAllSessions(ctx)
}

// Sessions returns a copy of the session list.
func (m *SessionManager) Sessions() []domain.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ChatSession(nil), m.sessions...)
}

// CurrentID returns the current session id.
func (m *SessionManager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID
}

// CurrentMessages returns a copy of the current transcript.
func (m *SessionManager) CurrentMessages() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.current...)
}

// Snapshot returns the profile and session list for upload.
func (m *SessionManager) Snapshot() (domain.UserProfile, []domain.ChatSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile, append([]domain.ChatSession(nil), m.sessions...)
}

// ReplaceAll overwrites the profile and session list with an incoming
// remote copy. The current transcript is refreshed when it is empty or
// its session is present in the incoming set; otherwise a new chat is
// started over the replaced list.
func (m *SessionManager) ReplaceAll(ctx context.Context, profile domain.UserProfile, sessions []domain.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profile = profile
	if err := m.store.SetProfile(ctx, profile); err != nil {
		return err
	}

	m.sessions = append([]domain.ChatSession(nil), sessions...)

	incoming := false
	for _, s := range m.sessions {
		if s.ID == m.currentID {
			m.current = append([]domain.Message(nil), s.Messages...)
			incoming = true
			break
		}
	}
	if !incoming {
		if len(m.current) == 0 && len(m.sessions) > 0 {
			latest := m.sessions[0]
			for _, s := range m.sessions[1:] {
				if s.Timestamp > latest.Timestamp {
					latest = s
				}
			}
			m.currentID = latest.ID
			m.current = append([]domain.Message(nil), latest.Messages...)
		} else {
			// The open session did not survive the overwrite.
			m.currentID = ""
			m.current = nil
			return m.startNewChatLocked(ctx)
		}
	}

	return m.persistSessionsLocked(ctx)
}
