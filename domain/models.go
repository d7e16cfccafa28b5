package domain

import "time"

// Message is a single chat message. Content may be rewritten in place
// (matched by ID) while a streamed reply is still arriving.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// ChatSession is a conversation with its full message history.
// Timestamp is last-touched, epoch milliseconds.
type ChatSession struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Messages   []Message `json:"messages"`
	Timestamp  int64     `json:"timestamp"`
	IsArchived bool      `json:"isArchived,omitempty"`
}

// UserProfile is the distilled memory of the user. Facts and preferences
// are semantically sets; merges must deduplicate. LastUpdated is the
// conflict-resolution clock for cloud sync.
type UserProfile struct {
	Name          string   `json:"name"`
	Preferences   []string `json:"preferences"`
	Facts         []string `json:"facts"`
	Mood          string   `json:"mood"`
	WritingStyle  string   `json:"writingStyle,omitempty"`
	KnowledgeBase string   `json:"knowledgeBase,omitempty"`
	Persona       string   `json:"persona,omitempty"`
	NeuralScene   string   `json:"neuralScene,omitempty"`
	LastUpdated   int64    `json:"lastUpdated"`
}

// UsageMetrics are the persisted rate-limiter counters. Counters never go
// negative and are zeroed when their reset window elapses.
type UsageMetrics struct {
	RequestsMinute  int   `json:"requestsMinute"`
	TokensMinute    int   `json:"tokensMinute"`
	RequestsDay     int   `json:"requestsDay"`
	LastResetMinute int64 `json:"lastResetMinute"`
	LastResetDay    int64 `json:"lastResetDay"`
}

// CloudConfig identifies the remote sync namespace.
type CloudConfig struct {
	SyncCode string `json:"syncCode"`
	LastSync int64  `json:"lastSync"`
}

// SyncPayload is the full document exchanged with the remote store.
type SyncPayload struct {
	Profile     UserProfile   `json:"profile"`
	Sessions    []ChatSession `json:"sessions"`
	LastUpdated int64         `json:"lastUpdated"`
}

// NowMillis returns the current time in epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// DefaultProfile returns the profile a fresh install starts with. The
// profile is mutated in place thereafter and only recreated on wipe.
func DefaultProfile() UserProfile {
	return UserProfile{
		Name:          "User",
		Preferences:   []string{},
		Facts:         []string{},
		Mood:          "Neutral",
		WritingStyle:  "Concise & Direct",
		KnowledgeBase: "General Knowledge",
		Persona:       "Antigravity (Default)",
		NeuralScene:   "Standard Void",
		LastUpdated:   NowMillis(),
	}
}

// DefaultUsage returns zeroed usage metrics with both reset windows
// anchored at now.
func DefaultUsage(now int64) UsageMetrics {
	return UsageMetrics{
		LastResetMinute: now,
		LastResetDay:    now,
	}
}
