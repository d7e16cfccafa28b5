// Package domain defines the core domain models for the chat client.
package domain

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TrafficStatus is the admission signal derived from quota utilization.
type TrafficStatus string

const (
	TrafficGreen  TrafficStatus = "GREEN"
	TrafficYellow TrafficStatus = "YELLOW"
	TrafficRed    TrafficStatus = "RED"
)

// ModelTier classifies a model identifier into a quota bucket.
type ModelTier string

const (
	TierPro   ModelTier = "PRO"
	TierFlash ModelTier = "FLASH"
)

// SyncStatus represents the state of the cloud sync engine.
type SyncStatus string

const (
	SyncIdle      SyncStatus = "idle"
	SyncSyncing   SyncStatus = "syncing"
	SyncConnected SyncStatus = "connected"
	SyncError     SyncStatus = "error"
)

// InputMode is the chat input rendering preference.
type InputMode string

const (
	InputPlain    InputMode = "plain"
	InputMarkdown InputMode = "markdown"
)
