// Package store defines the local persistence interface and implementations.
package store

import (
	"context"

	"github.com/antigravity-app/antigravity/domain"
)

// Document keys. Each key is an independent persisted unit; there are no
// cross-key transactions.
const (
	KeyAPIKey      = "gemini_api_key"
	KeyModel       = "antigravity_model"
	KeyInputMode   = "antigravity_input_mode"
	KeyProfile     = "antigravity_memory_v1"
	KeySessions    = "antigravity_history_v1"
	KeyCloudConfig = "antigravity_cloud_config"
	KeyUsage       = "gemini_rate_usage"
)

// Store defines the interface for local durable storage.
type Store interface {
	// Raw string settings
	GetAPIKey(ctx context.Context) (string, error)
	SetAPIKey(ctx context.Context, key string) error
	GetModel(ctx context.Context) (string, error)
	SetModel(ctx context.Context, model string) error
	GetInputMode(ctx context.Context) (domain.InputMode, error)
	SetInputMode(ctx context.Context, mode domain.InputMode) error

	// JSON documents. Readers fall back to defaults on missing or
	// corrupt data rather than propagating a parse error.
	GetProfile(ctx context.Context) (domain.UserProfile, error)
	SetProfile(ctx context.Context, profile domain.UserProfile) error
	GetSessions(ctx context.Context) ([]domain.ChatSession, error)
	SetSessions(ctx context.Context, sessions []domain.ChatSession) error
	GetCloudConfig(ctx context.Context) (domain.CloudConfig, error)
	SetCloudConfig(ctx context.Context, cfg domain.CloudConfig) error
	ClearCloudConfig(ctx context.Context) error
	GetUsage(ctx context.Context, defaults domain.UsageMetrics) (domain.UsageMetrics, error)
	SetUsage(ctx context.Context, usage domain.UsageMetrics) error

	// Wipe deletes every persisted document. Last-resort recovery.
	Wipe(ctx context.Context) error

	Close() error
}
