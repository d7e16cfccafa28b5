package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/antigravity-app/antigravity/domain"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite. Every persisted document
// lives in a single settings table, one row per key.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway; a single pooled connection
	// also keeps an in-memory database from splitting per connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// get returns the raw value for a key, or ("", false) when absent.
func (s *SQLiteStore) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// set writes the raw value for a key.
func (s *SQLiteStore) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	return err
}

// delete removes a key. Deleting an absent key is not an error.
func (s *SQLiteStore) delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return err
}

// getJSON decodes the document at key into dst. Returns false when the
// key is absent or the stored JSON is corrupt; corruption is logged and
// the caller's defaults stand.
func (s *SQLiteStore) getJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		log.Printf("ERROR: corrupt document %q, falling back to defaults: %v", key, err)
		return false, nil
	}
	return true, nil
}

// setJSON encodes v and writes it at key.
func (s *SQLiteStore) setJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	return s.set(ctx, key, string(raw))
}

// GetAPIKey returns the stored provider API key, empty when unset.
func (s *SQLiteStore) GetAPIKey(ctx context.Context) (string, error) {
	value, _, err := s.get(ctx, KeyAPIKey)
	return value, err
}

// SetAPIKey stores the provider API key.
func (s *SQLiteStore) SetAPIKey(ctx context.Context, key string) error {
	return s.set(ctx, KeyAPIKey, key)
}

// GetModel returns the selected model identifier, empty when unset.
func (s *SQLiteStore) GetModel(ctx context.Context) (string, error) {
	value, _, err := s.get(ctx, KeyModel)
	return value, err
}

// SetModel stores the selected model identifier.
func (s *SQLiteStore) SetModel(ctx context.Context, model string) error {
	return s.set(ctx, KeyModel, model)
}

// GetInputMode returns the chat input mode preference.
func (s *SQLiteStore) GetInputMode(ctx context.Context) (domain.InputMode, error) {
	value, ok, err := s.get(ctx, KeyInputMode)
	if err != nil || !ok {
		return domain.InputMarkdown, err
	}
	return domain.InputMode(value), nil
}

// SetInputMode stores the chat input mode preference.
func (s *SQLiteStore) SetInputMode(ctx context.Context, mode domain.InputMode) error {
	return s.set(ctx, KeyInputMode, string(mode))
}

// GetProfile returns the stored user profile, or the default profile when
// absent or corrupt.
func (s *SQLiteStore) GetProfile(ctx context.Context) (domain.UserProfile, error) {
	var profile domain.UserProfile
	ok, err := s.getJSON(ctx, KeyProfile, &profile)
	if err != nil || !ok {
		return domain.DefaultProfile(), err
	}
	if profile.Facts == nil {
		profile.Facts = []string{}
	}
	if profile.Preferences == nil {
		profile.Preferences = []string{}
	}
	return profile, nil
}

// SetProfile stores the user profile.
func (s *SQLiteStore) SetProfile(ctx context.Context, profile domain.UserProfile) error {
	return s.setJSON(ctx, KeyProfile, profile)
}

// GetSessions returns the stored session list, empty when absent or corrupt.
func (s *SQLiteStore) GetSessions(ctx context.Context) ([]domain.ChatSession, error) {
	var sessions []domain.ChatSession
	ok, err := s.getJSON(ctx, KeySessions, &sessions)
	if err != nil || !ok {
		return []domain.ChatSession{}, err
	}
	return sessions, nil
}

// SetSessions stores the session list.
func (s *SQLiteStore) SetSessions(ctx context.Context, sessions []domain.ChatSession) error {
	return s.setJSON(ctx, KeySessions, sessions)
}

// GetCloudConfig returns the stored cloud config, zero when absent.
func (s *SQLiteStore) GetCloudConfig(ctx context.Context) (domain.CloudConfig, error) {
	var cfg domain.CloudConfig
	_, err := s.getJSON(ctx, KeyCloudConfig, &cfg)
	return cfg, err
}

// SetCloudConfig stores the cloud config.
func (s *SQLiteStore) SetCloudConfig(ctx context.Context, cfg domain.CloudConfig) error {
	return s.setJSON(ctx, KeyCloudConfig, cfg)
}

// ClearCloudConfig removes the cloud config.
func (s *SQLiteStore) ClearCloudConfig(ctx context.Context) error {
	return s.delete(ctx, KeyCloudConfig)
}

// GetUsage returns the stored usage metrics merged over the given
// defaults. Partial documents are tolerated: fields absent from the
// stored JSON keep their default values.
func (s *SQLiteStore) GetUsage(ctx context.Context, defaults domain.UsageMetrics) (domain.UsageMetrics, error) {
	usage := defaults
	_, err := s.getJSON(ctx, KeyUsage, &usage)
	if err != nil {
		return defaults, err
	}
	return usage, nil
}

// SetUsage stores the usage metrics.
func (s *SQLiteStore) SetUsage(ctx context.Context, usage domain.UsageMetrics) error {
	return s.setJSON(ctx, KeyUsage, usage)
}

// Wipe deletes every persisted document.
func (s *SQLiteStore) Wipe(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings`)
	return err
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
