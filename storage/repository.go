// Package storage provides durable persistence for credential, session,
// preferences, and bootstrap-cache state. The auth manager never caches these
// rows in memory across calls; the repository is the single source of truth.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// UserCredential is the durable per-identity row, keyed by the normalized
// (trimmed, lowercased) login email. The refresh token is stored encrypted
// and cleared on logout-all-devices or an invalid-credential refresh failure;
// the row itself is never physically deleted.
type UserCredential struct {
	UserKey               string    `json:"user_key"`
	RefreshTokenEncrypted *string   `json:"refresh_token_encrypted"`
	Username              string    `json:"username"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// BrowserSession is one row per active browser/client session. Many sessions
// may share a user key. Once Revoked is committed true the row is terminal;
// a fresh login mints a new session ID rather than resurrecting an old one.
type BrowserSession struct {
	SessionID   string    `json:"session_id"`
	UserKey     string    `json:"user_key"`
	AccessToken string    `json:"access_token"`
	IDToken     string    `json:"id_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	Revoked     bool      `json:"revoked"`
}

// PreferencesDocument holds per-user UI preferences with a monotonically
// increasing version counter used for optimistic-concurrency updates.
type PreferencesDocument struct {
	UserKey           string                     `json:"user_key"`
	PinnedTaskIDs     []string                   `json:"pinned_task_ids"`
	TaskUIPreferences map[string]json.RawMessage `json:"task_ui_preferences"`
	Version           int                        `json:"version"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// BootstrapEntry is the last-known-good snapshot of the aggregated upstream
// payload for a user, served as a fallback when upstream is unreachable.
type BootstrapEntry struct {
	UserKey   string          `json:"user_key"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Repository defines the storage operations the auth manager depends on.
// Implementations must provide atomic per-row read-then-write and, for
// RevokeUserSessions, an atomic multi-row update.
type Repository interface {
	GetUser(ctx context.Context, userKey string) (*UserCredential, error)
	PutUser(ctx context.Context, user *UserCredential) error

	GetSession(ctx context.Context, sessionID string) (*BrowserSession, error)
	PutSession(ctx context.Context, session *BrowserSession) error
	// RevokeUserSessions marks every session row sharing userKey as revoked,
	// atomically with respect to other repository calls.
	RevokeUserSessions(ctx context.Context, userKey string) error

	GetPreferences(ctx context.Context, userKey string) (*PreferencesDocument, error)
	PutPreferences(ctx context.Context, doc *PreferencesDocument) error

	GetBootstrap(ctx context.Context, userKey string) (*BootstrapEntry, error)
	PutBootstrap(ctx context.Context, entry *BootstrapEntry) error

	Close() error
}
