// Package postgres provides the production storage repository. Bootstrap
// cache reads are optionally served through a Redis look-aside cache so a
// cold upstream outage does not hammer Postgres on every fallback read.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"dojotap/storage"
)

const bootstrapCachePrefix = "dojotap:bootstrap:"

var _ storage.Repository = (*Store)(nil)

type Store struct {
	db           *sql.DB
	redis        *redis.Client
	bootstrapTTL time.Duration
}

type Option func(*Store)

// WithRedis enables the look-aside cache for bootstrap entries. ttl bounds
// how long a cached entry may be served without consulting Postgres.
func WithRedis(redisURL string, ttl time.Duration) Option {
	return func(s *Store) {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return
		}
		s.redis = redis.NewClient(opts)
		s.bootstrapTTL = ttl
	}
}

func Open(connString string, options ...Option) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &Store{db: db, bootstrapTTL: time.Hour}
	for _, opt := range options {
		opt(store)
	}
	if store.redis != nil {
		if err := store.redis.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS user_credentials (
		user_key TEXT PRIMARY KEY,
		refresh_token_encrypted TEXT,
		username TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS browser_sessions (
		session_id TEXT PRIMARY KEY,
		user_key TEXT NOT NULL,
		access_token TEXT NOT NULL DEFAULT '',
		id_token TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_browser_sessions_user_key ON browser_sessions(user_key);

	CREATE TABLE IF NOT EXISTS user_preferences (
		user_key TEXT PRIMARY KEY,
		pinned_task_ids JSONB NOT NULL DEFAULT '[]',
		task_ui_preferences JSONB NOT NULL DEFAULT '{}',
		version BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bootstrap_cache (
		user_key TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) Close() error {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	return s.db.Close()
}

func (s *Store) GetUser(ctx context.Context, userKey string) (*storage.UserCredential, error) {
	user := &storage.UserCredential{UserKey: userKey}
	err := s.db.QueryRowContext(ctx, `
		SELECT refresh_token_encrypted, username, updated_at
		FROM user_credentials WHERE user_key = $1
	`, userKey).Scan(&user.RefreshTokenEncrypted, &user.Username, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) PutUser(ctx context.Context, user *storage.UserCredential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_credentials (user_key, refresh_token_encrypted, username, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_key)
		DO UPDATE SET
			refresh_token_encrypted = EXCLUDED.refresh_token_encrypted,
			username = EXCLUDED.username,
			updated_at = EXCLUDED.updated_at
	`, user.UserKey, user.RefreshTokenEncrypted, user.Username, user.UpdatedAt)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*storage.BrowserSession, error) {
	session := &storage.BrowserSession{SessionID: sessionID}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_key, access_token, id_token, expires_at, last_seen_at, created_at, revoked
		FROM browser_sessions WHERE session_id = $1
	`, sessionID).Scan(
		&session.UserKey, &session.AccessToken, &session.IDToken,
		&session.ExpiresAt, &session.LastSeenAt, &session.CreatedAt, &session.Revoked,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) PutSession(ctx context.Context, session *storage.BrowserSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO browser_sessions
			(session_id, user_key, access_token, id_token, expires_at, last_seen_at, created_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id)
		DO UPDATE SET
			user_key = EXCLUDED.user_key,
			access_token = EXCLUDED.access_token,
			id_token = EXCLUDED.id_token,
			expires_at = EXCLUDED.expires_at,
			last_seen_at = EXCLUDED.last_seen_at,
			revoked = EXCLUDED.revoked
	`, session.SessionID, session.UserKey, session.AccessToken, session.IDToken,
		session.ExpiresAt, session.LastSeenAt, session.CreatedAt, session.Revoked)
	return err
}

func (s *Store) RevokeUserSessions(ctx context.Context, userKey string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE browser_sessions SET revoked = TRUE WHERE user_key = $1
	`, userKey)
	return err
}

func (s *Store) GetPreferences(ctx context.Context, userKey string) (*storage.PreferencesDocument, error) {
	doc := &storage.PreferencesDocument{UserKey: userKey}
	var pins, uiPrefs []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT pinned_task_ids, task_ui_preferences, version, updated_at
		FROM user_preferences WHERE user_key = $1
	`, userKey).Scan(&pins, &uiPrefs, &doc.Version, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pins, &doc.PinnedTaskIDs); err != nil {
		return nil, fmt.Errorf("decoding pinned task ids: %w", err)
	}
	if err := json.Unmarshal(uiPrefs, &doc.TaskUIPreferences); err != nil {
		return nil, fmt.Errorf("decoding task ui preferences: %w", err)
	}
	return doc, nil
}

func (s *Store) PutPreferences(ctx context.Context, doc *storage.PreferencesDocument) error {
	pins, err := json.Marshal(doc.PinnedTaskIDs)
	if err != nil {
		return err
	}
	uiPrefs, err := json.Marshal(doc.TaskUIPreferences)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_key, pinned_task_ids, task_ui_preferences, version, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_key)
		DO UPDATE SET
			pinned_task_ids = EXCLUDED.pinned_task_ids,
			task_ui_preferences = EXCLUDED.task_ui_preferences,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
	`, doc.UserKey, pins, uiPrefs, doc.Version, doc.UpdatedAt)
	return err
}

func (s *Store) GetBootstrap(ctx context.Context, userKey string) (*storage.BootstrapEntry, error) {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, bootstrapCachePrefix+userKey).Bytes(); err == nil {
			entry := &storage.BootstrapEntry{}
			if err := json.Unmarshal(cached, entry); err == nil {
				return entry, nil
			}
		}
	}

	entry := &storage.BootstrapEntry{UserKey: userKey}
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, fetched_at FROM bootstrap_cache WHERE user_key = $1
	`, userKey).Scan(&entry.Payload, &entry.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) PutBootstrap(ctx context.Context, entry *storage.BootstrapEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bootstrap_cache (user_key, payload, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_key)
		DO UPDATE SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at
	`, entry.UserKey, []byte(entry.Payload), entry.FetchedAt)
	if err != nil {
		return err
	}

	if s.redis != nil {
		if data, err := json.Marshal(entry); err == nil {
			_ = s.redis.Set(ctx, bootstrapCachePrefix+entry.UserKey, data, s.bootstrapTTL).Err()
		}
	}
	return nil
}
