// Package auth implements the session and token lifecycle: login, cached
// bearer tokens with skew-based refresh, logout with optional all-devices
// fan-out, and the never-failing status view. All public operations serialize
// through one process-wide lock held for the full operation, network calls
// included, so no two in-flight operations ever touch the same user's or
// session's rows concurrently.
package auth

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"dojotap/cognito"
	"dojotap/internal/config"
	autherrors "dojotap/internal/errors"
	"dojotap/storage"
	"dojotap/tokencipher"
)

// OAuthBridge is the slice of the Cognito bridge the manager depends on.
// Failures must already be classified into the auth error taxonomy.
type OAuthBridge interface {
	LoginWithCredentials(ctx context.Context, username, password string) (*cognito.TokenPayload, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*cognito.TokenPayload, error)
}

// Dependencies carries the collaborators a Manager needs.
type Dependencies struct {
	Store  storage.Repository
	Cipher *tokencipher.Cipher
	Bridge OAuthBridge
}

// Manager is the session/token state machine. Safe for concurrent use; see
// the package comment for the locking model.
type Manager struct {
	deps Dependencies
	cfg  config.AuthConfig

	mu      sync.Mutex
	nowTime func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithNowTime overrides the clock, for tests.
func WithNowTime(nowTime func() time.Time) Option {
	return func(m *Manager) { m.nowTime = nowTime }
}

func New(deps Dependencies, cfg config.AuthConfig, options ...Option) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.New("[auth.New] storage repository not configured")
	}
	if deps.Cipher == nil {
		return nil, errors.New("[auth.New] token cipher not configured")
	}
	if deps.Bridge == nil {
		return nil, errors.New("[auth.New] oauth bridge not configured")
	}
	if cfg == nil {
		return nil, errors.New("[auth.New] auth config not configured")
	}

	manager := &Manager{
		deps:    deps,
		cfg:     cfg,
		nowTime: time.Now,
	}
	for _, option := range options {
		option(manager)
	}
	return manager, nil
}

// Login drives the full credential flow and mints a new session. Bridge
// failures propagate as-is; this is the one path where provider login errors,
// including scraped wrong-password messages, surface directly to the caller.
// When persistRefreshToken is false the user's stored refresh token is
// explicitly cleared, giving an ephemeral session that cannot outlive its
// short-lived tokens.
func (m *Manager) Login(ctx context.Context, email, password string, persistRefreshToken bool) (*StatusPayload, string, error) {
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, "", autherrors.ErrMissingCredentials
	}

	m.mu.Lock()
	sessionID, err := m.loginLocked(ctx, email, password, persistRefreshToken)
	m.mu.Unlock()
	if err != nil {
		return nil, "", err
	}
	return m.Status(ctx, sessionID), sessionID, nil
}

func (m *Manager) loginLocked(ctx context.Context, email, password string, persistRefreshToken bool) (string, error) {
	payload, err := m.deps.Bridge.LoginWithCredentials(ctx, email, password)
	if err != nil {
		return "", err
	}

	userKey := strings.ToLower(email)
	now := m.nowTime()
	username := payload.Username
	if username == "" {
		username = userKey
	}

	user, err := m.deps.Store.GetUser(ctx, userKey)
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return "", errors.Wrap(err, "[Login] GetUser")
	}
	if user == nil {
		user = &storage.UserCredential{UserKey: userKey}
	}
	user.Username = username
	user.UpdatedAt = now
	if persistRefreshToken {
		// Encrypt maps an empty token to nil, so a login that came back
		// without a refresh token also clears any previously stored one.
		user.RefreshTokenEncrypted = m.deps.Cipher.Encrypt(payload.RefreshToken)
	} else {
		user.RefreshTokenEncrypted = nil
	}
	if err := m.deps.Store.PutUser(ctx, user); err != nil {
		return "", errors.Wrap(err, "[Login] PutUser")
	}

	sessionID, err := newSessionID()
	if err != nil {
		return "", errors.Wrap(err, "[Login] newSessionID")
	}
	session := &storage.BrowserSession{
		SessionID:   sessionID,
		UserKey:     userKey,
		AccessToken: payload.AccessToken,
		IDToken:     payload.IDToken,
		ExpiresAt:   now.Add(time.Duration(payload.ExpiresIn) * time.Second),
		LastSeenAt:  now,
		CreatedAt:   now,
	}
	if err := m.deps.Store.PutSession(ctx, session); err != nil {
		return "", errors.Wrap(err, "[Login] PutSession")
	}
	return sessionID, nil
}

// GetBearerToken resolves a session to a bearer token, refreshing through the
// provider when the token has crossed its expiry-minus-skew threshold or when
// forceRefresh is set. Returns the bearer token and the owning user key.
func (m *Manager) GetBearerToken(ctx context.Context, sessionID string, forceRefresh bool) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bearerLocked(ctx, sessionID, forceRefresh)
}

func (m *Manager) bearerLocked(ctx context.Context, sessionID string, forceRefresh bool) (string, string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", "", autherrors.ErrUnauthenticated
	}
	session, err := m.deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", "", autherrors.ErrUnauthenticated
		}
		return "", "", errors.Wrap(err, "[GetBearerToken] GetSession")
	}
	if session.Revoked {
		return "", "", autherrors.ErrSessionExpired
	}

	user, err := m.deps.Store.GetUser(ctx, session.UserKey)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			// Orphaned session; its owner is gone, so it can never refresh.
			m.revokeSessionLocked(ctx, session)
			return "", "", autherrors.ErrUnauthenticated
		}
		return "", "", errors.Wrap(err, "[GetBearerToken] GetUser")
	}

	now := m.nowTime()
	if !forceRefresh && now.Before(session.ExpiresAt.Add(-m.cfg.GetRefreshSkew())) {
		session.LastSeenAt = now
		if err := m.deps.Store.PutSession(ctx, session); err != nil {
			return "", "", errors.Wrap(err, "[GetBearerToken] PutSession")
		}
		return bearerFromSession(session), session.UserKey, nil
	}

	refreshToken := m.deps.Cipher.Decrypt(user.RefreshTokenEncrypted)
	if refreshToken == "" {
		m.revokeSessionLocked(ctx, session)
		return "", "", autherrors.ErrSessionExpired
	}
	bearer, err := m.refreshLocked(ctx, session, user, refreshToken)
	if err != nil {
		return "", "", err
	}
	return bearer, session.UserKey, nil
}

// refreshLocked performs a refresh grant and commits the resulting state. A
// credential-classified failure tears the session and stored refresh token
// down before returning SessionExpired, so retrying the same session id fails
// deterministically. A transport or 5xx failure propagates untouched with no
// state mutated, keeping a good refresh token safe across provider outages.
func (m *Manager) refreshLocked(ctx context.Context, session *storage.BrowserSession, user *storage.UserCredential, refreshToken string) (string, error) {
	payload, err := m.deps.Bridge.RefreshTokens(ctx, refreshToken)
	if err != nil {
		if autherrors.IsCredentialFailure(err) {
			m.revokeSessionLocked(ctx, session)
			m.clearRefreshTokenLocked(ctx, user)
			return "", errors.Wrap(autherrors.ErrSessionExpired, "refresh grant rejected")
		}
		return "", err
	}

	now := m.nowTime()
	session.AccessToken = payload.AccessToken
	session.IDToken = payload.IDToken
	session.ExpiresAt = now.Add(time.Duration(payload.ExpiresIn) * time.Second)
	session.LastSeenAt = now
	session.Revoked = false
	if err := m.deps.Store.PutSession(ctx, session); err != nil {
		return "", errors.Wrap(err, "[refresh] PutSession")
	}

	// A non-empty refresh token here means the provider rotated it.
	if payload.RefreshToken != "" {
		user.RefreshTokenEncrypted = m.deps.Cipher.Encrypt(payload.RefreshToken)
		if payload.Username != "" {
			user.Username = payload.Username
		}
		user.UpdatedAt = now
		if err := m.deps.Store.PutUser(ctx, user); err != nil {
			return "", errors.Wrap(err, "[refresh] PutUser")
		}
	}
	return payload.BearerToken(), nil
}

// Logout revokes the named session, or with allDevices every session sharing
// its user key plus the user's stored refresh token. Idempotent: an
// unresolvable session is a no-op. Always reports the post-logout anonymous
// status.
func (m *Manager) Logout(ctx context.Context, sessionID string, allDevices bool) (*StatusPayload, error) {
	m.mu.Lock()
	err := m.logoutLocked(ctx, strings.TrimSpace(sessionID), allDevices)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return anonymousStatus(), nil
}

func (m *Manager) logoutLocked(ctx context.Context, sessionID string, allDevices bool) error {
	if sessionID == "" {
		return nil
	}
	session, err := m.deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "[Logout] GetSession")
	}

	if allDevices {
		user, err := m.deps.Store.GetUser(ctx, session.UserKey)
		if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
			return errors.Wrap(err, "[Logout] GetUser")
		}
		if user != nil {
			// This clear is the whole point of an all-devices logout; a failed
			// write must not let Logout report success.
			user.RefreshTokenEncrypted = nil
			user.UpdatedAt = m.nowTime()
			if err := m.deps.Store.PutUser(ctx, user); err != nil {
				return errors.Wrap(err, "[Logout] PutUser")
			}
		}
		if err := m.deps.Store.RevokeUserSessions(ctx, session.UserKey); err != nil {
			return errors.Wrap(err, "[Logout] RevokeUserSessions")
		}
		return nil
	}

	session.Revoked = true
	session.LastSeenAt = m.nowTime()
	if err := m.deps.Store.PutSession(ctx, session); err != nil {
		return errors.Wrap(err, "[Logout] PutSession")
	}
	return nil
}

// Status is the read-mostly variant of GetBearerToken that never fails: every
// failure mode is converted into a structured status value. An expired session
// with a stored refresh token triggers an opportunistic refresh here.
func (m *Manager) Status(ctx context.Context, sessionID string) *StatusPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked(ctx, strings.TrimSpace(sessionID))
}

func (m *Manager) statusLocked(ctx context.Context, sessionID string) *StatusPayload {
	if sessionID == "" {
		return anonymousStatus()
	}
	session, err := m.deps.Store.GetSession(ctx, sessionID)
	if err != nil || session.Revoked {
		return anonymousStatus()
	}
	user, err := m.deps.Store.GetUser(ctx, session.UserKey)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			m.revokeSessionLocked(ctx, session)
		}
		return anonymousStatus()
	}

	username := user.Username
	if username == "" {
		username = session.UserKey
	}
	refreshToken := m.deps.Cipher.Decrypt(user.RefreshTokenEncrypted)

	if m.nowTime().Before(session.ExpiresAt.Add(-m.cfg.GetRefreshSkew())) {
		session.LastSeenAt = m.nowTime()
		// Status never fails; a lost last-seen touch is not worth failing for.
		_ = m.deps.Store.PutSession(ctx, session)
		return okStatus(username, refreshToken != "")
	}
	if refreshToken == "" {
		m.revokeSessionLocked(ctx, session)
		return expiredStatus(username)
	}

	if _, err := m.refreshLocked(ctx, session, user, refreshToken); err != nil {
		if stderrors.Is(err, autherrors.ErrSessionExpired) || autherrors.IsCredentialFailure(err) {
			return expiredStatus(username)
		}
		return networkErrorStatus(username)
	}
	return okStatus(username, true)
}

// UserKeyForSession resolves a session id to its owning user key without
// touching tokens, for operations that only need an identity.
func (m *Manager) UserKeyForSession(ctx context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", autherrors.ErrUnauthenticated
	}
	session, err := m.deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", autherrors.ErrUnauthenticated
		}
		return "", errors.Wrap(err, "[UserKeyForSession] GetSession")
	}
	if session.Revoked {
		return "", autherrors.ErrSessionExpired
	}
	return session.UserKey, nil
}

// revokeSessionLocked is best-effort cleanup; a storage failure here leaves
// the row unrevoked but the caller still reports the failure it was already
// on its way to reporting.
func (m *Manager) revokeSessionLocked(ctx context.Context, session *storage.BrowserSession) {
	session.Revoked = true
	session.LastSeenAt = m.nowTime()
	_ = m.deps.Store.PutSession(ctx, session)
}

func (m *Manager) clearRefreshTokenLocked(ctx context.Context, user *storage.UserCredential) {
	user.RefreshTokenEncrypted = nil
	user.UpdatedAt = m.nowTime()
	_ = m.deps.Store.PutUser(ctx, user)
}

func bearerFromSession(session *storage.BrowserSession) string {
	if session.IDToken != "" {
		return session.IDToken
	}
	return session.AccessToken
}
