package cognito

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"dojotap/internal/config"
	autherrors "dojotap/internal/errors"
)

type testCognitoConfig struct {
	clientID    string
	authDomain  string
	redirectURI string
}

var _ config.CognitoConfig = testCognitoConfig{}

func (c testCognitoConfig) GetCognitoClientID() string       { return c.clientID }
func (c testCognitoConfig) GetCognitoAuthDomain() string     { return c.authDomain }
func (c testCognitoConfig) GetCognitoRedirectURI() string    { return c.redirectURI }
func (c testCognitoConfig) GetCognitoScope() string          { return "openid email profile" }
func (c testCognitoConfig) GetCognitoIssuerURL() string      { return "" }
func (c testCognitoConfig) GetRequestTimeout() time.Duration { return 5 * time.Second }

// hostedUIFixture fakes the Cognito hosted UI and token endpoint. Each
// handler can be swapped per test before the first request.
type hostedUIFixture struct {
	server    *httptest.Server
	authorize http.HandlerFunc
	login     http.HandlerFunc
	token     http.HandlerFunc

	mu            sync.Mutex
	lastLoginForm url.Values
	lastTokenForm url.Values
}

func newHostedUIFixture(t *testing.T) *hostedUIFixture {
	t.Helper()
	fixture := &hostedUIFixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth2/authorize", func(w http.ResponseWriter, r *http.Request) {
		fixture.authorize(w, r)
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		fixture.mu.Lock()
		fixture.lastLoginForm = r.PostForm
		fixture.mu.Unlock()
		fixture.login(w, r)
	})
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		fixture.mu.Lock()
		fixture.lastTokenForm = r.PostForm
		fixture.mu.Unlock()
		fixture.token(w, r)
	})
	fixture.server = httptest.NewServer(mux)
	t.Cleanup(fixture.server.Close)

	fixture.authorize = fixture.serveLoginForm
	fixture.login = func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.chessdojo.club/?code=code-123", http.StatusFound)
	}
	fixture.token = func(w http.ResponseWriter, r *http.Request) {
		writeTokenJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-token-1",
			"id_token":      makeIDToken(t, "player@example.com"),
			"refresh_token": "refresh-token-1",
			"expires_in":    3600,
			"token_type":    "Bearer",
		})
	}
	return fixture
}

func (f *hostedUIFixture) serveLoginForm(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, `<html><body>
<form name="cognitoSignInForm" method="post" action="/login">
  <input type="hidden" name="_csrf" value="csrf-abc"/>
</form>
</body></html>`)
}

func (f *hostedUIFixture) bridge() *Bridge {
	return New(testCognitoConfig{
		clientID:    "client-1",
		authDomain:  f.server.URL,
		redirectURI: "https://www.chessdojo.club/",
	})
}

func writeTokenJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func makeIDToken(t *testing.T, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email":            email,
		"cognito:username": "a1b2c3d4-sub",
		"exp":              time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return signed
}

func TestLoginWithCredentialsFullFlow(t *testing.T) {
	fixture := newHostedUIFixture(t)

	payload, err := fixture.bridge().LoginWithCredentials(context.Background(), "player@example.com", "hunter2")
	require.NoError(t, err)

	require.Equal(t, "access-token-1", payload.AccessToken)
	require.NotEmpty(t, payload.IDToken)
	require.Equal(t, payload.IDToken, payload.BearerToken())
	require.Equal(t, "refresh-token-1", payload.RefreshToken)
	require.Equal(t, "player@example.com", payload.Username)
	require.InDelta(t, 3600, payload.ExpiresIn, 5)

	fixture.mu.Lock()
	defer fixture.mu.Unlock()
	require.Equal(t, "csrf-abc", fixture.lastLoginForm.Get("_csrf"))
	require.Equal(t, "player@example.com", fixture.lastLoginForm.Get("username"))
	require.Equal(t, "hunter2", fixture.lastLoginForm.Get("password"))
	require.Equal(t, "authorization_code", fixture.lastTokenForm.Get("grant_type"))
	require.Equal(t, "code-123", fixture.lastTokenForm.Get("code"))
	require.Equal(t, "client-1", fixture.lastTokenForm.Get("client_id"))
}

func TestLoginWithCredentialsWrongPassword(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.login = func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><p id="loginErrorMessage">Incorrect username or password.</p></html>`)
	}

	_, err := fixture.bridge().LoginWithCredentials(context.Background(), "player@example.com", "wrong")
	require.ErrorIs(t, err, autherrors.ErrLoginRejected)
	require.Contains(t, err.Error(), "Incorrect username or password.")
	require.True(t, autherrors.IsCredentialFailure(err))
}

func TestLoginWithCredentialsErrorRedirect(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.login = func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.chessdojo.club/?error=access_denied&error_description=User+is+disabled", http.StatusFound)
	}

	_, err := fixture.bridge().LoginWithCredentials(context.Background(), "player@example.com", "hunter2")
	require.ErrorIs(t, err, autherrors.ErrLoginRejected)
	require.Contains(t, err.Error(), "User is disabled")
}

func TestLoginWithCredentialsPageChanged(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.authorize = func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>We have redesigned our sign-in experience.</body></html>`)
	}

	_, err := fixture.bridge().LoginWithCredentials(context.Background(), "player@example.com", "hunter2")
	require.ErrorIs(t, err, autherrors.ErrLoginPageChanged)
	require.False(t, autherrors.IsCredentialFailure(err))
}

func TestLoginWithCredentialsAuthorizeDown(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.authorize = func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}

	_, err := fixture.bridge().LoginWithCredentials(context.Background(), "player@example.com", "hunter2")
	require.ErrorIs(t, err, autherrors.ErrUpstreamUnavailable)
	require.False(t, autherrors.IsCredentialFailure(err))
}

func TestLoginWithCredentialsNoRedirectAfterPost(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.login = func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>Please confirm your account.</body></html>`)
	}

	_, err := fixture.bridge().LoginWithCredentials(context.Background(), "player@example.com", "hunter2")
	require.ErrorIs(t, err, autherrors.ErrUpstreamBadRequest)
}

func TestLoginExistingHostedUISession(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.authorize = func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/callback?code=code-456", http.StatusFound)
	}
	mux, ok := fixture.server.Config.Handler.(*http.ServeMux)
	require.True(t, ok)
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "signed in")
	})

	bridge := New(testCognitoConfig{
		clientID:    "client-1",
		authDomain:  fixture.server.URL,
		redirectURI: fixture.server.URL + "/callback",
	})

	payload, err := bridge.LoginWithCredentials(context.Background(), "player@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "refresh-token-1", payload.RefreshToken)

	fixture.mu.Lock()
	defer fixture.mu.Unlock()
	require.Equal(t, "code-456", fixture.lastTokenForm.Get("code"))
	require.Nil(t, fixture.lastLoginForm)
}

func TestRefreshTokensSuccess(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.token = func(w http.ResponseWriter, _ *http.Request) {
		writeTokenJSON(w, http.StatusOK, map[string]any{
			"access_token": "access-token-2",
			"id_token":     makeIDToken(t, "player@example.com"),
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}

	payload, err := fixture.bridge().RefreshTokens(context.Background(), "refresh-token-1")
	require.NoError(t, err)
	require.Equal(t, "access-token-2", payload.AccessToken)
	// Cognito does not rotate refresh tokens; absence in the response must
	// come back as empty, not as an error.
	require.Empty(t, payload.RefreshToken)
	require.Equal(t, "player@example.com", payload.Username)

	fixture.mu.Lock()
	defer fixture.mu.Unlock()
	require.Equal(t, "refresh_token", fixture.lastTokenForm.Get("grant_type"))
	require.Equal(t, "refresh-token-1", fixture.lastTokenForm.Get("refresh_token"))
}

func TestRefreshTokensRotation(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.token = func(w http.ResponseWriter, _ *http.Request) {
		writeTokenJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-token-2",
			"id_token":      makeIDToken(t, "player@example.com"),
			"refresh_token": "refresh-token-2",
			"expires_in":    3600,
			"token_type":    "Bearer",
		})
	}

	payload, err := fixture.bridge().RefreshTokens(context.Background(), "refresh-token-1")
	require.NoError(t, err)
	require.Equal(t, "refresh-token-2", payload.RefreshToken)
}

func TestRefreshTokensInvalidGrant(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.token = func(w http.ResponseWriter, _ *http.Request) {
		writeTokenJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "Refresh Token has been revoked",
		})
	}

	_, err := fixture.bridge().RefreshTokens(context.Background(), "revoked-token")
	require.ErrorIs(t, err, autherrors.ErrLoginRejected)
	require.True(t, autherrors.IsCredentialFailure(err))
	require.Contains(t, err.Error(), "Refresh Token has been revoked")
}

func TestRefreshTokensInvalidRequest(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.token = func(w http.ResponseWriter, _ *http.Request) {
		writeTokenJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid_request",
		})
	}

	_, err := fixture.bridge().RefreshTokens(context.Background(), "refresh-token-1")
	require.ErrorIs(t, err, autherrors.ErrUpstreamBadRequest)
	require.True(t, autherrors.IsCredentialFailure(err))
}

func TestRefreshTokensServerError(t *testing.T) {
	fixture := newHostedUIFixture(t)
	fixture.token = func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}

	_, err := fixture.bridge().RefreshTokens(context.Background(), "refresh-token-1")
	require.ErrorIs(t, err, autherrors.ErrUpstreamUnavailable)
	require.False(t, autherrors.IsCredentialFailure(err))
}

func TestRefreshTokensUnreachableProvider(t *testing.T) {
	bridge := New(testCognitoConfig{
		clientID:    "client-1",
		authDomain:  "http://127.0.0.1:1",
		redirectURI: "https://www.chessdojo.club/",
	})

	_, err := bridge.RefreshTokens(context.Background(), "refresh-token-1")
	require.ErrorIs(t, err, autherrors.ErrUpstreamUnavailable)
}

func TestNewTokenPayloadDefaults(t *testing.T) {
	now := time.Now()

	payload, err := newTokenPayload(&oauth2.Token{AccessToken: "access-1"}, now)
	require.NoError(t, err)
	require.Equal(t, defaultExpirySeconds, payload.ExpiresIn)
	require.Equal(t, "access-1", payload.BearerToken())

	short := &oauth2.Token{AccessToken: "access-1", Expiry: now.Add(5 * time.Second)}
	payload, err = newTokenPayload(short, now)
	require.NoError(t, err)
	require.Equal(t, minExpirySeconds, payload.ExpiresIn)

	_, err = newTokenPayload(&oauth2.Token{}, now)
	require.Error(t, err)
}
