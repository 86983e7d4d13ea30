package config

import (
	"strings"
	"time"
)

// CognitoConfig describes the identity provider the OAuth bridge logs in
// against. None of these values are validated beyond presence; malformed
// values surface as runtime failures on first use.
type CognitoConfig interface {
	GetCognitoClientID() string
	GetCognitoAuthDomain() string
	GetCognitoRedirectURI() string
	GetCognitoScope() string
	// GetCognitoIssuerURL optionally enables OIDC signature verification of
	// returned ID tokens. Empty disables verification.
	GetCognitoIssuerURL() string
	GetRequestTimeout() time.Duration
}

type Cognito struct{}

var _ CognitoConfig = Cognito{}

func (Cognito) GetCognitoClientID() string {
	return GetEnv("COGNITO_USER_POOL_CLIENT_ID", "")
}

// GetCognitoAuthDomain returns the Cognito hosted-UI base URL without a
// trailing slash, e.g. "https://chess-dojo.auth.us-east-1.amazoncognito.com".
func (Cognito) GetCognitoAuthDomain() string {
	return strings.TrimRight(GetEnv("COGNITO_AUTH_DOMAIN", ""), "/")
}

func (Cognito) GetCognitoRedirectURI() string {
	return GetEnv("COGNITO_OAUTH_REDIRECT_URI", "https://www.chessdojo.club/")
}

func (Cognito) GetCognitoScope() string {
	return GetEnv("COGNITO_OAUTH_SCOPE", "openid email profile")
}

func (Cognito) GetCognitoIssuerURL() string {
	return GetEnv("COGNITO_ISSUER_URL", "")
}

func (Cognito) GetRequestTimeout() time.Duration {
	return GetEnvSeconds("REQUEST_TIMEOUT_SECONDS", 20*time.Second)
}
