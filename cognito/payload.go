package cognito

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	autherrors "dojotap/internal/errors"
)

const (
	defaultExpirySeconds = 3600
	// Floor applied to provider-supplied expiries so a pathological value can
	// never put the manager in an immediate-expiry refresh loop.
	minExpirySeconds = 60
)

// TokenPayload is the typed result of a token-endpoint response, with
// defaulting rules applied once at this boundary and never re-parsed
// downstream.
type TokenPayload struct {
	AccessToken  string
	IDToken      string
	RefreshToken string // empty means the provider did not return one
	ExpiresIn    int    // seconds
	Username     string // best-effort, from the ID token claims
}

// BearerToken prefers the ID token and falls back to the access token. The
// constructor guarantees at least one is present.
func (p *TokenPayload) BearerToken() string {
	if p.IDToken != "" {
		return p.IDToken
	}
	return p.AccessToken
}

func newTokenPayload(tok *oauth2.Token, now time.Time) (*TokenPayload, error) {
	idToken, _ := tok.Extra("id_token").(string)
	idToken = strings.TrimSpace(idToken)
	accessToken := strings.TrimSpace(tok.AccessToken)
	if idToken == "" && accessToken == "" {
		return nil, errors.Wrap(autherrors.ErrUpstreamUnavailable, "token response missing a bearer token")
	}

	expiresIn := defaultExpirySeconds
	if !tok.Expiry.IsZero() {
		expiresIn = int(tok.Expiry.Sub(now) / time.Second)
	}
	if expiresIn < minExpirySeconds {
		expiresIn = minExpirySeconds
	}

	return &TokenPayload{
		AccessToken:  accessToken,
		IDToken:      idToken,
		RefreshToken: strings.TrimSpace(tok.RefreshToken),
		ExpiresIn:    expiresIn,
		Username:     usernameFromIDToken(idToken),
	}, nil
}

// usernameFromIDToken extracts a display username from the ID token claims
// without verifying the signature; the token came straight off the provider's
// TLS channel and is consumed for display only. Signature verification, when
// configured, happens separately against the issuer's JWKS.
func usernameFromIDToken(idToken string) string {
	if idToken == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return ""
	}
	for _, key := range []string{"email", "cognito:username", "username"} {
		if value, ok := claims[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
