package auth

import (
	"crypto/rand"
	"encoding/base64"
)

// sessionIDBytes of entropy per session identifier; base64url-encoded this
// yields a 64-character opaque string.
const sessionIDBytes = 48

func newSessionID() (string, error) {
	raw := make([]byte, sessionIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
