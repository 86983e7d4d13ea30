// Package tokencipher encrypts refresh tokens before they are persisted.
// Decryption failures are soft: malformed or wrong-key ciphertext reads back
// as "no value", which callers treat identically to an absent refresh token.
package tokencipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"dojotap/internal/utils"
)

// DefaultPassphrase is used when no passphrase has been configured. It exists
// for local development only and must never end up in a deployed environment.
const DefaultPassphrase = "dojotap-dev-only-key"

const keyInfo = "dojotap refresh token cipher v1"

// Cipher wraps AES-256-GCM under a key derived deterministically from an
// operator-supplied passphrase, so key material never needs to be stored
// separately from configuration. Changing the passphrase makes previously
// written ciphertext unreadable; it then soft-fails to "no value".
type Cipher struct {
	aead cipher.AEAD
}

func New(passphrase string) *Cipher {
	normalized := strings.TrimSpace(passphrase)
	if normalized == "" {
		normalized = DefaultPassphrase
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(normalized), nil, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		// HKDF over SHA-256 cannot fail for a 32-byte read.
		panic("tokencipher: key derivation failed: " + err.Error())
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		panic("tokencipher: " + err.Error())
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic("tokencipher: " + err.Error())
	}
	return &Cipher{aead: aead}
}

// Encrypt returns base64url(nonce || ciphertext), or nil for empty or
// whitespace-only plaintext. "No value" is stored as null, never as the
// ciphertext of an empty string.
func (c *Cipher) Encrypt(plaintext string) *string {
	value := strings.TrimSpace(plaintext)
	if value == "" {
		return nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		panic("tokencipher: " + err.Error())
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(value), nil)
	return utils.Ptr(base64.RawURLEncoding.EncodeToString(sealed))
}

// Decrypt returns the plaintext, or "" when ciphertext is nil, empty,
// malformed, or was written under a different key.
func (c *Cipher) Decrypt(ciphertext *string) string {
	if ciphertext == nil {
		return ""
	}
	value := strings.TrimSpace(*ciphertext)
	if value == "" {
		return ""
	}

	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(raw) < c.aead.NonceSize() {
		return ""
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ""
	}
	return string(plaintext)
}
