package tokencipher_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dojotap/tokencipher"
)

func TestCipher_RoundTrip(t *testing.T) {
	c := tokencipher.New("test-passphrase")

	for _, plaintext := range []string{"refresh-token-1", "x", "a much longer refresh token value with spaces"} {
		encrypted := c.Encrypt(plaintext)
		require.NotNil(t, encrypted)
		require.NotEqual(t, plaintext, *encrypted)
		require.Equal(t, plaintext, c.Decrypt(encrypted))
	}
}

func TestCipher_EmptyPlaintextEncryptsToNil(t *testing.T) {
	c := tokencipher.New("test-passphrase")

	require.Nil(t, c.Encrypt(""))
	require.Nil(t, c.Encrypt("   \t\n"))
}

func TestCipher_TrimsPlaintext(t *testing.T) {
	c := tokencipher.New("test-passphrase")

	encrypted := c.Encrypt("  padded-token  ")
	require.NotNil(t, encrypted)
	require.Equal(t, "padded-token", c.Decrypt(encrypted))
}

func TestCipher_DecryptSoftFails(t *testing.T) {
	c := tokencipher.New("test-passphrase")

	garbage := "not-even-ciphertext"
	require.Equal(t, "", c.Decrypt(&garbage))

	short := "AAAA"
	require.Equal(t, "", c.Decrypt(&short))

	empty := ""
	require.Equal(t, "", c.Decrypt(&empty))
	require.Equal(t, "", c.Decrypt(nil))
}

func TestCipher_WrongKeyDecryptsToEmpty(t *testing.T) {
	writer := tokencipher.New("passphrase-one")
	reader := tokencipher.New("passphrase-two")

	encrypted := writer.Encrypt("refresh-token-1")
	require.NotNil(t, encrypted)
	require.Equal(t, "", reader.Decrypt(encrypted))
}

func TestCipher_NonDeterministicCiphertext(t *testing.T) {
	c := tokencipher.New("test-passphrase")

	first := c.Encrypt("refresh-token-1")
	second := c.Encrypt("refresh-token-1")
	require.NotNil(t, first)
	require.NotNil(t, second)
	require.NotEqual(t, *first, *second)
}
