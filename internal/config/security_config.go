package config

type SecurityConfig interface {
	// GetTokenPassphrase is the passphrase the refresh-token cipher derives
	// its key from. When blank the cipher falls back to a dev-only default
	// that must never be used in a deployed environment.
	GetTokenPassphrase() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetTokenPassphrase() string {
	return GetEnv("TOKEN_ENCRYPTION_PASSPHRASE", "")
}
