package config

import "time"

type AuthConfig interface {
	// GetRefreshSkew is subtracted from a session token's absolute expiry
	// before comparing against now, so tokens renew slightly before the
	// provider would reject them.
	GetRefreshSkew() time.Duration
	// GetBootstrapCacheMaxAge bounds how stale a cached bootstrap payload may
	// be before it is no longer served as a fallback. Zero disables the bound.
	GetBootstrapCacheMaxAge() time.Duration
}

type Auth struct{}

var _ AuthConfig = Auth{}

func (Auth) GetRefreshSkew() time.Duration {
	return GetEnvSeconds("AUTH_REFRESH_SKEW_SECONDS", 120*time.Second)
}

func (Auth) GetBootstrapCacheMaxAge() time.Duration {
	return GetEnvSeconds("BOOTSTRAP_CACHE_MAX_AGE_SECONDS", 24*time.Hour)
}
