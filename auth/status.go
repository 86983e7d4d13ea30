package auth

// Auth modes reported in a StatusPayload.
const (
	AuthModeNone    = "none"
	AuthModeSession = "session"
)

// Auth states reported in a StatusPayload.
const (
	AuthStateOK           = "ok"
	AuthStateExpired      = "expired"
	AuthStateNetworkError = "network_error"
)

// StatusPayload is the structured answer to "can this session produce a
// bearer token right now". AuthState distinguishes "sign in again" (expired)
// from "try again later" (network_error); NeedsRelogin is the client-facing
// shorthand for the former.
type StatusPayload struct {
	Authenticated   bool   `json:"authenticated"`
	AuthMode        string `json:"auth_mode"`
	HasRefreshToken bool   `json:"has_refresh_token"`
	Username        string `json:"username"`
	AuthState       string `json:"auth_state"`
	NeedsRelogin    bool   `json:"needs_relogin"`
}

func anonymousStatus() *StatusPayload {
	return &StatusPayload{
		Authenticated:   false,
		AuthMode:        AuthModeNone,
		HasRefreshToken: false,
		Username:        "",
		AuthState:       AuthStateExpired,
		NeedsRelogin:    true,
	}
}

// expiredStatus is the answer for a resolvable session whose tokens can no
// longer be renewed. AuthMode stays "session": the caller had one, it just
// cannot authenticate anymore.
func expiredStatus(username string) *StatusPayload {
	return &StatusPayload{
		Authenticated:   false,
		AuthMode:        AuthModeSession,
		HasRefreshToken: false,
		Username:        username,
		AuthState:       AuthStateExpired,
		NeedsRelogin:    true,
	}
}

func networkErrorStatus(username string) *StatusPayload {
	return &StatusPayload{
		Authenticated:   false,
		AuthMode:        AuthModeSession,
		HasRefreshToken: true,
		Username:        username,
		AuthState:       AuthStateNetworkError,
		NeedsRelogin:    false,
	}
}

func okStatus(username string, hasRefreshToken bool) *StatusPayload {
	return &StatusPayload{
		Authenticated:   true,
		AuthMode:        AuthModeSession,
		HasRefreshToken: hasRefreshToken,
		Username:        username,
		AuthState:       AuthStateOK,
		NeedsRelogin:    false,
	}
}
