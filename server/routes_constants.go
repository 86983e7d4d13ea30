package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteAuthLogin  = "/api/auth/login"
	RouteAuthLogout = "/api/auth/logout"
	RouteAuthStatus = "/api/auth/status"

	RouteBootstrap   = "/api/bootstrap"
	RouteProgress    = "/api/progress"
	RoutePreferences = "/api/preferences"

	RouteHealth = "/api/health"
)

// SessionCookieName carries the session identifier for browser clients; the
// SessionHeaderName fallback serves clients that cannot use cookies.
const (
	SessionCookieName = "dojotap_session"
	SessionHeaderName = "X-Session-ID"
)
