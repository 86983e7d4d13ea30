// Package server is the HTTP layer: thin request/response marshaling around
// the session manager and the upstream ChessDojo client.
package server

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"dojotap/auth"
	"dojotap/internal/config"
)

type Server struct {
	mux     *http.ServeMux
	routes  []string
	env     string
	config  config.Config
	manager *auth.Manager
	log     zerolog.Logger
}

func New(cfg config.Config, manager *auth.Manager, log zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[server.New] config not configured")
	}
	if manager == nil {
		return nil, errors.New("[server.New] auth manager not configured")
	}

	s := &Server{
		mux:     http.NewServeMux(),
		config:  cfg,
		manager: manager,
		log:     log,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	api := s.APIMiddleware()

	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), api...))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), api...))
	s.RegisterRouteFunc("GET "+RouteAuthStatus, ChainMiddleware(s.AuthStatusHandler(), api...))

	s.RegisterRouteFunc("GET "+RouteBootstrap, ChainMiddleware(s.BootstrapHandler(), api...))
	s.RegisterRouteFunc("POST "+RouteProgress, ChainMiddleware(s.SubmitProgressHandler(), api...))
	s.RegisterRouteFunc("GET "+RoutePreferences, ChainMiddleware(s.GetPreferencesHandler(), api...))
	s.RegisterRouteFunc("PUT "+RoutePreferences, ChainMiddleware(s.UpdatePreferencesHandler(), api...))

	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), api...))

	// Preflight for every API route.
	s.RegisterRouteFunc("OPTIONS /api/", ChainMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, api...))
}

func (s *Server) LogRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		s.log.Info().Str("route", route).Msg("registered")
	}
}
