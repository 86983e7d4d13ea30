package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"dojotap/auth"
)

type loginRequest struct {
	Email               string `json:"email"`
	Password            string `json:"password"`
	PersistRefreshToken *bool  `json:"persist_refresh_token"`
}

type loginResponse struct {
	*auth.StatusPayload
	SessionID string `json:"session_id"`
}

// sessionIDFromRequest resolves the opaque session identifier: the session
// cookie for browser clients, the X-Session-ID header for everything else.
func sessionIDFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(r.Header.Get(SessionHeaderName))
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.env != "DEV",
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.env != "DEV",
		MaxAge:   -1,
	})
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload loginRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.respondJSON(w, http.StatusUnprocessableEntity, detailBody("malformed login body"))
			return
		}
		persist := payload.PersistRefreshToken == nil || *payload.PersistRefreshToken

		status, sessionID, err := s.manager.Login(r.Context(), payload.Email, payload.Password, persist)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		s.setSessionCookie(w, sessionID)
		s.respondJSON(w, http.StatusOK, loginResponse{StatusPayload: status, SessionID: sessionID})
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allDevices := r.URL.Query().Get("all_devices") == "true"

		status, err := s.manager.Logout(r.Context(), sessionIDFromRequest(r), allDevices)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		s.clearSessionCookie(w)
		s.respondJSON(w, http.StatusOK, status)
	}
}

func (s *Server) AuthStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, s.manager.Status(r.Context(), sessionIDFromRequest(r)))
	}
}
