package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"dojotap/dojo"
	apperrors "dojotap/internal/errors"
)

func detailBody(detail string) map[string]string {
	return map[string]string{"detail": detail}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("encoding response")
	}
}

func (s *Server) respondRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.log.Error().Err(err).Msg("writing response")
	}
}

// respondError maps a taxonomy error onto an HTTP status and the
// {"detail": ...} body shape the browser client expects. Upstream errors pass
// their status through verbatim.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	var upstreamErr *dojo.UpstreamError
	if errors.As(err, &upstreamErr) {
		status = upstreamErr.StatusCode
	}

	event := s.log.Warn()
	if status >= 500 {
		event = s.log.Error()
	}
	event.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request failed")

	s.respondJSON(w, status, detailBody(err.Error()))
}
