package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"dojotap/dojo"
	apperrors "dojotap/internal/errors"
)

// StaleCacheHeader marks a bootstrap response served from the last-known-good
// cache during an upstream outage; its value is the fetch time of the cached
// payload.
const StaleCacheHeader = "X-DojoTap-Stale-Cache"

// runWithAuthRetry resolves a bearer token for the session, runs the
// operation, and on an upstream 401 forces one token refresh and retries
// once. Returns the session's user key.
func (s *Server) runWithAuthRetry(ctx context.Context, sessionID string, operation func(client *dojo.Client) error) (string, error) {
	bearer, userKey, err := s.manager.GetBearerToken(ctx, sessionID, false)
	if err != nil {
		return "", err
	}
	err = operation(dojo.NewClient(s.config, bearer))
	if !dojo.IsUnauthorized(err) {
		return userKey, err
	}

	bearer, userKey, err = s.manager.GetBearerToken(ctx, sessionID, true)
	if err != nil {
		return "", err
	}
	return userKey, operation(dojo.NewClient(s.config, bearer))
}

// fetchCustomAccess tolerates 403/404, which upstream returns for accounts
// without any custom-task entitlement.
func fetchCustomAccess(ctx context.Context, client *dojo.Client) (map[string]any, error) {
	payload, err := client.FetchCustomAccess(ctx)
	if err != nil {
		var upstreamErr *dojo.UpstreamError
		if errors.As(err, &upstreamErr) &&
			(upstreamErr.StatusCode == http.StatusForbidden || upstreamErr.StatusCode == http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sessionID := sessionIDFromRequest(r)

		var bootstrap *dojo.BootstrapResponse
		userKey, err := s.runWithAuthRetry(ctx, sessionID, func(client *dojo.Client) error {
			userPayload, err := client.FetchUser(ctx)
			if err != nil {
				return err
			}
			requirements, err := client.FetchRequirements(ctx, false)
			if err != nil {
				return err
			}
			customAccess, err := fetchCustomAccess(ctx, client)
			if err != nil {
				return err
			}
			bootstrap = dojo.FormatBootstrap(userPayload, requirements, customAccess)
			return nil
		})
		if err != nil {
			if s.serveStaleBootstrap(ctx, w, sessionID, err) {
				return
			}
			s.respondError(w, r, err)
			return
		}

		encoded, err := json.Marshal(bootstrap)
		if err != nil {
			s.respondError(w, r, errors.Wrap(err, "[BootstrapHandler] marshal"))
			return
		}
		if err := s.manager.SaveBootstrapCache(ctx, userKey, encoded); err != nil {
			s.log.Warn().Err(err).Str("user_key", userKey).Msg("saving bootstrap cache")
		}
		s.respondRawJSON(w, http.StatusOK, encoded)
	}
}

// serveStaleBootstrap answers an upstream outage with the last-known-good
// bootstrap payload when one exists, flagged via StaleCacheHeader.
func (s *Server) serveStaleBootstrap(ctx context.Context, w http.ResponseWriter, sessionID string, cause error) bool {
	var upstreamErr *dojo.UpstreamError
	serverSideFailure := errors.As(cause, &upstreamErr) && upstreamErr.StatusCode >= 500
	if !serverSideFailure && !apperrors.Is(cause, apperrors.ErrUpstreamUnavailable) {
		return false
	}
	userKey, err := s.manager.UserKeyForSession(ctx, sessionID)
	if err != nil {
		return false
	}
	entry, err := s.manager.LoadBootstrapCache(ctx, userKey)
	if err != nil {
		return false
	}

	s.log.Warn().Str("user_key", userKey).Time("fetched_at", entry.FetchedAt).Msg("serving stale bootstrap cache")
	w.Header().Set(StaleCacheHeader, entry.FetchedAt.UTC().Format(time.RFC3339))
	s.respondRawJSON(w, http.StatusOK, entry.Payload)
	return true
}

type submitProgressRequest struct {
	RequirementID  string `json:"requirement_id"`
	CountIncrement int    `json:"count_increment"`
	MinutesSpent   int    `json:"minutes_spent"`
}

type submitProgressResponse struct {
	SubmittedPayload map[string]any `json:"submitted_payload"`
	UpstreamResponse any            `json:"upstream_response"`
}

func (payload *submitProgressRequest) validate() string {
	if payload.RequirementID == "" {
		return "requirement_id is required"
	}
	// Zero increments are valid for time-only tasks.
	if payload.CountIncrement < 0 {
		return "count_increment must not be negative"
	}
	if payload.MinutesSpent < 1 {
		return "minutes_spent must be at least 1"
	}
	return ""
}

func (s *Server) SubmitProgressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload submitProgressRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.respondJSON(w, http.StatusUnprocessableEntity, detailBody("malformed progress body"))
			return
		}
		if detail := payload.validate(); detail != "" {
			s.respondJSON(w, http.StatusUnprocessableEntity, detailBody(detail))
			return
		}

		var response submitProgressResponse
		_, err := s.runWithAuthRetry(ctx, sessionIDFromRequest(r), func(client *dojo.Client) error {
			userPayload, err := client.FetchUser(ctx)
			if err != nil {
				return err
			}
			requirements, err := client.FetchRequirements(ctx, false)
			if err != nil {
				return err
			}
			customAccess, err := fetchCustomAccess(ctx, client)
			if err != nil {
				return err
			}

			var requirement map[string]any
			for _, candidate := range dojo.MergeRequirements(requirements, customAccess) {
				if id, _ := candidate["id"].(string); id == payload.RequirementID {
					requirement = candidate
					break
				}
			}
			if requirement == nil {
				return errors.Wrap(apperrors.ErrNotFound, "Requirement not found.")
			}

			upstreamPayload := dojo.BuildProgressPayload(userPayload, requirement, payload.CountIncrement, payload.MinutesSpent, time.Now())
			upstreamResponse, err := client.PostProgress(ctx, upstreamPayload)
			if err != nil {
				return err
			}
			response = submitProgressResponse{SubmittedPayload: upstreamPayload, UpstreamResponse: upstreamResponse}
			return nil
		})
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, response)
	}
}

type updatePreferencesRequest struct {
	PinnedTaskIDs     []string                   `json:"pinned_task_ids"`
	TaskUIPreferences map[string]json.RawMessage `json:"task_ui_preferences"`
	ExpectedVersion   *int                       `json:"expected_version"`
}

func (s *Server) GetPreferencesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userKey, err := s.manager.UserKeyForSession(r.Context(), sessionIDFromRequest(r))
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		doc, err := s.manager.GetPreferences(r.Context(), userKey, nil)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, doc)
	}
}

func (s *Server) UpdatePreferencesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userKey, err := s.manager.UserKeyForSession(r.Context(), sessionIDFromRequest(r))
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		var payload updatePreferencesRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.respondJSON(w, http.StatusUnprocessableEntity, detailBody("malformed preferences body"))
			return
		}

		doc, err := s.manager.UpdatePreferences(r.Context(), userKey, payload.PinnedTaskIDs, payload.TaskUIPreferences, payload.ExpectedVersion)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, doc)
	}
}

type healthResponse struct {
	OK                bool `json:"ok"`
	Authenticated     bool `json:"authenticated"`
	UpstreamReachable bool `json:"upstream_reachable"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sessionID := sessionIDFromRequest(r)

		status := s.manager.Status(ctx, sessionID)
		if !status.Authenticated {
			s.respondJSON(w, http.StatusOK, healthResponse{})
			return
		}

		_, err := s.runWithAuthRetry(ctx, sessionID, func(client *dojo.Client) error {
			_, fetchErr := client.FetchUser(ctx)
			return fetchErr
		})
		s.respondJSON(w, http.StatusOK, healthResponse{
			OK:                err == nil,
			Authenticated:     true,
			UpstreamReachable: err == nil,
		})
	}
}
