package dojo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	autherrors "dojotap/internal/errors"
)

type testDojoConfig struct {
	baseURL string
}

func (c testDojoConfig) GetDojoBaseURL() string               { return c.baseURL }
func (c testDojoConfig) GetDojoRequestTimeout() time.Duration { return 5 * time.Second }

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(testDojoConfig{baseURL: server.URL}, "bearer-1")
}

func TestClientFetchUser(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user", r.URL.Path)
		require.Equal(t, "Bearer bearer-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"displayName":"Player One","dojoCohort":"1100-1200"}`)
	}))

	user, err := client.FetchUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Player One", user["displayName"])
}

func TestClientFetchRequirements(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/requirements/ALL_COHORTS", r.URL.Path)
		require.Equal(t, "false", r.URL.Query().Get("scoreboardOnly"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"requirements":[{"id":"r-1","name":"Polgar Mates"}]}`)
	}))

	requirements, err := client.FetchRequirements(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, requirements, 1)
	require.Equal(t, "r-1", requirements[0]["id"])
}

func TestClientUnauthorized(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "expired token", http.StatusUnauthorized)
	}))

	_, err := client.FetchUser(context.Background())
	require.True(t, IsUnauthorized(err))

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusUnauthorized, upstreamErr.StatusCode)
}

func TestClientUpstreamFailureCarriesStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))

	_, err := client.FetchCustomAccess(context.Background())
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusForbidden, upstreamErr.StatusCode)
	require.False(t, IsUnauthorized(err))
}

func TestClientNetworkErrorIsUpstreamUnavailable(t *testing.T) {
	client := NewClient(testDojoConfig{baseURL: "http://127.0.0.1:1"}, "bearer-1")

	_, err := client.FetchUser(context.Background())
	require.ErrorIs(t, err, autherrors.ErrUpstreamUnavailable)
}

func TestClientMalformedJSONIsUpstreamUnavailable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html>definitely not json</html>`)
	}))

	_, err := client.FetchUser(context.Background())
	require.ErrorIs(t, err, autherrors.ErrUpstreamUnavailable)
}

func TestClientPostProgress(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/user/progress/v3", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"recorded"}`)
	}))

	response, err := client.PostProgress(context.Background(), map[string]any{"requirementId": "r-1"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"status": "recorded"}, response)
}

func TestClientPostProgressTextResponse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "ok")
	}))

	response, err := client.PostProgress(context.Background(), map[string]any{"requirementId": "r-1"})
	require.NoError(t, err)
	require.Equal(t, "ok", response)
}
