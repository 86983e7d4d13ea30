// Package dojo is the upstream ChessDojo API client plus the payload shaping
// that turns raw upstream documents into the responses the browser client
// consumes.
package dojo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"dojotap/internal/config"
	autherrors "dojotap/internal/errors"
)

// maxResponseBytes caps how much of an upstream response is read into memory.
const maxResponseBytes = 4 << 20

// detailBytes bounds how much upstream error body is echoed into error text.
const detailBytes = 300

// UpstreamError is a non-2xx response from the ChessDojo API. The status code
// is passed through to the client verbatim; a 401 additionally signals the
// handler layer to force a token refresh and retry once.
type UpstreamError struct {
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	return e.Detail
}

// IsUnauthorized reports whether err is an upstream 401.
func IsUnauthorized(err error) bool {
	var upstreamErr *UpstreamError
	return errors.As(err, &upstreamErr) && upstreamErr.StatusCode == http.StatusUnauthorized
}

// Client issues bearer-authenticated requests against the ChessDojo API. A
// Client is bound to one bearer token; the handler layer builds a fresh one
// per request from the session manager's current token.
type Client struct {
	baseURL string
	bearer  string
	http    *http.Client
}

func NewClient(cfg config.DojoConfig, bearerToken string) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GetDojoBaseURL(), "/"),
		bearer:  bearerToken,
		http:    &http.Client{Timeout: cfg.GetDojoRequestTimeout()},
	}
}

func (c *Client) FetchUser(ctx context.Context) (map[string]any, error) {
	var user map[string]any
	if err := c.getJSON(ctx, "/user", nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Client) FetchRequirements(ctx context.Context, scoreboardOnly bool) ([]map[string]any, error) {
	params := url.Values{"scoreboardOnly": {fmt.Sprintf("%t", scoreboardOnly)}}
	var payload struct {
		Requirements []map[string]any `json:"requirements"`
	}
	if err := c.getJSON(ctx, "/requirements/ALL_COHORTS", params, &payload); err != nil {
		return nil, err
	}
	return payload.Requirements, nil
}

func (c *Client) FetchCustomAccess(ctx context.Context) (map[string]any, error) {
	var payload map[string]any
	if err := c.getJSON(ctx, "/user/access/v2", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// PostProgress submits a progress entry and returns the upstream response:
// decoded JSON when the response is JSON, the raw text otherwise.
func (c *Client) PostProgress(ctx context.Context, payload map[string]any) (any, error) {
	body, resp, err := c.do(ctx, http.MethodPost, "/user/progress/v3", nil, payload)
	if err != nil {
		return nil, err
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "chessdojo POST /user/progress/v3 returned malformed JSON: %v", err)
		}
		return decoded, nil
	}
	return string(body), nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, _, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(autherrors.ErrUpstreamUnavailable, "chessdojo GET %s returned malformed JSON: %v", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload any) ([]byte, *http.Response, error) {
	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	var requestBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "[do] marshal %s %s", method, path)
		}
		requestBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, requestBody)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "[do] build %s %s", method, path)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "chessdojo %s %s network error: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "chessdojo %s %s read error: %v", method, path, err)
	}

	if resp.StatusCode >= 400 {
		detail := fmt.Sprintf("chessdojo %s %s failed: %s", method, path, truncate(string(body), detailBytes))
		if resp.StatusCode == http.StatusUnauthorized {
			detail = "chessdojo unauthorized; session token needs a refresh"
		}
		return nil, nil, &UpstreamError{StatusCode: resp.StatusCode, Detail: detail}
	}
	return body, resp, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
