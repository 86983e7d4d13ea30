package cognito

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	autherrors "dojotap/internal/errors"
)

// classifyTokenError maps a token-endpoint failure onto the auth error
// taxonomy. The distinction matters: credential failures trigger a revocation
// cascade upstream, while transport and server failures must leave stored
// state untouched.
func classifyTokenError(err error, operation string) error {
	var retrieveErr *oauth2.RetrieveError
	if !stderrors.As(err, &retrieveErr) {
		return errors.Wrapf(autherrors.ErrUpstreamUnavailable, "cognito %s request failed: %v", operation, err)
	}

	status := 0
	if retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}
	detail := strings.TrimSpace(retrieveErr.ErrorDescription)
	if detail == "" {
		detail = fmt.Sprintf("cognito %s failed with status %d", operation, status)
	}

	switch strings.ToLower(strings.TrimSpace(retrieveErr.ErrorCode)) {
	case "invalid_grant", "unauthorized_client":
		return errors.Wrap(autherrors.ErrLoginRejected, detail)
	case "invalid_request", "unsupported_grant_type":
		return errors.Wrap(autherrors.ErrUpstreamBadRequest, detail)
	}
	if status >= 400 && status < 500 {
		return errors.Wrap(autherrors.ErrLoginRejected, detail)
	}
	return errors.Wrap(autherrors.ErrUpstreamUnavailable, detail)
}
