// Package cognito drives the Cognito hosted-UI login flow and the OAuth2
// token endpoint, turning credentials or refresh tokens into TokenPayloads.
package cognito

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"dojotap/internal/config"
	autherrors "dojotap/internal/errors"
)

// maxPageBytes caps how much of a hosted-UI page is read into memory.
const maxPageBytes = 1 << 20

// Bridge performs logins and refresh grants against a Cognito user pool.
// It is stateless apart from the lazily-built ID token verifier and safe for
// concurrent use.
type Bridge struct {
	cfg    config.CognitoConfig
	parser PageParser

	verifierMu sync.Mutex
	verifier   *oidc.IDTokenVerifier
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPageParser overrides the hosted-UI page parser.
func WithPageParser(parser PageParser) Option {
	return func(b *Bridge) { b.parser = parser }
}

func New(cfg config.CognitoConfig, options ...Option) *Bridge {
	bridge := &Bridge{
		cfg:    cfg,
		parser: HostedUIParser{},
	}
	for _, option := range options {
		option(bridge)
	}
	return bridge
}

func (b *Bridge) oauthConfig() *oauth2.Config {
	domain := strings.TrimRight(b.cfg.GetCognitoAuthDomain(), "/")
	return &oauth2.Config{
		ClientID:    b.cfg.GetCognitoClientID(),
		RedirectURL: b.cfg.GetCognitoRedirectURI(),
		Scopes:      strings.Fields(b.cfg.GetCognitoScope()),
		Endpoint: oauth2.Endpoint{
			AuthURL:   domain + "/oauth2/authorize",
			TokenURL:  domain + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// LoginWithCredentials performs the full hosted-UI authorization-code flow:
// load the authorize page, scrape the sign-in form, submit the credentials,
// follow the resulting redirect to the authorization code, and exchange the
// code for tokens. A fresh cookie jar is used per call so concurrent logins
// never share hosted-UI session state.
func (b *Bridge) LoginWithCredentials(ctx context.Context, username, password string) (*TokenPayload, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "[LoginWithCredentials] cookiejar.New")
	}
	timeout := b.cfg.GetRequestTimeout()
	follow := &http.Client{Timeout: timeout, Jar: jar}
	// The credential POST must not auto-follow: the authorization code lives
	// in the redirect Location and the redirect target may be an external
	// site we have no reason to fetch.
	noFollow := &http.Client{
		Timeout: timeout,
		Jar:     jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	conf := b.oauthConfig()

	pageResp, err := b.get(ctx, follow, conf.AuthCodeURL(""))
	if err != nil {
		return nil, err
	}
	defer pageResp.Body.Close()
	if pageResp.StatusCode >= 400 {
		return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "authorize endpoint returned status %d", pageResp.StatusCode)
	}

	// An existing hosted-UI session can short-circuit straight to the
	// redirect URI with a code attached.
	if code, oauthErr := codeOrErrorFromURL(pageResp.Request.URL); oauthErr != "" {
		return nil, errors.Wrap(autherrors.ErrLoginRejected, oauthErr)
	} else if code != "" {
		return b.exchangeCode(ctx, follow, conf, code)
	}

	page, err := readPage(pageResp.Body)
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "reading authorize page: %v", err)
	}
	formAction := b.parser.FormAction(page)
	csrfToken := b.parser.CSRFToken(page)
	if formAction == "" || csrfToken == "" {
		return nil, errors.Wrap(autherrors.ErrLoginPageChanged, "sign-in form or CSRF token not found on login page")
	}

	loginURL, err := pageResp.Request.URL.Parse(formAction)
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrLoginPageChanged, "resolving login form action %q: %v", formAction, err)
	}

	form := url.Values{
		"_csrf":          {csrfToken},
		"username":       {username},
		"password":       {password},
		"cognitoAsfData": {""},
	}
	loginResp, err := b.postForm(ctx, noFollow, loginURL.String(), form)
	if err != nil {
		return nil, err
	}
	defer loginResp.Body.Close()

	if isRedirect(loginResp.StatusCode) {
		return b.followLoginRedirect(ctx, follow, conf, loginResp)
	}

	loginPage, err := readPage(loginResp.Body)
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "reading login response: %v", err)
	}
	if message := b.parser.ErrorMessage(loginPage); message != "" {
		return nil, errors.Wrap(autherrors.ErrLoginRejected, message)
	}
	switch loginResp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return nil, errors.Wrap(autherrors.ErrLoginRejected, "login rejected by the identity provider")
	}
	if loginResp.StatusCode >= 400 {
		return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "login failed with status %d", loginResp.StatusCode)
	}
	return nil, errors.Wrap(autherrors.ErrUpstreamBadRequest, "login did not produce an authorization code; an additional challenge may be required")
}

// followLoginRedirect chases the post-credential redirect until an
// authorization code, an OAuth error, or a rendered error page turns up.
func (b *Bridge) followLoginRedirect(ctx context.Context, follow *http.Client, conf *oauth2.Config, loginResp *http.Response) (*TokenPayload, error) {
	location := strings.TrimSpace(loginResp.Header.Get("Location"))
	if location == "" {
		return nil, errors.Wrap(autherrors.ErrUpstreamUnavailable, "login redirect missing a Location header")
	}
	redirectURL, err := loginResp.Request.URL.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "resolving login redirect %q: %v", location, err)
	}

	if code, oauthErr := codeOrErrorFromURL(redirectURL); oauthErr != "" {
		return nil, errors.Wrap(autherrors.ErrLoginRejected, oauthErr)
	} else if code != "" {
		return b.exchangeCode(ctx, follow, conf, code)
	}

	// The redirect pointed back into the hosted UI (an interstitial or a
	// re-rendered form); follow it and inspect where we land.
	nextResp, err := b.get(ctx, follow, redirectURL.String())
	if err != nil {
		return nil, err
	}
	defer nextResp.Body.Close()

	if code, oauthErr := codeOrErrorFromURL(nextResp.Request.URL); oauthErr != "" {
		return nil, errors.Wrap(autherrors.ErrLoginRejected, oauthErr)
	} else if code != "" {
		return b.exchangeCode(ctx, follow, conf, code)
	}

	nextPage, err := readPage(nextResp.Body)
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "reading post-login page: %v", err)
	}
	if message := b.parser.ErrorMessage(nextPage); message != "" {
		return nil, errors.Wrap(autherrors.ErrLoginRejected, message)
	}
	return nil, errors.Wrap(autherrors.ErrUpstreamBadRequest, "login did not produce an authorization code; an additional challenge may be required")
}

// RefreshTokens exchanges a refresh token for a new token set. The returned
// payload carries a refresh token only when the provider rotated it; an
// unrotated token comes back empty.
func (b *Bridge) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPayload, error) {
	client := &http.Client{Timeout: b.cfg.GetRequestTimeout()}
	source := b.oauthConfig().TokenSource(
		context.WithValue(ctx, oauth2.HTTPClient, client),
		&oauth2.Token{RefreshToken: refreshToken},
	)
	tok, err := source.Token()
	if err != nil {
		return nil, classifyTokenError(err, "refresh")
	}
	payload, err := b.tokenPayload(ctx, tok)
	if err != nil {
		return nil, err
	}
	// The oauth2 token source echoes the request's refresh token back when the
	// provider does not rotate it. Blank it so an unrotated token reads as
	// "nothing new to persist".
	if payload.RefreshToken == refreshToken {
		payload.RefreshToken = ""
	}
	return payload, nil
}

func (b *Bridge) exchangeCode(ctx context.Context, client *http.Client, conf *oauth2.Config, code string) (*TokenPayload, error) {
	tok, err := conf.Exchange(context.WithValue(ctx, oauth2.HTTPClient, client), code)
	if err != nil {
		return nil, classifyTokenError(err, "code exchange")
	}
	return b.tokenPayload(ctx, tok)
}

func (b *Bridge) tokenPayload(ctx context.Context, tok *oauth2.Token) (*TokenPayload, error) {
	payload, err := newTokenPayload(tok, time.Now())
	if err != nil {
		return nil, err
	}
	if err := b.verifyIDToken(ctx, payload.IDToken); err != nil {
		return nil, err
	}
	return payload, nil
}

// verifyIDToken checks the ID token signature against the issuer's JWKS when
// an issuer URL is configured. Without one, verification is skipped and the
// token is trusted on the strength of the TLS channel it arrived over.
func (b *Bridge) verifyIDToken(ctx context.Context, rawIDToken string) error {
	issuer := b.cfg.GetCognitoIssuerURL()
	if issuer == "" || rawIDToken == "" {
		return nil
	}

	b.verifierMu.Lock()
	if b.verifier == nil {
		provider, err := oidc.NewProvider(ctx, issuer)
		if err != nil {
			b.verifierMu.Unlock()
			return errors.Wrapf(autherrors.ErrUpstreamUnavailable, "oidc discovery for %s failed: %v", issuer, err)
		}
		b.verifier = provider.Verifier(&oidc.Config{ClientID: b.cfg.GetCognitoClientID()})
	}
	verifier := b.verifier
	b.verifierMu.Unlock()

	if _, err := verifier.Verify(ctx, rawIDToken); err != nil {
		return errors.Wrapf(autherrors.ErrUpstreamUnavailable, "id token verification failed: %v", err)
	}
	return nil
}

func (b *Bridge) get(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "building request for %s: %v", rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "request to identity provider failed: %v", err)
	}
	return resp, nil
}

func (b *Bridge) postForm(ctx context.Context, client *http.Client, rawURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "building request for %s: %v", rawURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(autherrors.ErrUpstreamUnavailable, "request to identity provider failed: %v", err)
	}
	return resp, nil
}

func readPage(body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// codeOrErrorFromURL pulls the authorization code or OAuth error out of a
// redirect URL's query string. error_description takes precedence over the
// bare error code because it is the human-readable one.
func codeOrErrorFromURL(u *url.URL) (code, oauthError string) {
	params := u.Query()
	code = strings.TrimSpace(params.Get("code"))
	oauthError = strings.TrimSpace(params.Get("error_description"))
	if oauthError == "" {
		oauthError = strings.TrimSpace(params.Get("error"))
	}
	return code, oauthError
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
