package cognito

import (
	"html"
	"regexp"
	"strings"
)

// PageParser extracts the pieces of the hosted login page the bridge needs to
// drive a credential submission. Implementations are swappable so the scraping
// strategy can change without touching the login flow itself.
type PageParser interface {
	// FormAction returns the sign-in form's action URL, or "" if the form is
	// not present on the page.
	FormAction(pageHTML string) string
	// CSRFToken returns the hidden _csrf field value, or "".
	CSRFToken(pageHTML string) string
	// ErrorMessage returns the human-readable login error rendered on the
	// page, or "" if none is shown.
	ErrorMessage(pageHTML string) string
}

// HostedUIParser is the default PageParser for the Cognito hosted UI. The
// hosted UI is server-rendered with stable element names, so a couple of
// regexes are sufficient and avoid a full HTML parse.
type HostedUIParser struct{}

var (
	// The form tag's attribute order is not guaranteed, so both orderings of
	// name and action are matched.
	formActionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<form[^>]*name="cognitoSignInForm"[^>]*action="([^"]+)"`),
		regexp.MustCompile(`(?i)<form[^>]*action="([^"]+)"[^>]*name="cognitoSignInForm"`),
	}
	csrfPattern       = regexp.MustCompile(`(?i)name="_csrf"\s+value="([^"]+)"`)
	loginErrorPattern = regexp.MustCompile(`(?is)id="loginErrorMessage"[^>]*>(.*?)</p>`)
	whitespaceRuns    = regexp.MustCompile(`\s+`)
)

func (HostedUIParser) FormAction(pageHTML string) string {
	for _, pattern := range formActionPatterns {
		if match := pattern.FindStringSubmatch(pageHTML); match != nil {
			return html.UnescapeString(match[1])
		}
	}
	return ""
}

func (HostedUIParser) CSRFToken(pageHTML string) string {
	if match := csrfPattern.FindStringSubmatch(pageHTML); match != nil {
		return match[1]
	}
	return ""
}

func (HostedUIParser) ErrorMessage(pageHTML string) string {
	match := loginErrorPattern.FindStringSubmatch(pageHTML)
	if match == nil {
		return ""
	}
	message := html.UnescapeString(match[1])
	return strings.TrimSpace(whitespaceRuns.ReplaceAllString(message, " "))
}
