package lovable

import (
	"fmt"
	"strings"

	"remixctl/services/safety"

	"github.com/PuerkitoBio/goquery"
)

// RequestError is the tagged failure the client emits for non-success
// responses and transport errors. The safety retry policy branches on the
// kind instead of parsing prose.
type RequestError struct {
	Kind       safety.FailureKind
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("lovable: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("lovable: %s", e.Message)
}

func (e *RequestError) FailureKind() safety.FailureKind {
	return e.Kind
}

func kindFromStatus(status int) safety.FailureKind {
	switch status {
	case 401:
		return safety.FailUnauthorized
	case 403:
		return safety.FailForbidden
	case 404:
		return safety.FailNotFound
	case 409:
		return safety.FailAlreadyProcessed
	case 429:
		return safety.FailRateLimited
	}
	if status >= 500 {
		return safety.FailNetwork
	}
	return safety.FailUnknown
}

func statusError(status int, body []byte) *RequestError {
	message := responseErrorText(body)
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}
	kind := kindFromStatus(status)
	// the backend reports some permanent failures with a 500 and a
	// distinctive marker in the body
	if strings.Contains(strings.ToLower(message), "supabase") {
		kind = safety.FailBackend
	}
	return &RequestError{
		Kind:       kind,
		StatusCode: status,
		Message:    message,
	}
}

// responseErrorText extracts a displayable error message from a response
// body. The undocumented API mixes JSON errors with HTML error pages
// (cloudflare interstitials included), so HTML gets reduced to its title or
// first heading.
func responseErrorText(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}
	if !strings.HasPrefix(text, "<") {
		if len(text) > 200 {
			text = text[:200]
		}
		return text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}
