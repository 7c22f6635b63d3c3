package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-blog-client/internal/errors"
	"github.com/jrsteele09/go-blog-client/oauth2"
)

var (
	ErrRefreshTimeout     = apperrors.ErrRefreshTimeout
	ErrQueueTimeout       = apperrors.ErrQueueTimeout
	ErrMalformedRefresh   = apperrors.ErrMalformedRefresh
	ErrMalformedLogin     = apperrors.ErrMalformedLogin
	ErrSessionInvalidated = apperrors.ErrSessionInvalidated
)

// HTTPError is a non-2xx response. Message is the server-provided text so UI
// layers can show it directly.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{StatusCode: status, Body: body}

	var env oauth2.Envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err == nil {
		e.Message = env.ErrorMessage()
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// isTerminalRefreshError reports whether the refresh endpoint rejected the
// refresh token itself, as opposed to a transport or payload failure.
func isTerminalRefreshError(err error) bool {
	switch StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}
