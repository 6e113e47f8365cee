// ABOUTME: Error taxonomy for the conversation service API.
// ABOUTME: Transport vs status errors, session-expiry detection, user-facing classification.

package api

import (
	"errors"
	"fmt"
)

// CodeSessionExpired is the structured error code the backend attaches to a
// 404 caused by voice-session expiry, distinguishing it from a missing
// conversation.
const CodeSessionExpired = "SESSION_EXPIRED"

// maxRawBody bounds how much of a non-JSON response body is carried in a
// TransportError for diagnostics.
const maxRawBody = 512

// TransportError reports a failure below the domain: the network request
// itself failed, or the response was not the JSON the contract promises.
// A truncated copy of the raw body is kept for diagnostics.
type TransportError struct {
	Op          string
	Err         error  // underlying network error, nil for format failures
	ContentType string // set when the response content-type was unexpected
	RawBody     string // truncated raw body for non-JSON responses
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unexpected response (content-type %q): %s", e.Op, e.ContentType, e.RawBody)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx response that carried a readable body. The
// generic conversation API only exposes a message string; session endpoints
// additionally carry a structured Code.
type StatusError struct {
	Op      string
	Status  int
	Message string
	Code    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%d, code %s)", e.Op, e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Status)
}

// IsTransport reports whether err is a transport-level failure (network or
// response format), the kind background polling absorbs silently.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsNotFound reports whether err is an HTTP 404 of any flavor.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == 404
}

// IsSessionExpired reports whether err is the structured session-expiry 404.
func IsSessionExpired(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == CodeSessionExpired
}

// IsServerError reports whether err is an HTTP 5xx.
func IsServerError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status >= 500
}

// Category buckets an error for user display.
type Category int

// Display categories, from least to most specific.
const (
	CategoryOther Category = iota
	CategoryConnectivity
	CategoryNotFound
	CategoryServer
)

// Classify maps an error to a display category and a human-readable message.
// Network and format failures become a connectivity hint, 404s a refresh
// hint, 5xx a transient-server hint; anything else surfaces the server's own
// text.
func Classify(err error) (Category, string) {
	if err == nil {
		return CategoryOther, ""
	}
	var te *TransportError
	if errors.As(err, &te) {
		return CategoryConnectivity, "Unable to reach the server. Check your connection and try again."
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == CodeSessionExpired:
			return CategoryNotFound, "Session expired. Start a new voice session."
		case se.Status == 404:
			return CategoryNotFound, "Conversation not found. Refresh and try again."
		case se.Status >= 500:
			return CategoryServer, "The server hit a temporary problem. Try again in a moment."
		default:
			return CategoryOther, se.Message
		}
	}
	return CategoryOther, err.Error()
}
