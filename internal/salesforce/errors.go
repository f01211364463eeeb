package salesforce

import (
	"fmt"
	"strings"
)

// TransportError wraps a connection-level failure (DNS, TLS, refused
// connection). Always fatal to the current step, never retried.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("error connecting to server: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseFormatError reports a response that could not be interpreted
// as structured data: HTML error pages, empty bodies where content was
// expected, or unparseable JSON. Body is already sanitized.
type ResponseFormatError struct {
	StatusCode int
	Body       string
}

func (e *ResponseFormatError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status code %d: empty response and no information in the header", e.StatusCode)
	}
	return fmt.Sprintf("status code %d, data from server: %s", e.StatusCode, e.Body)
}

// APIError is a structured error returned by the Salesforce REST API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("error from server, status code %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("error from server, status code %d: %s", e.StatusCode, e.Message)
}

// AuthError reports a failure to obtain or use credentials. Hint, when
// set, tells the operator how to recover; secrets never appear here.
type AuthError struct {
	Reason string
	Hint   string
	Err    error
}

func (e *AuthError) Error() string {
	msg := e.Reason
	if e.Hint != "" {
		msg += ", " + e.Hint
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// ResolutionError reports a named view or object that was not found,
// carrying the valid alternatives when they are known.
type ResolutionError struct {
	Kind       string
	Name       string
	Candidates []string
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("no %s named %q was found", e.Kind, e.Name)
	if len(e.Candidates) > 0 {
		msg += ", valid names: " + strings.Join(e.Candidates, ", ")
	}
	return msg
}

// ValidationError rejects a malformed parameter before any network
// call is made.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Reason)
}
