package client

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError wraps network-level failures: connection refused, DNS,
// timeouts. Distinct from APIError so views can show "action failed, retry"
// instead of a server-side message.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is an RFC-7807 problem response decoded into a typed error.
type APIError struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Type, e.Detail)
	}

	return fmt.Sprintf("api error %d (%s)", e.Status, e.Type)
}

// IsTransportError reports whether err stems from a network failure.
func IsTransportError(err error) bool {
	var transportErr *TransportError

	return errors.As(err, &transportErr)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError

	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsValidationError reports whether err is a 400 validation rejection.
func IsValidationError(err error) bool {
	var apiErr *APIError

	return errors.As(err, &apiErr) &&
		apiErr.Status == http.StatusBadRequest && apiErr.Type != "parse_error"
}

// IsParseError reports whether err is a malformed-document rejection.
func IsParseError(err error) bool {
	var apiErr *APIError

	return errors.As(err, &apiErr) && apiErr.Type == "parse_error"
}
