package gatekeeper

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pumppilot/gatekeeper/core"
)

var (
	// ErrAuthenticationFailed is returned for every rejected wallet signature and bad credentials
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrBadRequest is returned when the server could not parse the request
	ErrBadRequest = errors.New("bad request")

	// ErrUnexpectedStatus is returned for responses the client does not know
	ErrUnexpectedStatus = errors.New("unexpected status")

	ErrInvalidAddress      = core.ErrInvalidAddress
	ErrEmailUnconfirmed    = core.ErrEmailUnconfirmed
	ErrUpstreamTimeout     = core.ErrUpstreamTimeout
	ErrUpstreamUnavailable = core.ErrUpstreamUnavailable
	ErrTokenExpired        = core.ErrTokenExpired
	ErrTokenInvalidated    = core.ErrTokenInvalidated
	ErrInvalidToken        = core.ErrInvalidToken
)

// APIError is an error response from the server
type APIError struct {
	StatusCode int
	Message    string
	err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", e.err, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.err
}

func newAPIError(status int, message string) *APIError {
	return &APIError{StatusCode: status, Message: message, err: errorForStatus(status, message)}
}

func errorForStatus(status int, message string) error {
	switch status {
	case http.StatusBadRequest:
		switch message {
		case "Invalid address":
			return ErrInvalidAddress
		case "Invalid token":
			return ErrInvalidToken
		}
		return ErrBadRequest
	case http.StatusUnauthorized:
		switch message {
		case "Token expired":
			return ErrTokenExpired
		case "Token has been invalidated":
			return ErrTokenInvalidated
		case "Invalid token", "Invalid authorization header":
			return ErrInvalidToken
		}
		return ErrAuthenticationFailed
	case http.StatusForbidden:
		return ErrEmailUnconfirmed
	case http.StatusServiceUnavailable:
		return ErrUpstreamUnavailable
	case http.StatusGatewayTimeout:
		return ErrUpstreamTimeout
	default:
		return ErrUnexpectedStatus
	}
}
