package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the gateway reports.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindNetworkFailure     Kind = "network_failure"
	KindServerError        Kind = "server_error"
	KindMalformedResponse  Kind = "malformed_response"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNetworkFailure     = errors.New("network failure")
	ErrServerError        = errors.New("server error")
	ErrMalformedResponse  = errors.New("malformed response")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidCredentials:
		return ErrInvalidCredentials
	case KindNetworkFailure:
		return ErrNetworkFailure
	case KindServerError:
		return ErrServerError
	case KindMalformedResponse:
		return ErrMalformedResponse
	}
	return nil
}

// Error is returned by every gateway operation that fails.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, zero when no response was received
	Message string // Human readable, suitable for display
	Err     error  // Underlying cause, if any
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindServerError && e.Status != 0:
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf extracts the Kind from err. Errors that did not originate in the
// gateway report false.
func KindOf(err error) (Kind, bool) {
	var gErr *Error
	if errors.As(err, &gErr) {
		return gErr.Kind, true
	}
	return "", false
}

func NewInvalidCredentials(message string) *Error {
	if message == "" {
		message = "Invalid credentials"
	}
	return &Error{Kind: KindInvalidCredentials, Status: http.StatusUnauthorized, Message: message}
}

func NewNetworkFailure(err error) *Error {
	msg := "identity service unreachable"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindNetworkFailure, Message: msg, Err: err}
}

func NewServerError(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: KindServerError, Status: status, Message: message}
}

func NewMalformedResponse(err error) *Error {
	msg := "unexpected response from identity service"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindMalformedResponse, Message: msg, Err: err}
}

// errorFromStatus maps a non-2xx response onto the taxonomy. detail is the
// decoded body detail, empty when absent.
func errorFromStatus(status int, detail string) *Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		e := NewInvalidCredentials(detail)
		e.Status = status
		return e
	default:
		return NewServerError(status, detail)
	}
}

// detailMessage flattens a FastAPI style detail into one line.
func detailMessage(detail any) string {
	switch d := detail.(type) {
	case string:
		return d
	case []any:
		if len(d) == 0 {
			return ""
		}
		if first, ok := d[0].(map[string]any); ok {
			if msg, ok := first["msg"].(string); ok {
				return msg
			}
		}
	}
	return ""
}
