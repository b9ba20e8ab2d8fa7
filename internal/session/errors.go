package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for session client operations.
// These can be checked using errors.Is().
var (
	// ErrNotConnected is returned when a request is attempted without an
	// established session.
	ErrNotConnected = errors.New("session: not connected")

	// ErrRequestTimeout is returned when a request's deadline expires
	// before a matching response arrives.
	ErrRequestTimeout = errors.New("session: request timeout")

	// ErrDisconnected rejects pending requests when Disconnect is called.
	ErrDisconnected = errors.New("session: disconnected")

	// ErrConnectionLost rejects pending requests when the transport drops
	// unexpectedly.
	ErrConnectionLost = errors.New("session: connection lost")
)

// ServerError represents a failure response from the worker.
type ServerError struct {
	Method  string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Method, e.Message)
}

// NewServerError creates a new ServerError for the given method.
func NewServerError(method, message string) *ServerError {
	return &ServerError{
		Method:  method,
		Message: message,
	}
}
