package client

import (
	"errors"
	"fmt"
)

// Client-specific errors
var (
	ErrClientClosed   = errors.New("client is closed")
	ErrNoSession      = errors.New("no session opened")
	ErrInvalidConfig  = errors.New("invalid client configuration")
	ErrStreamClosed   = errors.New("stream is closed")
	ErrInvalidMessage = errors.New("invalid message")
)

// APIError is a failure reported by the service.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("xihe: code %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("xihe: status %d, code %d: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
