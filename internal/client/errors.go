package client

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is reported for notifications sent after Close.
	ErrClosed = errors.New("client closed")
	// ErrQueueFull is reported when the notify queue is saturated.
	ErrQueueFull = errors.New("notify queue full")
)

// APIError represents an unexpected response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
