package notify

import "errors"

// ErrClosed is returned when publishing to a closed hub.
var ErrClosed = errors.New("publisher closed")
