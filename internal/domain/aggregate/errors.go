package aggregate

import "errors"

// ErrInvalidRecord is returned for records that fail the shape check.
var ErrInvalidRecord = errors.New("invalid event record")
