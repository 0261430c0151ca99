package capture

import "errors"

var (
	// ErrUnknownEvent is returned for binding payloads naming an unrecognised event.
	ErrUnknownEvent = errors.New("unrecognised event")
	// ErrNoTarget is returned when the browser target could not be attached.
	ErrNoTarget = errors.New("no browser target")
)
