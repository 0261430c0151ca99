package testevents

import "time"

// Runner configuration constants.
const (
	PollInterval         = 50 * time.Millisecond
	PercentageMultiplier = 100
)
