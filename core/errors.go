package core

import "errors"

var (
	// ErrInvalidTimestamp is returned when a timestamp is negative, or lower
	// than the last recorded one under the strict policy
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidWidth is returned when the window width is not positive
	ErrInvalidWidth = errors.New("window width must be positive")

	// ErrInvalidRetention is returned when retention is negative or shorter than the window
	ErrInvalidRetention = errors.New("retention must be zero or at least the window width")

	// ErrInvalidCount is returned when a batch record carries fewer than one event
	ErrInvalidCount = errors.New("hit count must be positive")
)
