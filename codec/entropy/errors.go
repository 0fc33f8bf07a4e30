package entropy

import "errors"

var (
	// ErrIntervalCollapse is returned when the coding interval degenerates.
	ErrIntervalCollapse = errors.New("entropy: coding interval collapsed")

	// ErrInvalidRange is returned when a symbol's probability range is empty.
	ErrInvalidRange = errors.New("entropy: invalid probability range")

	// ErrBudgetExceeded is returned when the compressed frame outgrows its
	// bit budget plus slack.
	ErrBudgetExceeded = errors.New("entropy: bit budget exceeded")
)
