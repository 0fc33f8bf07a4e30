package pipeline

import "errors"

var (
	// ErrRegionBounds is returned when a region access lies outside the
	// region's declared bounds. This is a caller bug, not a runtime
	// condition.
	ErrRegionBounds = errors.New("pipeline: region access out of bounds")

	// ErrNotOwner is returned when a port releases a region it does not
	// hold.
	ErrNotOwner = errors.New("pipeline: port does not own region")
)
