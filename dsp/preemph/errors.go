package preemph

import "errors"

// ErrTruncatedFrame reports an input stream that ended mid-frame. The
// frame is not retried; the caller must resupply a complete frame.
var ErrTruncatedFrame = errors.New("preemph: truncated input frame")
