package bitstream

import "errors"

var (
	// ErrShortBuffer is returned when a read runs past the end of the input.
	ErrShortBuffer = errors.New("bitstream: read past end of buffer")

	// ErrBadSync is returned when a header's sync pattern does not match.
	ErrBadSync = errors.New("bitstream: bad sync pattern")

	// ErrShortFrame is returned when a frame is too small to hold a header
	// and a checksum.
	ErrShortFrame = errors.New("bitstream: frame shorter than header and checksum")

	// ErrFrameTooLarge is returned when a payload exceeds the packer's
	// frame size limit.
	ErrFrameTooLarge = errors.New("bitstream: frame exceeds size limit")

	// ErrCRCMismatch is returned when a frame's trailing checksum does not
	// match the recomputed one.
	ErrCRCMismatch = errors.New("bitstream: CRC mismatch")
)
