package bitstream

import "fmt"

// SyncPattern occupies the top four header bits of every frame.
const SyncPattern = 0xB

// Frame type tags.
const (
	FrameTypeAudio   = 0
	FrameTypeSilence = 1
)

// Header is the 16-bit frame header. Bit layout, most significant first:
// sync pattern (4), frame type (1), sample-rate index (3), duration
// index (2), bitrate index (4), channel mode (1), CRC presence (1).
type Header struct {
	FrameType       int
	SampleRateIndex int
	DurationIndex   int
	BitrateIndex    int
	Stereo          bool
	CRCPresent      bool
}

// Validate checks that every field fits its bit field.
func (h Header) Validate() error {
	if h.FrameType < 0 || h.FrameType > 1 {
		return fmt.Errorf("bitstream: frame type out of range: %d", h.FrameType)
	}
	if h.SampleRateIndex < 0 || h.SampleRateIndex > 7 {
		return fmt.Errorf("bitstream: sample-rate index out of range: %d", h.SampleRateIndex)
	}
	if h.DurationIndex < 0 || h.DurationIndex > 3 {
		return fmt.Errorf("bitstream: duration index out of range: %d", h.DurationIndex)
	}
	if h.BitrateIndex < 0 || h.BitrateIndex > 15 {
		return fmt.Errorf("bitstream: bitrate index out of range: %d", h.BitrateIndex)
	}
	return nil
}

// Pack encodes the header into its 16-bit wire form.
func (h Header) Pack() (uint16, error) {
	if err := h.Validate(); err != nil {
		return 0, err
	}

	v := uint16(SyncPattern) << 12
	v |= uint16(h.FrameType) << 11
	v |= uint16(h.SampleRateIndex) << 8
	v |= uint16(h.DurationIndex) << 6
	v |= uint16(h.BitrateIndex) << 2
	if h.Stereo {
		v |= 1 << 1
	}
	if h.CRCPresent {
		v |= 1
	}

	return v, nil
}

// ParseHeader decodes a 16-bit wire header, rejecting a bad sync pattern.
func ParseHeader(v uint16) (Header, error) {
	if v>>12 != SyncPattern {
		return Header{}, fmt.Errorf("%w: 0x%X", ErrBadSync, v>>12)
	}

	return Header{
		FrameType:       int(v >> 11 & 1),
		SampleRateIndex: int(v >> 8 & 7),
		DurationIndex:   int(v >> 6 & 3),
		BitrateIndex:    int(v >> 2 & 0xF),
		Stereo:          v>>1&1 != 0,
		CRCPresent:      v&1 != 0,
	}, nil
}
