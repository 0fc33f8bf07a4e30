package bitstream

import (
	"encoding/binary"
	"fmt"
)

// State identifies the packer's position in its frame cycle.
type State int

const (
	StateIdle State = iota
	StateHeaderGenerate
	StatePayloadCollect
	StateCrcCalculate
	StateByteOutput
	StateFrameComplete
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateHeaderGenerate:
		return "HeaderGenerate"
	case StatePayloadCollect:
		return "PayloadCollect"
	case StateCrcCalculate:
		return "CrcCalculate"
	case StateByteOutput:
		return "ByteOutput"
	case StateFrameComplete:
		return "FrameComplete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// headerSize and crcSize are the fixed per-frame framing overhead in bytes.
const (
	headerSize = 2
	crcSize    = 1
)

// Overhead is the framing cost in bytes added around every payload.
const Overhead = headerSize + crcSize

// Packer assembles output frames: big-endian 16-bit header, byte-aligned
// payload, CRC-8 over everything preceding it.
type Packer struct {
	maxBytes int

	state   State
	header  Header
	payload []byte
	out     []byte
	crc     byte
}

// NewPacker creates a Packer that rejects frames larger than maxBytes.
func NewPacker(maxBytes int) (*Packer, error) {
	if maxBytes < Overhead {
		return nil, fmt.Errorf("bitstream: frame size limit %d below framing overhead %d", maxBytes, Overhead)
	}

	return &Packer{maxBytes: maxBytes, state: StateIdle}, nil
}

// State returns the current packer state.
func (p *Packer) State() State {
	return p.state
}

// Reset aborts any frame in progress.
func (p *Packer) Reset() {
	p.state = StateIdle
	p.payload = nil
	p.out = nil
}

// Begin admits one frame's header and byte-aligned payload.
func (p *Packer) Begin(h Header, payload []byte) error {
	if p.state != StateIdle {
		return fmt.Errorf("bitstream: Begin in state %s", p.state)
	}

	if err := h.Validate(); err != nil {
		return err
	}

	if len(payload)+Overhead > p.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(payload)+Overhead, p.maxBytes)
	}

	p.header = h
	p.payload = payload
	p.state = StateHeaderGenerate

	return nil
}

// Step advances the packer by one state and reports completion.
func (p *Packer) Step() (bool, error) {
	switch p.state {
	case StateHeaderGenerate:
		wire, err := p.header.Pack()
		if err != nil {
			p.state = StateIdle
			return false, err
		}
		p.out = binary.BigEndian.AppendUint16(p.out[:0], wire)
		p.state = StatePayloadCollect

	case StatePayloadCollect:
		p.out = append(p.out, p.payload...)
		p.state = StateCrcCalculate

	case StateCrcCalculate:
		p.crc = Checksum(p.out)
		p.state = StateByteOutput

	case StateByteOutput:
		p.out = append(p.out, p.crc)
		p.state = StateFrameComplete

	case StateFrameComplete:
		p.state = StateIdle
		p.payload = nil
		return true, nil

	default:
		return false, fmt.Errorf("bitstream: Step in state %s", p.state)
	}

	return false, nil
}

// Bytes returns the last completed frame. The slice is reused by the next
// Begin call.
func (p *Packer) Bytes() []byte {
	return p.out
}

// Pack runs a whole frame through the packer in one call.
func (p *Packer) Pack(h Header, payload []byte) ([]byte, error) {
	if err := p.Begin(h, payload); err != nil {
		return nil, err
	}

	for {
		done, err := p.Step()
		if err != nil {
			return nil, err
		}
		if done {
			return p.out, nil
		}
	}
}

// Check validates a packed frame: minimum size, sync pattern and trailing
// checksum.
func Check(frame []byte) error {
	if len(frame) < Overhead {
		return ErrShortFrame
	}

	if _, err := ParseHeader(binary.BigEndian.Uint16(frame)); err != nil {
		return err
	}

	body, crc := frame[:len(frame)-1], frame[len(frame)-1]
	if got := Checksum(body); got != crc {
		return fmt.Errorf("%w: computed 0x%02X, stored 0x%02X", ErrCRCMismatch, got, crc)
	}

	return nil
}
