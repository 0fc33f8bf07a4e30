package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// wavData holds decoded PCM audio, deinterleaved per channel. Sample values
// are scaled to the unit range the pipeline expects.
type wavData struct {
	SampleRate int
	Samples    [][]float64
}

// readWAV parses a minimal RIFF/WAVE stream: a fmt chunk describing 16-bit
// integer PCM followed by a data chunk. Other chunk types are skipped.
func readWAV(r io.Reader) (*wavData, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("encodec: read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errors.New("encodec: not a RIFF/WAVE stream")
	}

	var (
		rate     int
		channels int
		haveFmt  bool
	)

	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, errors.New("encodec: no data chunk found")
			}
			return nil, fmt.Errorf("encodec: read chunk header: %w", err)
		}

		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("encodec: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, errors.New("encodec: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			rate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("encodec: unsupported WAV format: format=%d bits=%d (want 16-bit PCM)", format, bits)
			}
			if channels < 1 || channels > 2 {
				return nil, fmt.Errorf("encodec: unsupported channel count: %d", channels)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, errors.New("encodec: data chunk before fmt chunk")
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("encodec: read data chunk: %w", err)
			}
			samples, err := deinterleave(body, channels)
			if err != nil {
				return nil, err
			}
			return &wavData{SampleRate: rate, Samples: samples}, nil

		default:
			// Skip unknown chunks; sizes are padded to even byte counts.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, fmt.Errorf("encodec: skip %q chunk: %w", id, err)
			}
		}
	}
}

// readRaw reads interleaved signed 16-bit little-endian PCM until EOF.
func readRaw(r io.Reader, channels int) ([][]float64, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("encodec: read raw input: %w", err)
	}
	return deinterleave(body, channels)
}

func deinterleave(body []byte, channels int) ([][]float64, error) {
	if len(body)%(2*channels) != 0 {
		return nil, fmt.Errorf("encodec: PCM byte count %d is not a multiple of the %d-channel frame size", len(body), channels)
	}

	n := len(body) / (2 * channels)
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			off := 2 * (i*channels + ch)
			v := int16(binary.LittleEndian.Uint16(body[off : off+2]))
			out[ch][i] = float64(v) / 32768
		}
	}
	return out, nil
}
