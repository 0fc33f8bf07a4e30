// Package frame defines encoder frame configurations: sample rate, frame
// duration, target bitrate and channel mode, together with the derived
// per-frame geometry (frame length, band count, byte budget) and the index
// values carried in packed frame headers.
package frame

import "fmt"

// Duration selects the frame duration.
type Duration int

const (
	Duration2_5ms Duration = iota
	Duration5ms
	Duration10ms
)

// Seconds returns the duration in seconds.
func (d Duration) Seconds() float64 {
	switch d {
	case Duration2_5ms:
		return 0.0025
	case Duration5ms:
		return 0.005
	case Duration10ms:
		return 0.01
	default:
		return 0
	}
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	switch d {
	case Duration2_5ms:
		return "2.5ms"
	case Duration5ms:
		return "5ms"
	case Duration10ms:
		return "10ms"
	default:
		return fmt.Sprintf("Duration(%d)", int(d))
	}
}

// SampleRates lists the supported sample rates in header index order.
var SampleRates = []int{8000, 16000, 24000, 32000, 44100, 48000}

// Bitrates lists the supported per-channel bitrates in kbps, in header
// index order. The grid spans 16..320 kbps on 4 index bits.
var Bitrates = []int{16, 24, 32, 48, 64, 80, 96, 112, 128, 160, 192, 224, 256, 280, 300, 320}

// bandCounts maps Duration to the perceptual band count.
var bandCounts = map[Duration]int{
	Duration2_5ms: 32,
	Duration5ms:   48,
	Duration10ms:  64,
}

// Config holds one channel-independent encoder configuration.
type Config struct {
	SampleRate  int
	Duration    Duration
	BitrateKbps int
	Channels    int
}

// Validate rejects invalid rate/duration/bitrate combinations before any
// frame is admitted to the pipeline.
func (c Config) Validate() error {
	if indexOf(SampleRates, c.SampleRate) < 0 {
		return fmt.Errorf("frame: unsupported sample rate: %d", c.SampleRate)
	}

	if _, ok := bandCounts[c.Duration]; !ok {
		return fmt.Errorf("frame: unsupported duration: %d", int(c.Duration))
	}

	if indexOf(Bitrates, c.BitrateKbps) < 0 {
		return fmt.Errorf("frame: unsupported bitrate: %d kbps", c.BitrateKbps)
	}

	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("frame: channels must be 1 or 2: %d", c.Channels)
	}

	// The frame must hold a whole number of samples and at least one bin
	// per perceptual band.
	samples := float64(c.SampleRate) * c.Duration.Seconds()
	if samples != float64(int(samples)) {
		return fmt.Errorf("frame: %d Hz x %s is not a whole sample count", c.SampleRate, c.Duration)
	}

	if int(samples) < c.BandCount() {
		return fmt.Errorf("frame: %d Hz x %s yields %d samples for %d bands",
			c.SampleRate, c.Duration, int(samples), c.BandCount())
	}

	return nil
}

// FrameLength returns the number of samples (and transform coefficients)
// per frame per channel.
func (c Config) FrameLength() int {
	return int(float64(c.SampleRate) * c.Duration.Seconds())
}

// BandCount returns the perceptual band count for the configured duration.
func (c Config) BandCount() int {
	return bandCounts[c.Duration]
}

// TargetBits returns the per-channel compressed payload budget in bits.
func (c Config) TargetBits() int {
	return int(float64(c.BitrateKbps*1000) * c.Duration.Seconds())
}

// TargetBytes returns the per-channel payload budget in whole bytes.
func (c Config) TargetBytes() int {
	return c.TargetBits() / 8
}

// MaxFrameBytes returns the hard per-frame output limit: header and CRC
// plus twice the payload budget. Exceeding it discards the frame.
func (c Config) MaxFrameBytes() int {
	return 3 + 2*c.TargetBytes()
}

// SampleRateIndex returns the 3-bit header index of the sample rate.
func (c Config) SampleRateIndex() int {
	return indexOf(SampleRates, c.SampleRate)
}

// DurationIndex returns the 2-bit header index of the duration.
func (c Config) DurationIndex() int {
	return int(c.Duration)
}

// BitrateIndex returns the 4-bit header index of the bitrate.
func (c Config) BitrateIndex() int {
	return indexOf(Bitrates, c.BitrateKbps)
}

// FromIndices reconstructs a Config from packed header index values.
func FromIndices(srIndex, durIndex, brIndex int, stereo bool) (Config, error) {
	if srIndex < 0 || srIndex >= len(SampleRates) {
		return Config{}, fmt.Errorf("frame: sample rate index out of range: %d", srIndex)
	}

	if durIndex < 0 || durIndex > int(Duration10ms) {
		return Config{}, fmt.Errorf("frame: duration index out of range: %d", durIndex)
	}

	if brIndex < 0 || brIndex >= len(Bitrates) {
		return Config{}, fmt.Errorf("frame: bitrate index out of range: %d", brIndex)
	}

	channels := 1
	if stereo {
		channels = 2
	}

	cfg := Config{
		SampleRate:  SampleRates[srIndex],
		Duration:    Duration(durIndex),
		BitrateKbps: Bitrates[brIndex],
		Channels:    channels,
	}

	return cfg, cfg.Validate()
}

func indexOf(list []int, v int) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}
