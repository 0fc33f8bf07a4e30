package main

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-codec/codec/frame"
)

// fileConfig mirrors the YAML configuration file. All fields are optional;
// values set on the command line take precedence.
type fileConfig struct {
	SampleRate  int     `yaml:"sample_rate"`
	DurationMs  float64 `yaml:"duration_ms"`
	BitrateKbps int     `yaml:"bitrate_kbps"`
	Channels    int     `yaml:"channels"`
}

// loadConfig reads the YAML configuration file at path.
func loadConfig(path string) (*fileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("encodec: open config %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := loadConfigFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("encodec: parse config %q: %w", path, err)
	}
	return cfg, nil
}

// loadConfigFromReader decodes a YAML config from r. Unknown keys are
// rejected so typos surface as errors instead of silent defaults.
func loadConfigFromReader(r io.Reader) (*fileConfig, error) {
	cfg := &fileConfig{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// durationFromMs maps a millisecond value to a frame.Duration.
func durationFromMs(ms float64) (frame.Duration, error) {
	switch ms {
	case 2.5:
		return frame.Duration2_5ms, nil
	case 5:
		return frame.Duration5ms, nil
	case 10:
		return frame.Duration10ms, nil
	default:
		return 0, fmt.Errorf("encodec: unsupported frame duration: %g ms (want 2.5, 5 or 10)", ms)
	}
}
