// Command encodec compresses PCM audio into packed codec frames.
//
// Usage:
//
//	encodec [flags] input.wav
//
// The input is a 16-bit PCM WAV file, or raw interleaved signed 16-bit
// little-endian PCM with -raw. Sample rate and channel count are taken
// from the WAV header unless overridden; raw input requires -rate.
// Settings may also come from a YAML file via -config, with command-line
// flags taking precedence.
//
// Examples:
//
//	encodec -bitrate 32 -out speech.ec speech.wav
//	encodec -config encoder.yaml music.wav
//	encodec -raw -rate 16000 -duration 10 -bitrate 64 capture.pcm
//	encodec -spectrum -bitrate 32 speech.wav
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"os"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-codec/codec/frame"
	"github.com/cwbudde/algo-codec/codec/pipeline"
	"github.com/cwbudde/algo-codec/dsp/core"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "YAML configuration file")
	outPath := flag.String("out", "out.ec", "output file for the packed stream")
	rate := flag.Int("rate", 0, "sample rate in Hz (default: from WAV header)")
	durMs := flag.Float64("duration", 10, "frame duration in ms (2.5, 5 or 10)")
	bitrate := flag.Int("bitrate", 32, "per-channel bitrate in kbps")
	channels := flag.Int("channels", 0, "channel count (default: from WAV header)")
	raw := flag.Bool("raw", false, "treat input as raw s16le PCM instead of WAV")
	spectrum := flag.Bool("spectrum", false, "print a coarse input power spectrum before encoding")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: encodec [flags] input.wav\n\n")
		fmt.Fprintf(os.Stderr, "Compresses PCM audio into packed codec frames.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  encodec -bitrate 32 -out speech.ec speech.wav\n")
		fmt.Fprintf(os.Stderr, "  encodec -raw -rate 16000 -bitrate 64 capture.pcm\n")
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if flag.NArg() != 1 {
		flag.Usage()
		return 1
	}
	inPath := flag.Arg(0)

	// Flags set on the command line override the config file, which in
	// turn overrides WAV header values.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *configPath != "" {
		fc, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encodec: %v\n", err)
			return 1
		}
		if !set["rate"] && fc.SampleRate != 0 {
			*rate = fc.SampleRate
		}
		if !set["duration"] && fc.DurationMs != 0 {
			*durMs = fc.DurationMs
		}
		if !set["bitrate"] && fc.BitrateKbps != 0 {
			*bitrate = fc.BitrateKbps
		}
		if !set["channels"] && fc.Channels != 0 {
			*channels = fc.Channels
		}
	}

	in, err := os.Open(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encodec: %v\n", err)
		return 1
	}
	defer in.Close()

	var samples [][]float64
	if *raw {
		if *rate == 0 {
			fmt.Fprintf(os.Stderr, "encodec: raw input requires -rate\n")
			return 1
		}
		if *channels == 0 {
			*channels = 1
		}
		samples, err = readRaw(in, *channels)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encodec: %v\n", err)
			return 1
		}
	} else {
		wav, werr := readWAV(in)
		if werr != nil {
			fmt.Fprintf(os.Stderr, "encodec: %v\n", werr)
			return 1
		}
		if *rate == 0 {
			*rate = wav.SampleRate
		} else if *rate != wav.SampleRate {
			fmt.Fprintf(os.Stderr, "encodec: -rate %d conflicts with WAV sample rate %d\n", *rate, wav.SampleRate)
			return 1
		}
		if *channels == 0 {
			*channels = len(wav.Samples)
		} else if *channels != len(wav.Samples) {
			fmt.Fprintf(os.Stderr, "encodec: -channels %d conflicts with WAV channel count %d\n", *channels, len(wav.Samples))
			return 1
		}
		samples = wav.Samples
	}

	dur, err := durationFromMs(*durMs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	cfg := frame.Config{
		SampleRate:  *rate,
		Duration:    dur,
		BitrateKbps: *bitrate,
		Channels:    *channels,
	}

	enc, err := pipeline.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encodec: %v\n", err)
		return 1
	}
	defer enc.Close()

	slog.Info("encoding",
		"input", inPath,
		"rate", cfg.SampleRate,
		"duration", cfg.Duration.String(),
		"bitrate_kbps", cfg.BitrateKbps,
		"channels", cfg.Channels,
	)

	if *spectrum {
		if err := printSpectrum(samples[0], cfg); err != nil {
			fmt.Fprintf(os.Stderr, "encodec: %v\n", err)
			return 1
		}
	}

	out, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encodec: %v\n", err)
		return 1
	}
	defer out.Close()

	if err := encodeStream(enc, samples, out); err != nil {
		fmt.Fprintf(os.Stderr, "encodec: %v\n", err)
		return 1
	}
	return 0
}

// encodeStream runs the encoder frame by frame over samples and writes the
// packed frames to w. The final partial frame is zero padded.
func encodeStream(enc *pipeline.Encoder, samples [][]float64, w *os.File) error {
	cfg := enc.Config()
	frameLen := cfg.FrameLength()
	total := len(samples[0])

	var (
		frames     int
		bytesOut   int
		missedRate int
	)

	buf := make([][]float64, len(samples))
	for ch := range buf {
		buf[ch] = make([]float64, frameLen)
	}

	for pos := 0; pos < total; pos += frameLen {
		for ch := range samples {
			n := core.CopyInto(buf[ch], samples[ch][pos:])
			core.Zero(buf[ch][n:])
		}

		packed, err := enc.Encode(buf)
		if err != nil {
			if pipeline.IsFatal(err) {
				return fmt.Errorf("frame %d: %w", frames, err)
			}
			slog.Warn("frame dropped", "frame", frames, "err", err)
			continue
		}

		st := enc.Stats()
		if !st.Converged {
			missedRate++
			slog.Debug("rate target missed",
				"frame", frames,
				"used_bits", st.UsedBits,
				"target_bits", st.TargetBits,
			)
		}

		if _, err := w.Write(packed); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		frames++
		bytesOut += len(packed)
	}

	slog.Info("done",
		"frames", frames,
		"bytes", bytesOut,
		"missed_rate", missedRate,
	)
	return nil
}

// printSpectrum prints a coarse power spectrum of the first frame of pcm,
// averaged into 16 linear bands up to Nyquist. Diagnostic output only.
func printSpectrum(pcm []float64, cfg frame.Config) error {
	n := nextPowerOfTwo(cfg.FrameLength())
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return fmt.Errorf("spectrum: %w", err)
	}

	in := make([]complex128, n)
	for i := 0; i < n && i < len(pcm); i++ {
		in[i] = complex(pcm[i], 0)
	}
	out := make([]complex128, n)
	if err := plan.Forward(out, in); err != nil {
		return fmt.Errorf("spectrum: %w", err)
	}

	const bands = 16
	half := n / 2
	perBand := half / bands

	fmt.Printf("input spectrum (%d-point FFT, %d bands):\n", n, bands)
	for b := 0; b < bands; b++ {
		var power float64
		for i := b * perBand; i < (b+1)*perBand; i++ {
			power += cmplx.Abs(out[i]) * cmplx.Abs(out[i])
		}
		power /= float64(perBand)

		db := core.LinearPowerToDB(power / float64(n))
		if math.IsInf(db, -1) {
			db = -120
		}
		loHz := b * perBand * cfg.SampleRate / n
		hiHz := (b + 1) * perBand * cfg.SampleRate / n
		fmt.Printf("  %5d-%5d Hz  %7.1f dB\n", loHz, hiHz, db)
	}
	return nil
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
