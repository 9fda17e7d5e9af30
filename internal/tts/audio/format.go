// Package audio provides PCM format validation and WAV container handling for
// generated and assembled speech.
package audio

import (
	"errors"
	"fmt"
)

// Default PCM format for locally generated audio.
const (
	DefaultSampleRate = 24000
	DefaultBitDepth   = 16
	DefaultChannels   = 1
)

// Quality validation limits.
const (
	maxSampleRate = 192000
	maxChannels   = 8
	bitsPerByte   = 8
)

// Supported bit depths.
const (
	bitDepth8  = 8
	bitDepth16 = 16
	bitDepth24 = 24
	bitDepth32 = 32
)

const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz"
	errFmtBitDepthValues  = "%w: bit depth must be 8, 16, 24, or 32"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d"
)

// ErrInvalidFormat is returned for PCM formats outside the supported range.
var ErrInvalidFormat = errors.New("invalid audio format")

// Format describes uncompressed little-endian PCM audio.
type Format struct {
	SampleRate int `json:"sampleRate"`
	BitDepth   int `json:"bitDepth"`
	Channels   int `json:"channels"`
}

// NewDefaultFormat returns 24 kHz, 16-bit mono PCM.
func NewDefaultFormat() Format {
	return Format{
		SampleRate: DefaultSampleRate,
		BitDepth:   DefaultBitDepth,
		Channels:   DefaultChannels,
	}
}

// Validate checks if the format is within supported bounds.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, maxSampleRate)
	}

	switch f.BitDepth {
	case bitDepth8, bitDepth16, bitDepth24, bitDepth32:
	default:
		return fmt.Errorf(errFmtBitDepthValues, ErrInvalidFormat)
	}

	if f.Channels <= 0 || f.Channels > maxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidFormat, maxChannels)
	}

	return nil
}

// BlockAlign returns the byte size of one frame across all channels.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitDepth / bitsPerByte
}

// ByteRate returns bytes per second.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// Duration returns the playback length in seconds of pcmBytes of audio.
func (f Format) Duration(pcmBytes int) float64 {
	rate := f.ByteRate()
	if rate == 0 {
		return 0
	}

	return float64(pcmBytes) / float64(rate)
}

// FrameBytes returns the PCM size of seconds of audio, rounded down to whole frames.
func (f Format) FrameBytes(seconds float64) int {
	frames := int(seconds * float64(f.SampleRate))

	return frames * f.BlockAlign()
}
