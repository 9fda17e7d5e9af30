package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WAV container constants.
const (
	wavHeaderSize   = 44
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	wavFmtChunkSize = 16
	wavChunkOffset  = 36
	pcmAudioFormat  = 1
	silence8Bit     = 0x80
)

// Fallback tone parameters.
const (
	toneFrequencyHz = 440.0
	toneAmplitude   = 0.2
	MinSilence      = 0.1
)

var (
	riffID = []byte("RIFF")
	waveID = []byte("WAVE")
	fmtID  = []byte("fmt ")
	dataID = []byte("data")
)

// Parsing errors.
var (
	ErrNotWAV          = errors.New("data is not a RIFF/WAVE container")
	ErrMissingChunk    = errors.New("WAV container is missing a required chunk")
	ErrUnsupportedWAV  = errors.New("WAV container is not uncompressed PCM")
	ErrFormatMismatch  = errors.New("WAV segments have different PCM formats")
	ErrUnsupportedBits = errors.New("tone generation requires 16-bit PCM")
)

// EncodeWAV wraps PCM data in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, format Format) []byte {
	buffer := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))

	buffer.Write(riffID)
	writeLE32(buffer, uint32(wavChunkOffset+len(pcm)))
	buffer.Write(waveID)

	buffer.Write(fmtID)
	writeLE32(buffer, wavFmtChunkSize)
	writeLE16(buffer, pcmAudioFormat)
	writeLE16(buffer, uint16(format.Channels))
	writeLE32(buffer, uint32(format.SampleRate))
	writeLE32(buffer, uint32(format.ByteRate()))
	writeLE16(buffer, uint16(format.BlockAlign()))
	writeLE16(buffer, uint16(format.BitDepth))

	buffer.Write(dataID)
	writeLE32(buffer, uint32(len(pcm)))
	buffer.Write(pcm)

	return buffer.Bytes()
}

// DecodeWAV walks the RIFF chunks of a WAV container and returns the PCM
// payload of its data chunk together with the declared format.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < riffHeaderSize || !bytes.Equal(wav[0:4], riffID) || !bytes.Equal(wav[8:12], waveID) {
		return nil, Format{}, ErrNotWAV
	}

	var (
		format    Format
		sawFormat bool
	)

	offset := riffHeaderSize
	for offset+chunkHeaderSize <= len(wav) {
		id := wav[offset : offset+4]
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + chunkHeaderSize

		end := body + size
		if end > len(wav) || end < body {
			end = len(wav)
		}

		switch {
		case bytes.Equal(id, fmtID):
			parsed, err := parseFormatChunk(wav[body:end])
			if err != nil {
				return nil, Format{}, err
			}

			format = parsed
			sawFormat = true
		case bytes.Equal(id, dataID):
			if !sawFormat {
				return nil, Format{}, fmt.Errorf("%w: fmt before data", ErrMissingChunk)
			}

			return wav[body:end], format, nil
		}

		// chunks are word aligned
		offset = end + size%2
	}

	return nil, Format{}, fmt.Errorf("%w: data", ErrMissingChunk)
}

func parseFormatChunk(body []byte) (Format, error) {
	if len(body) < wavFmtChunkSize {
		return Format{}, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedWAV)
	}

	if binary.LittleEndian.Uint16(body[0:2]) != pcmAudioFormat {
		return Format{}, ErrUnsupportedWAV
	}

	format := Format{
		Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
		SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
		BitDepth:   int(binary.LittleEndian.Uint16(body[14:16])),
	}

	err := format.Validate()
	if err != nil {
		return Format{}, err
	}

	return format, nil
}

// Silence returns zero-amplitude PCM lasting seconds, never shorter than MinSilence.
func Silence(seconds float64, format Format) []byte {
	if seconds < MinSilence {
		seconds = MinSilence
	}

	pcm := make([]byte, format.FrameBytes(seconds))

	if format.BitDepth == bitDepth8 {
		for index := range pcm {
			pcm[index] = silence8Bit
		}
	}

	return pcm
}

// Tone returns a deterministic sine tone of seconds length as 16-bit PCM.
func Tone(seconds float64, format Format) ([]byte, error) {
	if format.BitDepth != bitDepth16 {
		return nil, ErrUnsupportedBits
	}

	frames := int(seconds * float64(format.SampleRate))
	buffer := bytes.NewBuffer(make([]byte, 0, frames*format.BlockAlign()))

	for frame := range frames {
		phase := 2 * math.Pi * toneFrequencyHz * float64(frame) / float64(format.SampleRate)
		sample := int16(toneAmplitude * math.MaxInt16 * math.Sin(phase))

		for range format.Channels {
			writeLE16(buffer, uint16(sample))
		}
	}

	return buffer.Bytes(), nil
}

// JoinWAV concatenates the PCM payloads of WAV containers, inserting gap PCM
// between consecutive parts, and returns a single WAV container.
func JoinWAV(parts [][]byte, gap []byte, format Format) ([]byte, error) {
	var pcm bytes.Buffer

	for index, part := range parts {
		payload, partFormat, err := DecodeWAV(part)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", index+1, err)
		}

		if partFormat != format {
			return nil, fmt.Errorf("part %d: %w: %+v != %+v", index+1, ErrFormatMismatch, partFormat, format)
		}

		if index > 0 {
			pcm.Write(gap)
		}

		pcm.Write(payload)
	}

	return EncodeWAV(pcm.Bytes(), format), nil
}

func writeLE16(buffer *bytes.Buffer, value uint16) {
	var scratch [2]byte

	binary.LittleEndian.PutUint16(scratch[:], value)
	buffer.Write(scratch[:])
}

func writeLE32(buffer *bytes.Buffer, value uint32) {
	var scratch [4]byte

	binary.LittleEndian.PutUint32(scratch[:], value)
	buffer.Write(scratch[:])
}
