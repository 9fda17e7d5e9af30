// Package core defines the core types and interfaces shared by the gateway's components.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Request limits.
const (
	MaxTextChars         = 100_000
	MinSpeakingRate      = 0.25
	MaxSpeakingRate      = 4.0
	MinPitch             = -20.0
	MaxPitch             = 20.0
	MinVolumeGainDB      = -96.0
	MaxVolumeGainDB      = 16.0
	MaxSegments          = 50
	MaxSegmentChars      = 1000
	MaxConversationChars = 10_000
	MinPauseSeconds      = 0.1
	MaxPauseSeconds      = 3.0
	DefaultSpeakingRate  = 1.0
	DefaultPauseSeconds  = 0.5
)

// Validation errors.
var (
	ErrTextEmpty           = errors.New("text cannot be empty")
	ErrTextTooLong         = errors.New("text exceeds maximum length")
	ErrSpeakingRateRange   = errors.New("speaking rate must be between 0.25 and 4.0")
	ErrPitchRange          = errors.New("pitch must be between -20 and 20")
	ErrVolumeGainRange     = errors.New("volume gain must be between -96 and 16 dB")
	ErrNoSegments          = errors.New("conversation must contain at least one segment")
	ErrTooManySegments     = errors.New("conversation exceeds maximum segment count")
	ErrSegmentTooLong      = errors.New("segment exceeds maximum length")
	ErrConversationTooLong = errors.New("conversation exceeds total character budget")
	ErrPauseRange          = errors.New("pause must be between 0.1 and 3.0 seconds")
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// AudioConfig holds the caller-controlled audio parameters of a synthesis.
// Every field participates in the cache fingerprint.
type AudioConfig struct {
	LanguageCode string  `json:"languageCode"`
	SpeakingRate float64 `json:"speakingRate"`
	Pitch        float64 `json:"pitch"`
	VolumeGainDB float64 `json:"volumeGainDb"`
}

// Validate checks the audio parameters against the accepted ranges.
func (a AudioConfig) Validate() error {
	if a.SpeakingRate < MinSpeakingRate || a.SpeakingRate > MaxSpeakingRate {
		return fmt.Errorf("%w: got %f", ErrSpeakingRateRange, a.SpeakingRate)
	}

	if a.Pitch < MinPitch || a.Pitch > MaxPitch {
		return fmt.Errorf("%w: got %f", ErrPitchRange, a.Pitch)
	}

	if a.VolumeGainDB < MinVolumeGainDB || a.VolumeGainDB > MaxVolumeGainDB {
		return fmt.Errorf("%w: got %f", ErrVolumeGainRange, a.VolumeGainDB)
	}

	return nil
}

// SynthesisRequest is a single-segment generation request.
type SynthesisRequest struct {
	Subject string
	Text    string
	Voice   string
	Audio   AudioConfig
}

// Validate checks the request text and audio parameters.
func (r SynthesisRequest) Validate() error {
	if r.Text == "" {
		return ErrTextEmpty
	}

	if utf8.RuneCountInString(r.Text) > MaxTextChars {
		return fmt.Errorf("%w: %d characters", ErrTextTooLong, MaxTextChars)
	}

	return r.Audio.Validate()
}

// Segment is one speaker turn of a conversation.
type Segment struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// ConversationRequest is an ordered multi-speaker generation request.
type ConversationRequest struct {
	Subject      string
	Title        string
	Segments     []Segment
	PauseSeconds float64
}

// Validate checks segment counts, lengths and the pause duration.
func (r ConversationRequest) Validate() error {
	if len(r.Segments) == 0 {
		return ErrNoSegments
	}

	if len(r.Segments) > MaxSegments {
		return fmt.Errorf("%w: %d > %d", ErrTooManySegments, len(r.Segments), MaxSegments)
	}

	total := 0

	for index, segment := range r.Segments {
		length := utf8.RuneCountInString(segment.Text)
		if length == 0 {
			return fmt.Errorf("segment %d: %w", index+1, ErrTextEmpty)
		}

		if length > MaxSegmentChars {
			return fmt.Errorf("segment %d: %w", index+1, ErrSegmentTooLong)
		}

		total += length
	}

	if total > MaxConversationChars {
		return fmt.Errorf("%w: %d > %d", ErrConversationTooLong, total, MaxConversationChars)
	}

	if r.PauseSeconds < MinPauseSeconds || r.PauseSeconds > MaxPauseSeconds {
		return fmt.Errorf("%w: got %f", ErrPauseRange, r.PauseSeconds)
	}

	return nil
}

// SynthesisResult describes a delivered single-segment artifact.
type SynthesisResult struct {
	URI             string  `json:"uri"`
	Filename        string  `json:"filename"`
	Characters      int     `json:"characters"`
	CostUSD         float64 `json:"estimatedCostUSD"`
	VoiceID         string  `json:"voiceId"`
	Voice           string  `json:"voice"`
	DurationSeconds float64 `json:"durationSeconds"`
	CacheHit        bool    `json:"cacheHit"`
	Fallback        bool    `json:"fallback"`
	FallbackReason  string  `json:"fallbackReason,omitempty"`
}

// ConversationResult describes a delivered conversation artifact.
type ConversationResult struct {
	URI             string    `json:"uri"`
	Filename        string    `json:"filename"`
	TotalCharacters int       `json:"totalCharacters"`
	TotalCostUSD    float64   `json:"totalCostUSD"`
	DurationSeconds float64   `json:"durationSeconds"`
	CacheHit        bool      `json:"cacheHit"`
	Segments        []Segment `json:"segments"`
}

// GenerationRecord is emitted for each successful single-segment generation
// of an authenticated subject.
type GenerationRecord struct {
	SubjectID       string    `json:"subjectId"`
	Text            string    `json:"text"`
	VoiceID         string    `json:"voiceId"`
	SpeakingRate    float64   `json:"speakingRate"`
	AudioURI        string    `json:"audioUri"`
	Filename        string    `json:"filename"`
	Characters      int       `json:"characters"`
	CostUSD         float64   `json:"costUSD"`
	DurationSeconds float64   `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ConversationRecord is emitted when an authenticated subject's
// conversation misses the cache.
type ConversationRecord struct {
	SubjectID       string    `json:"subjectId"`
	Title           string    `json:"title"`
	Segments        []Segment `json:"segments"`
	TotalCharacters int       `json:"totalCharacters"`
	TotalCostUSD    float64   `json:"totalCostUSD"`
	DurationSeconds float64   `json:"durationSeconds"`
	AudioURI        string    `json:"audioUri"`
	Filename        string    `json:"filename"`
	CreatedAt       time.Time `json:"createdAt"`
}

// HistorySink receives generation records for the external history store.
type HistorySink interface {
	RecordGeneration(ctx context.Context, record GenerationRecord) error
	RecordConversation(ctx context.Context, record ConversationRecord) error
}
