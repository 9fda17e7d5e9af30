package worker

import (
	"github.com/book-expert/events"
	"github.com/book-expert/tts-gateway/internal/core"
)

// Error kinds carried by replies, alongside the provider kinds quota,
// authentication, billing, unavailable and other.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindStorage    = "storage"
	KindInternal   = "internal"
)

// SynthesizeJob requests a single-segment synthesis. Exactly one of Text and
// TextKey is set; TextKey names an object in the text bucket. A zero
// SpeakingRate selects the default rate.
type SynthesizeJob struct {
	Header       events.EventHeader `json:"header"`
	Text         string             `json:"text,omitempty"`
	TextKey      string             `json:"text_key,omitempty"`
	Voice        string             `json:"voice"`
	LanguageCode string             `json:"language_code,omitempty"`
	SpeakingRate float64            `json:"speaking_rate,omitempty"`
	Pitch        float64            `json:"pitch,omitempty"`
	VolumeGainDB float64            `json:"volume_gain_db,omitempty"`
}

// ConversationJob requests a multi-speaker synthesis. A zero PauseSeconds
// selects the default pause.
type ConversationJob struct {
	Header       events.EventHeader `json:"header"`
	Title        string             `json:"title,omitempty"`
	Segments     []core.Segment     `json:"segments"`
	PauseSeconds float64            `json:"pause_seconds,omitempty"`
}

// SynthesizeReply answers a SynthesizeJob. Either Result or Error is set.
type SynthesizeReply struct {
	Header events.EventHeader    `json:"header"`
	Result *core.SynthesisResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
	Kind   string                `json:"kind,omitempty"`
}

// ConversationReply answers a ConversationJob. Either Result or Error is set.
type ConversationReply struct {
	Header events.EventHeader       `json:"header"`
	Result *core.ConversationResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
	Kind   string                   `json:"kind,omitempty"`
}
