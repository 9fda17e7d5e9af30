// Package cache implements the content-addressed, directory-backed store of
// synthesized audio.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/book-expert/tts-gateway/internal/core"
)

// FragmentLength is the number of hex characters of a fingerprint embedded in
// cache filenames.
const FragmentLength = 12

// Fingerprint is the hex SHA-256 digest of a request's semantic fields.
type Fingerprint string

// Fragment returns the filename-embedded prefix of the fingerprint.
func (f Fingerprint) Fragment() string {
	if len(f) < FragmentLength {
		return string(f)
	}

	return string(f[:FragmentLength])
}

type requestKey struct {
	Text        string           `json:"text"`
	VoiceID     string           `json:"voiceId"`
	AudioConfig core.AudioConfig `json:"audioConfig"`
}

type conversationKey struct {
	Segments     []core.Segment `json:"segments"`
	PauseSeconds float64        `json:"pauseSeconds"`
}

// FingerprintRequest fingerprints a single-segment request. Callers pass the
// normalized text and the resolved provider voice id.
func FingerprintRequest(text, voiceID string, audioConfig core.AudioConfig) Fingerprint {
	return digest(requestKey{Text: text, VoiceID: voiceID, AudioConfig: audioConfig})
}

// FingerprintConversation fingerprints an ordered segment list and its pause.
func FingerprintConversation(segments []core.Segment, pauseSeconds float64) Fingerprint {
	return digest(conversationKey{Segments: segments, PauseSeconds: pauseSeconds})
}

func digest(key any) Fingerprint {
	// Struct fields marshal in declaration order, so the encoding is canonical.
	payload, err := json.Marshal(key)
	if err != nil {
		panic("cache: fingerprint key is not serializable: " + err.Error())
	}

	sum := sha256.Sum256(payload)

	return Fingerprint(hex.EncodeToString(sum[:]))
}
