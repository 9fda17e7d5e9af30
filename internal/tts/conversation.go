package tts

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/book-expert/tts-gateway/internal/cache"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/metrics"
	"github.com/book-expert/tts-gateway/internal/pricing"
	"github.com/book-expert/tts-gateway/internal/tts/audio"
	"github.com/book-expert/tts-gateway/internal/tts/provider"
	"github.com/book-expert/tts-gateway/internal/tts/text"
	"github.com/book-expert/tts-gateway/internal/tts/ttsutils"
	"github.com/book-expert/tts-gateway/internal/voice"
)

type resolvedSegment struct {
	text       string
	voiceID    string
	characters int
}

type tierCharge struct {
	characters int
	costUSD    float64
}

// SynthesizeConversation returns one WAV artifact holding every segment in
// order, separated by PauseSeconds of silence. Each segment is charged at
// its own voice's tier and falls back independently of the others. The
// conversation counts as one request and is billed only once it is stored.
func (e *Engine) SynthesizeConversation(
	ctx context.Context,
	req core.ConversationRequest,
) (*core.ConversationResult, error) {
	started := e.now()

	err := req.Validate()
	if err != nil {
		return nil, err
	}

	segments := make([]resolvedSegment, 0, len(req.Segments))
	keySegments := make([]core.Segment, 0, len(req.Segments))

	result := &core.ConversationResult{
		Segments: req.Segments,
	}

	for index, segment := range req.Segments {
		input := text.Normalize(segment.Text)
		if input == "" {
			return nil, fmt.Errorf("segment %d: %w", index+1, core.ErrTextEmpty)
		}

		resolved := resolvedSegment{
			text:       input,
			voiceID:    voice.Resolve(segment.Voice),
			characters: utf8.RuneCountInString(input),
		}

		segments = append(segments, resolved)
		keySegments = append(keySegments, core.Segment{Text: resolved.text, Voice: resolved.voiceID})

		result.TotalCharacters += resolved.characters
		result.DurationSeconds += estimateDuration(resolved.characters)
	}

	result.DurationSeconds += req.PauseSeconds * float64(len(segments)-1)

	fingerprint := cache.FingerprintConversation(keySegments, req.PauseSeconds)

	entry, hit := e.store.Lookup(fingerprint, cache.TagConversation)
	e.metrics.CacheLookup(metrics.KindConversation, hit)

	if hit {
		result.URI = entry.URI
		result.Filename = entry.Filename
		result.CacheHit = true

		e.metrics.ObserveSynthesis(metrics.KindConversation, metrics.StatusSuccess, e.since(started))

		return result, nil
	}

	parts := make([][]byte, 0, len(segments))
	charges := make(map[pricing.Tier]*tierCharge)
	fellBack := false

	for index, segment := range segments {
		rendered, renderErr := e.render(ctx, segment.text, segment.voiceID, e.segmentAudioConfig(segment.voiceID),
			provider.EncodingLinear16)
		if renderErr != nil {
			e.metrics.ObserveSynthesis(metrics.KindConversation, metrics.StatusError, e.since(started))

			return nil, fmt.Errorf("segment %d: %w", index+1, renderErr)
		}

		parts = append(parts, rendered.data)
		fellBack = fellBack || rendered.fallbackReason != ""

		tier := pricing.TierOf(segment.voiceID)
		if charges[tier] == nil {
			charges[tier] = &tierCharge{}
		}

		cost := pricing.Cost(segment.characters, segment.voiceID)
		charges[tier].characters += segment.characters
		charges[tier].costUSD += cost
		result.TotalCostUSD += cost
	}

	assembled, err := audio.JoinWAV(parts, audio.Silence(req.PauseSeconds, e.format), e.format)
	if err != nil {
		e.metrics.ObserveSynthesis(metrics.KindConversation, metrics.StatusError, e.since(started))

		return nil, fmt.Errorf("%w: assembling conversation: %w", ErrSynthesisFailed, err)
	}

	storeTag := cache.TagConversation
	if fellBack {
		storeTag = cache.FallbackTag(storeTag)
	}

	entry, err = e.store.Put(fingerprint, storeTag, extWAV, assembled)
	if err != nil {
		e.metrics.ObserveSynthesis(metrics.KindConversation, metrics.StatusError, e.since(started))

		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	result.URI = entry.URI
	result.Filename = entry.Filename

	for tier, charge := range charges {
		e.metrics.Billed(string(tier), charge.characters, charge.costUSD)
	}

	subject := e.subjectOf(req.Subject)
	e.usage.RecordCharge(subject, result.TotalCharacters, result.TotalCostUSD)

	e.recordConversation(ctx, subject, req, result)
	e.metrics.ObserveSynthesis(metrics.KindConversation, metrics.StatusSuccess, e.since(started))

	e.log.Info("Assembled conversation of %d segments (%d characters) into %s (%s)",
		len(segments), result.TotalCharacters, entry.Filename, ttsutils.FormatDuration(result.DurationSeconds))

	return result, nil
}

func (e *Engine) segmentAudioConfig(voiceID string) core.AudioConfig {
	return e.audioConfigFor(core.AudioConfig{SpeakingRate: core.DefaultSpeakingRate}, voiceID)
}

func (e *Engine) recordConversation(
	ctx context.Context,
	subject string,
	req core.ConversationRequest,
	result *core.ConversationResult,
) {
	if e.history == nil || subject == e.anonymousSubject {
		return
	}

	record := core.ConversationRecord{
		SubjectID:       subject,
		Title:           req.Title,
		Segments:        req.Segments,
		TotalCharacters: result.TotalCharacters,
		TotalCostUSD:    result.TotalCostUSD,
		DurationSeconds: result.DurationSeconds,
		AudioURI:        result.URI,
		Filename:        result.Filename,
		CreatedAt:       e.now().UTC(),
	}

	err := e.history.RecordConversation(ctx, record)
	if err != nil {
		e.log.Warn("Failed to record conversation history for '%s': %v", subject, err)
	}
}
