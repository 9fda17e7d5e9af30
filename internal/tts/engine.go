// Package tts turns synthesis requests into cached audio artifacts. It
// consults the cache, calls the remote provider or the local fallback
// generator on a miss, and accounts the cost of every fresh synthesis.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/cache"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/metrics"
	"github.com/book-expert/tts-gateway/internal/pricing"
	"github.com/book-expert/tts-gateway/internal/tts/audio"
	"github.com/book-expert/tts-gateway/internal/tts/provider"
	"github.com/book-expert/tts-gateway/internal/tts/text"
	"github.com/book-expert/tts-gateway/internal/tts/ttsutils"
	"github.com/book-expert/tts-gateway/internal/usage"
	"github.com/book-expert/tts-gateway/internal/voice"
)

const (
	// DefaultMaxRequestBytes is the provider's per-call input limit.
	DefaultMaxRequestBytes = 5000
	// DefaultChunkBytes is the size chunks are cut to once text exceeds the limit.
	DefaultChunkBytes = 4500
	// DefaultAnonymousSubject is the shared subject of unauthenticated callers.
	DefaultAnonymousSubject = "anonymous"

	charsPerSecond     = 10
	maxFallbackSeconds = 30
	historyTextRunes   = 200
	extMP3             = "mp3"
	extWAV             = "wav"
)

// Fallback reasons that are not provider error kinds.
const (
	ReasonProviderDisabled = "provider_disabled"
)

// Static errors.
var (
	ErrSynthesisFailed     = errors.New("synthesis failed")
	ErrStoreRequired       = errors.New("cache store is required")
	ErrUnsupportedEncoding = errors.New("unsupported audio encoding")
)

// Synthesizer renders one piece of text remotely.
type Synthesizer interface {
	Synthesize(ctx context.Context, req provider.Request) ([]byte, error)
}

// Options configures an Engine.
type Options struct {
	// Provider is the remote synthesizer; nil selects the fallback generator
	// for every request.
	Provider             Synthesizer
	Store                *cache.Store
	Usage                usage.Tracker
	History              core.HistorySink
	Metrics              *metrics.Metrics
	Format               audio.Format
	Encoding             string
	MaxRequestBytes      int
	ChunkBytes           int
	StrictProviderErrors bool
	AnonymousSubject     string
	DefaultLanguageCode  string
	Now                  func() time.Time
}

// Engine serves single-segment and conversation synthesis.
type Engine struct {
	provider         Synthesizer
	store            *cache.Store
	usage            usage.Tracker
	history          core.HistorySink
	metrics          *metrics.Metrics
	format           audio.Format
	encoding         string
	maxRequestBytes  int
	chunkBytes       int
	strict           bool
	anonymousSubject string
	defaultLanguage  string
	now              func() time.Time
	log              *logger.Logger
}

type rendering struct {
	data           []byte
	ext            string
	fallbackReason string
}

// NewEngine validates opts and creates an engine.
func NewEngine(opts Options, log *logger.Logger) (*Engine, error) {
	if opts.Store == nil {
		return nil, ErrStoreRequired
	}

	if opts.Format == (audio.Format{}) {
		opts.Format = audio.NewDefaultFormat()
	}

	err := opts.Format.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid engine audio format: %w", err)
	}

	if opts.Format.BitDepth != audio.DefaultBitDepth {
		return nil, fmt.Errorf("invalid engine audio format: %w", audio.ErrUnsupportedBits)
	}

	switch opts.Encoding {
	case "":
		opts.Encoding = provider.EncodingMP3
	case provider.EncodingMP3, provider.EncodingLinear16:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, opts.Encoding)
	}

	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = DefaultMaxRequestBytes
	}

	if opts.ChunkBytes <= 0 || opts.ChunkBytes > opts.MaxRequestBytes {
		opts.ChunkBytes = min(DefaultChunkBytes, opts.MaxRequestBytes)
	}

	if opts.Usage == nil {
		opts.Usage = usage.NewMemoryTracker(0, opts.Now)
	}

	if opts.AnonymousSubject == "" {
		opts.AnonymousSubject = DefaultAnonymousSubject
	}

	if opts.DefaultLanguageCode == "" {
		opts.DefaultLanguageCode = voice.LanguageOf(voice.DefaultID)
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		provider:         opts.Provider,
		store:            opts.Store,
		usage:            opts.Usage,
		history:          opts.History,
		metrics:          opts.Metrics,
		format:           opts.Format,
		encoding:         opts.Encoding,
		maxRequestBytes:  opts.MaxRequestBytes,
		chunkBytes:       opts.ChunkBytes,
		strict:           opts.StrictProviderErrors,
		anonymousSubject: opts.AnonymousSubject,
		defaultLanguage:  opts.DefaultLanguageCode,
		now:              opts.Now,
		log:              log,
	}, nil
}

// ProviderEnabled reports whether misses are sent to the remote provider.
func (e *Engine) ProviderEnabled() bool {
	return e.provider != nil
}

// Synthesize returns the artifact for req, synthesizing it on a cache miss.
// Provider failures degrade to the fallback generator unless strict mode is
// on and the failure concerns the account. Fallback audio is stored under
// its own tag, so the next identical request misses and retries the
// provider. Cache write failures are wrapped in ErrSynthesisFailed.
func (e *Engine) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	started := e.now()

	err := req.Validate()
	if err != nil {
		return nil, err
	}

	input := text.Normalize(req.Text)
	if input == "" {
		return nil, core.ErrTextEmpty
	}

	voiceID := voice.Resolve(req.Voice)
	tag := voice.Simplify(voiceID)
	audioConfig := e.audioConfigFor(req.Audio, voiceID)
	characters := utf8.RuneCountInString(input)
	fingerprint := cache.FingerprintRequest(input, voiceID, audioConfig)
	subject := e.subjectOf(req.Subject)

	result := &core.SynthesisResult{
		Characters:      characters,
		VoiceID:         voiceID,
		Voice:           tag,
		DurationSeconds: estimateDuration(characters),
	}

	entry, hit := e.store.Lookup(fingerprint, tag)
	e.metrics.CacheLookup(metrics.KindSpeech, hit)

	if hit {
		result.URI = entry.URI
		result.Filename = entry.Filename
		result.CacheHit = true

		e.recordGeneration(ctx, subject, input, audioConfig, result)
		e.metrics.ObserveSynthesis(metrics.KindSpeech, metrics.StatusSuccess, e.since(started))

		return result, nil
	}

	rendered, err := e.render(ctx, input, voiceID, audioConfig, e.encoding)
	if err != nil {
		e.metrics.ObserveSynthesis(metrics.KindSpeech, metrics.StatusError, e.since(started))

		return nil, err
	}

	storeTag := tag
	if rendered.fallbackReason != "" {
		storeTag = cache.FallbackTag(tag)
	}

	entry, err = e.store.Put(fingerprint, storeTag, rendered.ext, rendered.data)
	if err != nil {
		e.metrics.ObserveSynthesis(metrics.KindSpeech, metrics.StatusError, e.since(started))

		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	result.URI = entry.URI
	result.Filename = entry.Filename
	result.CostUSD = pricing.Cost(characters, voiceID)
	result.Fallback = rendered.fallbackReason != ""
	result.FallbackReason = rendered.fallbackReason

	e.metrics.Billed(string(pricing.TierOf(voiceID)), characters, result.CostUSD)
	e.usage.Record(subject, characters, voiceID)
	e.recordGeneration(ctx, subject, input, audioConfig, result)
	e.metrics.ObserveSynthesis(metrics.KindSpeech, metrics.StatusSuccess, e.since(started))

	e.log.Info("Synthesized %d characters with %s into %s (%s, fallback: %t)",
		characters, voiceID, entry.Filename, ttsutils.FormatDuration(result.DurationSeconds), result.Fallback)

	return result, nil
}

// render produces audio for input with the provider, falling back to the
// local tone generator.
func (e *Engine) render(
	ctx context.Context,
	input, voiceID string,
	audioConfig core.AudioConfig,
	encoding string,
) (rendering, error) {
	if e.provider == nil {
		return e.fallback(input, ReasonProviderDisabled)
	}

	data, err := e.callProvider(ctx, input, voiceID, audioConfig, encoding)
	if err == nil {
		e.metrics.ProviderRequest(metrics.StatusSuccess)

		return rendering{data: data, ext: extensionFor(encoding)}, nil
	}

	e.metrics.ProviderRequest(metrics.StatusError)

	kind := provider.KindOf(err)
	if e.strict && kind.Account() {
		e.log.Error("Provider rejected synthesis with %s: %v", voiceID, err)

		return rendering{}, fmt.Errorf("provider rejected synthesis: %w", err)
	}

	e.log.Warn("Provider synthesis with %s failed, using fallback: %v", voiceID, err)

	return e.fallback(input, string(kind))
}

// callProvider sends input in one call, or in sentence-bounded chunks when it
// exceeds the provider's request limit, and joins the pieces in order.
func (e *Engine) callProvider(
	ctx context.Context,
	input, voiceID string,
	audioConfig core.AudioConfig,
	encoding string,
) ([]byte, error) {
	chunks := []string{input}
	if len(input) > e.maxRequestBytes {
		chunks = text.Chunk(input, e.chunkBytes)
		e.log.Info("Split %d bytes of text into %d chunks", len(input), len(chunks))
	}

	parts := make([][]byte, 0, len(chunks))

	for index, chunk := range chunks {
		data, err := e.provider.Synthesize(ctx, provider.Request{
			Text:         chunk,
			VoiceID:      voiceID,
			LanguageCode: audioConfig.LanguageCode,
			SpeakingRate: audioConfig.SpeakingRate,
			Pitch:        audioConfig.Pitch,
			VolumeGainDB: audioConfig.VolumeGainDB,
			Encoding:     encoding,
			SampleRate:   e.format.SampleRate,
		})
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", index+1, len(chunks), err)
		}

		parts = append(parts, data)
	}

	if encoding != provider.EncodingLinear16 {
		return bytes.Join(parts, nil), nil
	}

	joined, err := audio.JoinWAV(parts, nil, e.format)
	if err != nil {
		return nil, &provider.Error{Kind: provider.KindOther, Message: "unusable LINEAR16 audio", Err: err}
	}

	return joined, nil
}

// fallback renders a deterministic tone whose length follows the duration
// estimate of input.
func (e *Engine) fallback(input, reason string) (rendering, error) {
	e.metrics.Fallback(reason)

	seconds := min(estimateDuration(utf8.RuneCountInString(input)), maxFallbackSeconds)

	pcm, err := audio.Tone(seconds, e.format)
	if err != nil {
		return rendering{}, fmt.Errorf("%w: fallback generator: %w", ErrSynthesisFailed, err)
	}

	return rendering{data: audio.EncodeWAV(pcm, e.format), ext: extWAV, fallbackReason: reason}, nil
}

func (e *Engine) recordGeneration(
	ctx context.Context,
	subject, input string,
	audioConfig core.AudioConfig,
	result *core.SynthesisResult,
) {
	if e.history == nil || subject == e.anonymousSubject {
		return
	}

	record := core.GenerationRecord{
		SubjectID:       subject,
		Text:            truncateRunes(input, historyTextRunes),
		VoiceID:         result.VoiceID,
		SpeakingRate:    audioConfig.SpeakingRate,
		AudioURI:        result.URI,
		Filename:        result.Filename,
		Characters:      result.Characters,
		CostUSD:         result.CostUSD,
		DurationSeconds: result.DurationSeconds,
		CreatedAt:       e.now().UTC(),
	}

	err := e.history.RecordGeneration(ctx, record)
	if err != nil {
		e.log.Warn("Failed to record generation history for '%s': %v", subject, err)
	}
}

// audioConfigFor fills the language code from the voice id or the default.
func (e *Engine) audioConfigFor(requested core.AudioConfig, voiceID string) core.AudioConfig {
	if requested.LanguageCode != "" {
		return requested
	}

	requested.LanguageCode = voice.LanguageOf(voiceID)
	if requested.LanguageCode == "" {
		requested.LanguageCode = e.defaultLanguage
	}

	return requested
}

func (e *Engine) subjectOf(subject string) string {
	if subject == "" {
		return e.anonymousSubject
	}

	return subject
}

func (e *Engine) since(started time.Time) float64 {
	return e.now().Sub(started).Seconds()
}

// estimateDuration is the one-second-per-ten-characters estimate reported
// for every artifact.
func estimateDuration(characters int) float64 {
	return math.Ceil(float64(characters) / charsPerSecond)
}

func extensionFor(encoding string) string {
	if encoding == provider.EncodingLinear16 {
		return extWAV
	}

	return extMP3
}

func truncateRunes(input string, limit int) string {
	if utf8.RuneCountInString(input) <= limit {
		return input
	}

	return string([]rune(input)[:limit])
}
