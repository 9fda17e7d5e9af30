package tts_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/metrics"
	"github.com/book-expert/tts-gateway/internal/tts"
	"github.com/book-expert/tts-gateway/internal/tts/audio"
	"github.com/book-expert/tts-gateway/internal/tts/provider"
	"github.com/book-expert/tts-gateway/internal/usage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mixedConversation() core.ConversationRequest {
	return core.ConversationRequest{
		Subject: "user-7",
		Title:   "Greeting",
		Segments: []core.Segment{
			{Text: "Hi", Voice: "female"},
			{Text: "Hello", Voice: "neural-male"},
		},
		PauseSeconds: 0.5,
	}
}

const costMetric = "tts_gateway_cost_usd_total"

func TestSynthesizeConversation_MixedTierTotals(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	rig := newRig(t, func(opts *tts.Options) {
		opts.Metrics = metrics.New(registry)
	})

	result, err := rig.engine.SynthesizeConversation(context.Background(), mixedConversation())
	require.NoError(t, err)

	assert.False(t, result.CacheHit)
	assert.Equal(t, 7, result.TotalCharacters)
	assert.InDelta(t, 0.000088, result.TotalCostUSD, 1e-12)
	assert.InDelta(t, 1+1+0.5, result.DurationSeconds, 1e-9)
	assert.Equal(t, mixedConversation().Segments, result.Segments)
	assert.Regexp(t, `^conversation-[0-9a-f]{12}-\d+\.wav$`, result.Filename)

	require.Equal(t, 2, rig.provider.callCount())

	for _, call := range rig.provider.calls {
		assert.Equal(t, provider.EncodingLinear16, call.Encoding)
	}

	assert.Equal(t, "en-US-Standard-C", rig.provider.calls[0].VoiceID)
	assert.Equal(t, "en-US-Neural2-D", rig.provider.calls[1].VoiceID)

	summary := rig.usage.Query("user-7", usage.PeriodDay)
	assert.Equal(t, 7, summary.TotalCharacters)
	assert.Equal(t, 1, summary.TotalRequests, "a conversation is one request")
	assert.InDelta(t, 0.000088, summary.TotalCostUSD, 1e-12)

	series, err := testutil.GatherAndCount(registry, costMetric)
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one cost series per tier")
}

func TestSynthesizeConversation_OrderAndPauses(t *testing.T) {
	t.Parallel()

	rig := newRig(t, nil)
	format := audio.NewDefaultFormat()

	req := core.ConversationRequest{
		Segments: []core.Segment{
			{Text: "One", Voice: "female"},
			{Text: "Second", Voice: "male"},
			{Text: "Third turn", Voice: "female"},
		},
		PauseSeconds: 0.25,
	}

	result, err := rig.engine.SynthesizeConversation(context.Background(), req)
	require.NoError(t, err)

	pcm, decodedFormat, err := audio.DecodeWAV(readArtifact(t, rig.store, result.Filename))
	require.NoError(t, err)
	assert.Equal(t, format, decodedFormat)

	pause := audio.Silence(0.25, format)

	var want bytes.Buffer

	want.Write(markerPCM("One"))
	want.Write(pause)
	want.Write(markerPCM("Second"))
	want.Write(pause)
	want.Write(markerPCM("Third turn"))

	assert.Equal(t, want.Bytes(), pcm, "segments in order with no trailing pause")
}

func TestSynthesizeConversation_CacheHit(t *testing.T) {
	t.Parallel()

	rig := newRig(t, nil)
	ctx := context.Background()

	first, err := rig.engine.SynthesizeConversation(ctx, mixedConversation())
	require.NoError(t, err)

	second, err := rig.engine.SynthesizeConversation(ctx, mixedConversation())
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Zero(t, second.TotalCostUSD)
	assert.Equal(t, first.Filename, second.Filename)
	assert.Equal(t, first.TotalCharacters, second.TotalCharacters)
	assert.Equal(t, 2, rig.provider.callCount())

	require.Len(t, rig.history.conversations, 1, "history is recorded only on a miss")

	record := rig.history.conversations[0]
	assert.Equal(t, "user-7", record.SubjectID)
	assert.Equal(t, "Greeting", record.Title)
	assert.Equal(t, first.URI, record.AudioURI)
	assert.InDelta(t, 0.000088, record.TotalCostUSD, 1e-12)
}

func TestSynthesizeConversation_ChangedPauseMisses(t *testing.T) {
	t.Parallel()

	rig := newRig(t, nil)
	ctx := context.Background()

	_, err := rig.engine.SynthesizeConversation(ctx, mixedConversation())
	require.NoError(t, err)

	slower := mixedConversation()
	slower.PauseSeconds = 1.0

	result, err := rig.engine.SynthesizeConversation(ctx, slower)
	require.NoError(t, err)
	assert.False(t, result.CacheHit)

	swapped := mixedConversation()
	swapped.Segments[0], swapped.Segments[1] = swapped.Segments[1], swapped.Segments[0]

	result, err = rig.engine.SynthesizeConversation(ctx, swapped)
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
}

func TestSynthesizeConversation_PerSegmentFallback(t *testing.T) {
	t.Parallel()

	rig := newRig(t, nil)
	rig.provider.errFor = map[string]error{
		"Hello": &provider.Error{Kind: provider.KindOther, StatusCode: 400},
	}

	result, err := rig.engine.SynthesizeConversation(context.Background(), mixedConversation())
	require.NoError(t, err)

	pcm, format, err := audio.DecodeWAV(readArtifact(t, rig.store, result.Filename))
	require.NoError(t, err)

	tone, err := audio.Tone(1, format)
	require.NoError(t, err)

	var want bytes.Buffer

	want.Write(markerPCM("Hi"))
	want.Write(audio.Silence(0.5, format))
	want.Write(tone)

	assert.Equal(t, want.Bytes(), pcm)
	assert.InDelta(t, 0.000088, result.TotalCostUSD, 1e-12)
	assert.Regexp(t, `^tts-fallback-conversation-[0-9a-f]{12}-\d+\.wav$`, result.Filename)

	rig.provider.errFor = nil

	retried, err := rig.engine.SynthesizeConversation(context.Background(), mixedConversation())
	require.NoError(t, err)
	assert.False(t, retried.CacheHit, "a conversation with fallback audio is synthesized again")
	assert.Regexp(t, `^conversation-[0-9a-f]{12}-\d+\.wav$`, retried.Filename)
}

func TestSynthesizeConversation_StrictModeAborts(t *testing.T) {
	t.Parallel()

	rig := newRig(t, func(opts *tts.Options) {
		opts.StrictProviderErrors = true
	})
	rig.provider.errFor = map[string]error{
		"Hello": &provider.Error{Kind: provider.KindBilling, StatusCode: 403},
	}

	_, err := rig.engine.SynthesizeConversation(context.Background(), mixedConversation())
	require.ErrorIs(t, err, provider.ErrBilling)
	assert.Empty(t, rig.history.conversations)
}

func TestSynthesizeConversation_NothingBilledWhenAborted(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	rig := newRig(t, func(opts *tts.Options) {
		opts.Metrics = metrics.New(registry)
		opts.StrictProviderErrors = true
	})
	rig.provider.errFor = map[string]error{
		"Hello": &provider.Error{Kind: provider.KindQuota, StatusCode: 429},
	}

	_, err := rig.engine.SynthesizeConversation(context.Background(), mixedConversation())
	require.ErrorIs(t, err, provider.ErrQuota)

	series, err := testutil.GatherAndCount(registry, costMetric)
	require.NoError(t, err)
	assert.Zero(t, series, "the rendered first segment must not be billed")

	summary := rig.usage.Query("user-7", usage.PeriodDay)
	assert.Zero(t, summary.TotalRequests)
	assert.Zero(t, summary.TotalCharacters)
}

func TestSynthesizeConversation_AnonymousHasNoHistory(t *testing.T) {
	t.Parallel()

	rig := newRig(t, nil)

	req := mixedConversation()
	req.Subject = ""

	_, err := rig.engine.SynthesizeConversation(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, rig.history.conversations)
	assert.Equal(t, 7, rig.usage.Query(tts.DefaultAnonymousSubject, usage.PeriodDay).TotalCharacters)
}

func TestSynthesizeConversation_Validation(t *testing.T) {
	t.Parallel()

	rig := newRig(t, nil)
	ctx := context.Background()

	noPause := mixedConversation()
	noPause.PauseSeconds = 0

	_, err := rig.engine.SynthesizeConversation(ctx, noPause)
	require.ErrorIs(t, err, core.ErrPauseRange)

	_, err = rig.engine.SynthesizeConversation(ctx, core.ConversationRequest{PauseSeconds: 0.5})
	require.ErrorIs(t, err, core.ErrNoSegments)

	assert.Equal(t, 0, rig.provider.callCount())
}
