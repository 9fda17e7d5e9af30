package history_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/history"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		natsConnection.Close()
		natsServer.Shutdown()
	})

	js, err := jetstream.New(natsConnection)
	require.NoError(t, err)

	return js
}

func newPublisher(t *testing.T, js jetstream.JetStream) *history.Publisher {
	t.Helper()

	log, err := logger.New(t.TempDir(), "history-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	publisher, err := history.NewPublisher(context.Background(), js, "TEST_HISTORY", "test.history", log)
	require.NoError(t, err)

	return publisher
}

func fetchOne(t *testing.T, js jetstream.JetStream, filter string) history.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	consumer, err := js.OrderedConsumer(ctx, "TEST_HISTORY", jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{filter},
	})
	require.NoError(t, err)

	msg, err := consumer.Next(jetstream.FetchMaxWait(5 * time.Second))
	require.NoError(t, err)

	var envelope history.Envelope

	require.NoError(t, json.Unmarshal(msg.Data(), &envelope))

	return envelope
}

func TestPublisher_RecordGeneration(t *testing.T) {
	t.Parallel()

	js := newJetStream(t)
	publisher := newPublisher(t, js)

	createdAt := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	job := events.EventHeader{
		Timestamp:  createdAt,
		WorkflowID: "workflow-1",
		EventID:    "event-1",
		UserID:     "user-9",
		TenantID:   "tenant-3",
	}

	ctx := history.WithHeader(context.Background(), job)

	err := publisher.RecordGeneration(ctx, core.GenerationRecord{
		SubjectID:       "user-9",
		Text:            "Hello world",
		VoiceID:         "en-US-Standard-C",
		SpeakingRate:    1,
		AudioURI:        "http://localhost:8080/tts-cache/tts-female-abcdef012345-1.mp3",
		Filename:        "tts-female-abcdef012345-1.mp3",
		Characters:      11,
		CostUSD:         0.000044,
		DurationSeconds: 2,
		CreatedAt:       createdAt,
	})
	require.NoError(t, err)

	envelope := fetchOne(t, js, publisher.Subject(history.TypeGeneration))

	assert.Equal(t, history.TypeGeneration, envelope.Type)
	require.NotNil(t, envelope.Generation)
	assert.Nil(t, envelope.Conversation)
	assert.Equal(t, "Hello world", envelope.Generation.Text)
	assert.Equal(t, 11, envelope.Generation.Characters)
	assert.Equal(t, "user-9", envelope.Header.UserID)
	assert.Equal(t, "workflow-1", envelope.Header.WorkflowID)
	assert.Equal(t, "tenant-3", envelope.Header.TenantID)
	assert.NotEmpty(t, envelope.Header.EventID)
	assert.NotEqual(t, job.EventID, envelope.Header.EventID)
	assert.True(t, createdAt.Equal(envelope.Header.Timestamp))
}

func TestPublisher_RecordConversation(t *testing.T) {
	t.Parallel()

	js := newJetStream(t)
	publisher := newPublisher(t, js)

	err := publisher.RecordConversation(context.Background(), core.ConversationRecord{
		SubjectID: "user-1",
		Title:     "Dialogue",
		Segments: []core.Segment{
			{Text: "Hi", Voice: "female"},
			{Text: "Hello", Voice: "neural-male"},
		},
		TotalCharacters: 7,
		TotalCostUSD:    0.000088,
		DurationSeconds: 2.5,
		AudioURI:        "http://localhost:8080/tts-cache/conversation-abcdef012345-1.wav",
		Filename:        "conversation-abcdef012345-1.wav",
		CreatedAt:       time.Now().UTC(),
	})
	require.NoError(t, err)

	envelope := fetchOne(t, js, publisher.Subject(history.TypeConversation))

	assert.Equal(t, history.TypeConversation, envelope.Type)
	require.NotNil(t, envelope.Conversation)
	assert.Len(t, envelope.Conversation.Segments, 2)
	assert.Equal(t, "Dialogue", envelope.Conversation.Title)
	assert.NotEmpty(t, envelope.Header.WorkflowID, "a workflow id is minted without a job header")
}

func TestNewPublisher_Validation(t *testing.T) {
	t.Parallel()

	js := newJetStream(t)

	log, err := logger.New(t.TempDir(), "history-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	_, err = history.NewPublisher(context.Background(), js, "", "test.history", log)
	require.ErrorIs(t, err, history.ErrStreamNameEmpty)

	_, err = history.NewPublisher(context.Background(), js, "TEST_HISTORY", "", log)
	require.ErrorIs(t, err, history.ErrSubjectEmpty)
}
