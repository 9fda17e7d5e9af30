// Package history publishes generation records to a JetStream stream, from
// which the external history store ingests them.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// Record types, which are also the last token of the publish subject.
const (
	TypeGeneration   = "generation"
	TypeConversation = "conversation"
)

const streamMaxAge = 30 * 24 * time.Hour

// Static errors.
var (
	ErrStreamNameEmpty = errors.New("history stream name cannot be empty")
	ErrSubjectEmpty    = errors.New("history subject cannot be empty")
)

// Envelope is the message body published for every record.
type Envelope struct {
	Header       events.EventHeader       `json:"header"`
	Type         string                   `json:"type"`
	Generation   *core.GenerationRecord   `json:"generation,omitempty"`
	Conversation *core.ConversationRecord `json:"conversation,omitempty"`
}

type headerKey struct{}

// WithHeader returns a context carrying the header of the job being served.
// Its workflow and tenant ids are copied onto published records.
func WithHeader(ctx context.Context, header events.EventHeader) context.Context {
	return context.WithValue(ctx, headerKey{}, header)
}

// HeaderFrom returns the job header stored by WithHeader.
func HeaderFrom(ctx context.Context) (events.EventHeader, bool) {
	header, ok := ctx.Value(headerKey{}).(events.EventHeader)

	return header, ok
}

// Publisher implements core.HistorySink on a JetStream stream.
type Publisher struct {
	js      jetstream.JetStream
	subject string
	log     *logger.Logger
}

// NewPublisher ensures the stream exists and captures subject.* messages.
func NewPublisher(
	ctx context.Context,
	js jetstream.JetStream,
	streamName, subject string,
	log *logger.Logger,
) (*Publisher, error) {
	if streamName == "" {
		return nil, ErrStreamNameEmpty
	}

	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "Synthesis history records",
		Subjects:    []string{subject + ".*"},
		Storage:     jetstream.FileStorage,
		MaxAge:      streamMaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create history stream '%s': %w", streamName, err)
	}

	log.Info("History records publish to stream '%s' on '%s.*'", streamName, subject)

	return &Publisher{js: js, subject: subject, log: log}, nil
}

// Subject returns the subject records of recordType are published on.
func (p *Publisher) Subject(recordType string) string {
	return p.subject + "." + recordType
}

// RecordGeneration publishes a single-segment generation record.
func (p *Publisher) RecordGeneration(ctx context.Context, record core.GenerationRecord) error {
	return p.publish(ctx, Envelope{
		Header:     p.header(ctx, record.SubjectID, record.CreatedAt),
		Type:       TypeGeneration,
		Generation: &record,
	})
}

// RecordConversation publishes a conversation record.
func (p *Publisher) RecordConversation(ctx context.Context, record core.ConversationRecord) error {
	return p.publish(ctx, Envelope{
		Header:       p.header(ctx, record.SubjectID, record.CreatedAt),
		Type:         TypeConversation,
		Conversation: &record,
	})
}

func (p *Publisher) publish(ctx context.Context, envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", envelope.Type, err)
	}

	// The event id doubles as the message id so a retried publish is deduplicated.
	_, err = p.js.Publish(ctx, p.Subject(envelope.Type), data, jetstream.WithMsgID(envelope.Header.EventID))
	if err != nil {
		return fmt.Errorf("failed to publish %s record: %w", envelope.Type, err)
	}

	return nil
}

func (p *Publisher) header(ctx context.Context, subjectID string, createdAt time.Time) events.EventHeader {
	header := events.EventHeader{
		Timestamp:  createdAt,
		WorkflowID: "",
		EventID:    uuid.NewString(),
		UserID:     subjectID,
		TenantID:   "",
	}

	if job, ok := HeaderFrom(ctx); ok {
		header.WorkflowID = job.WorkflowID
		header.TenantID = job.TenantID
	}

	if header.WorkflowID == "" {
		header.WorkflowID = uuid.NewString()
	}

	return header
}
