// Package worker provides a NATS worker that serves synthesis requests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/history"
	"github.com/book-expert/tts-gateway/internal/objectstore"
	"github.com/book-expert/tts-gateway/internal/tts"
	"github.com/book-expert/tts-gateway/internal/tts/provider"
	"github.com/nats-io/nats.go"
)

const (
	handleMessageTimeout = 2 * time.Minute
	queueGroup           = "tts-gateway"
	drainTimeout         = handleMessageTimeout + 10*time.Second
	drainPollInterval    = 10 * time.Millisecond

	// DefaultMaxConcurrent is the number of requests served at once when the
	// caller does not choose a limit.
	DefaultMaxConcurrent = 8
)

// Static errors.
var (
	ErrSubjectEmpty    = errors.New("subject cannot be empty")
	ErrServiceNil      = errors.New("synthesis service cannot be nil")
	ErrTextSourceCount = errors.New("exactly one of text and text_key must be set")
	ErrNoTextStore     = errors.New("text_key given but no text store is configured")
)

// Service performs synthesis; *tts.Engine implements it.
type Service interface {
	Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error)
	SynthesizeConversation(ctx context.Context, req core.ConversationRequest) (*core.ConversationResult, error)
}

// NatsWorker answers synthesis requests on two NATS subjects. Each message
// is handled on its own goroutine, at most maxConcurrent at a time across
// both subjects.
type NatsWorker struct {
	natsConnection      *nats.Conn
	synthesizeSubject   string
	conversationSubject string
	store               core.ObjectStore
	service             Service
	log                 *logger.Logger

	slots    chan struct{}
	inFlight sync.WaitGroup
}

// NewNatsWorker creates a new instance of a NATS worker. store may be nil, in
// which case jobs must carry their text inline. A non-positive maxConcurrent
// selects DefaultMaxConcurrent.
func NewNatsWorker(
	natsConnection *nats.Conn,
	synthesizeSubject, conversationSubject string,
	store core.ObjectStore,
	service Service,
	maxConcurrent int,
	log *logger.Logger,
) (*NatsWorker, error) {
	if synthesizeSubject == "" || conversationSubject == "" {
		return nil, ErrSubjectEmpty
	}

	if service == nil {
		return nil, ErrServiceNil
	}

	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	return &NatsWorker{
		natsConnection:      natsConnection,
		synthesizeSubject:   synthesizeSubject,
		conversationSubject: conversationSubject,
		store:               store,
		service:             service,
		log:                 log,
		slots:               make(chan struct{}, maxConcurrent),
	}, nil
}

// Run subscribes to both subjects and serves until ctx is cancelled. On
// cancellation it drains both subscriptions and waits for every handler that
// is still running, so no accepted request goes unanswered.
func (w *NatsWorker) Run(ctx context.Context) error {
	synthesizeSub, err := w.natsConnection.QueueSubscribe(
		w.synthesizeSubject, queueGroup, w.dispatch(w.handleSynthesize),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.synthesizeSubject, err)
	}

	conversationSub, err := w.natsConnection.QueueSubscribe(
		w.conversationSubject, queueGroup, w.dispatch(w.handleConversation),
	)
	if err != nil {
		_ = synthesizeSub.Unsubscribe()

		return fmt.Errorf("failed to subscribe to subject %s: %w", w.conversationSubject, err)
	}

	w.log.Info("Worker listening on '%s' and '%s' (%d concurrent requests)",
		w.synthesizeSubject, w.conversationSubject, cap(w.slots))

	<-ctx.Done()

	drainErr := errors.Join(synthesizeSub.Drain(), conversationSub.Drain())

	// Drain returns before the last callbacks run; wait for the
	// subscriptions to close so no dispatch races the final Wait.
	awaitClosed(drainTimeout, synthesizeSub, conversationSub)
	w.inFlight.Wait()

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscriptions: %w", drainErr)
	}

	return nil
}

// dispatch runs handle on its own goroutine once a slot is free. While every
// slot is taken the subscription callback blocks, so pending messages queue
// in the client instead of spawning goroutines.
func (w *NatsWorker) dispatch(handle nats.MsgHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		w.slots <- struct{}{}

		w.inFlight.Add(1)

		go func() {
			defer func() {
				<-w.slots
				w.inFlight.Done()
			}()

			handle(msg)
		}()
	}
}

func awaitClosed(timeout time.Duration, subs ...*nats.Subscription) {
	deadline := time.Now().Add(timeout)

	for _, sub := range subs {
		for sub.IsValid() && time.Now().Before(deadline) {
			time.Sleep(drainPollInterval)
		}
	}
}

func (w *NatsWorker) handleSynthesize(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var job SynthesizeJob

	err := json.Unmarshal(msg.Data, &job)
	if err != nil {
		w.log.Error("Failed to parse synthesize job: %v", err)
		w.respond(msg, SynthesizeReply{Error: "malformed job: " + err.Error(), Kind: KindValidation})

		return
	}

	ctx = history.WithHeader(ctx, job.Header)

	result, err := w.processSynthesizeJob(ctx, &job)
	if err != nil {
		w.log.Error("Failed to process synthesize job for workflow %s: %v", job.Header.WorkflowID, err)
		w.respond(msg, SynthesizeReply{Header: job.Header, Error: err.Error(), Kind: errorKind(err)})

		return
	}

	w.respond(msg, SynthesizeReply{Header: job.Header, Result: result})
}

func (w *NatsWorker) handleConversation(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var job ConversationJob

	err := json.Unmarshal(msg.Data, &job)
	if err != nil {
		w.log.Error("Failed to parse conversation job: %v", err)
		w.respond(msg, ConversationReply{Error: "malformed job: " + err.Error(), Kind: KindValidation})

		return
	}

	ctx = history.WithHeader(ctx, job.Header)

	req := core.ConversationRequest{
		Subject:      job.Header.UserID,
		Title:        job.Title,
		Segments:     job.Segments,
		PauseSeconds: job.PauseSeconds,
	}

	if req.PauseSeconds == 0 {
		req.PauseSeconds = core.DefaultPauseSeconds
	}

	err = req.Validate()
	if err != nil {
		w.log.Warn("Rejected conversation job for workflow %s: %v", job.Header.WorkflowID, err)
		w.respond(msg, ConversationReply{Header: job.Header, Error: err.Error(), Kind: KindValidation})

		return
	}

	result, err := w.service.SynthesizeConversation(ctx, req)
	if err != nil {
		w.log.Error("Failed to process conversation job for workflow %s: %v", job.Header.WorkflowID, err)
		w.respond(msg, ConversationReply{Header: job.Header, Error: err.Error(), Kind: errorKind(err)})

		return
	}

	w.respond(msg, ConversationReply{Header: job.Header, Result: result})
}

// processSynthesizeJob resolves the job text, validates the request and runs it.
func (w *NatsWorker) processSynthesizeJob(ctx context.Context, job *SynthesizeJob) (*core.SynthesisResult, error) {
	text, err := w.jobText(ctx, job)
	if err != nil {
		return nil, err
	}

	req := core.SynthesisRequest{
		Subject: job.Header.UserID,
		Text:    text,
		Voice:   job.Voice,
		Audio: core.AudioConfig{
			LanguageCode: job.LanguageCode,
			SpeakingRate: job.SpeakingRate,
			Pitch:        job.Pitch,
			VolumeGainDB: job.VolumeGainDB,
		},
	}

	if req.Audio.SpeakingRate == 0 {
		req.Audio.SpeakingRate = core.DefaultSpeakingRate
	}

	err = req.Validate()
	if err != nil {
		return nil, &validationError{err: err}
	}

	return w.service.Synthesize(ctx, req)
}

func (w *NatsWorker) jobText(ctx context.Context, job *SynthesizeJob) (string, error) {
	if (job.Text == "") == (job.TextKey == "") {
		return "", &validationError{err: ErrTextSourceCount}
	}

	if job.TextKey == "" {
		return job.Text, nil
	}

	if w.store == nil {
		return "", &validationError{err: ErrNoTextStore}
	}

	data, err := w.store.Download(ctx, job.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", job.TextKey, err)
	}

	return string(data), nil
}

// respond marshals and sends a reply.
func (w *NatsWorker) respond(msg *nats.Msg, reply any) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply on '%s': %v", msg.Reply, err)
	}
}

type validationError struct {
	err error
}

func (v *validationError) Error() string { return v.err.Error() }

func (v *validationError) Unwrap() error { return v.err }

// errorKind maps an error to the kind reported in replies.
func errorKind(err error) string {
	var (
		invalid     *validationError
		providerErr *provider.Error
	)

	switch {
	case errors.As(err, &invalid), errors.Is(err, core.ErrTextEmpty):
		return KindValidation
	case errors.As(err, &providerErr):
		return string(providerErr.Kind)
	case errors.Is(err, objectstore.ErrObjectNotFound):
		return KindNotFound
	case errors.Is(err, tts.ErrSynthesisFailed):
		return KindStorage
	default:
		return KindInternal
	}
}
