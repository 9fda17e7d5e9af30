// main package for the tts-client, a command-line client of the tts-gateway
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/httpapi"
	"github.com/book-expert/tts-gateway/internal/objectstore"
	"github.com/book-expert/tts-gateway/internal/voice"
	"github.com/book-expert/tts-gateway/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Flag descriptions.
const (
	flagTextDesc         = "Text to convert to speech"
	flagTextFileDesc     = "File whose text is uploaded to the text bucket and converted to speech"
	flagTextBucketDesc   = "Object store bucket that receives --text-file uploads"
	flagConversationDesc = "JSON file containing conversation segments"
	flagVoiceDesc        = "Voice token (%s) or provider voice id"
	flagRateDesc         = "Speaking rate"
	flagPauseDesc        = "Pause between conversation segments in seconds"
	flagUserDesc         = "User id recorded with the request"
	flagOutputDesc       = "Download the generated audio to this path"
	flagNatsURLDesc      = "NATS server URL"
	flagSubjectDesc      = "Override the request subject"
	flagHealthDesc       = "Check gateway health and exit"
	flagHealthURLDesc    = "Base URL of the gateway HTTP server"
	flagTimeoutDesc      = "Request timeout"
	flagVerboseDesc      = "Enable verbose logging"
)

// Flag names.
const (
	flagText         = "text"
	flagTextFile     = "text-file"
	flagTextBucket   = "text-bucket"
	flagConversation = "conversation"
	flagVoice        = "voice"
	flagRate         = "rate"
	flagPause        = "pause"
	flagUser         = "user"
	flagOutput       = "output"
	flagNatsURL      = "nats-url"
	flagSubject      = "subject"
	flagHealth       = "health"
	flagHealthURL    = "health-url"
	flagTimeout      = "timeout"
	flagVerbose      = "verbose"
)

const (
	defaultVoice               = "female"
	defaultHealthURL           = "http://localhost:8080"
	defaultTimeout             = 2 * time.Minute
	defaultSynthesizeSubject   = "tts.synthesize"
	defaultConversationSubject = "tts.conversation"
	defaultTextBucket          = "TTS_TEXT"
	logFileNameDefault         = "tts-client.log"
	logFileNameVerbose         = "tts-client-verbose.log"
)

// Error messages.
var (
	ErrNoInput                  = errors.New("one of --text, --text-file or --conversation must be provided")
	ErrTooManyInputs            = errors.New("only one of --text, --text-file and --conversation may be given")
	ErrTextFileEmpty            = errors.New("text file is empty")
	ErrServiceNotHealthy        = errors.New("gateway is not healthy")
	ErrRequestFailed            = errors.New("gateway returned an error")
	ErrDownloadFailed           = errors.New("failed to download audio")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text         string
	textFile     string
	textBucket   string
	conversation string
	voice        string
	rate         float64
	pause        float64
	user         string
	output       string
	natsURL      string
	subject      string
	health       bool
	healthURL    string
	timeout      time.Duration
	verbose      bool
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	logFileName := logFileNameDefault
	if flags.verbose {
		logFileName = logFileNameVerbose
	}

	log, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	if flags.health {
		return checkHealth(ctx, flags.healthURL, stdout, log)
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	natsConnection, err := nats.Connect(flags.natsURL, nats.Name("tts-client"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", flags.natsURL, err)
	}
	defer natsConnection.Close()

	audioURI, err := submit(ctx, natsConnection, flags, stdout, log)
	if err != nil {
		return err
	}

	if flags.output == "" {
		return nil
	}

	return download(ctx, audioURI, flags.output, log)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("tts-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.textFile, flagTextFile, "", flagTextFileDesc)
	flagSet.StringVar(&flags.textBucket, flagTextBucket, defaultTextBucket, flagTextBucketDesc)
	flagSet.StringVar(&flags.conversation, flagConversation, "", flagConversationDesc)
	flagSet.StringVar(&flags.voice, flagVoice, defaultVoice, voiceUsage())
	flagSet.Float64Var(&flags.rate, flagRate, core.DefaultSpeakingRate, flagRateDesc)
	flagSet.Float64Var(&flags.pause, flagPause, core.DefaultPauseSeconds, flagPauseDesc)
	flagSet.StringVar(&flags.user, flagUser, "", flagUserDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.StringVar(&flags.natsURL, flagNatsURL, nats.DefaultURL, flagNatsURLDesc)
	flagSet.StringVar(&flags.subject, flagSubject, "", flagSubjectDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.StringVar(&flags.healthURL, flagHealthURL, defaultHealthURL, flagHealthURLDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

func voiceUsage() string {
	return fmt.Sprintf(flagVoiceDesc, strings.Join(voice.Tokens(), ", "))
}

// validateFlags checks for required and conflicting arguments.
func validateFlags(flags appFlags) error {
	inputs := 0

	for _, input := range []string{flags.text, flags.textFile, flags.conversation} {
		if input != "" {
			inputs++
		}
	}

	switch {
	case inputs == 0:
		return ErrNoInput
	case inputs > 1:
		return ErrTooManyInputs
	default:
		return nil
	}
}

func newHeader(user string) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now().UTC(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     user,
		TenantID:   "",
	}
}

func buildSynthesizeJob(flags appFlags) worker.SynthesizeJob {
	return worker.SynthesizeJob{
		Header:       newHeader(flags.user),
		Text:         flags.text,
		Voice:        flags.voice,
		SpeakingRate: flags.rate,
	}
}

func buildConversationJob(flags appFlags) (worker.ConversationJob, error) {
	segments, err := loadSegments(flags.conversation)
	if err != nil {
		return worker.ConversationJob{}, err
	}

	return worker.ConversationJob{
		Header:       newHeader(flags.user),
		Title:        filepath.Base(flags.conversation),
		Segments:     segments,
		PauseSeconds: flags.pause,
	}, nil
}

// loadSegments reads a JSON array of {"text", "voice"} objects.
func loadSegments(path string) ([]core.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file %s: %w", path, err)
	}

	var segments []core.Segment

	err = json.Unmarshal(data, &segments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse conversation file %s: %w", path, err)
	}

	return segments, nil
}

// submit sends the job, prints the reply and returns the audio URI.
func submit(
	ctx context.Context,
	natsConnection *nats.Conn,
	flags appFlags,
	stdout io.Writer,
	log *logger.Logger,
) (string, error) {
	if flags.text != "" || flags.textFile != "" {
		job := buildSynthesizeJob(flags)

		if flags.textFile != "" {
			key, err := uploadText(ctx, natsConnection, flags.textFile, flags.textBucket, log)
			if err != nil {
				return "", err
			}

			job.TextKey = key
		}

		subject := subjectOr(flags.subject, defaultSynthesizeSubject)

		var reply worker.SynthesizeReply

		err := request(ctx, natsConnection, subject, job, &reply)
		if err != nil {
			return "", err
		}

		if reply.Error != "" || reply.Result == nil {
			log.Error("Synthesis failed (%s): %s", reply.Kind, reply.Error)

			return "", fmt.Errorf("%w: %s: %s", ErrRequestFailed, reply.Kind, reply.Error)
		}

		return reply.Result.URI, printJSON(stdout, reply.Result)
	}

	job, err := buildConversationJob(flags)
	if err != nil {
		return "", err
	}

	var reply worker.ConversationReply

	err = request(ctx, natsConnection, subjectOr(flags.subject, defaultConversationSubject), job, &reply)
	if err != nil {
		return "", err
	}

	if reply.Error != "" || reply.Result == nil {
		log.Error("Conversation failed (%s): %s", reply.Kind, reply.Error)

		return "", fmt.Errorf("%w: %s: %s", ErrRequestFailed, reply.Kind, reply.Error)
	}

	return reply.Result.URI, printJSON(stdout, reply.Result)
}

// uploadText stores the contents of path in bucket under a fresh key, so the
// job can reference it with text_key instead of carrying it inline.
func uploadText(
	ctx context.Context,
	natsConnection *nats.Conn,
	path, bucket string,
	log *logger.Logger,
) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file %s: %w", path, err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return "", fmt.Errorf("%w: %s", ErrTextFileEmpty, path)
	}

	js, err := jetstream.New(natsConnection)
	if err != nil {
		return "", fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(ctx, js, bucket)
	if err != nil {
		return "", err
	}

	key := uuid.NewString() + "/" + filepath.Base(path)

	err = store.Upload(ctx, key, data)
	if err != nil {
		return "", err
	}

	log.Info("Uploaded %d bytes of text to '%s' as '%s'", len(data), bucket, key)

	return key, nil
}

func request(ctx context.Context, natsConnection *nats.Conn, subject string, job, reply any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	msg, err := natsConnection.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("request on %s failed: %w", subject, err)
	}

	err = json.Unmarshal(msg.Data, reply)
	if err != nil {
		return fmt.Errorf("failed to parse reply: %w", err)
	}

	return nil
}

func subjectOr(subject, fallback string) string {
	if subject == "" {
		return fallback
	}

	return subject
}

func printJSON(stdout io.Writer, value any) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}

	return nil
}

// checkHealth queries the gateway health endpoint and prints the report.
func checkHealth(ctx context.Context, baseURL string, stdout io.Writer, log *logger.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Error("Health check failed: %v", err)

		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var report httpapi.HealthReport

	err = json.NewDecoder(resp.Body).Decode(&report)
	if err != nil {
		return fmt.Errorf("failed to parse health report: %w", err)
	}

	err = printJSON(stdout, report)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK || report.Status != httpapi.StatusOK {
		return fmt.Errorf("%w: status %s", ErrServiceNotHealthy, report.Status)
	}

	return nil
}

// download fetches the artifact at uri into outputPath.
func download(ctx context.Context, uri, outputPath string, log *logger.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrDownloadFailed, uri, resp.Status)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer func() { _ = file.Close() }()

	written, err := io.Copy(file, resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	log.Info("Saved %d bytes to %s", written, outputPath)

	return nil
}
