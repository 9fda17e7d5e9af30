// main package for the tts-gateway
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/cache"
	"github.com/book-expert/tts-gateway/internal/config"
	"github.com/book-expert/tts-gateway/internal/history"
	"github.com/book-expert/tts-gateway/internal/httpapi"
	"github.com/book-expert/tts-gateway/internal/metrics"
	"github.com/book-expert/tts-gateway/internal/objectstore"
	"github.com/book-expert/tts-gateway/internal/tts"
	"github.com/book-expert/tts-gateway/internal/tts/audio"
	"github.com/book-expert/tts-gateway/internal/tts/provider"
	"github.com/book-expert/tts-gateway/internal/usage"
	"github.com/book-expert/tts-gateway/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	bootstrapLogFile = "tts-gateway-bootstrap.log"
	serviceLogFile   = "tts-gateway.log"
	natsClientName   = "tts-gateway"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Wire the service and serve until a signal arrives
	err = serve(ctx, cfg, finalLog)
	if err != nil {
		finalLog.Error("Service stopped with error: %v", err)

		return err
	}

	finalLog.System("TTS-Gateway shut down cleanly.")

	return nil
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serviceMetrics := metrics.New(registry)

	store, err := cache.Open(cache.Options{
		Dir:          cfg.Cache.Dir,
		BaseURL:      cfg.HTTP.PublicBaseURL,
		Retention:    cfg.Cache.Retention(),
		MaxSizeBytes: cfg.Cache.MaxSizeBytes,
		Metrics:      serviceMetrics,
		Now:          nil,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	js, err := jetstream.New(natsConnection)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	textStore, err := objectstore.New(ctx, js, cfg.NATS.TextObjectBucket)
	if err != nil {
		return fmt.Errorf("failed to bind text object store: %w", err)
	}

	publisher, err := history.NewPublisher(ctx, js, cfg.NATS.HistoryStreamName, cfg.NATS.HistorySubject, log)
	if err != nil {
		return fmt.Errorf("failed to create history publisher: %w", err)
	}

	engineOpts := tts.Options{
		Provider:             nil,
		Store:                store,
		Usage:                usage.NewMemoryTracker(cfg.Usage.MonthlyFreeChars, nil),
		History:              publisher,
		Metrics:              serviceMetrics,
		Format:               audio.Format{SampleRate: cfg.Audio.SampleRate, BitDepth: audio.DefaultBitDepth, Channels: audio.DefaultChannels},
		Encoding:             cfg.Provider.AudioEncoding,
		MaxRequestBytes:      cfg.Provider.MaxRequestBytes,
		ChunkBytes:           cfg.Provider.ChunkBytes,
		StrictProviderErrors: cfg.Provider.StrictProviderErrors,
		AnonymousSubject:     cfg.Usage.AnonymousSubject,
		DefaultLanguageCode:  cfg.Audio.DefaultLanguageCode,
		Now:                  nil,
	}

	// A nil *provider.Client must not reach the interface fields.
	var healthChecker httpapi.HealthChecker

	if cfg.Provider.Enabled() {
		client, clientErr := provider.NewClient(cfg.Provider.Endpoint, cfg.Provider.APIKey, cfg.Provider.Timeout())
		if clientErr != nil {
			return fmt.Errorf("failed to create provider client: %w", clientErr)
		}

		engineOpts.Provider = client
		healthChecker = client
	} else {
		log.Warn("No provider API key configured; every request uses the fallback generator")
	}

	engine, err := tts.NewEngine(engineOpts, log)
	if err != nil {
		return fmt.Errorf("failed to create synthesis engine: %w", err)
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SynthesizeSubject,
		cfg.NATS.ConversationSubject,
		textStore,
		engine,
		cfg.Worker.MaxConcurrent,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.Options{
		ListenAddr: cfg.HTTP.ListenAddr,
		Store:      store,
		Usage:      engineOpts.Usage,
		Provider:   healthChecker,
		Gatherer:   registry,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	sweeper := cache.NewSweeper(store, cfg.Cache.SweepInterval(), log)

	log.System("TTS-Gateway initialized. Listening for jobs on subjects: %s, %s",
		cfg.NATS.SynthesizeSubject, cfg.NATS.ConversationSubject)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return natsWorker.Run(groupCtx) })
	group.Go(func() error { return server.Run(groupCtx) })
	group.Go(func() error { return sweeper.Run(groupCtx) })

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
