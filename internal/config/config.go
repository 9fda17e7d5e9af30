// Package config provides the configuration structure for the tts-gateway.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Default values applied to zero-valued fields.
const (
	defaultNATSURL             = "nats://127.0.0.1:4222"
	defaultSynthesizeSubject   = "tts.synthesize"
	defaultConversationSubject = "tts.conversation"
	defaultHistoryStream       = "TTS_HISTORY"
	defaultHistorySubject      = "tts.history"
	defaultTextBucket          = "TTS_TEXT"
	defaultListenAddr          = ":8080"
	defaultPublicBaseURL       = "http://localhost:8080"
	defaultCacheDir            = "tts-cache"
	defaultRetentionHours      = 7 * 24
	defaultSweepIntervalHours  = 6
	defaultMaxSizeBytes        = 1 << 30
	defaultProviderEndpoint    = "https://texttospeech.googleapis.com"
	defaultAudioEncoding       = "MP3"
	defaultProviderTimeout     = 30
	defaultMaxRequestBytes     = 5000
	defaultChunkBytes          = 4500
	defaultSampleRate          = 24000
	defaultLanguageCode        = "en-US"
	defaultAnonymousSubject    = "anonymous"
	defaultMonthlyFreeChars    = 1_000_000
	defaultMaxConcurrent       = 8
)

// Validation errors.
var (
	ErrChunkBytesTooLarge = errors.New("chunk_bytes must be smaller than max_request_bytes")
	ErrNegativeDuration   = errors.New("durations must be positive")
	ErrPublicBaseURLEmpty = errors.New("http.public_base_url cannot be empty")
	ErrMaxConcurrent      = errors.New("worker.max_concurrent cannot be negative")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                 string `toml:"url"`
	SynthesizeSubject   string `toml:"synthesize_subject"`
	ConversationSubject string `toml:"conversation_subject"`
	HistoryStreamName   string `toml:"history_stream_name"`
	HistorySubject      string `toml:"history_subject"`
	TextObjectBucket    string `toml:"text_object_bucket"`
}

// HTTPConfig configures the artifact and operations server.
type HTTPConfig struct {
	ListenAddr    string `toml:"listen_addr"`
	PublicBaseURL string `toml:"public_base_url"`
}

// CacheConfig configures the on-disk synthesis cache.
type CacheConfig struct {
	Dir                string `toml:"dir"`
	RetentionHours     int    `toml:"retention_hours"`
	SweepIntervalHours int    `toml:"sweep_interval_hours"`
	MaxSizeBytes       int64  `toml:"max_size_bytes"`
}

// ProviderConfig configures the remote speech synthesis provider.
// An empty APIKey disables the provider and every request uses the
// local fallback generator.
type ProviderConfig struct {
	Endpoint             string `toml:"endpoint"`
	APIKey               string `toml:"api_key"`
	AudioEncoding        string `toml:"audio_encoding"`
	TimeoutSeconds       int    `toml:"timeout_seconds"`
	MaxRequestBytes      int    `toml:"max_request_bytes"`
	ChunkBytes           int    `toml:"chunk_bytes"`
	StrictProviderErrors bool   `toml:"strict_provider_errors"`
}

// AudioConfig holds the PCM format used for generated and assembled audio.
type AudioConfig struct {
	SampleRate          int    `toml:"sample_rate"`
	DefaultLanguageCode string `toml:"default_language_code"`
}

// UsageConfig configures usage accounting.
type UsageConfig struct {
	AnonymousSubject string `toml:"anonymous_subject"`
	MonthlyFreeChars int    `toml:"monthly_free_chars"`
}

// WorkerConfig bounds how many requests one process serves at a time.
type WorkerConfig struct {
	MaxConcurrent int `toml:"max_concurrent"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig     `toml:"nats"`
	HTTP     HTTPConfig     `toml:"http"`
	Cache    CacheConfig    `toml:"cache"`
	Provider ProviderConfig `toml:"provider"`
	Audio    AudioConfig    `toml:"audio"`
	Usage    UsageConfig    `toml:"usage"`
	Worker   WorkerConfig   `toml:"worker"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for the tts-gateway.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills every zero-valued field with its default.
func (c *Config) ApplyDefaults() {
	setString(&c.NATS.URL, defaultNATSURL)
	setString(&c.NATS.SynthesizeSubject, defaultSynthesizeSubject)
	setString(&c.NATS.ConversationSubject, defaultConversationSubject)
	setString(&c.NATS.HistoryStreamName, defaultHistoryStream)
	setString(&c.NATS.HistorySubject, defaultHistorySubject)
	setString(&c.NATS.TextObjectBucket, defaultTextBucket)

	setString(&c.HTTP.ListenAddr, defaultListenAddr)
	setString(&c.HTTP.PublicBaseURL, defaultPublicBaseURL)

	setString(&c.Cache.Dir, defaultCacheDir)
	setInt(&c.Cache.RetentionHours, defaultRetentionHours)
	setInt(&c.Cache.SweepIntervalHours, defaultSweepIntervalHours)

	if c.Cache.MaxSizeBytes == 0 {
		c.Cache.MaxSizeBytes = defaultMaxSizeBytes
	}

	setString(&c.Provider.Endpoint, defaultProviderEndpoint)
	setString(&c.Provider.AudioEncoding, defaultAudioEncoding)
	setInt(&c.Provider.TimeoutSeconds, defaultProviderTimeout)
	setInt(&c.Provider.MaxRequestBytes, defaultMaxRequestBytes)
	setInt(&c.Provider.ChunkBytes, defaultChunkBytes)

	setInt(&c.Audio.SampleRate, defaultSampleRate)
	setString(&c.Audio.DefaultLanguageCode, defaultLanguageCode)

	setString(&c.Usage.AnonymousSubject, defaultAnonymousSubject)
	setInt(&c.Usage.MonthlyFreeChars, defaultMonthlyFreeChars)

	setInt(&c.Worker.MaxConcurrent, defaultMaxConcurrent)
}

// Validate rejects values that would make the service misbehave.
func (c *Config) Validate() error {
	if c.HTTP.PublicBaseURL == "" {
		return ErrPublicBaseURLEmpty
	}

	if c.Provider.ChunkBytes >= c.Provider.MaxRequestBytes {
		return fmt.Errorf("%w: %d >= %d", ErrChunkBytesTooLarge, c.Provider.ChunkBytes, c.Provider.MaxRequestBytes)
	}

	if c.Cache.RetentionHours < 0 || c.Cache.SweepIntervalHours < 0 || c.Provider.TimeoutSeconds < 0 {
		return ErrNegativeDuration
	}

	if c.Worker.MaxConcurrent < 0 {
		return fmt.Errorf("%w: %d", ErrMaxConcurrent, c.Worker.MaxConcurrent)
	}

	return nil
}

// Retention returns the cache retention window.
func (c CacheConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// SweepInterval returns the period between cache sweeps.
func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalHours) * time.Hour
}

// Timeout returns the per-call provider timeout.
func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Enabled reports whether remote synthesis is configured.
func (c ProviderConfig) Enabled() bool {
	return c.APIKey != ""
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}
