// Package config loads and validates the service configuration.
// Configuration is read once at startup from a YAML file, with
// environment variables overriding secrets and endpoints.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for both binaries.
type Config struct {
	Audio       AudioConfig       `yaml:"audio"`
	Buffer      BufferConfig      `yaml:"buffer"`
	Inference   InferenceConfig   `yaml:"inference"`
	Translation TranslationConfig `yaml:"translation"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Server      ServerConfig      `yaml:"server"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AudioConfig contains chunking and voice-activity parameters.
type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	ChunkDuration float64 `yaml:"chunk_duration"` // seconds
	VADEnabled    bool    `yaml:"vad_enabled"`
	VADThreshold  float64 `yaml:"vad_threshold"`
}

// BufferConfig contains the speaker buffer flush thresholds.
type BufferConfig struct {
	TimeBudget   float64 `yaml:"time_budget"`   // seconds
	SizeBudget   int     `yaml:"size_budget"`   // characters
	SilenceFlush float64 `yaml:"silence_flush"` // seconds
}

// InferenceConfig contains transcription and diarization settings.
type InferenceConfig struct {
	Transcriber        string  `yaml:"transcriber"` // "whisper" or "google"
	WhisperEndpoint    string  `yaml:"whisper_endpoint"`
	Language           string  `yaml:"language"`
	TranscribeTimeout  float64 `yaml:"transcribe_timeout"` // seconds
	DiarizationEnabled bool    `yaml:"diarization_enabled"`
	DiarizerEndpoint   string  `yaml:"diarizer_endpoint"`
	DiarizeTimeout     float64 `yaml:"diarize_timeout"` // seconds
	MaxInFlight        int     `yaml:"max_in_flight"`
}

// TranslationConfig contains translation provider settings.
type TranslationConfig struct {
	Provider   string  `yaml:"provider"` // "deepl" or "openai"
	APIKey     string  `yaml:"api_key"`
	SourceLang string  `yaml:"source_lang"`
	TargetLang string  `yaml:"target_lang"`
	Timeout    float64 `yaml:"timeout"` // seconds
	MaxRetries int     `yaml:"max_retries"`
}

// DeliveryConfig contains the audio-side delivery connection settings.
type DeliveryConfig struct {
	Endpoint         string  `yaml:"endpoint"`
	QueueDepth       int     `yaml:"queue_depth"`
	ReconnectDelay   float64 `yaml:"reconnect_delay"`     // seconds
	MaxReconnectWait float64 `yaml:"max_reconnect_delay"` // seconds
}

// ServerConfig contains the translation-side listen addresses.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// KafkaConfig contains the optional event mirror settings.
type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    []string `yaml:"brokers"`
	TopicUnits string   `yaml:"topic_units"`
	TopicTurns string   `yaml:"topic_turns"`
	Principal  string   `yaml:"principal"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Default returns the configuration used when no file is present,
// matching the original system's SPEED profile.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    16000,
			ChunkDuration: 4,
			VADEnabled:    true,
			VADThreshold:  0.5,
		},
		Buffer: BufferConfig{
			TimeBudget:   60,
			SizeBudget:   2000,
			SilenceFlush: 5,
		},
		Inference: InferenceConfig{
			Transcriber:       "whisper",
			WhisperEndpoint:   "http://localhost:8080/inference",
			Language:          "cs",
			TranscribeTimeout: 30,
			DiarizerEndpoint:  "http://localhost:8090/diarize",
			DiarizeTimeout:    30,
			MaxInFlight:       4,
		},
		Translation: TranslationConfig{
			Provider:   "deepl",
			SourceLang: "CS",
			TargetLang: "EN-US",
			Timeout:    10,
			MaxRetries: 3,
		},
		Delivery: DeliveryConfig{
			Endpoint:         "ws://localhost:8000/v1/ingest",
			QueueDepth:       16,
			ReconnectDelay:   2,
			MaxReconnectWait: 30,
		},
		Server: ServerConfig{
			Addr:        ":8000",
			MetricsAddr: ":9090",
		},
		Kafka: KafkaConfig{
			TopicUnits: "speech.units",
			TopicTurns: "speech.turns.translated",
			Principal:  "svc-polyglot",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path (when it exists), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides secrets and endpoints from the environment.
func (c *Config) applyEnv() {
	c.Translation.APIKey = envOrDefault("DEEPL_API_KEY", c.Translation.APIKey)
	if c.Translation.Provider == "openai" {
		c.Translation.APIKey = envOrDefault("OPENAI_API_KEY", c.Translation.APIKey)
	}
	c.Delivery.Endpoint = envOrDefault("DELIVERY_ENDPOINT", c.Delivery.Endpoint)
	c.Inference.WhisperEndpoint = envOrDefault("WHISPER_ENDPOINT", c.Inference.WhisperEndpoint)
	c.Inference.DiarizerEndpoint = envOrDefault("DIARIZER_ENDPOINT", c.Inference.DiarizerEndpoint)
	c.Server.Addr = envOrDefault("SERVER_ADDR", c.Server.Addr)
	c.Server.MetricsAddr = envOrDefault("METRICS_ADDR", c.Server.MetricsAddr)
	c.Logging.Level = envOrDefault("LOG_LEVEL", c.Logging.Level)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Enabled = true
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Validate checks every section for consistency.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Buffer.Validate(); err != nil {
		return fmt.Errorf("buffer config: %w", err)
	}
	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("inference config: %w", err)
	}
	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}
	if err := c.Delivery.Validate(); err != nil {
		return fmt.Errorf("delivery config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}
	if a.VADThreshold < 0 || a.VADThreshold > 1 {
		return fmt.Errorf("vad_threshold must be between 0 and 1, got %f", a.VADThreshold)
	}
	return nil
}

// Validate validates buffer configuration.
func (b *BufferConfig) Validate() error {
	if b.TimeBudget <= 0 {
		return fmt.Errorf("time_budget must be positive, got %f", b.TimeBudget)
	}
	if b.SizeBudget <= 0 {
		return fmt.Errorf("size_budget must be positive, got %d", b.SizeBudget)
	}
	if b.SilenceFlush <= 0 {
		return fmt.Errorf("silence_flush must be positive, got %f", b.SilenceFlush)
	}
	return nil
}

// Validate validates inference configuration.
func (i *InferenceConfig) Validate() error {
	switch i.Transcriber {
	case "whisper", "google":
	default:
		return fmt.Errorf("transcriber must be 'whisper' or 'google', got '%s'", i.Transcriber)
	}
	if i.Transcriber == "whisper" && i.WhisperEndpoint == "" {
		return fmt.Errorf("whisper_endpoint cannot be empty")
	}
	if i.TranscribeTimeout <= 0 {
		return fmt.Errorf("transcribe_timeout must be positive, got %f", i.TranscribeTimeout)
	}
	if i.DiarizationEnabled {
		if i.DiarizerEndpoint == "" {
			return fmt.Errorf("diarizer_endpoint cannot be empty when diarization is enabled")
		}
		if i.DiarizeTimeout <= 0 {
			return fmt.Errorf("diarize_timeout must be positive, got %f", i.DiarizeTimeout)
		}
	}
	if i.MaxInFlight < 1 {
		return fmt.Errorf("max_in_flight must be at least 1, got %d", i.MaxInFlight)
	}
	return nil
}

// Validate validates translation configuration.
func (t *TranslationConfig) Validate() error {
	switch t.Provider {
	case "deepl", "openai":
	default:
		return fmt.Errorf("provider must be 'deepl' or 'openai', got '%s'", t.Provider)
	}
	if t.SourceLang == "" || t.TargetLang == "" {
		return fmt.Errorf("source_lang and target_lang cannot be empty")
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %f", t.Timeout)
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}
	return nil
}

// Validate validates delivery configuration.
func (d *DeliveryConfig) Validate() error {
	if d.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if d.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be at least 1, got %d", d.QueueDepth)
	}
	if d.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect_delay must be positive, got %f", d.ReconnectDelay)
	}
	if d.MaxReconnectWait < d.ReconnectDelay {
		return fmt.Errorf("max_reconnect_delay (%f) must be at least reconnect_delay (%f)",
			d.MaxReconnectWait, d.ReconnectDelay)
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
	if l.Format != "json" && l.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got '%s'", l.Format)
	}
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// GetChunkDuration returns the chunk duration as a time.Duration.
func (a *AudioConfig) GetChunkDuration() time.Duration { return seconds(a.ChunkDuration) }

// GetTimeBudget returns the turn time budget as a time.Duration.
func (b *BufferConfig) GetTimeBudget() time.Duration { return seconds(b.TimeBudget) }

// GetSilenceFlush returns the silence flush threshold as a time.Duration.
func (b *BufferConfig) GetSilenceFlush() time.Duration { return seconds(b.SilenceFlush) }

// GetTranscribeTimeout returns the transcription timeout as a time.Duration.
func (i *InferenceConfig) GetTranscribeTimeout() time.Duration { return seconds(i.TranscribeTimeout) }

// GetDiarizeTimeout returns the diarization timeout as a time.Duration.
func (i *InferenceConfig) GetDiarizeTimeout() time.Duration { return seconds(i.DiarizeTimeout) }

// GetTimeout returns the translation timeout as a time.Duration.
func (t *TranslationConfig) GetTimeout() time.Duration { return seconds(t.Timeout) }

// GetReconnectDelay returns the initial reconnect delay as a time.Duration.
func (d *DeliveryConfig) GetReconnectDelay() time.Duration { return seconds(d.ReconnectDelay) }

// GetMaxReconnectWait returns the reconnect delay ceiling as a time.Duration.
func (d *DeliveryConfig) GetMaxReconnectWait() time.Duration { return seconds(d.MaxReconnectWait) }
