package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"speech-practice-evaluator/internal/service/energy"
	"speech-practice-evaluator/internal/service/evaluation"
	"speech-practice-evaluator/internal/service/proficiency"
	"speech-practice-evaluator/internal/service/rate"
	"speech-practice-evaluator/internal/service/reconcile"
	"speech-practice-evaluator/internal/service/similarity"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	Session       SessionConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
	Tuning        Tuning
}

// ServiceConfig holds service identity and listener settings.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
	GRPCPort  string
}

// STTConfig holds speech-to-text provider configuration.
type STTConfig struct {
	Provider       string // mock, google, none
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// SessionConfig holds practice session limits.
type SessionConfig struct {
	GraceWindow    time.Duration
	MaxDuration    time.Duration
	FragmentQueue  int
	FrameSize      int
	Realtime       bool
	RecentResults  int
	MaxUploadBytes int64
}

// KafkaConfig holds progress store publishing configuration.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicResults     string
	TopicTranscripts string
	Principal        string
}

// ObservabilityConfig holds logging and metrics configuration.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPort string
	ProfilePath string
}

// Tuning holds the scoring heuristics. Defaults can be overridden by a YAML
// profile; unknown keys are rejected.
type Tuning struct {
	Reconcile  reconcile.Config     `yaml:"reconcile"`
	Rate       rate.Config          `yaml:"rate"`
	Similarity similarity.Config    `yaml:"similarity"`
	Quality    energy.QualityConfig `yaml:"quality"`
	Bands      proficiency.Bands    `yaml:"bands"`
}

// DefaultTuning returns the built-in heuristics.
func DefaultTuning() Tuning {
	return Tuning{
		Reconcile:  reconcile.DefaultConfig(),
		Rate:       rate.DefaultConfig(),
		Similarity: similarity.DefaultConfig(),
		Quality:    energy.DefaultQualityConfig(),
		Bands:      proficiency.DefaultBands(),
	}
}

// Load reads configuration from environment variables with sensible defaults.
// When EVAL_PROFILE_PATH is set the tuning profile is read from that file.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Principal: envOrDefault("SERVICE_PRINCIPAL", "svc-speech-practice"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
		},
		Session: SessionConfig{
			GraceWindow:    envOrDefaultDuration("SESSION_GRACE_WINDOW", 2*time.Second),
			MaxDuration:    envOrDefaultDuration("SESSION_MAX_DURATION", 30*time.Second),
			FragmentQueue:  envOrDefaultInt("SESSION_FRAGMENT_QUEUE", 256),
			FrameSize:      envOrDefaultInt("SESSION_FRAME_SIZE", 4096),
			Realtime:       envOrDefaultBool("SESSION_REALTIME", false),
			RecentResults:  envOrDefaultInt("SESSION_RECENT_RESULTS", 1000),
			MaxUploadBytes: int64(envOrDefaultInt("SESSION_MAX_UPLOAD_BYTES", 10*1024*1024)),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicResults:     envOrDefault("KAFKA_TOPIC_RESULTS", "practice.evaluation.completed"),
			TopicTranscripts: envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", "practice.transcript.final"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", "svc-speech-practice"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
			ProfilePath: os.Getenv("EVAL_PROFILE_PATH"),
		},
		Tuning: DefaultTuning(),
	}

	if path := cfg.Observability.ProfilePath; path != "" {
		tuning, err := LoadTuning(path)
		if err != nil {
			return nil, err
		}
		cfg.Tuning = tuning
	}
	return cfg, nil
}

// LoadTuning reads a YAML tuning profile. Keys missing from the file keep
// their defaults.
func LoadTuning(path string) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning profile: %w", err)
	}
	return ParseTuning(data)
}

// ParseTuning decodes a YAML tuning profile over the defaults.
func ParseTuning(data []byte) (Tuning, error) {
	t := DefaultTuning()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return Tuning{}, fmt.Errorf("parse tuning profile: %w", err)
	}
	return t, nil
}

// Evaluation builds the evaluation service configuration.
func (c *Config) Evaluation() evaluation.ServiceConfig {
	return evaluation.ServiceConfig{
		Orchestrator: evaluation.Config{
			GraceWindow:        c.Session.GraceWindow,
			MaxSessionDuration: c.Session.MaxDuration,
			FragmentQueue:      c.Session.FragmentQueue,
			Provider:           c.STT.Provider,
			Reconcile:          c.Tuning.Reconcile,
			Rate:               c.Tuning.Rate,
			Similarity:         c.Tuning.Similarity,
			Quality:            c.Tuning.Quality,
			Bands:              c.Tuning.Bands,
		},
		RecentResults: c.Session.RecentResults,
		FrameSize:     c.Session.FrameSize,
		Realtime:      c.Session.Realtime,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
