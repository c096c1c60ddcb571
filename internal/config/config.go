package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"voicelink/internal/domain"
)

// Config stores runtime configuration for the voice client.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Token    TokenConfig    `yaml:"token"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Audio    AudioConfig    `yaml:"audio"`
	Rules    RulesConfig    `yaml:"rules"`
	Session  SessionConfig  `yaml:"session"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TokenConfig struct {
	URL       string        `yaml:"url"`
	AuthToken string        `yaml:"authToken"`
	Prefix    string        `yaml:"prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RealtimeConfig struct {
	URL         string        `yaml:"url"`
	OpenTimeout time.Duration `yaml:"openTimeout"`
}

type AudioConfig struct {
	RecorderCommand  string `yaml:"recorderCommand"`
	InputFormat      string `yaml:"inputFormat"`
	InputDevice      string `yaml:"inputDevice"`
	EchoCancelDevice string `yaml:"echoCancelDevice"`
	SampleRate       int    `yaml:"sampleRate"`
	Channels         int    `yaml:"channels"`
	EchoCancellation bool   `yaml:"echoCancellation"`
	NoiseSuppression bool   `yaml:"noiseSuppression"`
	AutoGain         bool   `yaml:"autoGain"`
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iterationLimit"`
}

type SessionConfig struct {
	Defaults    domain.SessionConfig `yaml:"defaults"`
	ChunkSize   int                  `yaml:"chunkSize"`
	SettleDelay time.Duration        `yaml:"settleDelay"`
	SinkTimeout time.Duration        `yaml:"sinkTimeout"`
	StrictMute  bool                 `yaml:"strictMute"`
}

type KafkaConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	Principal string   `yaml:"principal"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

const (
	defaultSampleRate     = 24000
	defaultChunkSize      = 4800
	defaultIterationLimit = 30
)

// Load resolves configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := defaults(home)

	path := strings.TrimSpace(os.Getenv("VOICELINK_CONFIG"))
	required := path != ""
	if path == "" {
		path = filepath.Join(home, ".config", "voicelink", "config.yaml")
	}
	if err := loadFile(path, required, &cfg); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func defaults(home string) Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Token: TokenConfig{
			Prefix:  "ek_",
			Timeout: 10 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:         "wss://api.openai.com/v1/realtime",
			OpenTimeout: 10 * time.Second,
		},
		Audio: AudioConfig{
			RecorderCommand:  "ffmpeg",
			InputFormat:      "pulse",
			InputDevice:      "default",
			SampleRate:       defaultSampleRate,
			Channels:         1,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGain:         true,
		},
		Rules: RulesConfig{
			Path:           filepath.Join(home, ".config", "voicelink", "substitutions.rules"),
			IterationLimit: defaultIterationLimit,
		},
		Session: SessionConfig{
			Defaults:    domain.DefaultSessionConfig(),
			ChunkSize:   defaultChunkSize,
			SettleDelay: 500 * time.Millisecond,
			SinkTimeout: 5 * time.Second,
		},
		Kafka: KafkaConfig{Topic: "voice.transcripts"},
	}
}

// loadFile merges a YAML file over cfg. A missing file is only an error when
// it was named explicitly.
func loadFile(path string, required bool, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Log.Level = envOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOrDefault("LOG_FORMAT", cfg.Log.Format)

	cfg.Token.URL = envOrDefault("VOICELINK_TOKEN_URL", cfg.Token.URL)
	cfg.Token.AuthToken = envOrDefault("VOICELINK_AUTH_TOKEN", cfg.Token.AuthToken)
	cfg.Token.Prefix = envOrDefault("VOICELINK_TOKEN_PREFIX", cfg.Token.Prefix)
	cfg.Token.Timeout = envOrDefaultMillis("VOICELINK_TOKEN_TIMEOUT_MS", cfg.Token.Timeout)

	cfg.Realtime.URL = envOrDefault("VOICELINK_REALTIME_URL", cfg.Realtime.URL)
	cfg.Realtime.OpenTimeout = envOrDefaultMillis("VOICELINK_OPEN_TIMEOUT_MS", cfg.Realtime.OpenTimeout)

	cfg.Audio.RecorderCommand = envOrDefault("VOICELINK_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("VOICELINK_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = firstNonEmpty(
		os.Getenv("VOICELINK_AUDIO_INPUT_DEVICE"),
		os.Getenv("PULSE_SOURCE"),
		cfg.Audio.InputDevice,
	)
	cfg.Audio.EchoCancelDevice = envOrDefault("VOICELINK_ECHO_CANCEL_DEVICE", cfg.Audio.EchoCancelDevice)
	cfg.Audio.SampleRate = envOrDefaultInt("VOICELINK_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("VOICELINK_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.EchoCancellation = envOrDefaultBool("VOICELINK_ECHO_CANCELLATION", cfg.Audio.EchoCancellation)
	cfg.Audio.NoiseSuppression = envOrDefaultBool("VOICELINK_NOISE_SUPPRESSION", cfg.Audio.NoiseSuppression)
	cfg.Audio.AutoGain = envOrDefaultBool("VOICELINK_AUTO_GAIN", cfg.Audio.AutoGain)

	cfg.Rules.Path = envOrDefault("VOICELINK_RULES_FILE", cfg.Rules.Path)
	cfg.Rules.IterationLimit = envOrDefaultInt("VOICELINK_RULE_ITERATION_LIMIT", cfg.Rules.IterationLimit)

	session := &cfg.Session.Defaults
	session.Model = envOrDefault("VOICELINK_MODEL", session.Model)
	session.Voice = domain.Voice(envOrDefault("VOICELINK_VOICE", string(session.Voice)))
	session.AgentPreset = domain.AgentPreset(envOrDefault("VOICELINK_AGENT_PRESET", string(session.AgentPreset)))
	session.Temperature = envOrDefaultFloat("VOICELINK_TEMPERATURE", session.Temperature)
	session.MaxResponseTokens = envOrDefaultInt("VOICELINK_MAX_RESPONSE_TOKENS", session.MaxResponseTokens)
	cfg.Session.ChunkSize = envOrDefaultInt("VOICELINK_AUDIO_CHUNK_SIZE", cfg.Session.ChunkSize)
	cfg.Session.SettleDelay = envOrDefaultMillis("VOICELINK_SETTLE_DELAY_MS", cfg.Session.SettleDelay)
	cfg.Session.SinkTimeout = envOrDefaultMillis("VOICELINK_SINK_TIMEOUT_MS", cfg.Session.SinkTimeout)
	cfg.Session.StrictMute = envOrDefaultBool("VOICELINK_STRICT_MUTE", cfg.Session.StrictMute)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if brokers := splitList(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = envOrDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)

	cfg.Metrics.Addr = envOrDefault("METRICS_ADDR", cfg.Metrics.Addr)
}

func normalize(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = defaultSampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = defaultIterationLimit
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = defaultChunkSize
	}
	if cfg.Session.SettleDelay < 0 {
		cfg.Session.SettleDelay = 0
	}
	if cfg.Session.Defaults.Model == "" {
		cfg.Session.Defaults.Model = domain.DefaultModel
	}
	if cfg.Session.Defaults.ToolChoice == "" {
		cfg.Session.Defaults.ToolChoice = domain.DefaultToolChoice
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envOrDefaultMillis reads a non-negative millisecond count.
func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
