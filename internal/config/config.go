package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type ProvidersConfig struct {
	MockToneEnabled    bool   `yaml:"mock_tone_enabled"`
	MockToneSampleRate int    `yaml:"mock_tone_sample_rate"`
	ExecCommand        string `yaml:"exec_command"`
	ExecSampleRate     int    `yaml:"exec_sample_rate"`
	ExecChannels       int    `yaml:"exec_channels"`
}

// RateLimitConfig bounds session creation per client within a fixed window.
type RateLimitConfig struct {
	MaxRequestsPerWindow int `yaml:"max_requests_per_window"`
	WindowSeconds        int `yaml:"window_seconds"`
}

// BreakerConfig tunes the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold    int `yaml:"failure_threshold"`
	ResetTimeoutSeconds int `yaml:"reset_timeout_seconds"`
}

// QueueConfig bounds queued and in-flight streaming work.
type QueueConfig struct {
	MaxSize     int `yaml:"max_size"`
	WorkerCount int `yaml:"worker_count"`
}

// StreamConfig tunes the per-chunk provider timeout and retry attempts.
type StreamConfig struct {
	ChunkTimeoutSeconds float64 `yaml:"chunk_timeout_seconds"`
	MaxAttempts         int     `yaml:"max_attempts"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Providers   ProvidersConfig  `yaml:"providers"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
	Breaker     BreakerConfig    `yaml:"circuit_breaker"`
	Queue       QueueConfig      `yaml:"queue"`
	Stream      StreamConfig     `yaml:"stream"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-tts-gateway",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/tts-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Providers: ProvidersConfig{
			MockToneEnabled:    true,
			MockToneSampleRate: 16000,
			ExecSampleRate:     22050,
			ExecChannels:       1,
		},
		RateLimit: RateLimitConfig{
			MaxRequestsPerWindow: 10,
			WindowSeconds:        60,
		},
		Breaker: BreakerConfig{
			FailureThreshold:    5,
			ResetTimeoutSeconds: 30,
		},
		Queue: QueueConfig{
			MaxSize:     16,
			WorkerCount: 4,
		},
		Stream: StreamConfig{
			ChunkTimeoutSeconds: 10,
			MaxAttempts:         2,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "TTSGW_RUNTIME_NAME")
	overrideString(&cfg.Environment, "TTSGW_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "TTSGW_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TTSGW_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "TTSGW_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TTSGW_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TTSGW_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "TTSGW_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "TTSGW_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "TTSGW_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TTSGW_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TTSGW_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TTSGW_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TTSGW_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TTSGW_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "TTSGW_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "TTSGW_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "TTSGW_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "TTSGW_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "TTSGW_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Providers.MockToneEnabled, "TTSGW_PROVIDERS_MOCK_TONE_ENABLED")
	overrideInt(&cfg.Providers.MockToneSampleRate, "TTSGW_PROVIDERS_MOCK_TONE_SAMPLE_RATE")
	overrideString(&cfg.Providers.ExecCommand, "TTSGW_PROVIDERS_EXEC_COMMAND")
	overrideInt(&cfg.Providers.ExecSampleRate, "TTSGW_PROVIDERS_EXEC_SAMPLE_RATE")
	overrideInt(&cfg.Providers.ExecChannels, "TTSGW_PROVIDERS_EXEC_CHANNELS")
	overrideInt(&cfg.RateLimit.MaxRequestsPerWindow, "TTSGW_RATE_LIMIT_MAX_REQUESTS_PER_WINDOW")
	overrideInt(&cfg.RateLimit.WindowSeconds, "TTSGW_RATE_LIMIT_WINDOW_SECONDS")
	overrideInt(&cfg.Breaker.FailureThreshold, "TTSGW_CIRCUIT_BREAKER_FAILURE_THRESHOLD")
	overrideInt(&cfg.Breaker.ResetTimeoutSeconds, "TTSGW_CIRCUIT_BREAKER_RESET_TIMEOUT_SECONDS")
	overrideInt(&cfg.Queue.MaxSize, "TTSGW_QUEUE_MAX_SIZE")
	overrideInt(&cfg.Queue.WorkerCount, "TTSGW_QUEUE_WORKER_COUNT")
	overrideFloat(&cfg.Stream.ChunkTimeoutSeconds, "TTSGW_STREAM_CHUNK_TIMEOUT_SECONDS")
	overrideInt(&cfg.Stream.MaxAttempts, "TTSGW_STREAM_MAX_ATTEMPTS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Providers.MockToneEnabled && cfg.Providers.MockToneSampleRate <= 0 {
		return errors.New("providers.mock_tone_sample_rate must be positive")
	}
	if cfg.Providers.ExecCommand != "" {
		if cfg.Providers.ExecSampleRate <= 0 {
			return errors.New("providers.exec_sample_rate must be positive")
		}
		if cfg.Providers.ExecChannels <= 0 {
			return errors.New("providers.exec_channels must be positive")
		}
	}
	if cfg.RateLimit.MaxRequestsPerWindow <= 0 {
		return errors.New("rate_limit.max_requests_per_window must be >= 1")
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		return errors.New("rate_limit.window_seconds must be >= 1")
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		return errors.New("circuit_breaker.failure_threshold must be >= 1")
	}
	if cfg.Breaker.ResetTimeoutSeconds <= 0 {
		return errors.New("circuit_breaker.reset_timeout_seconds must be >= 1")
	}
	if cfg.Queue.MaxSize <= 0 {
		return errors.New("queue.max_size must be >= 1")
	}
	if cfg.Queue.WorkerCount < 0 {
		return errors.New("queue.worker_count must be >= 0")
	}
	if cfg.Stream.ChunkTimeoutSeconds <= 0 {
		return errors.New("stream.chunk_timeout_seconds must be positive")
	}
	if cfg.Stream.MaxAttempts < 1 {
		return errors.New("stream.max_attempts must be >= 1")
	}
	return nil
}
