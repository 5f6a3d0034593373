package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/spf13/viper"
)

var (
	ErrMissingProcessorURL = errors.New("processor url is required")
	ErrInvalidMode         = errors.New("invalid mode")
	ErrInvalidThreshold    = errors.New("thresholds must be positive")
)

type Mode string

const (
	ModeAll    Mode = "all"
	ModeAPI    Mode = "api"
	ModeWorker Mode = "worker"
)

type ProcessorsConfig struct {
	BaseURL    string
	PaymentURL string
	HealthURL  string
}

type Config struct {
	Port     string
	Mode     Mode
	LogLevel string
	RedisURL string

	HealthCheckInterval time.Duration
	HealthTimeout       time.Duration
	RequestTimeout      time.Duration

	// WorkerConcurrency is the base chunk size of the bulkhead.
	WorkerConcurrency int
	QueueThreshold    int64
	LatencyThreshold  time.Duration

	Urls map[constants.Processor]*ProcessorsConfig
}

// Load reads configuration from the environment, optionally seeded by a .env
// file in the working directory. Missing processor URLs are fatal.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	// a missing .env is normal in containers
	_ = v.ReadInConfig()

	v.SetDefault("PORT", "8080")
	v.SetDefault("MODE", string(ModeAll))
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REDIS_URL", "redis://localhost:6379")
	v.SetDefault("HEALTH_CHECK_INTERVAL", "5s")
	v.SetDefault("HEALTH_TIMEOUT", "3s")
	v.SetDefault("PROCESSOR_TIMEOUT", "3s")
	v.SetDefault("WORKER_CONCURRENCY", 80)
	v.SetDefault("QUEUE_THRESHOLD", 1000)
	v.SetDefault("LATENCY_THRESHOLD_MS", 5000)

	cfg := &Config{
		Port:                v.GetString("PORT"),
		Mode:                Mode(strings.ToLower(v.GetString("MODE"))),
		LogLevel:            strings.ToLower(v.GetString("LOG_LEVEL")),
		RedisURL:            v.GetString("REDIS_URL"),
		HealthCheckInterval: parseDuration(v.GetString("HEALTH_CHECK_INTERVAL"), 5*time.Second),
		HealthTimeout:       parseDuration(v.GetString("HEALTH_TIMEOUT"), 3*time.Second),
		RequestTimeout:      parseDuration(v.GetString("PROCESSOR_TIMEOUT"), 3*time.Second),
		WorkerConcurrency:   v.GetInt("WORKER_CONCURRENCY"),
		QueueThreshold:      v.GetInt64("QUEUE_THRESHOLD"),
		LatencyThreshold:    time.Duration(v.GetInt64("LATENCY_THRESHOLD_MS")) * time.Millisecond,
		Urls:                make(map[constants.Processor]*ProcessorsConfig),
	}

	for processor, key := range map[constants.Processor]string{
		constants.DefaultProcessor:  "PROCESSOR_DEFAULT_URL",
		constants.FallbackProcessor: "PROCESSOR_FALLBACK_URL",
	} {
		base := strings.TrimRight(v.GetString(key), "/")
		if base == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingProcessorURL, key)
		}
		cfg.Urls[processor] = NewProcessorsConfig(base)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func NewProcessorsConfig(baseURL string) *ProcessorsConfig {
	return &ProcessorsConfig{
		BaseURL:    baseURL,
		PaymentURL: baseURL + constants.PaymentPath,
		HealthURL:  baseURL + constants.HealthPath,
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeAPI, ModeWorker:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}

	if c.WorkerConcurrency <= 0 || c.QueueThreshold <= 0 || c.LatencyThreshold <= 0 {
		return ErrInvalidThreshold
	}

	for _, processor := range constants.Processors {
		if p, ok := c.Urls[processor]; !ok || p.BaseURL == "" {
			return fmt.Errorf("%w: %s", ErrMissingProcessorURL, processor)
		}
	}

	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil || duration <= 0 {
		return fallback
	}
	return duration
}
