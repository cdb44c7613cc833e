package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// Config holds the view service configuration.
type Config struct {
	// Engine
	ProcessorID     string `env:"PROCESSOR_ID"`
	TimelineMaxSize int    `env:"TIMELINE_MAX_SIZE" envDefault:"100"`

	// Kafka
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	OrdersTopic      string   `env:"ORDERS_TOPIC" envDefault:"orders"`
	ConsumerGroup    string   `env:"CONSUMER_GROUP" envDefault:"orderviews"`
	ConsumerWorkers  int      `env:"CONSUMER_WORKERS" envDefault:"4"`
	BatchSize        int      `env:"BATCH_SIZE" envDefault:"100"`
	CommitIntervalMS int      `env:"COMMIT_INTERVAL_MS" envDefault:"1000"`

	// Redis
	RedisURL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Timeouts (parsed as milliseconds)
	SaveTimeoutMS int `env:"SAVE_TIMEOUT_MS" envDefault:"2000"`
	HTTPTimeoutMS int `env:"HTTP_TIMEOUT_MS" envDefault:"5000"`

	// Computed durations (not from env)
	SaveTimeout    time.Duration `env:"-"`
	HTTPTimeout    time.Duration `env:"-"`
	CommitInterval time.Duration `env:"-"`

	// Observability
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort       int    `env:"HTTP_PORT" envDefault:"8080"`
	PrometheusPort int    `env:"PROMETHEUS_PORT" envDefault:"9091"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	opts := env.Options{
		Prefix: "",
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	for i := range cfg.KafkaBrokers {
		cfg.KafkaBrokers[i] = strings.TrimSpace(cfg.KafkaBrokers[i])
	}

	// A processor id must be stable for the process lifetime but unique per
	// instance, so an unset value gets a generated one.
	if cfg.ProcessorID == "" {
		cfg.ProcessorID = fmt.Sprintf("processor-%s", uuid.NewString()[:8])
	}

	cfg.SaveTimeout = time.Duration(cfg.SaveTimeoutMS) * time.Millisecond
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutMS) * time.Millisecond
	cfg.CommitInterval = time.Duration(cfg.CommitIntervalMS) * time.Millisecond

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.TimelineMaxSize < 1 {
		return fmt.Errorf("timeline max size must be at least 1, got %d", c.TimelineMaxSize)
	}

	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("at least one kafka broker must be configured")
	}

	if c.OrdersTopic == "" {
		return fmt.Errorf("orders topic is required")
	}

	if c.ConsumerWorkers < 1 {
		return fmt.Errorf("consumer workers must be at least 1, got %d", c.ConsumerWorkers)
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}

	if c.SaveTimeout < time.Millisecond {
		return fmt.Errorf("save timeout must be at least 1ms")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	return nil
}
