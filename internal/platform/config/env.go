package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration read from ESCROW_* variables.
// Command-line flags override it.
type Config struct {
	LogLevel string `env:"ESCROW_LOG_LEVEL" envDefault:"info"`

	Genesis     string `env:"ESCROW_GENESIS"`
	JournalPath string `env:"ESCROW_JOURNAL"`

	KafkaBrokers      []string      `env:"ESCROW_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic        string        `env:"ESCROW_KAFKA_TOPIC" envDefault:"escrow.events"`
	KafkaBatchTimeout time.Duration `env:"ESCROW_KAFKA_BATCH_TIMEOUT" envDefault:"50ms"`

	OTelEndpoint    string  `env:"ESCROW_OTEL_ENDPOINT"`
	OTelSampleRatio float64 `env:"ESCROW_OTEL_SAMPLE_RATIO" envDefault:"1"`
	ServiceName     string  `env:"ESCROW_SERVICE_NAME" envDefault:"escrow"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads a Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Level(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Level parses LogLevel ("debug", "info", "warn", "error").
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("ESCROW_LOG_LEVEL: %w", err)
	}
	return level, nil
}

// KafkaEnabled reports whether events should also go to Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
