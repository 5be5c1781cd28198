package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envTestConfig struct {
	Port int `env:"ESCROW_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig
	require.NoError(t, ParseEnv(&cfg))
	assert.Equal(t, 123, cfg.Port)
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("ESCROW_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "escrow.events", cfg.KafkaTopic)
	assert.Equal(t, 50*time.Millisecond, cfg.KafkaBatchTimeout)
	assert.Equal(t, "escrow", cfg.ServiceName)
	assert.False(t, cfg.KafkaEnabled())
	assert.Empty(t, cfg.OTelEndpoint)
	assert.Equal(t, 1.0, cfg.OTelSampleRatio)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ESCROW_LOG_LEVEL", "debug")
	t.Setenv("ESCROW_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ESCROW_KAFKA_BATCH_TIMEOUT", "1s")
	t.Setenv("ESCROW_JOURNAL", "/tmp/j.db")
	t.Setenv("ESCROW_GENESIS", "genesis.cue")

	cfg, err := Load()
	require.NoError(t, err)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, time.Second, cfg.KafkaBatchTimeout)
	assert.Equal(t, "/tmp/j.db", cfg.JournalPath)
	assert.Equal(t, "genesis.cue", cfg.Genesis)
}

func TestLoad_BadLevel(t *testing.T) {
	t.Setenv("ESCROW_LOG_LEVEL", "loud")
	_, err := Load()
	assert.ErrorContains(t, err, "ESCROW_LOG_LEVEL")
}
