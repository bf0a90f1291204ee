package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SECRET", "DATABASE_DSN", "HTTP_PORT", "KAFKA_BROKERS", "OTEL_ENDPOINT", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, "medeasy.db", cfg.DatabaseDSN)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "prescription-events", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.OtelEndpoint)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://rx:rx@localhost:5432/rx")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("KAFKA_TOPIC", "rx")

	cfg := Load()
	assert.Equal(t, "postgres://rx:rx@localhost:5432/rx", cfg.DatabaseDSN)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "rx", cfg.KafkaTopic)
}

func TestLoadRejectsNonNumericPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	assert.Equal(t, "8080", Load().HTTPPort)
}
