package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 6*time.Second, cfg.NewMarkTTL)
	assert.Equal(t, "marginalia.audit", cfg.Kafka.Topic)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MARGINALIA_ADDR", ":9999")
	t.Setenv("NEW_MARK_TTL", "2s")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg := FromEnv()

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 2*time.Second, cfg.NewMarkTTL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
}

func TestFromEnvBadDurationFallsBack(t *testing.T) {
	t.Setenv("NEW_MARK_TTL", "not-a-duration")

	cfg := FromEnv()

	assert.Equal(t, 6*time.Second, cfg.NewMarkTTL)
}
