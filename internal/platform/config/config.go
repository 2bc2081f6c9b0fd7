// Package config loads process configuration from the environment so main
// stays lean. Every value has a development default; production overrides
// via env.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures the full process configuration.
type Server struct {
	Addr string

	// DatabaseURL enables the Postgres stores when set; empty keeps the
	// in-memory stores (development, tests).
	DatabaseURL string

	// Redis backs the render cache when configured.
	Redis RedisConfig

	// Kafka backs the audit publisher when brokers are set.
	Kafka KafkaConfig

	// NewMarkTTL is the decay window for the transient "new annotation"
	// marker set used by clients for entry animation.
	NewMarkTTL time.Duration

	// SelectionTTL bounds how long a pending selection may sit unfinished
	// before it is discarded.
	SelectionTTL time.Duration

	// RenderCacheTTL bounds cached render results; content digests make
	// stale entries unreachable anyway, so this is a memory bound.
	RenderCacheTTL time.Duration
}

// RedisConfig mirrors the platform redis client knobs.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:        envString("MARGINALIA_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_AUDIT_TOPIC", "marginalia.audit"),
		},
		NewMarkTTL:     envDuration("NEW_MARK_TTL", 6*time.Second),
		SelectionTTL:   envDuration("SELECTION_TTL", 5*time.Minute),
		RenderCacheTTL: envDuration("RENDER_CACHE_TTL", 10*time.Minute),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
