package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                int
	NatsURL             string
	NatsToken           string
	NatsMaxReconnects   int
	NatsReconnectWait   time.Duration
	DatabaseURL         string
	RedisURL            string
	LogLevel            string
	FusionInterval      time.Duration
	StalenessMode       string
	ResponseSensitivity float64
	SessionMinutes      int
	CacheTTL            time.Duration
}

func Load() Config {
	return Config{
		Port:                envInt("ATTUNE_PORT", 8760),
		NatsURL:             envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:           envStr("NATS_TOKEN", ""),
		NatsMaxReconnects:   envInt("NATS_MAX_RECONNECTS", 60),
		NatsReconnectWait:   envDur("NATS_RECONNECT_WAIT", 2*time.Second),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		RedisURL:            envStr("REDIS_URL", ""),
		LogLevel:            envStr("LOG_LEVEL", "info"),
		FusionInterval:      envDur("ATTUNE_FUSION_INTERVAL", 200*time.Millisecond),
		StalenessMode:       envStr("ATTUNE_STALENESS_MODE", "hold"),
		ResponseSensitivity: envFloat("ATTUNE_RESPONSE_SENSITIVITY", 0.7),
		SessionMinutes:      envInt("ATTUNE_SESSION_MINUTES", 20),
		CacheTTL:            envDur("ATTUNE_CACHE_TTL", 5*time.Minute),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
