package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	NatsURL     string
	NatsSubject string

	AutoAdvance  bool
	OutboxBuffer int

	RegistryRefreshInterval time.Duration

	DefaultAvgConsultMinutes int
	DefaultCapacity          int

	RateLimitPerMinute int
	RateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	subject := os.Getenv("NATS_SUBJECT")
	if subject == "" {
		subject = "queue.transitions"
	}

	return Config{
		Port:                     port,
		DatabaseURL:              os.Getenv("DB_DSN"),
		NatsURL:                  os.Getenv("NATS_URL"),
		NatsSubject:              subject,
		AutoAdvance:              readBool("AUTO_ADVANCE", false),
		OutboxBuffer:             readInt("OUTBOX_BUFFER", 256),
		RegistryRefreshInterval:  readDurationSeconds("REGISTRY_REFRESH_SECONDS", 300),
		DefaultAvgConsultMinutes: readInt("DEFAULT_AVG_CONSULT_MINUTES", 30),
		DefaultCapacity:          readInt("DEFAULT_CAPACITY", 50),
		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
