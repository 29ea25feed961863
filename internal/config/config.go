package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	ServiceURL  string

	BufferMaxSize int

	BackoffBase        time.Duration
	BackoffMax         time.Duration
	BackoffMaxAttempts int
	BackoffJitter      bool

	PingInterval    time.Duration
	PingTimeout     time.Duration
	HealthMaxStored int
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	serviceURL := os.Getenv("SERVICE_URL")
	if serviceURL == "" {
		log.Println("Warning: SERVICE_URL not set - live sessions will not connect")
	}

	cfg := Config{
		HTTPAddress:        addr,
		ServiceURL:         serviceURL,
		BufferMaxSize:      intEnv("BUFFER_MAX_SIZE", 500),
		BackoffBase:        msEnv("BACKOFF_BASE_MS", 500*time.Millisecond),
		BackoffMax:         msEnv("BACKOFF_MAX_MS", 30*time.Second),
		BackoffMaxAttempts: intEnv("BACKOFF_MAX_ATTEMPTS", 10),
		BackoffJitter:      boolEnv("BACKOFF_JITTER", true),
		PingInterval:       msEnv("PING_INTERVAL_MS", 15*time.Second),
		PingTimeout:        msEnv("PING_TIMEOUT_MS", 5*time.Second),
		HealthMaxStored:    intEnv("HEALTH_MAX_STORED", 50),
	}

	log.Printf("config: HTTP_ADDRESS=%s SERVICE_URL=%s", cfg.HTTPAddress, cfg.ServiceURL)
	return cfg
}

func intEnv(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("config: invalid %s=%q, using %d", key, raw, def)
		return def
	}
	return v
}

func msEnv(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		log.Printf("config: invalid %s=%q, using %s", key, raw, def)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func boolEnv(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %v", key, raw, def)
		return def
	}
	return v
}
