package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("BACKOFF_BASE_MS", "")
	os.Setenv("BUFFER_MAX_SIZE", "")
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.BackoffBase != 500*time.Millisecond {
		t.Fatalf("expected default backoff base, got %s", cfg.BackoffBase)
	}
	if cfg.BufferMaxSize != 500 {
		t.Fatalf("expected default buffer size, got %d", cfg.BufferMaxSize)
	}
	if !cfg.BackoffJitter {
		t.Fatalf("expected jitter on by default")
	}
}

func TestLoad_EnvOverridesAndBadValues(t *testing.T) {
	os.Setenv("BACKOFF_MAX_ATTEMPTS", "3")
	os.Setenv("PING_INTERVAL_MS", "2000")
	os.Setenv("BUFFER_MAX_SIZE", "not a number")
	os.Setenv("BACKOFF_JITTER", "false")
	defer func() {
		os.Unsetenv("BACKOFF_MAX_ATTEMPTS")
		os.Unsetenv("PING_INTERVAL_MS")
		os.Unsetenv("BUFFER_MAX_SIZE")
		os.Unsetenv("BACKOFF_JITTER")
	}()

	cfg := Load()
	if cfg.BackoffMaxAttempts != 3 {
		t.Fatalf("expected override, got %d", cfg.BackoffMaxAttempts)
	}
	if cfg.PingInterval != 2*time.Second {
		t.Fatalf("expected 2s ping interval, got %s", cfg.PingInterval)
	}
	if cfg.BufferMaxSize != 500 {
		t.Fatalf("bad value must fall back to default, got %d", cfg.BufferMaxSize)
	}
	if cfg.BackoffJitter {
		t.Fatalf("expected jitter disabled")
	}
}
