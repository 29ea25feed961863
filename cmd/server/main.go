package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chadiek/live-session/internal/backoff"
	"github.com/chadiek/live-session/internal/buffer"
	"github.com/chadiek/live-session/internal/config"
	"github.com/chadiek/live-session/internal/connection"
	"github.com/chadiek/live-session/internal/health"
	"github.com/chadiek/live-session/internal/httpserver"
	"github.com/chadiek/live-session/internal/session"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	buf := buffer.New(cfg.BufferMaxSize)

	conn, err := connection.NewManager(connection.Config{
		URL: cfg.ServiceURL,
		Backoff: backoff.Config{
			BaseDelay:   cfg.BackoffBase,
			MaxDelay:    cfg.BackoffMax,
			MaxAttempts: cfg.BackoffMaxAttempts,
			Jitter:      cfg.BackoffJitter,
		},
		Health: health.Config{
			PingInterval:     cfg.PingInterval,
			PingTimeout:      cfg.PingTimeout,
			MaxStoredResults: cfg.HealthMaxStored,
		},
	})
	if err != nil {
		log.Fatalf("connection manager: %v", err)
	}

	orch := session.NewOrchestrator(conn, buf)

	e := httpserver.New()
	httpserver.NewHandlers(orch, buf).Register(e)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	orch.Cleanup()
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
