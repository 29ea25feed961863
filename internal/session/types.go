package session

import (
	"context"
	"errors"
	"time"

	"github.com/chadiek/live-session/internal/connection"
	"github.com/chadiek/live-session/internal/health"
)

// ErrSessionActive is returned by StartSession while another session is live.
var ErrSessionActive = errors.New("a session is already active")

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnded  Status = "ended"
)

// Session is the metadata for one live tutoring session.
type Session struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Topic     string    `json:"topic"`
	Status    Status    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitzero"`
}

// Conn is the slice of the connection manager the orchestrator needs, kept
// narrow so tests can stand in a fake.
type Conn interface {
	Connect(ctx context.Context) error
	Disconnect()
	Send(payload []byte) error
	Subscribe(fn func(connection.Event)) func()
	State() connection.Snapshot
	Latency() time.Duration
	HealthMetrics() health.Metrics
}
