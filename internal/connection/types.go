package connection

import (
	"context"
	"errors"
)

var (
	// ErrAlreadyInitialized is returned when a second Manager is constructed
	// while one is live. The transport and its event handlers are not safely
	// duplicable; every consumer must observe the same connection state.
	ErrAlreadyInitialized = errors.New("connection manager already initialized")

	// ErrNotConnected is returned by Send while the manager is not Connected.
	ErrNotConnected = errors.New("not connected")

	// ErrClosedNormally signals a transport close with a normal status code.
	// The manager treats it as an orderly shutdown and does not reconnect.
	ErrClosedNormally = errors.New("transport closed normally")
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Transport is the minimal duplex stream the manager drives. The default
// implementation wraps a gorilla websocket connection; tests substitute fakes.
type Transport interface {
	// ReadMessage blocks for the next inbound frame. It returns
	// ErrClosedNormally for an orderly remote close and any other error for
	// an unexpected one.
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	WritePing() error
	// SetPongHandler registers the callback invoked for each pong frame.
	SetPongHandler(fn func())
	Close() error
}

// Dialer opens a Transport to the given address.
type Dialer func(ctx context.Context, url string) (Transport, error)

// EventType discriminates manager events.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventMessage      EventType = "message"
	EventError        EventType = "error"
)

// Event is delivered synchronously to registered listeners in registration
// order. Listeners must not block; long work belongs on another goroutine.
type Event struct {
	Type    EventType
	Payload []byte
	Err     error
}

// Snapshot is a point-in-time view of the connection for UI collaborators.
type Snapshot struct {
	Connected    bool   `json:"connected"`
	Reconnecting bool   `json:"reconnecting"`
	Attempts     int    `json:"attempts"`
	URL          string `json:"url"`
}
