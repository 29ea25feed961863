package connection

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chadiek/live-session/internal/backoff"
	"github.com/chadiek/live-session/internal/health"
)

// liveInstance guards the process-wide singleton slot.
var liveInstance atomic.Bool

// Config assembles the manager's collaborators.
type Config struct {
	URL     string
	Dialer  Dialer
	Backoff backoff.Config
	Health  health.Config
}

// Manager owns the one persistent connection to the remote service: dialing,
// the receive loop, auto-reconnect through the backoff policy, and event
// fan-out. Exactly one live instance exists per process.
type Manager struct {
	url     string
	dialer  Dialer
	backoff *backoff.Policy
	health  *health.Monitor

	mu         sync.Mutex
	state      State
	conn       Transport
	generation int
	// explicitClose marks a user-initiated disconnect so the read loop does
	// not schedule a reconnect for it.
	explicitClose   bool
	reconnectCancel context.CancelFunc
	closed          bool

	writeMu sync.Mutex

	listenerMu sync.Mutex
	listeners  []listenerEntry
	nextListen int
}

type listenerEntry struct {
	id int
	fn func(Event)
}

// NewManager constructs the singleton manager. A second construction attempt
// fails with ErrAlreadyInitialized until Close releases the slot.
func NewManager(cfg Config) (*Manager, error) {
	if !liveInstance.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}
	if cfg.Dialer == nil {
		cfg.Dialer = DialWebSocket
	}
	return &Manager{
		url:     cfg.URL,
		dialer:  cfg.Dialer,
		backoff: backoff.New(cfg.Backoff),
		health:  health.New(cfg.Health),
	}, nil
}

// Subscribe registers a listener for connection events. Listeners are invoked
// synchronously in registration order. The returned function removes exactly
// this listener and is idempotent.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.listenerMu.Lock()
	id := m.nextListen
	m.nextListen++
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})
	m.listenerMu.Unlock()
	return func() {
		m.listenerMu.Lock()
		defer m.listenerMu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) emit(ev Event) {
	m.listenerMu.Lock()
	entries := make([]listenerEntry, len(m.listeners))
	copy(entries, m.listeners)
	m.listenerMu.Unlock()
	for _, l := range entries {
		l.fn(ev)
	}
}

// Connect dials the remote service, retrying through the backoff policy. It
// blocks until Connected, the policy is exhausted (state Error), or ctx is
// cancelled. Calling Connect while Connected is a no-op; calling it after an
// Error resets the policy for a fresh attempt cycle.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("connection manager is closed")
	}
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.explicitClose = false
	if m.reconnectCancel != nil {
		// Take over any background reconnect cycle so only one dial loop runs.
		m.reconnectCancel()
	}
	m.backoff.Reset()
	rctx, cancel := context.WithCancel(ctx)
	m.reconnectCancel = cancel
	m.mu.Unlock()
	defer cancel()
	return m.dialLoop(rctx)
}

// dialLoop drives Connecting -> Connected, entering Reconnecting with a
// backoff wait after each failed dial, and Error on exhaustion.
func (m *Manager) dialLoop(ctx context.Context) error {
	for {
		conn, err := m.dialer(ctx, m.url)
		if err == nil {
			m.install(conn)
			return nil
		}
		log.Printf("connection: dial %s failed: %v", m.url, err)

		m.setState(StateReconnecting)
		if _, werr := m.backoff.Wait(ctx); werr != nil {
			if errors.Is(werr, backoff.ErrRetryExhausted) {
				m.setState(StateError)
				m.emit(Event{Type: EventError, Err: werr})
				return werr
			}
			return werr
		}
		m.setState(StateConnecting)
	}
}

// install wires a freshly dialed transport: state, health probing, read loop.
func (m *Manager) install(conn Transport) {
	m.mu.Lock()
	displaced := m.conn
	m.conn = conn
	m.state = StateConnected
	pending := m.reconnectCancel
	m.reconnectCancel = nil
	m.generation++
	gen := m.generation
	m.mu.Unlock()
	if displaced != nil {
		// A racing dial cycle lost; its transport must not keep reading.
		_ = displaced.Close()
	}
	if pending != nil {
		// The dial cycle that produced this transport is finished.
		pending()
	}
	// A successful connection opens a fresh retry budget for the next outage.
	m.backoff.Reset()

	conn.SetPongHandler(m.health.HandlePong)
	m.health.Start(m.sendPing)

	go m.readLoop(conn, gen)
	m.emit(Event{Type: EventConnected})
	log.Printf("connection: connected to %s", m.url)
}

func (m *Manager) sendPing() error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WritePing()
}

// readLoop receives frames until the transport errors. Messages are dispatched
// in arrival order; listeners run synchronously inside this loop.
func (m *Manager) readLoop(conn Transport, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(gen, err)
			return
		}
		m.emit(Event{Type: EventMessage, Payload: data})
	}
}

func (m *Manager) handleReadError(gen int, err error) {
	m.mu.Lock()
	if gen != m.generation || m.explicitClose {
		// A newer transport replaced this one, or Disconnect already ran.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if errors.Is(err, ErrClosedNormally) {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.health.Stop()
		m.emit(Event{Type: EventDisconnected})
		return
	}

	log.Printf("connection: transport lost: %v", err)
	m.state = StateReconnecting
	rctx, cancel := context.WithCancel(context.Background())
	m.reconnectCancel = cancel
	m.mu.Unlock()

	m.health.Stop()
	m.emit(Event{Type: EventDisconnected})

	go func() {
		if derr := m.dialLoop(rctx); derr != nil && !errors.Is(derr, context.Canceled) {
			log.Printf("connection: reconnect gave up: %v", derr)
		}
	}()
}

// Send writes a payload to the transport. It fails fast with ErrNotConnected
// while the manager is in any state other than Connected.
func (m *Manager) Send(payload []byte) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(payload)
}

// Disconnect closes the transport without scheduling a reconnect. Any pending
// backoff wait is cancelled immediately. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected && m.conn == nil && m.reconnectCancel == nil {
		m.mu.Unlock()
		return
	}
	m.explicitClose = true
	if m.reconnectCancel != nil {
		m.reconnectCancel()
		m.reconnectCancel = nil
	}
	conn := m.conn
	m.conn = nil
	wasActive := m.state != StateDisconnected
	m.state = StateDisconnected
	m.mu.Unlock()

	m.health.Stop()
	if conn != nil {
		_ = conn.Close()
	}
	if wasActive {
		m.emit(Event{Type: EventDisconnected})
	}
	log.Printf("connection: disconnected")
}

// Close disconnects and releases the process-wide singleton slot.
func (m *Manager) Close() {
	m.Disconnect()
	m.mu.Lock()
	alreadyClosed := m.closed
	m.closed = true
	m.mu.Unlock()
	if !alreadyClosed {
		liveInstance.Store(false)
	}
}

// State returns a side-effect-free snapshot.
func (m *Manager) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Connected:    m.state == StateConnected,
		Reconnecting: m.state == StateReconnecting,
		Attempts:     m.backoff.AttemptCount(),
		URL:          m.url,
	}
}

// CurrentState returns the lifecycle state.
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Latency delegates to the health monitor.
func (m *Manager) Latency() time.Duration {
	return m.health.Metrics().Latency
}

// HealthMetrics exposes the monitor snapshot for UI collaborators.
func (m *Manager) HealthMetrics() health.Metrics {
	return m.health.Metrics()
}
