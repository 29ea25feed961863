package health

import (
	"log"
	"sync"
	"time"
)

// Quality is the derived categorical rating of the connection.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// Config controls probing cadence and sample retention.
type Config struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	// MaxStoredResults bounds the rolling windows of probe outcomes and
	// latency samples.
	MaxStoredResults int
	// PacketLossThreshold above which NeedsAttention fires regardless of quality.
	PacketLossThreshold float64
}

// Metrics is a read-only snapshot derived from recent probes.
type Metrics struct {
	Latency      time.Duration
	PacketLoss   float64
	Quality      Quality
	IsHealthy    bool
	Uptime       time.Duration
	LastPongTime time.Time
}

// Monitor probes connection liveness on a private timer. The owning
// connection supplies the ping sender; the monitor never touches the
// transport directly.
type Monitor struct {
	cfg Config

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	startedAt time.Time

	pingSent  time.Time
	pending   bool
	lastPong  time.Time
	latencies []time.Duration
	// results is the rolling probe outcome window, true for answered.
	results []bool
}

// New returns a Monitor with defaults applied for zero config values.
func New(cfg Config) *Monitor {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = cfg.PingInterval
	}
	if cfg.MaxStoredResults <= 0 {
		cfg.MaxStoredResults = 20
	}
	if cfg.PacketLossThreshold <= 0 {
		cfg.PacketLossThreshold = 0.10
	}
	return &Monitor{cfg: cfg}
}

// Start begins the repeating probe timer. Calling Start on a running monitor
// is a no-op.
func (m *Monitor) Start(pingSender func() error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.startedAt = time.Now()
	stopCh := m.stopCh
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				now := time.Now()
				m.mu.Lock()
				m.resolvePendingLocked(now)
				if m.pending {
					// Still unanswered when the next probe goes out; the old
					// probe is lost even if its timeout has not elapsed yet.
					m.pending = false
					m.recordResultLocked(false)
				}
				m.pending = true
				m.pingSent = now
				m.mu.Unlock()
				if err := pingSender(); err != nil {
					log.Printf("health: ping send failed: %v", err)
				}
			}
		}
	}()
}

// resolvePendingLocked counts an outstanding probe as lost once it has been
// unanswered longer than PingTimeout. Called lazily from the tick loop,
// HandlePong and Metrics so losses are visible without racing the ticker.
func (m *Monitor) resolvePendingLocked(now time.Time) {
	if m.pending && now.Sub(m.pingSent) > m.cfg.PingTimeout {
		m.pending = false
		m.recordResultLocked(false)
	}
}

// recordResultLocked appends a probe outcome to the rolling window.
func (m *Monitor) recordResultLocked(answered bool) {
	m.results = append(m.results, answered)
	if len(m.results) > m.cfg.MaxStoredResults {
		m.results = m.results[len(m.results)-m.cfg.MaxStoredResults:]
	}
}

// HandlePong records a probe reply and its round-trip latency.
func (m *Monitor) HandlePong() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvePendingLocked(now)
	if !m.pending {
		// Late or unsolicited pong; still refresh liveness.
		m.lastPong = now
		return
	}
	m.pending = false
	m.lastPong = now
	m.latencies = append(m.latencies, now.Sub(m.pingSent))
	if len(m.latencies) > m.cfg.MaxStoredResults {
		m.latencies = m.latencies[len(m.latencies)-m.cfg.MaxStoredResults:]
	}
	m.recordResultLocked(true)
}

// Metrics derives a snapshot from the rolling windows.
func (m *Monitor) Metrics() Metrics {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvePendingLocked(now)

	var avg time.Duration
	if len(m.latencies) > 0 {
		var sum time.Duration
		for _, d := range m.latencies {
			sum += d
		}
		avg = sum / time.Duration(len(m.latencies))
	}

	var loss float64
	lost := 0
	for _, answered := range m.results {
		if !answered {
			lost++
		}
	}
	if len(m.results) > 0 {
		loss = float64(lost) / float64(len(m.results))
	}

	lastAnswered := len(m.results) > 0 && m.results[len(m.results)-1]
	q := deriveQuality(avg, loss, len(m.results), lastAnswered)
	metrics := Metrics{
		Latency:      avg,
		PacketLoss:   loss,
		Quality:      q,
		IsHealthy:    q == QualityExcellent || q == QualityGood,
		LastPongTime: m.lastPong,
	}
	if m.running {
		metrics.Uptime = now.Sub(m.startedAt)
	}
	return metrics
}

// deriveQuality degrades monotonically with rising latency or loss. A probe
// answered within the timeout proves the link is alive now, so older losses
// in the window cannot drag an otherwise fast connection below Good.
func deriveQuality(latency time.Duration, loss float64, samples int, lastAnswered bool) Quality {
	if samples == 0 {
		// No probes resolved yet; assume good until evidence arrives.
		return QualityGood
	}
	var q Quality
	switch {
	case loss == 0 && latency < 100*time.Millisecond:
		q = QualityExcellent
	case loss < 0.05 && latency < 250*time.Millisecond:
		q = QualityGood
	case loss < 0.15 && latency < 500*time.Millisecond:
		q = QualityFair
	default:
		q = QualityPoor
	}
	if lastAnswered && latency < 250*time.Millisecond && (q == QualityFair || q == QualityPoor) {
		q = QualityGood
	}
	return q
}

// NeedsAttention reports whether a UI collaborator should surface degradation.
func (m *Monitor) NeedsAttention() bool {
	metrics := m.Metrics()
	if metrics.Quality == QualityFair || metrics.Quality == QualityPoor {
		return true
	}
	return metrics.PacketLoss > m.cfg.PacketLossThreshold
}

// Stop cancels the probe timer. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

// Reset zeroes all counters without stopping the timer.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = false
	m.latencies = nil
	m.results = nil
	m.lastPong = time.Time{}
	if m.running {
		m.startedAt = time.Now()
	}
}
