package backoff

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrRetryExhausted is returned once the policy has spent all allowed attempts.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// Config controls the delay sequence.
type Config struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	// Jitter scales each delay by a uniform factor in [0.5, 1.0). With Jitter
	// off the sequence is exactly base<<n capped at MaxDelay, which tests rely on.
	Jitter bool
}

// Attempt is the immutable record of one scheduled retry.
type Attempt struct {
	Number    int
	Delay     time.Duration
	Timestamp time.Time
}

// Stats is a point-in-time summary for observability.
type Stats struct {
	TotalAttempts     int
	RemainingAttempts int
	AverageDelay      time.Duration
}

// Policy computes exponential reconnect delays. It performs no I/O; Wait is
// the only blocking operation and honors context cancellation.
type Policy struct {
	cfg Config

	mu       sync.Mutex
	attempts []Attempt
}

// New returns a Policy with sane fallbacks for zero config values.
func New(cfg Config) *Policy {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Policy{cfg: cfg}
}

// delayFor computes the delay for the given zero-based attempt index.
func (p *Policy) delayFor(index int) time.Duration {
	d := p.cfg.BaseDelay
	for i := 0; i < index; i++ {
		d *= 2
		if d >= p.cfg.MaxDelay {
			return p.cfg.MaxDelay
		}
	}
	if d > p.cfg.MaxDelay {
		d = p.cfg.MaxDelay
	}
	return d
}

func (p *Policy) applyJitter(d time.Duration) time.Duration {
	if !p.cfg.Jitter {
		return d
	}
	return time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
}

// CanRetry reports whether another attempt is allowed.
func (p *Policy) CanRetry() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.attempts) < p.cfg.MaxAttempts
}

// NextDelay previews the delay the next RecordAttempt would produce without
// recording anything.
func (p *Policy) NextDelay() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.attempts) >= p.cfg.MaxAttempts {
		return 0, ErrRetryExhausted
	}
	return p.applyJitter(p.delayFor(len(p.attempts))), nil
}

// RecordAttempt appends an attempt and returns its record.
func (p *Policy) RecordAttempt() Attempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := Attempt{
		Number:    len(p.attempts) + 1,
		Delay:     p.applyJitter(p.delayFor(len(p.attempts))),
		Timestamp: time.Now(),
	}
	p.attempts = append(p.attempts, a)
	return a
}

// Wait records the next attempt, blocks for its delay, then returns the
// record. It returns early with the context error if ctx is cancelled, and
// ErrRetryExhausted if no attempts remain.
func (p *Policy) Wait(ctx context.Context) (Attempt, error) {
	if !p.CanRetry() {
		return Attempt{}, ErrRetryExhausted
	}
	a := p.RecordAttempt()
	t := time.NewTimer(a.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return a, nil
	case <-ctx.Done():
		return Attempt{}, ctx.Err()
	}
}

// Reset clears the attempt history for a fresh connection cycle.
func (p *Policy) Reset() {
	p.mu.Lock()
	p.attempts = nil
	p.mu.Unlock()
}

// AttemptCount returns how many attempts have been recorded.
func (p *Policy) AttemptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.attempts)
}

// Stats summarizes recorded attempts.
func (p *Policy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		TotalAttempts:     len(p.attempts),
		RemainingAttempts: p.cfg.MaxAttempts - len(p.attempts),
	}
	if len(p.attempts) > 0 {
		var sum time.Duration
		for _, a := range p.attempts {
			sum += a.Delay
		}
		s.AverageDelay = sum / time.Duration(len(p.attempts))
	}
	return s
}
