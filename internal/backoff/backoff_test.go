package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelaySequence_NoJitter(t *testing.T) {
	p := New(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: 1 * time.Second, MaxAttempts: 6})
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second, // capped
		1 * time.Second,
	}
	for i, w := range want {
		a := p.RecordAttempt()
		if a.Delay != w {
			t.Fatalf("attempt %d: got delay %v want %v", i, a.Delay, w)
		}
		if a.Number != i+1 {
			t.Fatalf("attempt %d: got number %d", i, a.Number)
		}
	}
}

func TestCanRetry_FalseAtMaxAttempts(t *testing.T) {
	p := New(Config{BaseDelay: time.Millisecond, MaxDelay: time.Second, MaxAttempts: 3})
	for i := 0; i < 3; i++ {
		if !p.CanRetry() {
			t.Fatalf("expected CanRetry true before attempt %d", i)
		}
		p.RecordAttempt()
	}
	if p.CanRetry() {
		t.Fatalf("expected CanRetry false at max attempts")
	}
	if _, err := p.NextDelay(); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
}

func TestWait_BlocksForDelay(t *testing.T) {
	p := New(Config{BaseDelay: 30 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 2})
	start := time.Now()
	a, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("wait returned too early: %v", elapsed)
	}
	if a.Number != 1 {
		t.Fatalf("expected attempt number 1, got %d", a.Number)
	}
}

func TestWait_Cancelled(t *testing.T) {
	p := New(Config{BaseDelay: 5 * time.Second, MaxDelay: 10 * time.Second, MaxAttempts: 2})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(ctx)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not return after cancel")
	}
}

func TestWait_Exhausted(t *testing.T) {
	p := New(Config{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 1})
	if _, err := p.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
}

func TestReset_ClearsAttempts(t *testing.T) {
	p := New(Config{BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 2})
	p.RecordAttempt()
	p.RecordAttempt()
	if p.CanRetry() {
		t.Fatalf("expected exhausted before reset")
	}
	p.Reset()
	if !p.CanRetry() {
		t.Fatalf("expected CanRetry true after reset")
	}
	if a := p.RecordAttempt(); a.Delay != 10*time.Millisecond {
		t.Fatalf("expected sequence restart at base delay, got %v", a.Delay)
	}
}

func TestStats(t *testing.T) {
	p := New(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 5})
	p.RecordAttempt() // 100ms
	p.RecordAttempt() // 200ms
	s := p.Stats()
	if s.TotalAttempts != 2 || s.RemainingAttempts != 3 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.AverageDelay != 150*time.Millisecond {
		t.Fatalf("expected average 150ms, got %v", s.AverageDelay)
	}
}

func TestJitter_NeverExceedsDeterministic(t *testing.T) {
	p := New(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 50, Jitter: true})
	for i := 0; i < 8; i++ {
		det := p.delayFor(i)
		a := p.RecordAttempt()
		if a.Delay > det {
			t.Fatalf("jittered delay %v exceeds deterministic %v", a.Delay, det)
		}
		if a.Delay < det/2 {
			t.Fatalf("jittered delay %v below half of %v", a.Delay, det)
		}
	}
}
