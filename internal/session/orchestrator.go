// Package session orchestrates a live tutoring session: it owns the session
// lifecycle, drives the connection manager, and turns inbound transcript
// frames into display items through the normalize -> segment pipeline.
package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/live-session/internal/buffer"
	"github.com/chadiek/live-session/internal/connection"
	"github.com/chadiek/live-session/internal/health"
	"github.com/chadiek/live-session/internal/normalize"
	"github.com/chadiek/live-session/internal/segment"
	"github.com/chadiek/live-session/internal/wire"
)

// Orchestrator coordinates one session at a time over the shared connection.
type Orchestrator struct {
	conn Conn
	buf  *buffer.Buffer

	mu      sync.Mutex
	current *Session
	unsub   func()

	// In-flight utterance being accumulated from streaming transcript chunks.
	inflightSpeaker string
	inflight        strings.Builder
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(conn Conn, buf *buffer.Buffer) *Orchestrator {
	return &Orchestrator{conn: conn, buf: buf}
}

// StartSession begins a new session, connecting first if needed and announcing
// the session to the remote service. Only one session may be live at a time.
func (o *Orchestrator) StartSession(ctx context.Context, studentID, topic string) (Session, error) {
	o.mu.Lock()
	if o.current != nil && o.current.Status != StatusEnded {
		o.mu.Unlock()
		return Session{}, ErrSessionActive
	}
	o.mu.Unlock()

	if err := o.conn.Connect(ctx); err != nil {
		return Session{}, err
	}

	s := Session{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Topic:     topic,
		Status:    StatusActive,
		StartTime: time.Now(),
	}

	o.mu.Lock()
	o.current = &s
	if o.unsub == nil {
		o.unsub = o.conn.Subscribe(o.handleEvent)
	}
	o.mu.Unlock()

	payload, err := wire.EncodeControl(wire.Control{
		Type:      "session_start",
		SessionID: s.ID,
		StudentID: studentID,
		Topic:     topic,
	})
	if err != nil {
		return Session{}, err
	}
	if err := o.conn.Send(payload); err != nil {
		log.Printf("session: start announce failed: %v", err)
	}
	log.Printf("session: started %s (student=%s topic=%q)", s.ID, studentID, topic)
	return s, nil
}

func (o *Orchestrator) handleEvent(ev connection.Event) {
	switch ev.Type {
	case connection.EventMessage:
		o.handleFrame(ev.Payload)
	case connection.EventError:
		log.Printf("session: connection error: %v", ev.Err)
	}
}

// handleFrame routes one inbound frame. Frames are dropped while no session is
// active or the session is paused; a malformed frame is logged and skipped
// without disturbing the in-flight utterance.
func (o *Orchestrator) handleFrame(data []byte) {
	o.mu.Lock()
	active := o.current != nil && o.current.Status == StatusActive
	o.mu.Unlock()
	if !active {
		return
	}

	f, err := wire.Decode(data)
	if err != nil {
		log.Printf("session: dropping frame: %v", err)
		return
	}

	switch f.Type {
	case wire.FrameTranscript:
		if len(f.Segments) > 0 && f.Segments[0].Streaming {
			o.appendInflight(f)
			return
		}
		// A non-streaming frame closes out whatever was in flight first.
		o.flushInflight()
		o.publishTranscript(f)
	case wire.FrameText:
		o.flushInflight()
		o.publish(f.Speaker, f.Text)
	case wire.FrameComplete:
		o.flushInflight()
	}
}

func (o *Orchestrator) appendInflight(f wire.Frame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflightSpeaker == "" {
		o.inflightSpeaker = f.Speaker
	}
	for _, seg := range f.Segments {
		if o.inflight.Len() > 0 {
			o.inflight.WriteByte(' ')
		}
		o.inflight.WriteString(seg.Content)
	}
}

// flushInflight publishes the accumulated utterance, if any, and resets the
// accumulator.
func (o *Orchestrator) flushInflight() {
	o.mu.Lock()
	text := o.inflight.String()
	speaker := o.inflightSpeaker
	o.inflight.Reset()
	o.inflightSpeaker = ""
	o.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return
	}
	o.publish(speaker, text)
}

// publishTranscript handles a complete (non-streaming) transcript frame. Math
// segments carrying their own latex become math items directly; text segments
// run through the normalization pipeline.
func (o *Orchestrator) publishTranscript(f wire.Frame) {
	var prose []string
	for _, seg := range f.Segments {
		if seg.Type == "math" && seg.Latex != "" {
			o.buf.AddItem(buffer.DisplayItem{
				Type:    buffer.ItemMath,
				Content: seg.Content,
				Speaker: f.Speaker,
				MathFragments: []buffer.MathFragment{
					{LaTeX: seg.Latex, EndIndex: len(seg.Content)},
				},
				Confidence: 1.0,
			})
			continue
		}
		if seg.Content != "" {
			prose = append(prose, seg.Content)
		}
	}
	if len(prose) > 0 {
		o.publish(f.Speaker, strings.Join(prose, " "))
	}
}

// publish runs text through normalize and segment, then stores one display
// item per segment.
func (o *Orchestrator) publish(speaker, text string) {
	cleaned := normalize.Normalize(text)
	for _, seg := range segment.SegmentText(cleaned) {
		item := buffer.DisplayItem{
			Content:    seg.Text,
			Speaker:    speaker,
			Confidence: seg.Confidence,
		}
		switch seg.Type {
		case segment.TypeMath:
			item.Type = buffer.ItemMath
			item.MathFragments = []buffer.MathFragment{
				{LaTeX: seg.LaTeX, EndIndex: len(seg.Text)},
			}
		case segment.TypeCode:
			item.Type = buffer.ItemCode
		default:
			item.Type = buffer.ItemText
		}
		o.buf.AddItem(item)
	}
}

// Pause suspends frame processing without touching the connection.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil && o.current.Status == StatusActive {
		o.current.Status = StatusPaused
	}
}

// Resume reinstates frame processing after a Pause.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil && o.current.Status == StatusPaused {
		o.current.Status = StatusActive
	}
}

// EndSession finishes the session with the given id, flushing any in-flight
// utterance. An unknown or stale id is a no-op.
func (o *Orchestrator) EndSession(id string) {
	o.mu.Lock()
	if o.current == nil || o.current.ID != id || o.current.Status == StatusEnded {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.flushInflight()

	o.mu.Lock()
	o.current.Status = StatusEnded
	o.current.EndTime = time.Now()
	o.mu.Unlock()

	payload, err := wire.EncodeControl(wire.Control{Type: "session_end", SessionID: id})
	if err == nil {
		if serr := o.conn.Send(payload); serr != nil {
			log.Printf("session: end announce failed: %v", serr)
		}
	}
	log.Printf("session: ended %s", id)
}

// Current returns the live or most recent session.
func (o *Orchestrator) Current() (Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return Session{}, false
	}
	return *o.current, true
}

// Cleanup ends any live session, detaches from connection events, and
// disconnects. Safe to call more than once.
func (o *Orchestrator) Cleanup() {
	o.mu.Lock()
	var id string
	if o.current != nil && o.current.Status != StatusEnded {
		id = o.current.ID
	}
	unsub := o.unsub
	o.unsub = nil
	o.mu.Unlock()

	if id != "" {
		o.EndSession(id)
	}
	if unsub != nil {
		unsub()
	}
	o.conn.Disconnect()
}

// ConnectionState exposes the connection snapshot for the HTTP surface.
func (o *Orchestrator) ConnectionState() connection.Snapshot {
	return o.conn.State()
}

// Latency reports the current round-trip estimate.
func (o *Orchestrator) Latency() time.Duration {
	return o.conn.Latency()
}

// Health reports the connection health metrics.
func (o *Orchestrator) Health() health.Metrics {
	return o.conn.HealthMetrics()
}
