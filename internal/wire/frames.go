// Package wire frames the duplex protocol with the remote speech service.
// Inbound frames form a tagged union discriminated by "type"; unknown types
// decode soft so one odd frame never tears down the receive loop.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedFrame wraps any inbound frame that fails to parse. The caller
// logs and drops the frame; decoding errors are isolated per message.
var ErrMalformedFrame = errors.New("malformed frame")

// FrameType discriminates inbound frames.
type FrameType string

const (
	// FrameTranscript carries progressive transcript chunks as typed segments.
	FrameTranscript FrameType = "transcript"
	// FrameText carries a simple non-streaming transcription.
	FrameText FrameType = "text"
	// FrameComplete marks the end of an utterance.
	FrameComplete FrameType = "complete"
	// FrameUnknown is any type this core does not interpret.
	FrameUnknown FrameType = "unknown"
)

// SegmentPayload is one typed chunk inside a transcript frame. Streaming on
// the first segment signals an append to the in-flight item rather than a
// new one.
type SegmentPayload struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Latex     string `json:"latex,omitempty"`
	Streaming bool   `json:"streaming,omitempty"`
}

// Frame is a decoded inbound event.
type Frame struct {
	Type      FrameType        `json:"type"`
	Speaker   string           `json:"speaker,omitempty"`
	Timestamp int64            `json:"timestamp,omitempty"`
	Segments  []SegmentPayload `json:"segments,omitempty"`
	Text      string           `json:"text,omitempty"`
}

// Decode parses an inbound frame. Unknown types return a Frame with
// FrameUnknown and a nil error; structural failures return ErrMalformedFrame.
func Decode(data []byte) (Frame, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch FrameType(typ) {
	case FrameTranscript, FrameText, FrameComplete:
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			return Frame{}, fmt.Errorf("%w: decode %s: %v", ErrMalformedFrame, typ, err)
		}
		return f, nil
	default:
		return Frame{Type: FrameUnknown}, nil
	}
}

// Control is an outbound command. The remote schema is opaque to the core
// beyond transport framing; these fields mirror what the service expects for
// session lifecycle.
type Control struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	StudentID string `json:"student_id,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

// EncodeControl marshals an outbound control command.
func EncodeControl(c Control) ([]byte, error) {
	if strings.TrimSpace(c.Type) == "" {
		return nil, errors.New("control command missing type")
	}
	return json.Marshal(c)
}
