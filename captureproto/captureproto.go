// Package captureproto defines the line-delimited JSON wire protocol
// spoken between the host process and the native audio-capture helper.
package captureproto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types emitted by the helper.
const (
	TypeStatus     = "status"
	TypePermission = "permission"
	TypeAudio      = "audio"
	TypeError      = "error"
)

// Commands accepted by the helper on its command line.
const (
	CmdStatus      = "status"
	CmdPermissions = "permissions"
	CmdStartStream = "start-stream"
	CmdSelftest    = "--selftest"
)

// Control lines accepted on the helper's stdin while streaming.
const (
	ControlStop = "stop"
	ControlQuit = "quit"
)

// StatusStreamingStopped is the terminal status the helper emits when its
// streaming loop is interrupted.
const StatusStreamingStopped = "STREAMING_STOPPED"

// ErrUnknownType is returned when a message carries an unrecognized type tag.
var ErrUnknownType = errors.New("captureproto: unknown message type")

// Message is the tagged variant exchanged with the helper. Exactly one
// audio message is emitted per captured buffer.
type Message struct {
	Type string `json:"type"`

	// Status and error messages carry a human-readable description.
	Message string `json:"message,omitempty"`

	// Permission messages.
	Permission string `json:"permission,omitempty"` // e.g. "screen-capture"
	Granted    bool   `json:"granted,omitempty"`

	// Audio messages.
	Data        string `json:"data,omitempty"` // base64 interleaved float32 LE PCM
	SampleRate  int    `json:"sampleRate,omitempty"`
	Channels    int    `json:"channels,omitempty"`
	FrameLength int    `json:"frameLength,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"` // ms since epoch
	Selftest    bool   `json:"selftest,omitempty"`
}

// Validate checks that the message type tag is one the protocol defines.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeStatus, TypePermission, TypeAudio, TypeError:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// Parse decodes a single protocol line. Callers should treat a non-nil
// error as a log-and-skip condition, never as fatal.
func Parse(line []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewStatus builds a status message.
func NewStatus(text string) *Message {
	return &Message{Type: TypeStatus, Message: text}
}

// NewError builds an error message with a human-readable reason.
func NewError(reason string) *Message {
	return &Message{Type: TypeError, Message: reason}
}

// NewPermission builds a permission result message.
func NewPermission(kind string, granted bool) *Message {
	return &Message{Type: TypePermission, Permission: kind, Granted: granted}
}

// NewAudio builds an audio message from raw interleaved samples.
// timestampMs marks the capture time of the buffer's first frame.
func NewAudio(samples []float32, sampleRate, channels int, timestampMs int64) *Message {
	frames := len(samples)
	if channels > 0 {
		frames = len(samples) / channels
	}
	return &Message{
		Type:        TypeAudio,
		Data:        EncodeSamples(samples),
		SampleRate:  sampleRate,
		Channels:    channels,
		FrameLength: frames,
		Timestamp:   timestampMs,
	}
}

// Samples decodes the audio payload back into float32 samples.
func (m *Message) Samples() ([]float32, error) {
	if m.Type != TypeAudio {
		return nil, fmt.Errorf("samples: message type %q carries no audio", m.Type)
	}
	return DecodeSamples(m.Data)
}
