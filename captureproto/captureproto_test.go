package captureproto

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

// TestAudioRoundTrip verifies that encoding samples to the wire format and
// decoding on the receiving side reproduces the originals exactly.
func TestAudioRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
	}{
		{
			name:    "empty buffer",
			samples: []float32{},
		},
		{
			name:    "typical values",
			samples: []float32{0, 0.5, -0.5, 1, -1, 0.123456},
		},
		{
			name:    "extreme values",
			samples: []float32{math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewAudio(tt.samples, 24000, 1, 1700000000000)

			if msg.FrameLength != len(tt.samples) {
				t.Errorf("FrameLength = %d, want %d", msg.FrameLength, len(tt.samples))
			}

			got, err := msg.Samples()
			if err != nil {
				t.Fatalf("Samples() error: %v", err)
			}
			if len(got) != len(tt.samples) {
				t.Fatalf("decoded %d samples, want %d", len(got), len(tt.samples))
			}
			for i := range got {
				if got[i] != tt.samples[i] {
					t.Errorf("sample[%d] = %v, want %v", i, got[i], tt.samples[i])
				}
			}
		})
	}
}

// TestAudioRoundTripStereo checks frame accounting for interleaved stereo.
func TestAudioRoundTripStereo(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6} // 3 stereo frames
	msg := NewAudio(samples, 48000, 2, 0)

	if msg.FrameLength != 3 {
		t.Errorf("FrameLength = %d, want 3", msg.FrameLength)
	}
	if msg.Channels != 2 {
		t.Errorf("Channels = %d, want 2", msg.Channels)
	}
}

func TestDecodeSamplesRejectsPartialFloat(t *testing.T) {
	// 5 bytes cannot hold a whole number of float32 values.
	if _, err := DecodeSamples("AAAAAAA="); err == nil {
		t.Error("expected error for truncated payload")
	}
}

// TestWriterScannerPipe exercises a full write/read cycle over a pipe.
func TestWriterScannerPipe(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	samples := []float32{0.25, -0.75, 0.5}
	if err := w.Write(NewAudio(samples, 24000, 1, 42)); err != nil {
		t.Fatalf("Write audio: %v", err)
	}
	if err := w.Write(NewStatus(StatusStreamingStopped)); err != nil {
		t.Fatalf("Write status: %v", err)
	}

	sc := NewScanner(&buf)

	m1, err := sc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if m1.Type != TypeAudio {
		t.Fatalf("first message type = %q, want audio", m1.Type)
	}
	got, err := m1.Samples()
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample[%d] = %v, want %v", i, got[i], samples[i])
		}
	}
	if m1.Timestamp != 42 {
		t.Errorf("Timestamp = %d, want 42", m1.Timestamp)
	}

	m2, err := sc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if m2.Type != TypeStatus || m2.Message != StatusStreamingStopped {
		t.Errorf("second message = %+v, want streaming-stopped status", m2)
	}

	if _, err := sc.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after drain = %v, want io.EOF", err)
	}
}

// TestScannerSkipsMalformedLines verifies transport errors are a no-op,
// not a stream failure.
func TestScannerSkipsMalformedLines(t *testing.T) {
	input := "not json at all\n" +
		`{"type":"bogus"}` + "\n" +
		`{"type":"status","message":"ok"}` + "\n"

	sc := NewScanner(bytes.NewBufferString(input))
	m, err := sc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if m.Type != TypeStatus || m.Message != "ok" {
		t.Errorf("got %+v, want the status line", m)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		typ     string
		wantErr bool
	}{
		{TypeStatus, false},
		{TypePermission, false},
		{TypeAudio, false},
		{TypeError, false},
		{"", true},
		{"heartbeat", true},
	}
	for _, tt := range tests {
		m := &Message{Type: tt.typ}
		err := m.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) error = %v, wantErr %v", tt.typ, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrUnknownType) {
			t.Errorf("Validate(%q) error = %v, want ErrUnknownType", tt.typ, err)
		}
	}
}
