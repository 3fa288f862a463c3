package captureproto

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
)

// EncodeSamples packs interleaved float32 samples as little-endian bytes
// and base64-encodes them for the wire.
func EncodeSamples(samples []float32) string {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeSamples reverses EncodeSamples. The round trip is bit-exact.
func DecodeSamples(data string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("decode audio payload: %d bytes is not a whole number of float32 samples", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

// Writer emits one JSON message per line, flushed immediately so the peer
// never waits on a partially buffered message.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriter wraps w for protocol output.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write marshals m, appends a newline, and flushes.
func (pw *Writer) Write(m *Message) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := pw.w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := pw.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := pw.w.Flush(); err != nil {
		return fmt.Errorf("flush message: %w", err)
	}
	return nil
}

// Scanner reads protocol messages line by line. Malformed lines are
// logged and skipped rather than surfaced as errors.
type Scanner struct {
	sc *bufio.Scanner
}

// NewScanner wraps r for protocol input. The buffer is sized for audio
// messages, which carry whole base64 sample buffers on a single line.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Scanner{sc: sc}
}

// Next returns the next well-formed message, or io.EOF when the stream
// ends. Lines that fail to parse are skipped.
func (s *Scanner) Next() (*Message, error) {
	for s.sc.Scan() {
		line := s.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		m, err := Parse(line)
		if err != nil {
			slog.Debug("skipping malformed capture line", "error", err)
			continue
		}
		return m, nil
	}
	if err := s.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
