// Package pipeline merges the two capture channels into one stream of
// bounded utterances for the transcription layer.
package pipeline

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// SourceType tags which capture channel produced a buffer.
type SourceType string

const (
	SourceMicrophone SourceType = "microphone"
	SourceSystem     SourceType = "system"
)

// AudioSource describes one enumerated capture source. At most one
// system-type source is active at a time.
type AudioSource struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      SourceType `json:"type"`
	Available bool       `json:"available"`
}

// AudioChunk is a bounded span of samples handed to transcription. Owned
// by the segmenter until emitted, then by the detector until classified.
type AudioChunk struct {
	ID          uint64
	Source      SourceType
	Samples     []float32
	TimestampMs int64 // chunk start, ms since epoch
	DurationMs  int64
	WordCount   int // filled in after transcription

	// MaxDurationHit marks a chunk cut mid-speech at the hard cap; its
	// transcript is not necessarily sentence-complete.
	MaxDurationHit bool
}

// SegmenterConfig tunes the silence/duration heuristics.
type SegmenterConfig struct {
	SampleRate       int
	SilenceThreshold float32       // RMS below this counts as silence
	MinDuration      time.Duration // required before a silence flush
	MaxDuration      time.Duration // hard cap, flushes mid-speech
	SilenceDuration  time.Duration // trailing silence required to flush
}

// DefaultSegmenterConfig returns thresholds tuned for conversational
// speech at the pipeline's native rate.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		SampleRate:       24000,
		SilenceThreshold: 0.015,
		MinDuration:      800 * time.Millisecond,
		MaxDuration:      15 * time.Second,
		SilenceDuration:  600 * time.Millisecond,
	}
}

// sourceBuffer is the per-source rolling accumulation state.
type sourceBuffer struct {
	samples    []float32
	startMs    int64
	silenceRun time.Duration // trailing silence measured in sample time
}

// Segmenter converts continuous per-source sample streams into bounded
// chunks. Durations are derived from sample counts, not wall clock, so
// segmentation is deterministic for a given input.
type Segmenter struct {
	cfg SegmenterConfig

	mu      sync.Mutex
	buffers map[SourceType]*sourceBuffer

	nextID atomic.Uint64
}

// NewSegmenter creates a segmenter with the given thresholds.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	return &Segmenter{
		cfg:     cfg,
		buffers: make(map[SourceType]*sourceBuffer),
	}
}

// Push appends one sample buffer for a source and returns a chunk if a
// flush condition was crossed, nil otherwise. timestampMs marks the
// buffer's capture time.
func (s *Segmenter) Push(source SourceType, samples []float32, timestampMs int64) *AudioChunk {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[source]
	if !ok {
		buf = &sourceBuffer{}
		s.buffers[source] = buf
	}
	if len(buf.samples) == 0 {
		buf.startMs = timestampMs
		buf.silenceRun = 0
	}

	buf.samples = append(buf.samples, samples...)

	bufDur := s.sampleDuration(len(samples))
	if rms(samples) < s.cfg.SilenceThreshold {
		buf.silenceRun += bufDur
	} else {
		buf.silenceRun = 0
	}

	total := s.sampleDuration(len(buf.samples))

	// Hard cap flushes even mid-speech so continuous talk cannot grow
	// the buffer without bound.
	if total >= s.cfg.MaxDuration {
		return s.flushLocked(source, buf, true)
	}

	// Silence alone never flushes a chunk below the minimum duration.
	if total >= s.cfg.MinDuration && buf.silenceRun >= s.cfg.SilenceDuration {
		return s.flushLocked(source, buf, false)
	}

	return nil
}

// Flush force-emits whatever a source has buffered, e.g. on stream stop.
// Returns nil if the buffer is empty.
func (s *Segmenter) Flush(source SourceType) *AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[source]
	if !ok || len(buf.samples) == 0 {
		return nil
	}
	return s.flushLocked(source, buf, false)
}

// Reset drops all buffered audio for every source.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = make(map[SourceType]*sourceBuffer)
}

// BufferedDuration reports how much audio a source has accumulated.
func (s *Segmenter) BufferedDuration(source SourceType) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.buffers[source]
	if !ok {
		return 0
	}
	return s.sampleDuration(len(buf.samples))
}

func (s *Segmenter) flushLocked(source SourceType, buf *sourceBuffer, maxHit bool) *AudioChunk {
	samples := make([]float32, len(buf.samples))
	copy(samples, buf.samples)

	chunk := &AudioChunk{
		ID:             s.nextID.Add(1),
		Source:         source,
		Samples:        samples,
		TimestampMs:    buf.startMs,
		DurationMs:     s.sampleDuration(len(samples)).Milliseconds(),
		MaxDurationHit: maxHit,
	}

	buf.samples = buf.samples[:0]
	buf.silenceRun = 0
	return chunk
}

func (s *Segmenter) sampleDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(s.cfg.SampleRate)
}

// rms computes the root mean square energy of a sample buffer.
func rms(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
