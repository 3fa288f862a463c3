package pipeline

import (
	"testing"
	"time"
)

func testSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		SampleRate:       1000, // 1 sample = 1 ms, keeps the math readable
		SilenceThreshold: 0.02,
		MinDuration:      100 * time.Millisecond,
		MaxDuration:      500 * time.Millisecond,
		SilenceDuration:  50 * time.Millisecond,
	}
}

func makeSpeech(samples int, amplitude float32) []float32 {
	out := make([]float32, samples)
	for i := range out {
		out[i] = amplitude * float32(0.5+0.5*float64(i%2))
	}
	return out
}

func makeSilence(samples int) []float32 {
	return make([]float32, samples)
}

// TestHardCapFlush verifies a chunk is emitted at the maximum duration
// even though no silence was ever observed.
func TestHardCapFlush(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())

	var chunk *AudioChunk
	pushed := 0
	for i := 0; i < 100 && chunk == nil; i++ {
		chunk = s.Push(SourceSystem, makeSpeech(50, 0.3), int64(1000+pushed))
		pushed += 50
	}

	if chunk == nil {
		t.Fatal("continuous speech never flushed")
	}
	if !chunk.MaxDurationHit {
		t.Error("MaxDurationHit = false for a hard-cap flush")
	}
	if chunk.DurationMs < 500 {
		t.Errorf("DurationMs = %d, want >= 500 (the hard cap)", chunk.DurationMs)
	}
	if chunk.TimestampMs != 1000 {
		t.Errorf("TimestampMs = %d, want chunk start 1000", chunk.TimestampMs)
	}
}

// TestSilenceFlushRequiresMinimum verifies silence alone never flushes a
// chunk below the minimum duration.
func TestSilenceFlushRequiresMinimum(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())

	// 40 ms of speech then ample silence: still below the 100 ms minimum
	// counting the silence tail... push silence until we cross it.
	if got := s.Push(SourceMicrophone, makeSpeech(40, 0.3), 0); got != nil {
		t.Fatalf("flushed after 40ms of speech: %+v", got)
	}
	// 50 ms silence satisfies the silence run but total is only 90 ms.
	if got := s.Push(SourceMicrophone, makeSilence(50), 40); got != nil {
		t.Fatalf("flushed below minimum duration: %+v", got)
	}
	// Another 20 ms of silence crosses the minimum; now the flush fires.
	chunk := s.Push(SourceMicrophone, makeSilence(20), 90)
	if chunk == nil {
		t.Fatal("no flush once minimum duration and silence run were both satisfied")
	}
	if chunk.MaxDurationHit {
		t.Error("MaxDurationHit = true for a silence flush")
	}
	if chunk.DurationMs != 110 {
		t.Errorf("DurationMs = %d, want 110", chunk.DurationMs)
	}
}

// TestSpeechResetsSilenceRun verifies speech in the middle of a pause
// restarts the trailing-silence requirement.
func TestSpeechResetsSilenceRun(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())

	s.Push(SourceMicrophone, makeSpeech(120, 0.3), 0)
	s.Push(SourceMicrophone, makeSilence(40), 120) // not yet 50 ms of silence
	if got := s.Push(SourceMicrophone, makeSpeech(30, 0.3), 160); got != nil {
		t.Fatalf("flushed despite silence run being interrupted: %+v", got)
	}
	// Fresh 50 ms of silence now flushes.
	if got := s.Push(SourceMicrophone, makeSilence(50), 190); got == nil {
		t.Fatal("no flush after renewed silence run")
	}
}

func TestMonotonicIDs(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())

	first := s.Push(SourceSystem, makeSpeech(600, 0.3), 0)
	second := s.Push(SourceMicrophone, makeSpeech(600, 0.3), 0)
	if first == nil || second == nil {
		t.Fatal("expected hard-cap flushes from both sources")
	}
	if second.ID <= first.ID {
		t.Errorf("ids not monotonic: %d then %d", first.ID, second.ID)
	}
}

func TestPerSourceIsolation(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())

	s.Push(SourceSystem, makeSpeech(90, 0.3), 0)
	s.Push(SourceMicrophone, makeSpeech(30, 0.3), 0)

	if d := s.BufferedDuration(SourceSystem); d != 90*time.Millisecond {
		t.Errorf("system buffered %v, want 90ms", d)
	}
	if d := s.BufferedDuration(SourceMicrophone); d != 30*time.Millisecond {
		t.Errorf("microphone buffered %v, want 30ms", d)
	}

	chunk := s.Flush(SourceSystem)
	if chunk == nil || chunk.Source != SourceSystem {
		t.Fatalf("Flush(system) = %+v", chunk)
	}
	if d := s.BufferedDuration(SourceMicrophone); d != 30*time.Millisecond {
		t.Errorf("flushing one source disturbed the other: %v", d)
	}
}

func TestFlushEmptyReturnsNil(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())
	if got := s.Flush(SourceSystem); got != nil {
		t.Errorf("Flush of empty buffer = %+v, want nil", got)
	}
}
