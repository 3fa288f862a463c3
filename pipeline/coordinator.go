package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsukison/CueMeFinal-sub003/captureproto"
)

const (
	// defaultQueueDepth bounds buffered capture between the channels and
	// the segmenter. Stale audio has no value to live transcription, so
	// the queue drops oldest-first instead of growing.
	defaultQueueDepth = 64

	// defaultChunkDepth bounds emitted chunks awaiting the consumer.
	defaultChunkDepth = 16
)

// StreamState is the coordinator's slice of the process-wide audio state.
// Single writer (the coordinator); readers get snapshots.
type StreamState struct {
	IsListening      bool       `json:"isListening"`
	IsProcessing     bool       `json:"isProcessing"`
	LastActivityTime int64      `json:"lastActivityTime"` // ms since epoch
	CurrentSource    SourceType `json:"currentAudioSource"`
}

// sourcedBuffer is one capture buffer tagged with its origin.
type sourcedBuffer struct {
	source      SourceType
	samples     []float32
	timestampMs int64
}

// Coordinator accepts buffers from both capture channels, normalizes
// them, and fans them into the segmenter. Each source keeps its own
// cadence; no cross-source interleaving is attempted — downstream
// consumers reorder by timestamp if they care.
type Coordinator struct {
	segmenter *Segmenter

	queue  chan sourcedBuffer
	chunks chan AudioChunk

	droppedBuffers atomic.Uint64
	droppedChunks  atomic.Uint64

	mu      sync.Mutex
	state   StreamState
	running bool
	cancel  context.CancelFunc

	onState []func(StreamState)
}

// NewCoordinator creates a coordinator feeding the given segmenter.
func NewCoordinator(segmenter *Segmenter) *Coordinator {
	return &Coordinator{
		segmenter: segmenter,
		queue:     make(chan sourcedBuffer, defaultQueueDepth),
		chunks:    make(chan AudioChunk, defaultChunkDepth),
	}
}

// Start launches the forwarding loop. Idempotent.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.state.IsListening = true
	state := c.state
	c.mu.Unlock()

	c.notify(state)
	go c.run(ctx)
	slog.Info("audio coordinator started")
}

// Stop halts forwarding and flushes any partial utterances so trailing
// speech is not lost.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	c.state.IsListening = false
	c.state.IsProcessing = false
	state := c.state
	c.mu.Unlock()

	for _, source := range []SourceType{SourceMicrophone, SourceSystem} {
		if chunk := c.segmenter.Flush(source); chunk != nil {
			c.emitChunk(*chunk)
		}
	}

	c.notify(state)
	slog.Info("audio coordinator stopped",
		"droppedBuffers", c.droppedBuffers.Load(),
		"droppedChunks", c.droppedChunks.Load())
}

// PushSystemMessage accepts one helper protocol message. Non-audio
// messages and decode failures are logged and otherwise ignored here;
// status/error routing is the adapter's concern.
func (c *Coordinator) PushSystemMessage(m *captureproto.Message) {
	if m.Type != captureproto.TypeAudio {
		return
	}
	samples, err := m.Samples()
	if err != nil {
		slog.Warn("undecodable audio message", "error", err)
		return
	}
	samples = downmix(samples, m.Channels)
	c.enqueue(sourcedBuffer{source: SourceSystem, samples: samples, timestampMs: m.Timestamp})
}

// PushMicSamples accepts one microphone buffer, stamped on arrival.
func (c *Coordinator) PushMicSamples(samples []float32) {
	buf := make([]float32, len(samples))
	copy(buf, samples)
	c.enqueue(sourcedBuffer{source: SourceMicrophone, samples: buf, timestampMs: time.Now().UnixMilli()})
}

// Chunks returns the stream of emitted utterances.
func (c *Coordinator) Chunks() <-chan AudioChunk {
	return c.chunks
}

// State returns a snapshot, never a partially-mutated view.
func (c *Coordinator) State() StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a state snapshot listener.
func (c *Coordinator) OnStateChange(fn func(StreamState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
}

// SetProcessing flags downstream transcription activity in the state.
func (c *Coordinator) SetProcessing(processing bool) {
	c.mu.Lock()
	if c.state.IsProcessing == processing {
		c.mu.Unlock()
		return
	}
	c.state.IsProcessing = processing
	state := c.state
	c.mu.Unlock()
	c.notify(state)
}

// DroppedBuffers reports how many capture buffers backpressure discarded.
func (c *Coordinator) DroppedBuffers() uint64 {
	return c.droppedBuffers.Load()
}

// enqueue adds a buffer, evicting the oldest entry when the queue is
// full. The pipeline is lossy and latency-bounded, never unbounded.
func (c *Coordinator) enqueue(b sourcedBuffer) {
	for {
		select {
		case c.queue <- b:
			return
		default:
		}
		select {
		case <-c.queue:
			c.droppedBuffers.Add(1)
		default:
		}
	}
}

func (c *Coordinator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-c.queue:
			c.mu.Lock()
			c.state.LastActivityTime = b.timestampMs
			c.state.CurrentSource = b.source
			c.mu.Unlock()

			if chunk := c.segmenter.Push(b.source, b.samples, b.timestampMs); chunk != nil {
				c.emitChunk(*chunk)
			}
		}
	}
}

// emitChunk forwards a chunk, dropping the oldest pending one if the
// consumer has fallen behind.
func (c *Coordinator) emitChunk(chunk AudioChunk) {
	for {
		select {
		case c.chunks <- chunk:
			return
		default:
		}
		select {
		case dropped := <-c.chunks:
			c.droppedChunks.Add(1)
			slog.Warn("dropping stale chunk", "id", dropped.ID, "source", dropped.Source)
		default:
		}
	}
}

func (c *Coordinator) notify(state StreamState) {
	c.mu.Lock()
	listeners := c.onState
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}

// downmix averages interleaved frames to mono. Mono input passes through.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
