// Package miccapture provides microphone capture with its own permission
// and lifecycle handling, independent of the native system-audio helper.
package miccapture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrUnsupported is returned on platforms without a microphone backend.
var ErrUnsupported = errors.New("miccapture: not supported on this platform")

// ErrNotCapturing is returned when audio is requested while idle.
var ErrNotCapturing = errors.New("miccapture: not capturing")

// Config holds capture parameters.
type Config struct {
	SampleRate   int // default 24000 Hz
	ChannelCount int // default 1
	BufferSize   int // samples per delivered buffer, default 2400 (100 ms)
}

// DefaultConfig returns the default microphone configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:   24000,
		ChannelCount: 1,
		BufferSize:   2400,
	}
}

// State is a snapshot of the channel's externally visible state.
type State struct {
	IsCapturing   bool   `json:"isCapturing"`
	HasPermission bool   `json:"hasPermission"`
	Error         string `json:"error,omitempty"`
}

// platformImpl is the platform-specific microphone backend.
type platformImpl interface {
	// requestPermission opens a default input to force the OS prompt,
	// then releases it immediately.
	requestPermission() error
	// checkPermission infers grant state without prompting, via device
	// label disclosure.
	checkPermission() (bool, error)
	// start opens the audio graph and delivers fixed-size buffers.
	start(cfg Config, callback func(samples []float32)) error
	// stop releases graph nodes, the device handle, and the context.
	stop() error
}

// Capture is the microphone capture channel.
type Capture struct {
	mu sync.Mutex

	cfg       Config
	capturing bool
	permitted bool
	lastErr   string
	startTime time.Time

	buffer  *RingBuffer
	onAudio []func(samples []float32)

	impl platformImpl
}

// New creates a microphone capture channel.
func New(cfg Config) (*Capture, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if cfg.ChannelCount == 0 {
		cfg.ChannelCount = 1
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = cfg.SampleRate / 10
	}

	impl, err := newPlatformImpl()
	if err != nil {
		return nil, err
	}

	return &Capture{
		cfg:    cfg,
		buffer: NewRingBuffer(cfg.SampleRate * 30), // 30 s of trailing context
		impl:   impl,
	}, nil
}

// RequestPermission triggers the OS microphone prompt by briefly opening
// a default input. Returns false with the failure recorded on denial.
func (c *Capture) RequestPermission() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.impl.requestPermission(); err != nil {
		c.permitted = false
		c.lastErr = err.Error()
		slog.Warn("microphone permission denied", "error", err)
		return false
	}
	c.permitted = true
	c.lastErr = ""
	return true
}

// CheckPermission reports grant state without prompting. Device labels
// are disclosed only once permission is granted, so non-empty labels
// imply a grant.
func (c *Capture) CheckPermission() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	granted, err := c.impl.checkPermission()
	if err != nil {
		slog.Debug("microphone permission check", "error", err)
		return c.permitted
	}
	c.permitted = granted
	return granted
}

// OnAudio registers a callback receiving each captured buffer.
func (c *Capture) OnAudio(callback func(samples []float32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = append(c.onAudio, callback)
}

// StartCapture opens the audio graph and begins delivering fixed-size
// buffers. If already capturing, a full stop runs first so the restart is
// clean. On failure every partially-acquired resource is released before
// the error propagates.
func (c *Capture) StartCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		slog.Info("microphone restart requested, stopping first")
		if err := c.impl.stop(); err != nil {
			slog.Error("stop before restart", "error", err)
		}
		c.capturing = false
	}

	if err := c.impl.start(c.cfg, c.handleAudio); err != nil {
		// start is responsible for unwinding partial acquisition, the
		// stop below is the belt for implementations that cannot.
		_ = c.impl.stop()
		c.lastErr = err.Error()
		return fmt.Errorf("start microphone capture: %w", err)
	}

	c.capturing = true
	c.lastErr = ""
	c.startTime = time.Now()
	slog.Info("microphone capture started", "sampleRate", c.cfg.SampleRate, "bufferSize", c.cfg.BufferSize)
	return nil
}

// StopCapture releases the audio graph and device handle. No-op when idle.
func (c *Capture) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return nil
	}

	err := c.impl.stop()
	c.capturing = false
	slog.Info("microphone capture stopped", "duration", time.Since(c.startTime))
	return err
}

// State returns a snapshot of the channel state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		IsCapturing:   c.capturing,
		HasPermission: c.permitted,
		Error:         c.lastErr,
	}
}

// SampleRate returns the configured sample rate.
func (c *Capture) SampleRate() int {
	return c.cfg.SampleRate
}

// BufferedAudio returns the trailing duration of captured audio, useful
// as context when transcription starts mid-conversation.
func (c *Capture) BufferedAudio(duration time.Duration) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples := int(duration.Seconds() * float64(c.cfg.SampleRate))
	return c.buffer.Read(samples)
}

// handleAudio runs on the audio callback context: store and fan out.
func (c *Capture) handleAudio(samples []float32) {
	c.mu.Lock()
	callbacks := c.onAudio
	c.mu.Unlock()

	c.buffer.Write(samples)

	for _, cb := range callbacks {
		cb(samples)
	}
}
