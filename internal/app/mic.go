package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/itsukison/CueMeFinal-sub003/miccapture"
)

// micDevice is the capture surface MicAdapter drives. Satisfied by
// *miccapture.Capture.
type micDevice interface {
	OnAudio(callback func(samples []float32))
	StartCapture() error
	StopCapture() error
	CheckPermission() bool
	RequestPermission() bool
	BufferedAudio(duration time.Duration) []float32
}

// MicAdapter owns the microphone capture device. Capture runs on the
// device's own thread; samples are handed to the current sink, which
// owns backpressure. With no sink set the device still records into its
// rolling buffer, so audio captured before a destination is chosen can
// be replayed via TrailingAudio.
type MicAdapter struct {
	newDevice func(sampleRate int) (micDevice, error)

	mu      sync.Mutex
	capture micDevice
	sink    func(samples []float32)
}

func NewMicAdapter() *MicAdapter {
	return &MicAdapter{newDevice: openMicDevice}
}

func openMicDevice(sampleRate int) (micDevice, error) {
	cfg := miccapture.DefaultConfig()
	if sampleRate > 0 {
		cfg.SampleRate = sampleRate
	}
	return miccapture.New(cfg)
}

// Start opens the microphone at the given sample rate and begins
// feeding samples to sink. A nil sink starts buffer-only capture; use
// SetSink once the destination is known. No-op if already capturing.
func (m *MicAdapter) Start(sampleRate int, sink func(samples []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capture != nil {
		return nil
	}

	cap, err := m.newDevice(sampleRate)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}

	m.sink = sink
	cap.OnAudio(m.dispatch)

	if err := cap.StartCapture(); err != nil {
		m.sink = nil
		return fmt.Errorf("start microphone: %w", err)
	}
	m.capture = cap
	return nil
}

// dispatch forwards a capture buffer to the current sink. The device
// has already recorded it into the rolling buffer.
func (m *MicAdapter) dispatch(samples []float32) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink != nil {
		sink(samples)
	}
}

// SetSink redirects subsequent capture buffers. A nil sink returns to
// buffer-only capture.
func (m *MicAdapter) SetSink(sink func(samples []float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// TrailingAudio returns up to the given duration of the most recent
// capture, oldest first. Used to replay audio recorded while the sink
// was still being decided.
func (m *MicAdapter) TrailingAudio(duration time.Duration) []float32 {
	m.mu.Lock()
	cap := m.capture
	m.mu.Unlock()
	if cap == nil {
		return nil
	}
	return cap.BufferedAudio(duration)
}

// Stop tears down the capture device.
func (m *MicAdapter) Stop() error {
	m.mu.Lock()
	cap := m.capture
	m.capture = nil
	m.sink = nil
	m.mu.Unlock()
	if cap == nil {
		return nil
	}
	return cap.StopCapture()
}

// Running reports whether the microphone is capturing.
func (m *MicAdapter) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capture != nil
}

// HasPermission reports microphone permission without prompting.
func (m *MicAdapter) HasPermission() bool {
	m.mu.Lock()
	cap := m.capture
	m.mu.Unlock()
	if cap != nil {
		return cap.CheckPermission()
	}
	dev, err := m.newDevice(0)
	if err != nil {
		return false
	}
	return dev.CheckPermission()
}

// RequestPermission triggers the OS permission prompt.
func (m *MicAdapter) RequestPermission() bool {
	m.mu.Lock()
	cap := m.capture
	m.mu.Unlock()
	if cap != nil {
		return cap.RequestPermission()
	}
	dev, err := m.newDevice(0)
	if err != nil {
		return false
	}
	return dev.RequestPermission()
}
