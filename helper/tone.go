package helper

import (
	"math"
	"sync"
	"time"
)

// ToneFrequency is the selftest tone pitch in Hz.
const ToneFrequency = 1000.0

// ToneSource synthesizes a continuous sine tone in fixed-size buffers.
// It exists so the full streaming path can be verified without touching
// OS capture permissions.
type ToneSource struct {
	freq      float64
	bufFrames int

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewToneSource creates a tone source emitting bufFrames samples per buffer.
func NewToneSource(freq float64, bufFrames int) *ToneSource {
	return &ToneSource{freq: freq, bufFrames: bufFrames}
}

// Start begins emitting buffers at real-time rate until Stop.
func (t *ToneSource) Start(sampleRate int, callback func(samples []float32)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}
	t.running = true
	t.stop = make(chan struct{})

	interval := time.Duration(t.bufFrames) * time.Second / time.Duration(sampleRate)
	stop := t.stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		phase := 0.0
		step := 2 * math.Pi * t.freq / float64(sampleRate)

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				buf := make([]float32, t.bufFrames)
				for i := range buf {
					buf[i] = float32(0.5 * math.Sin(phase))
					phase += step
					if phase > 2*math.Pi {
						phase -= 2 * math.Pi
					}
				}
				callback(buf)
			}
		}
	}()

	return nil
}

// Stop halts emission. Safe to call when not running.
func (t *ToneSource) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false
	close(t.stop)
	return nil
}
