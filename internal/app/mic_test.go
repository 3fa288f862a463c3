package app

import (
	"testing"
	"time"
)

type fakeMicDevice struct {
	callback func(samples []float32)
	recorded []float32
	started  bool
	stopped  bool
}

func (f *fakeMicDevice) OnAudio(callback func(samples []float32)) { f.callback = callback }
func (f *fakeMicDevice) StartCapture() error                      { f.started = true; return nil }
func (f *fakeMicDevice) StopCapture() error                       { f.stopped = true; return nil }
func (f *fakeMicDevice) CheckPermission() bool                    { return true }
func (f *fakeMicDevice) RequestPermission() bool                  { return true }

func (f *fakeMicDevice) BufferedAudio(time.Duration) []float32 {
	return append([]float32(nil), f.recorded...)
}

// deliver mimics the capture thread: record into the rolling buffer,
// then fan out.
func (f *fakeMicDevice) deliver(samples []float32) {
	f.recorded = append(f.recorded, samples...)
	if f.callback != nil {
		f.callback(samples)
	}
}

func newFakeMicAdapter() (*MicAdapter, *fakeMicDevice) {
	dev := &fakeMicDevice{}
	m := NewMicAdapter()
	m.newDevice = func(int) (micDevice, error) { return dev, nil }
	return m, dev
}

// Capture started without a sink must record audio but deliver nothing,
// and the recorded audio must be recoverable once the sink is chosen.
func TestMicBuffersUntilSinkSet(t *testing.T) {
	m, dev := newFakeMicAdapter()
	if err := m.Start(24000, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !dev.started {
		t.Fatal("device not started")
	}

	dev.deliver([]float32{1, 2, 3})

	var got []float32
	m.SetSink(func(samples []float32) { got = append(got, samples...) })

	trailing := m.TrailingAudio(time.Second)
	if len(trailing) != 3 {
		t.Fatalf("trailing = %d samples, want 3", len(trailing))
	}
	if trailing[0] != 1 || trailing[2] != 3 {
		t.Errorf("trailing = %v, want [1 2 3]", trailing)
	}

	dev.deliver([]float32{4, 5})
	if len(got) != 2 || got[0] != 4 {
		t.Errorf("sink got %v, want [4 5]", got)
	}
}

func TestMicSinkSwap(t *testing.T) {
	m, dev := newFakeMicAdapter()
	var first, second []float32
	if err := m.Start(24000, func(samples []float32) { first = append(first, samples...) }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	dev.deliver([]float32{1})
	m.SetSink(func(samples []float32) { second = append(second, samples...) })
	dev.deliver([]float32{2})

	if len(first) != 1 || first[0] != 1 {
		t.Errorf("first sink got %v, want [1]", first)
	}
	if len(second) != 1 || second[0] != 2 {
		t.Errorf("second sink got %v, want [2]", second)
	}
}

func TestMicStopDropsSinkAndDevice(t *testing.T) {
	m, dev := newFakeMicAdapter()
	delivered := 0
	if err := m.Start(24000, func([]float32) { delivered++ }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev.deliver([]float32{0})
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !dev.stopped {
		t.Error("device not stopped")
	}
	if m.Running() {
		t.Error("Running after Stop")
	}
	if m.TrailingAudio(time.Second) != nil {
		t.Error("TrailingAudio after Stop returned samples")
	}

	// A straggler buffer from the capture thread must go nowhere.
	dev.deliver([]float32{1})
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1 (pre-stop only)", delivered)
	}
}
