//go:build darwin

package helper

/*
#cgo CFLAGS: -x objective-c -fobjc-arc -mmacosx-version-min=13.0
#cgo LDFLAGS: -framework ScreenCaptureKit -framework CoreMedia -framework CoreAudio -framework Foundation -framework AVFoundation

#include <stdlib.h>

extern int helperStartSystemCapture(int targetSampleRate, char** errOut);
extern void helperStopSystemCapture(void);
extern int helperProbeShareableContent(char** errOut);
extern int helperScreenCapturePermission(void);
extern int helperSystemAudioPermission(void);
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"
)

// Global handler for the cgo callback. The supervisor guarantees a single
// capturing helper process, so one handler slot suffices.
var (
	globalHandler   func(samples []float32)
	globalHandlerMu sync.RWMutex
)

//export helperAudioCallback
func helperAudioCallback(samples *C.float, count C.int) {
	n := int(count)
	if n <= 0 {
		return
	}

	globalHandlerMu.RLock()
	h := globalHandler
	globalHandlerMu.RUnlock()

	if h == nil {
		return
	}

	// Convert the C array without extra allocation; samples are consumed
	// before this function returns.
	goSamples := unsafe.Slice((*float32)(unsafe.Pointer(samples)), n)
	h(goSamples)
}

// systemSource captures system audio via ScreenCaptureKit.
type systemSource struct {
	mu      sync.Mutex
	running bool
}

// NewSystemSource returns the macOS system-audio capture source.
func NewSystemSource() (Source, error) {
	return &systemSource{}, nil
}

func (s *systemSource) Start(sampleRate int, callback func(samples []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	globalHandlerMu.Lock()
	globalHandler = callback
	globalHandlerMu.Unlock()

	var errStr *C.char
	if C.helperStartSystemCapture(C.int(sampleRate), &errStr) != 0 {
		globalHandlerMu.Lock()
		globalHandler = nil
		globalHandlerMu.Unlock()

		if errStr != nil {
			err := errors.New(C.GoString(errStr))
			C.free(unsafe.Pointer(errStr))
			return err
		}
		return errors.New("helper: system capture failed")
	}

	s.running = true
	return nil
}

func (s *systemSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	C.helperStopSystemCapture()

	globalHandlerMu.Lock()
	globalHandler = nil
	globalHandlerMu.Unlock()

	s.running = false
	return nil
}

// systemProber probes ScreenCaptureKit shareable content and permissions.
type systemProber struct{}

// NewSystemProber returns the macOS capability prober.
func NewSystemProber() (Prober, error) {
	return &systemProber{}, nil
}

func (p *systemProber) Probe() error {
	var errStr *C.char
	if C.helperProbeShareableContent(&errStr) != 0 {
		if errStr != nil {
			err := errors.New(C.GoString(errStr))
			C.free(unsafe.Pointer(errStr))
			return err
		}
		return errors.New("helper: shareable content enumeration failed")
	}
	return nil
}

func (p *systemProber) Permissions() map[string]bool {
	return map[string]bool{
		"screen-capture": C.helperScreenCapturePermission() != 0,
		"system-audio":   C.helperSystemAudioPermission() != 0,
	}
}
