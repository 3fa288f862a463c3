//go:build darwin

package miccapture

/*
#cgo CFLAGS: -x objective-c -fobjc-arc -mmacosx-version-min=13.0
#cgo LDFLAGS: -framework AVFoundation -framework CoreAudio -framework Foundation

#include <stdlib.h>

extern int micRequestPermission(char** errOut);
extern int micCheckPermission(void);
extern int micStartCapture(int sampleRate, int channels, int bufferSize, char** errOut);
extern void micStopCapture(void);
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"
)

var (
	micHandler   func(samples []float32)
	micHandlerMu sync.RWMutex
)

//export micAudioCallback
func micAudioCallback(samples *C.float, count C.int) {
	n := int(count)
	if n <= 0 {
		return
	}

	micHandlerMu.RLock()
	h := micHandler
	micHandlerMu.RUnlock()

	if h == nil {
		return
	}

	goSamples := unsafe.Slice((*float32)(unsafe.Pointer(samples)), n)
	h(goSamples)
}

// darwinImpl captures the default input via AVAudioEngine.
type darwinImpl struct{}

func newPlatformImpl() (platformImpl, error) {
	return &darwinImpl{}, nil
}

func (d *darwinImpl) requestPermission() error {
	var errStr *C.char
	if C.micRequestPermission(&errStr) != 0 {
		if errStr != nil {
			err := errors.New(C.GoString(errStr))
			C.free(unsafe.Pointer(errStr))
			return err
		}
		return errors.New("miccapture: permission request failed")
	}
	return nil
}

func (d *darwinImpl) checkPermission() (bool, error) {
	return C.micCheckPermission() != 0, nil
}

func (d *darwinImpl) start(cfg Config, callback func(samples []float32)) error {
	micHandlerMu.Lock()
	micHandler = callback
	micHandlerMu.Unlock()

	var errStr *C.char
	if C.micStartCapture(C.int(cfg.SampleRate), C.int(cfg.ChannelCount), C.int(cfg.BufferSize), &errStr) != 0 {
		micHandlerMu.Lock()
		micHandler = nil
		micHandlerMu.Unlock()

		if errStr != nil {
			err := errors.New(C.GoString(errStr))
			C.free(unsafe.Pointer(errStr))
			return err
		}
		return errors.New("miccapture: start failed")
	}
	return nil
}

func (d *darwinImpl) stop() error {
	C.micStopCapture()

	micHandlerMu.Lock()
	micHandler = nil
	micHandlerMu.Unlock()
	return nil
}
