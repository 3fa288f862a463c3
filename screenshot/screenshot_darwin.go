// Package screenshot captures a user-selected screen region, used to
// pull questions off shared slides.
package screenshot

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework Foundation
#import <CoreGraphics/CoreGraphics.h>
#import <Foundation/Foundation.h>

bool hasScreenRecordingPermission() {
    if (@available(macOS 11.0, *)) {
        return CGPreflightScreenCaptureAccess();
    }
    // No preflight API before macOS 11.
    return true;
}

void requestScreenRecordingPermission() {
    if (@available(macOS 11.0, *)) {
        CGRequestScreenCaptureAccess();
    }
}
*/
import "C"
import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// HasPermission checks whether screen recording is permitted.
func HasPermission() bool {
	return bool(C.hasScreenRecordingPermission())
}

// RequestPermission prompts the system screen recording dialog.
func RequestPermission() {
	C.requestScreenRecordingPermission()
}

// CaptureInteractive launches the interactive selection tool and writes
// the captured region to a temp file, returning its path.
func CaptureInteractive() (string, error) {
	fileName := fmt.Sprintf("cueme_capture_%d.png", time.Now().UnixNano())
	filePath := filepath.Join(os.TempDir(), fileName)

	// -i: interactive selection, -x: no shutter sound
	cmd := exec.Command("screencapture", "-i", "-x", filePath)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("screencapture failed: %w", err)
	}

	// The user may have hit escape; no file means no capture.
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return "", fmt.Errorf("capture cancelled")
	}
	return filePath, nil
}
