//go:build !darwin

// Package screenshot captures a user-selected screen region, used to
// pull questions off shared slides.
package screenshot

import "fmt"

// HasPermission checks whether screen recording is permitted.
func HasPermission() bool {
	return false
}

// RequestPermission prompts the system screen recording dialog.
func RequestPermission() {}

// CaptureInteractive launches the interactive selection tool and writes
// the captured region to a temp file, returning its path.
func CaptureInteractive() (string, error) {
	return "", fmt.Errorf("screenshot capture not supported on this platform")
}
