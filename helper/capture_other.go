//go:build !darwin

package helper

import "errors"

// ErrUnsupported is returned where no system-audio backend exists.
var ErrUnsupported = errors.New("helper: system audio capture not supported on this platform")

// NewSystemSource returns ErrUnsupported on non-macOS platforms.
func NewSystemSource() (Source, error) {
	return nil, ErrUnsupported
}

// NewSystemProber returns ErrUnsupported on non-macOS platforms.
func NewSystemProber() (Prober, error) {
	return nil, ErrUnsupported
}
