//go:build !darwin

// Package ocr extracts text from captured slide images using the system
// Vision framework.
package ocr

import "fmt"

// RecognizeText runs text recognition on the image at the given path.
func RecognizeText(imagePath string) (string, error) {
	return "", fmt.Errorf("ocr not supported on this platform")
}
