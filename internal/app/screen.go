package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/itsukison/CueMeFinal-sub003/clipboard"
	"github.com/itsukison/CueMeFinal-sub003/ocr"
	"github.com/itsukison/CueMeFinal-sub003/permissions"
	"github.com/itsukison/CueMeFinal-sub003/screenshot"
)

// CaptureScreenQuestion lets the user select a screen region, extracts
// its text, and runs it through question detection. Useful for questions
// shown on shared slides rather than spoken aloud.
func (s *Service) CaptureScreenQuestion() (string, error) {
	// Hide window to allow capturing the screen behind it
	if s.window != nil {
		s.window.Hide()
	}
	time.Sleep(100 * time.Millisecond)

	if !screenshot.HasPermission() {
		screenshot.RequestPermission()
		s.perms.SetGranted(permissions.KindScreenCapture, false)
		return "", fmt.Errorf("screen recording permission required")
	}
	s.perms.SetGranted(permissions.KindScreenCapture, true)

	imagePath, err := screenshot.CaptureInteractive()
	if err != nil {
		s.ShowWindow()
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	defer os.Remove(imagePath)

	text, err := ocr.RecognizeText(imagePath)
	if err != nil {
		s.ShowWindow()
		return "", fmt.Errorf("recognize text: %w", err)
	}

	s.ShowWindow()
	if text != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.detector.ProcessText(ctx, text, time.Now().UnixMilli()); err != nil {
			slog.Warn("process captured text", "error", err)
		}
	}
	return text, nil
}

// CopyAnswer places the resolved answer for a question on the clipboard.
func (s *Service) CopyAnswer(id string) error {
	answer, ok := s.answers.Get(id)
	if !ok {
		return fmt.Errorf("no answer for question %s", id)
	}
	return clipboard.SetText(answer.Response)
}

// GetScreenRecordingPermission returns whether screen recording is
// permitted, refreshing the tracker.
func (s *Service) GetScreenRecordingPermission() bool {
	granted := screenshot.HasPermission()
	s.perms.SetGranted(permissions.KindScreenCapture, granted)
	return granted
}
