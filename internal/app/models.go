package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/itsukison/CueMeFinal-sub003/question"
)

// The detector and answer service are built once at Init, but the
// LLM-backed stages they call depend on credentials the user can change
// at any time. These wrappers hold the currently configured delegate.

type swappableTranscriber struct {
	mu sync.Mutex
	t  question.Transcriber
}

func (s *swappableTranscriber) swap(t question.Transcriber) {
	s.mu.Lock()
	s.t = t
	s.mu.Unlock()
}

func (s *swappableTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	s.mu.Lock()
	t := s.t
	s.mu.Unlock()
	if t == nil {
		return "", fmt.Errorf("transcription not configured")
	}
	return t.Transcribe(ctx, samples, sampleRate)
}

type swappableClassifier struct {
	mu sync.Mutex
	c  question.Classifier
}

func (s *swappableClassifier) swap(c question.Classifier) {
	s.mu.Lock()
	s.c = c
	s.mu.Unlock()
}

func (s *swappableClassifier) Classify(ctx context.Context, text string) (bool, float64, error) {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()
	if c == nil {
		return false, 0, fmt.Errorf("classifier not configured")
	}
	return c.Classify(ctx, text)
}

type swappableAnswerer struct {
	mu sync.Mutex
	a  question.Answerer
}

func (s *swappableAnswerer) swap(a question.Answerer) {
	s.mu.Lock()
	s.a = a
	s.mu.Unlock()
}

func (s *swappableAnswerer) Answer(ctx context.Context, text string, partial func(delta string)) (string, error) {
	s.mu.Lock()
	a := s.a
	s.mu.Unlock()
	if a == nil {
		return "", fmt.Errorf("answer model not configured")
	}
	return a.Answer(ctx, text, partial)
}
