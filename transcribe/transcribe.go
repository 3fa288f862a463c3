// Package transcribe converts utterance audio into text via external
// speech-to-text services.
package transcribe

import (
	"context"
	"fmt"
)

// Result is one transcription outcome.
type Result struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`   // detected language code
	Confidence float64 `json:"confidence"` // 0-1
}

// Provider defines a speech-to-text backend.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts PCM float32 samples to text. language is a
	// source language hint, empty for auto-detect.
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (*Result, error)

	// Close releases resources held by the provider.
	Close() error
}

// ChunkTranscriber narrows a Provider to the plain text interface the
// question detector consumes.
type ChunkTranscriber struct {
	provider Provider
	language string
}

// NewChunkTranscriber wraps provider with a fixed language hint.
func NewChunkTranscriber(provider Provider, language string) *ChunkTranscriber {
	return &ChunkTranscriber{provider: provider, language: language}
}

func (t *ChunkTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	result, err := t.provider.Transcribe(ctx, samples, sampleRate, t.language)
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.provider.Name(), err)
	}
	return result.Text, nil
}
