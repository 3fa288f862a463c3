// Package question turns transcribed utterances into detected questions,
// batches them for the consuming layer, and memoizes answers.
package question

import "context"

// DetectedQuestion is one positively classified utterance. Created by the
// Detector, mutated once if a refinement arrives, removed only by Clear.
type DetectedQuestion struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Timestamp   int64   `json:"timestamp"` // ms since epoch
	Confidence  float64 `json:"confidence"`
	Language    string  `json:"language,omitempty"`
	IsRefined   bool    `json:"isRefined,omitempty"`
	RefinedText string  `json:"refinedText,omitempty"`
}

// CachedAnswer is a memoized answer for one question id.
type CachedAnswer struct {
	Response  string `json:"response"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
}

// Transcriber converts an utterance's samples to text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Classifier decides whether a transcript is a question.
type Classifier interface {
	Classify(ctx context.Context, text string) (isQuestion bool, confidence float64, err error)
}

// Answerer generates an answer for a question. partial receives incremental
// text as it streams; implementations may never call it.
type Answerer interface {
	Answer(ctx context.Context, text string, partial func(delta string)) (string, error)
}

// LanguageDetector tags a transcript with a language code. Empty string
// means undetermined.
type LanguageDetector interface {
	Detect(text string) string
}
