package question

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/itsukison/CueMeFinal-sub003/pipeline"
)

// Detector drives each utterance through transcription and classification
// and keeps the buffer of questions detected so far. Transcription and
// classification are delegated; the detector owns only state and timing.
type Detector struct {
	transcriber Transcriber
	classifier  Classifier
	language    LanguageDetector // optional
	batcher     *Batcher
	sampleRate  int

	mu     sync.Mutex
	buffer []DetectedQuestion

	onQuestion   []func(DetectedQuestion)
	onProcessing func(bool) // optional, mirrors activity into the stream state
}

// NewDetector wires a detector to its collaborators. language may be nil.
func NewDetector(transcriber Transcriber, classifier Classifier, language LanguageDetector, batcher *Batcher) *Detector {
	return &Detector{
		transcriber: transcriber,
		classifier:  classifier,
		language:    language,
		batcher:     batcher,
		sampleRate:  pipeline.DefaultSegmenterConfig().SampleRate,
	}
}

// SetSampleRate overrides the sample rate passed to the transcriber.
func (d *Detector) SetSampleRate(rate int) {
	if rate > 0 {
		d.sampleRate = rate
	}
}

// OnQuestion registers a listener for each positive classification.
func (d *Detector) OnQuestion(fn func(DetectedQuestion)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onQuestion = append(d.onQuestion, fn)
}

// SetProcessingHook installs a callback toggled around chunk processing.
func (d *Detector) SetProcessingHook(fn func(bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onProcessing = fn
}

// Process runs one chunk through the pipeline. Non-questions leave no
// state behind. The chunk's WordCount is filled from the transcript.
func (d *Detector) Process(ctx context.Context, chunk *pipeline.AudioChunk) error {
	d.mu.Lock()
	hook := d.onProcessing
	d.mu.Unlock()
	if hook != nil {
		hook(true)
		defer hook(false)
	}

	text, err := d.transcriber.Transcribe(ctx, chunk.Samples, d.sampleRate)
	if err != nil {
		return fmt.Errorf("transcribe chunk %d: %w", chunk.ID, err)
	}
	text = strings.TrimSpace(text)
	chunk.WordCount = len(strings.Fields(text))
	if text == "" {
		return nil
	}
	return d.classify(ctx, text, chunk.TimestampMs)
}

// ProcessText classifies already-transcribed text, e.g. from the
// realtime transcription stream.
func (d *Detector) ProcessText(ctx context.Context, text string, timestampMs int64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return d.classify(ctx, text, timestampMs)
}

func (d *Detector) classify(ctx context.Context, text string, timestampMs int64) error {
	isQuestion, confidence, err := d.classifier.Classify(ctx, text)
	if err != nil {
		return fmt.Errorf("classify utterance: %w", err)
	}
	if !isQuestion {
		slog.Debug("utterance discarded", "words", len(strings.Fields(text)))
		return nil
	}

	q := DetectedQuestion{
		ID:         uuid.NewString(),
		Text:       text,
		Timestamp:  timestampMs,
		Confidence: confidence,
	}
	if d.language != nil {
		q.Language = d.language.Detect(text)
	}

	d.mu.Lock()
	d.buffer = append(d.buffer, q)
	listeners := d.onQuestion
	d.mu.Unlock()

	slog.Info("question detected", "id", q.ID, "confidence", q.Confidence)

	for _, fn := range listeners {
		fn(q)
	}
	if d.batcher != nil {
		d.batcher.Add(q)
	}
	return nil
}

// Refine records a refined wording for an already-buffered question.
// Unknown ids are ignored.
func (d *Detector) Refine(id, refinedText string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.buffer {
		if d.buffer[i].ID == id {
			d.buffer[i].IsRefined = true
			d.buffer[i].RefinedText = refinedText
			return
		}
	}
}

// Buffer returns a copy of all questions detected since the last clear.
func (d *Detector) Buffer() []DetectedQuestion {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DetectedQuestion, len(d.buffer))
	copy(out, d.buffer)
	return out
}

// Clear empties the question buffer and the pending batch. The batcher is
// cleared first so a flush racing the clear cannot deliver buffered
// questions that are about to disappear.
func (d *Detector) Clear() {
	if d.batcher != nil {
		d.batcher.Clear()
	}
	d.mu.Lock()
	d.buffer = nil
	d.mu.Unlock()
	slog.Info("question buffer cleared")
}
