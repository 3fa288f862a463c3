package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/itsukison/CueMeFinal-sub003/question"
	"github.com/itsukison/CueMeFinal-sub003/transcribe/realtime"
)

// RealtimeAdapter manages the realtime transcription stream as an
// alternative to per-utterance transcription. Microphone samples are
// forwarded to the stream; final transcripts feed the question detector
// directly, skipping the local segmenter's transcription step.
type RealtimeAdapter struct {
	detector *question.Detector
	emit     func(name string, data any)

	mu           sync.Mutex
	stream       *realtime.Stream
	cancel       context.CancelFunc
	sendFailures int
}

// sendFailureRepeat spaces out repeated stream-error events while the
// uplink keeps failing; the first failure is always surfaced.
const sendFailureRepeat = 100

func NewRealtimeAdapter(detector *question.Detector, emit func(name string, data any)) *RealtimeAdapter {
	return &RealtimeAdapter{detector: detector, emit: emit}
}

// Start connects the stream and begins forwarding transcripts.
// No-op if already connected.
func (r *RealtimeAdapter) Start(ctx context.Context, apiKey, language string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		return nil
	}

	stream := realtime.NewStream(realtime.StreamConfig{
		APIKey:   apiKey,
		Language: language,
	})
	if err := stream.Connect(ctx); err != nil {
		return err
	}

	fwdCtx, cancel := context.WithCancel(context.Background())
	r.stream = stream
	r.cancel = cancel
	r.sendFailures = 0

	go r.forward(fwdCtx, stream)
	slog.Info("realtime transcription connected", "language", language)
	return nil
}

func (r *RealtimeAdapter) forward(ctx context.Context, stream *realtime.Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-stream.Transcripts():
			if !ok {
				return
			}
			if !t.Final {
				continue
			}
			if err := r.detector.ProcessText(ctx, t.Text, time.Now().UnixMilli()); err != nil {
				slog.Warn("process realtime transcript", "error", err)
			}
		case err, ok := <-stream.Errors():
			if !ok {
				return
			}
			slog.Error("realtime stream error", "error", err)
			if r.emit != nil {
				r.emit(EventStreamError, StreamError{Source: "realtime", Message: err.Error()})
			}
		}
	}
}

// Push forwards captured samples to the stream. Samples arriving while
// disconnected are dropped. Send failures are surfaced as stream-error
// events; a silently dead uplink would otherwise look like a silent
// room.
func (r *RealtimeAdapter) Push(samples []float32, sampleRate int) {
	r.mu.Lock()
	stream := r.stream
	r.mu.Unlock()
	if stream == nil {
		return
	}
	if err := stream.SendAudio(samples, sampleRate); err != nil {
		slog.Warn("send realtime audio", "error", err)
		if r.recordSendFailure() && r.emit != nil {
			r.emit(EventStreamError, StreamError{Source: "realtime", Message: err.Error()})
		}
		return
	}
	r.recordSendSuccess()
}

// recordSendFailure counts a consecutive uplink failure and reports
// whether this one should reach the frontend.
func (r *RealtimeAdapter) recordSendFailure() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendFailures++
	return r.sendFailures == 1 || r.sendFailures%sendFailureRepeat == 0
}

func (r *RealtimeAdapter) recordSendSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendFailures = 0
}

// Stop disconnects the stream.
func (r *RealtimeAdapter) Stop() error {
	r.mu.Lock()
	stream := r.stream
	cancel := r.cancel
	r.stream = nil
	r.cancel = nil
	r.mu.Unlock()
	if stream == nil {
		return nil
	}
	cancel()
	return stream.Close()
}

// Running reports whether the stream is connected.
func (r *RealtimeAdapter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}
