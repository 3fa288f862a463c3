package question

import (
	"log/slog"
	"sync"
	"time"
)

// BatcherConfig tunes the debounce/max-batch flush.
type BatcherConfig struct {
	Interval time.Duration // flush when this much time passed since the last batch
	MaxSize  int           // flush immediately at this many pending questions
}

// DefaultBatcherConfig returns the flush tuning used in production.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		Interval: 2 * time.Second,
		MaxSize:  5,
	}
}

// BatchState is the batcher's slice of the process-wide audio state.
type BatchState struct {
	LastBatchTime    int64              `json:"lastBatchTime"` // ms since epoch
	IsProcessing     bool               `json:"isProcessing"`
	PendingQuestions []DetectedQuestion `json:"pendingQuestions"`
}

// Batcher accumulates detected questions and flushes them as a group when
// either the batch interval elapses or the pending count reaches the
// configured maximum, whichever comes first.
//
// flushMu serializes flush delivery against Clear: a clear either runs
// before a flush takes its snapshot (the flush then sees an empty pending
// set and delivers nothing) or after delivery completes. Cleared questions
// are never delivered or resurrected.
type Batcher struct {
	cfg BatcherConfig

	flushMu sync.Mutex

	mu            sync.Mutex
	pending       []DetectedQuestion
	lastBatchTime time.Time
	processing    bool
	timer         *time.Timer

	onBatch []func([]DetectedQuestion)
}

// NewBatcher creates a batcher. Zero config fields fall back to defaults.
func NewBatcher(cfg BatcherConfig) *Batcher {
	def := DefaultBatcherConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	return &Batcher{cfg: cfg, lastBatchTime: time.Now()}
}

// OnBatch registers a flush listener.
func (b *Batcher) OnBatch(fn func([]DetectedQuestion)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBatch = append(b.onBatch, fn)
}

// Add appends one question. A size-triggered flush happens before Add
// returns; otherwise a timer covers the interval trigger.
func (b *Batcher) Add(q DetectedQuestion) {
	b.mu.Lock()
	b.pending = append(b.pending, q)
	full := len(b.pending) >= b.cfg.MaxSize
	if !full && b.timer == nil {
		remaining := b.cfg.Interval - time.Since(b.lastBatchTime)
		if remaining < 0 {
			remaining = 0
		}
		b.timer = time.AfterFunc(remaining, func() { b.flush("interval") })
	}
	b.mu.Unlock()

	if full {
		b.flush("size")
	}
}

// Flush force-emits whatever is pending, regardless of triggers.
func (b *Batcher) Flush() {
	b.flush("manual")
}

// Clear discards all pending questions. Blocks until any in-flight flush
// delivery has completed, so nothing cleared reappears afterwards.
func (b *Batcher) Clear() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	b.stopTimerLocked()
}

// State returns a snapshot including a copy of the pending questions.
func (b *Batcher) State() BatchState {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := make([]DetectedQuestion, len(b.pending))
	copy(pending, b.pending)
	return BatchState{
		LastBatchTime:    b.lastBatchTime.UnixMilli(),
		IsProcessing:     b.processing,
		PendingQuestions: pending,
	}
}

// Pending reports how many questions await a flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batcher) flush(trigger string) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	b.lastBatchTime = time.Now()
	b.processing = true
	b.stopTimerLocked()
	listeners := b.onBatch
	b.mu.Unlock()

	slog.Debug("flushing question batch", "size", len(batch), "trigger", trigger)
	for _, fn := range listeners {
		fn(batch)
	}

	b.mu.Lock()
	b.processing = false
	b.mu.Unlock()
}

func (b *Batcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
