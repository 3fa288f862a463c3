package question

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itsukison/CueMeFinal-sub003/pipeline"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, []float32, int) (string, error) {
	return f.text, f.err
}

type fakeClassifier struct {
	isQuestion bool
	confidence float64
}

func (f *fakeClassifier) Classify(context.Context, string) (bool, float64, error) {
	return f.isQuestion, f.confidence, nil
}

type fakeAnswerer struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
	block chan struct{} // if set, Answer waits on it
}

func (f *fakeAnswerer) Answer(_ context.Context, text string, partial func(string)) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return "", f.err
	}
	if partial != nil {
		partial(f.reply[:len(f.reply)/2])
		partial(f.reply[len(f.reply)/2:])
	}
	return f.reply, nil
}

func (f *fakeAnswerer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func chunkWithSamples(text string) *pipeline.AudioChunk {
	_ = text
	return &pipeline.AudioChunk{ID: 1, Source: pipeline.SourceMicrophone, Samples: []float32{0.1, 0.2}, TimestampMs: 42}
}

func TestDetectorBuffersQuestions(t *testing.T) {
	b := NewBatcher(BatcherConfig{Interval: time.Hour, MaxSize: 100})
	d := NewDetector(
		&fakeTranscriber{text: "  what is the deadline?  "},
		&fakeClassifier{isQuestion: true, confidence: 0.93},
		nil, b)

	var notified []DetectedQuestion
	d.OnQuestion(func(q DetectedQuestion) { notified = append(notified, q) })

	chunk := chunkWithSamples("")
	if err := d.Process(context.Background(), chunk); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if chunk.WordCount != 4 {
		t.Errorf("WordCount = %d, want 4", chunk.WordCount)
	}
	buf := d.Buffer()
	if len(buf) != 1 {
		t.Fatalf("Buffer() has %d questions, want 1", len(buf))
	}
	if buf[0].Text != "what is the deadline?" {
		t.Errorf("Text = %q, want trimmed transcript", buf[0].Text)
	}
	if buf[0].Confidence != 0.93 || buf[0].Timestamp != 42 {
		t.Errorf("question = %+v", buf[0])
	}
	if buf[0].ID == "" {
		t.Error("question has no id")
	}
	if len(notified) != 1 {
		t.Errorf("OnQuestion fired %d times, want 1", len(notified))
	}
	if b.Pending() != 1 {
		t.Errorf("batcher pending = %d, want 1", b.Pending())
	}
}

func TestDetectorDiscardsNonQuestions(t *testing.T) {
	d := NewDetector(
		&fakeTranscriber{text: "the deadline is friday"},
		&fakeClassifier{isQuestion: false},
		nil, nil)

	if err := d.Process(context.Background(), chunkWithSamples("")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := d.Buffer(); len(got) != 0 {
		t.Errorf("non-question retained state: %+v", got)
	}
}

func TestDetectorTranscribeError(t *testing.T) {
	d := NewDetector(&fakeTranscriber{err: errors.New("service down")}, &fakeClassifier{}, nil, nil)
	if err := d.Process(context.Background(), chunkWithSamples("")); err == nil {
		t.Fatal("Process succeeded despite transcriber failure")
	}
}

func TestDetectorRefine(t *testing.T) {
	d := NewDetector(
		&fakeTranscriber{text: "whats the um thing due"},
		&fakeClassifier{isQuestion: true, confidence: 0.6},
		nil, nil)
	if err := d.Process(context.Background(), chunkWithSamples("")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	id := d.Buffer()[0].ID

	d.Refine(id, "When is the deliverable due?")
	got := d.Buffer()[0]
	if !got.IsRefined || got.RefinedText != "When is the deliverable due?" {
		t.Errorf("after Refine: %+v", got)
	}

	d.Refine("no-such-id", "ignored")
}

func question(i int) DetectedQuestion {
	return DetectedQuestion{ID: fmt.Sprintf("q-%d", i), Text: fmt.Sprintf("question %d?", i), Timestamp: int64(i)}
}

func TestBatchSizeTriggerFlushesImmediately(t *testing.T) {
	b := NewBatcher(BatcherConfig{Interval: time.Hour, MaxSize: 5})

	var batches [][]DetectedQuestion
	var mu sync.Mutex
	b.OnBatch(func(qs []DetectedQuestion) {
		mu.Lock()
		batches = append(batches, qs)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		b.Add(question(i))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1 immediate size-triggered flush", len(batches))
	}
	if len(batches[0]) != 5 {
		t.Errorf("batch size = %d, want 5", len(batches[0]))
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d after flush, want 0", b.Pending())
	}
}

func TestBatchIntervalTriggerFlushesSingleton(t *testing.T) {
	b := NewBatcher(BatcherConfig{Interval: 50 * time.Millisecond, MaxSize: 5})

	flushed := make(chan []DetectedQuestion, 1)
	b.OnBatch(func(qs []DetectedQuestion) { flushed <- qs })

	b.Add(question(1))

	select {
	case batch := <-flushed:
		if len(batch) != 1 {
			t.Errorf("batch size = %d, want 1", len(batch))
		}
	case <-time.After(time.Second):
		t.Fatal("interval trigger never flushed")
	}

	st := b.State()
	if len(st.PendingQuestions) != 0 {
		t.Errorf("pending after interval flush: %+v", st.PendingQuestions)
	}
	if st.LastBatchTime == 0 {
		t.Error("LastBatchTime not updated")
	}
}

func TestBatchClearCancelsPendingFlush(t *testing.T) {
	b := NewBatcher(BatcherConfig{Interval: 30 * time.Millisecond, MaxSize: 5})

	var flushes atomic.Int32
	b.OnBatch(func([]DetectedQuestion) { flushes.Add(1) })

	b.Add(question(1))
	b.Clear()

	time.Sleep(100 * time.Millisecond)
	if got := flushes.Load(); got != 0 {
		t.Errorf("cleared questions were flushed %d times", got)
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d after clear, want 0", b.Pending())
	}
}

func TestDetectorClearEmptiesBufferAndBatch(t *testing.T) {
	b := NewBatcher(BatcherConfig{Interval: time.Hour, MaxSize: 100})
	d := NewDetector(
		&fakeTranscriber{text: "is this kept?"},
		&fakeClassifier{isQuestion: true, confidence: 0.8},
		nil, b)

	for i := 0; i < 3; i++ {
		if err := d.Process(context.Background(), chunkWithSamples("")); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	d.Clear()

	if got := d.Buffer(); len(got) != 0 {
		t.Errorf("buffer after clear: %+v", got)
	}
	if b.Pending() != 0 {
		t.Errorf("batch pending after clear: %d", b.Pending())
	}
}

func TestAnswerMemoization(t *testing.T) {
	answerer := &fakeAnswerer{reply: "it ships friday"}
	svc := NewAnswerService(answerer, nil)

	var deliveries []bool // fromCache flags, in order
	svc.OnAnswer(func(_ string, _ CachedAnswer, fromCache bool) {
		deliveries = append(deliveries, fromCache)
	})

	q := question(1)
	first, err := svc.Answer(context.Background(), q, nil)
	if err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	second, err := svc.Answer(context.Background(), q, nil)
	if err != nil {
		t.Fatalf("second Answer: %v", err)
	}

	if answerer.callCount() != 1 {
		t.Errorf("answerer invoked %d times, want exactly 1", answerer.callCount())
	}
	if first != second {
		t.Errorf("answers differ: %+v vs %+v", first, second)
	}
	if len(deliveries) != 2 || deliveries[0] || !deliveries[1] {
		t.Errorf("deliveries = %v, want [false true]", deliveries)
	}
}

func TestAnswerConcurrentRequestsShareOneCall(t *testing.T) {
	answerer := &fakeAnswerer{reply: "shared", block: make(chan struct{})}
	svc := NewAnswerService(answerer, nil)
	q := question(7)

	results := make(chan CachedAnswer, 2)
	for i := 0; i < 2; i++ {
		go func() {
			a, err := svc.Answer(context.Background(), q, nil)
			if err != nil {
				t.Errorf("Answer: %v", err)
			}
			results <- a
		}()
	}

	// Let both goroutines reach the service before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(answerer.block)

	a := <-results
	b := <-results
	if a != b {
		t.Errorf("concurrent answers differ: %+v vs %+v", a, b)
	}
	if answerer.callCount() != 1 {
		t.Errorf("answerer invoked %d times, want 1", answerer.callCount())
	}
}

func TestAnswerFailureNotCached(t *testing.T) {
	answerer := &fakeAnswerer{err: errors.New("quota exceeded")}
	svc := NewAnswerService(answerer, nil)
	q := question(3)

	if _, err := svc.Answer(context.Background(), q, nil); err == nil {
		t.Fatal("Answer succeeded, want error")
	}
	if svc.Cached(q.ID) {
		t.Error("failed answer was memoized")
	}

	answerer.mu.Lock()
	answerer.err = nil
	answerer.reply = "recovered"
	answerer.mu.Unlock()

	got, err := svc.Answer(context.Background(), q, nil)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Response != "recovered" {
		t.Errorf("Response = %q, want %q", got.Response, "recovered")
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func TestAnswerSurvivesMemoClearViaStore(t *testing.T) {
	answerer := &fakeAnswerer{reply: "persisted"}
	store := &memStore{}
	svc := NewAnswerService(answerer, store)
	q := question(9)

	if _, err := svc.Answer(context.Background(), q, nil); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	svc.Clear()

	got, err := svc.Answer(context.Background(), q, nil)
	if err != nil {
		t.Fatalf("Answer after clear: %v", err)
	}
	if got.Response != "persisted" {
		t.Errorf("Response = %q, want store hit", got.Response)
	}
	if answerer.callCount() != 1 {
		t.Errorf("answerer invoked %d times, want 1 (store should serve the repeat)", answerer.callCount())
	}
}

func TestAnswerStreamsPartials(t *testing.T) {
	answerer := &fakeAnswerer{reply: "full answer"}
	svc := NewAnswerService(answerer, nil)

	var partials []string
	got, err := svc.Answer(context.Background(), question(11), func(delta string) {
		partials = append(partials, delta)
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(partials) == 0 {
		t.Fatal("no partial deltas delivered")
	}
	var joined string
	for _, p := range partials {
		joined += p
	}
	if joined != got.Response {
		t.Errorf("partials join to %q, final is %q", joined, got.Response)
	}
}
