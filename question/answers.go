package question

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// AnswerStore persists memoized answers across runs. The cache package
// provides the badger-backed implementation.
type AnswerStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
}

// inflight tracks one in-progress answer so concurrent requests for the
// same question id share a single service invocation.
type inflight struct {
	done   chan struct{}
	answer CachedAnswer
	err    error
}

// AnswerService memoizes answers by question id. The external answerer is
// invoked at most once per id; repeat requests are served from cache but
// still flow through the same listener channel as fresh answers.
type AnswerService struct {
	answerer Answerer
	store    AnswerStore // optional persistent layer

	mu       sync.Mutex
	cache    map[string]CachedAnswer
	inflight map[string]*inflight

	onAnswer []func(id string, answer CachedAnswer, fromCache bool)
}

// NewAnswerService creates a service. store may be nil for memory-only use.
func NewAnswerService(answerer Answerer, store AnswerStore) *AnswerService {
	return &AnswerService{
		answerer: answerer,
		store:    store,
		cache:    make(map[string]CachedAnswer),
		inflight: make(map[string]*inflight),
	}
}

// OnAnswer registers a listener invoked for every answer delivery, cached
// or fresh.
func (s *AnswerService) OnAnswer(fn func(id string, answer CachedAnswer, fromCache bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAnswer = append(s.onAnswer, fn)
}

// Answer resolves q, consulting the memo first. partial receives streamed
// answer text on a cache miss; cached answers arrive whole.
func (s *AnswerService) Answer(ctx context.Context, q DetectedQuestion, partial func(delta string)) (CachedAnswer, error) {
	if cached, ok := s.lookup(q.ID); ok {
		s.notify(q.ID, cached, true)
		return cached, nil
	}

	s.mu.Lock()
	if fl, ok := s.inflight[q.ID]; ok {
		s.mu.Unlock()
		select {
		case <-fl.done:
		case <-ctx.Done():
			return CachedAnswer{}, ctx.Err()
		}
		if fl.err != nil {
			return CachedAnswer{}, fl.err
		}
		s.notify(q.ID, fl.answer, true)
		return fl.answer, nil
	}
	fl := &inflight{done: make(chan struct{})}
	s.inflight[q.ID] = fl
	s.mu.Unlock()

	text := q.Text
	if q.IsRefined && q.RefinedText != "" {
		text = q.RefinedText
	}
	response, err := s.answerer.Answer(ctx, text, partial)

	s.mu.Lock()
	delete(s.inflight, q.ID)
	if err != nil {
		fl.err = fmt.Errorf("answer question %s: %w", q.ID, err)
		s.mu.Unlock()
		close(fl.done)
		return CachedAnswer{}, fl.err
	}
	answer := CachedAnswer{Response: response, Timestamp: time.Now().UnixMilli()}
	fl.answer = answer
	s.cache[q.ID] = answer
	s.mu.Unlock()
	close(fl.done)

	s.persist(q.ID, answer)
	s.notify(q.ID, answer, false)
	return answer, nil
}

// Cached reports whether an answer for id is already memoized.
func (s *AnswerService) Cached(id string) bool {
	_, ok := s.lookup(id)
	return ok
}

// Get returns the memoized answer for id without triggering resolution.
func (s *AnswerService) Get(id string) (CachedAnswer, bool) {
	return s.lookup(id)
}

// Clear drops the in-memory memo. Persistent entries age out on their own.
func (s *AnswerService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]CachedAnswer)
}

func (s *AnswerService) lookup(id string) (CachedAnswer, bool) {
	s.mu.Lock()
	if answer, ok := s.cache[id]; ok {
		s.mu.Unlock()
		return answer, true
	}
	s.mu.Unlock()

	if s.store == nil {
		return CachedAnswer{}, false
	}
	raw, found := s.store.Get(answerKey(id))
	if !found {
		return CachedAnswer{}, false
	}
	var answer CachedAnswer
	if err := json.Unmarshal(raw, &answer); err != nil {
		slog.Warn("corrupt cached answer", "id", id, "error", err)
		return CachedAnswer{}, false
	}

	s.mu.Lock()
	s.cache[id] = answer
	s.mu.Unlock()
	return answer, true
}

func (s *AnswerService) persist(id string, answer CachedAnswer) {
	if s.store == nil {
		return
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return
	}
	if err := s.store.Set(answerKey(id), raw); err != nil {
		slog.Warn("answer store write failed", "id", id, "error", err)
	}
}

func (s *AnswerService) notify(id string, answer CachedAnswer, fromCache bool) {
	s.mu.Lock()
	listeners := s.onAnswer
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(id, answer, fromCache)
	}
}

func answerKey(id string) string {
	return "answer/" + id
}
