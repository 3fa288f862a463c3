package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/itsukison/CueMeFinal-sub003/internal/types"
)

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q", got)
		}
		io.WriteString(w, `{"choices":[{"message":{"content":"hello"}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	c := NewCompleter("openai-compatible", "key", srv.URL, "gpt-4o-mini", Options{})
	text, usage, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q", text)
	}
	if usage.TotalTokens != 4 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestOpenAIStreamComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"it ships \"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"friday\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[],\"usage\":{\"total_tokens\":9}}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewCompleter("openai-compatible", "key", srv.URL, "gpt-4o-mini", Options{}).(StreamCompleter)
	deltas, err := c.StreamComplete(context.Background(), []Message{{Role: "user", Content: "when?"}})
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}

	var text strings.Builder
	var final StreamDelta
	for d := range deltas {
		if d.Done {
			final = d
			continue
		}
		text.WriteString(d.Text)
	}
	if text.String() != "it ships friday" {
		t.Errorf("streamed text = %q", text.String())
	}
	if !final.Done || final.Usage.TotalTokens != 9 {
		t.Errorf("final delta = %+v", final)
	}
}

func TestClaudeCompleteSplitsSystemPrompt(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		io.WriteString(w, `{"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":2,"output_tokens":1}}`)
	}))
	defer srv.Close()

	c := NewCompleter("claude", "key", srv.URL, "claude-sonnet", Options{})
	text, usage, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "ok" || usage.TotalTokens != 3 {
		t.Errorf("text=%q usage=%+v", text, usage)
	}
	if !strings.Contains(gotBody, `"system":"be brief"`) {
		t.Errorf("system prompt not lifted to top level: %s", gotBody)
	}
	if strings.Contains(gotBody, `"role":"system"`) {
		t.Errorf("system message left in messages array: %s", gotBody)
	}
}

type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(context.Context, []Message) (string, types.Usage, error) {
	return s.reply, types.Usage{}, s.err
}

func TestClassifierParsesJSON(t *testing.T) {
	tests := []struct {
		name           string
		reply          string
		text           string
		wantIsQuestion bool
		wantConfidence float64
	}{
		{"plain json", `{"isQuestion": true, "confidence": 0.9}`, "x", true, 0.9},
		{"fenced json", "```json\n{\"isQuestion\": false, \"confidence\": 0.8}\n```", "x", false, 0.8},
		{"clamped confidence", `{"isQuestion": true, "confidence": 3}`, "x", true, 1},
		{"garbage with question mark", "certainly!", "what time is it?", true, 0.5},
		{"garbage without question mark", "certainly!", "the sky is blue", false, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&stubCompleter{reply: tt.reply})
			isQuestion, confidence, err := c.Classify(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if isQuestion != tt.wantIsQuestion || confidence != tt.wantConfidence {
				t.Errorf("got (%v, %v), want (%v, %v)", isQuestion, confidence, tt.wantIsQuestion, tt.wantConfidence)
			}
		})
	}
}

func TestClassifierPropagatesError(t *testing.T) {
	c := NewClassifier(&stubCompleter{err: errors.New("down")})
	if _, _, err := c.Classify(context.Background(), "x"); err == nil {
		t.Fatal("Classify swallowed the completer error")
	}
}

func TestAnswererNonStreaming(t *testing.T) {
	a := NewAnswerer(&stubCompleter{reply: "  the answer  "})
	got, err := a.Answer(context.Background(), "q?", nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "the answer" {
		t.Errorf("Answer = %q", got)
	}
}

func TestAnswererStreamsWhenSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := NewAnswerer(NewCompleter("openai-compatible", "key", srv.URL, "m", Options{}))

	var partials []string
	got, err := a.Answer(context.Background(), "q?", func(delta string) {
		partials = append(partials, delta)
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "ab" {
		t.Errorf("Answer = %q", got)
	}
	if len(partials) != 2 {
		t.Errorf("partials = %v, want two fragments", partials)
	}
}
