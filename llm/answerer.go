package llm

import (
	"context"
	"fmt"
	"strings"
)

const answerSystemPrompt = "You are a meeting assistant. The user will give you a question " +
	"that came up in a live meeting. Answer it concisely and factually so the " +
	"user can respond without breaking the flow of conversation. Output only the answer."

// Answerer generates answers for detected questions, streaming fragments
// when the underlying completer supports it.
type Answerer struct {
	completer Completer
}

// NewAnswerer wraps a completer.
func NewAnswerer(completer Completer) *Answerer {
	return &Answerer{completer: completer}
}

// Answer returns the full answer text. partial, if non-nil, receives
// incremental fragments as they arrive.
func (a *Answerer) Answer(ctx context.Context, text string, partial func(delta string)) (string, error) {
	messages := []Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: text},
	}

	streamer, ok := a.completer.(StreamCompleter)
	if !ok || partial == nil {
		answer, _, err := a.completer.Complete(ctx, messages)
		if err != nil {
			return "", fmt.Errorf("generate answer: %w", err)
		}
		return strings.TrimSpace(answer), nil
	}

	deltas, err := streamer.StreamComplete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	var full strings.Builder
	for delta := range deltas {
		if delta.Done {
			break
		}
		full.WriteString(delta.Text)
		partial(delta.Text)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(full.String()), nil
}
