package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const classifySystemPrompt = "You classify meeting transcript fragments. Decide whether the " +
	"fragment is a question someone would want answered. Respond with JSON only: " +
	`{"isQuestion": bool, "confidence": number between 0 and 1}`

// Classifier decides whether a transcript fragment is a question, using a
// completer with a cheap punctuation fallback when the model output is
// unusable.
type Classifier struct {
	completer Completer
}

// NewClassifier wraps a completer.
func NewClassifier(completer Completer) *Classifier {
	return &Classifier{completer: completer}
}

type classification struct {
	IsQuestion bool    `json:"isQuestion"`
	Confidence float64 `json:"confidence"`
}

// Classify returns the question determination and a confidence score.
func (c *Classifier) Classify(ctx context.Context, text string) (bool, float64, error) {
	reply, _, err := c.completer.Complete(ctx, []Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: text},
	})
	if err != nil {
		return false, 0, fmt.Errorf("classify: %w", err)
	}

	var parsed classification
	if err := json.Unmarshal([]byte(extractJSON(reply)), &parsed); err != nil {
		// Model ignored the format; fall back to punctuation.
		isQuestion := strings.HasSuffix(strings.TrimSpace(text), "?")
		return isQuestion, 0.5, nil
	}

	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	} else if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return parsed.IsQuestion, parsed.Confidence, nil
}

// extractJSON strips markdown fences and surrounding prose around the
// first JSON object in a model reply.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
