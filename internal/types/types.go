// Package types provides shared type definitions for the application.
package types

// APICredential identifies one stored LLM/STT credential.
type APICredential struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // "openai", "openai-compatible", "gemini", "claude"
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model,omitempty"`
}

// DefaultMaxTokens is the default max tokens if not specified.
const DefaultMaxTokens = 1000

// DefaultTemperature is the default temperature if not specified.
const DefaultTemperature = 0.3

// Usage represents token usage statistics from LLM API calls.
type Usage struct {
	PromptTokens     int  `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
	TotalTokens      int  `json:"totalTokens"`
	CacheHit         bool `json:"cacheHit"`
}

// AnswerResult is the outcome of answering one question.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"` // ms since epoch
	FromCache  bool   `json:"fromCache"`
	Usage      Usage  `json:"usage"`
}

// AnswerPartial is one streamed answer fragment, emitted before the
// final AnswerResult.
type AnswerPartial struct {
	QuestionID string `json:"questionId"`
	Delta      string `json:"delta"`
}

// DetectResult represents the result of language detection.
type DetectResult struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SpeechConfig selects the transcription backend.
type SpeechConfig struct {
	CredentialID string `json:"credentialId"`
	Model        string `json:"model,omitempty"`
	Language     string `json:"language,omitempty"` // empty for auto-detect
	UseRealtime  bool   `json:"useRealtime"`        // WebRTC stream instead of chunked HTTP
}
