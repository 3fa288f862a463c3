// Package app provides the core application service for Wails bindings.
package app

// Event names for frontend communication.
const (
	EventQuestionDetected  = "question-detected"
	EventBatchProcessed    = "batch-processed"
	EventStateChanged      = "state-changed"
	EventStreamError       = "stream-error"
	EventAnswerPartial     = "answer-partial"
	EventAnswerComplete    = "answer-complete"
	EventPermissionChanged = "permission-changed"
)

// StreamError is a typed event for capture-side failures.
type StreamError struct {
	Source  string `json:"source"` // "helper", "microphone", "realtime"
	Message string `json:"message"`
}
