package realtime

import "encoding/json"

// Event types the stream reacts to. The API emits more; everything else
// is passed through on the raw channel for diagnostics.
const (
	eventTranscriptDelta = "conversation.item.input_audio_transcription.delta"
	eventTranscriptDone  = "conversation.item.input_audio_transcription.completed"
	eventError           = "error"
)

// ServerEvent is one data-channel message from the API.
type ServerEvent struct {
	EventID    string      `json:"event_id,omitempty"`
	Type       string      `json:"type"`
	ItemID     string      `json:"item_id,omitempty"`
	Delta      string      `json:"delta,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
	Error      *APIError   `json:"error,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// APIError is the error payload inside an error event.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Transcript is one finished or partial transcription unit, keyed by the
// conversation item that produced it.
type Transcript struct {
	ItemID string
	Text   string
	Final  bool
}

func parseServerEvent(data []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ServerEvent{}, err
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}
