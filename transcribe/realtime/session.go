// Package realtime streams capture audio to the OpenAI realtime
// transcription API over WebRTC for low-latency partial transcripts.
package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/realtime"
)

// sdpEndpoint is where the local SDP offer is exchanged for an answer.
// The SDK has no WebRTC support, so the exchange is plain HTTP.
const sdpEndpoint = "https://api.openai.com/v1/realtime/calls"

// SessionManager mints ephemeral transcription sessions.
type SessionManager struct {
	client *openai.Client
	http   *http.Client
}

// NewSessionManager creates a session manager for the given API key.
func NewSessionManager(apiKey string) *SessionManager {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &SessionManager{
		client: &client,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// SessionConfig tunes the transcription session.
type SessionConfig struct {
	Language string // ISO-639-1 hint, empty for auto-detect
}

// ClientSecret is the ephemeral key authorizing one WebRTC session.
type ClientSecret struct {
	Value     string
	ExpiresAt int64
}

// CreateSession requests a transcription-only session: audio in, text
// out, server-side turn detection, no model responses.
func (m *SessionManager) CreateSession(ctx context.Context, cfg SessionConfig) (*ClientSecret, error) {
	input := realtime.RealtimeTranscriptionSessionAudioInputParam{
		TurnDetection: realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionUnionParam{
			OfServerVad: &realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionServerVadParam{
				Type:              "server_vad",
				Threshold:         openai.Float(0.5),
				PrefixPaddingMs:   openai.Int(300),
				SilenceDurationMs: openai.Int(500),
			},
		},
		Transcription: realtime.AudioTranscriptionParam{
			Model: realtime.AudioTranscriptionModelGPT4oTranscribe,
		},
	}
	if cfg.Language != "" && cfg.Language != "auto" {
		input.Transcription.Language = openai.String(cfg.Language)
	}

	resp, err := m.client.Realtime.ClientSecrets.New(ctx, realtime.ClientSecretNewParams{
		Session: realtime.ClientSecretNewParamsSessionUnion{
			OfTranscription: &realtime.RealtimeTranscriptionSessionCreateRequestParam{
				Audio: realtime.RealtimeTranscriptionSessionAudioParam{Input: input},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create client secret: %w", err)
	}
	return &ClientSecret{Value: resp.Value, ExpiresAt: resp.ExpiresAt}, nil
}

// ExchangeSDP posts the local offer and returns the remote answer.
func (m *SessionManager) ExchangeSDP(ctx context.Context, offer, ephemeralKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sdpEndpoint, bytes.NewBufferString(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange sdp: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("sdp exchange error %d: %s", resp.StatusCode, body)
	}
	return string(body), nil
}
