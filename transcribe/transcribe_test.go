package transcribe

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 2.0, -2.0}
	wav := EncodeWAV(samples, 24000)

	if len(wav) != wavHeaderSize+len(samples)*2 {
		t.Fatalf("len = %d, want %d", len(wav), wavHeaderSize+len(samples)*2)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 24000 {
		t.Errorf("sample rate = %d, want 24000", rate)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		t.Errorf("bits per sample = %d, want 16", bits)
	}

	// Out-of-range samples must clamp, not wrap.
	over := int16(binary.LittleEndian.Uint16(wav[wavHeaderSize+6 : wavHeaderSize+8]))
	under := int16(binary.LittleEndian.Uint16(wav[wavHeaderSize+8 : wavHeaderSize+10]))
	if over != 32767 {
		t.Errorf("clamped high sample = %d, want 32767", over)
	}
	if under != -32767 {
		t.Errorf("clamped low sample = %d, want -32767", under)
	}
}

func TestWhisperTranscribe(t *testing.T) {
	var gotAuth, gotModel, gotLanguage string
	var gotFileLen int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		if file, _, err := r.FormFile("file"); err == nil {
			data, _ := io.ReadAll(file)
			gotFileLen = len(data)
			file.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"when is the launch?","language":"english"}`)
	}))
	defer srv.Close()

	w, err := NewWhisper(WhisperConfig{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewWhisper: %v", err)
	}

	samples := make([]float32, 100)
	result, err := w.Transcribe(context.Background(), samples, 24000, "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if result.Text != "when is the launch?" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.Language != "english" {
		t.Errorf("Language = %q", result.Language)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want default whisper-1", gotModel)
	}
	if gotLanguage != "en" {
		t.Errorf("language = %q, want en", gotLanguage)
	}
	if gotFileLen != wavHeaderSize+len(samples)*2 {
		t.Errorf("uploaded %d bytes, want full WAV", gotFileLen)
	}
}

func TestWhisperAutoLanguageOmitted(t *testing.T) {
	var hasLanguage bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		_, hasLanguage = r.MultipartForm.Value["language"]
		io.WriteString(w, `{"text":"ok"}`)
	}))
	defer srv.Close()

	w, _ := NewWhisper(WhisperConfig{APIKey: "k", BaseURL: srv.URL})
	if _, err := w.Transcribe(context.Background(), []float32{0}, 24000, "auto"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if hasLanguage {
		t.Error("language field sent for auto-detect")
	}
}

func TestWhisperAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	w, _ := NewWhisper(WhisperConfig{APIKey: "bad", BaseURL: srv.URL})
	if _, err := w.Transcribe(context.Background(), []float32{0}, 24000, ""); err == nil {
		t.Fatal("Transcribe succeeded on 401")
	}
}

func TestNewWhisperRequiresKey(t *testing.T) {
	if _, err := NewWhisper(WhisperConfig{}); err == nil {
		t.Fatal("NewWhisper accepted empty api key")
	}
}

func TestChunkTranscriberWrapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":"  hello  "}`)
	}))
	defer srv.Close()

	w, _ := NewWhisper(WhisperConfig{APIKey: "k", BaseURL: srv.URL})
	ct := NewChunkTranscriber(w, "")

	text, err := ct.Transcribe(context.Background(), []float32{0}, 24000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "  hello  " {
		t.Errorf("text = %q, trimming is the caller's concern", text)
	}
}
