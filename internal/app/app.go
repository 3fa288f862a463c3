// Package app provides the core application service for Wails bindings.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/itsukison/CueMeFinal-sub003/cache"
	"github.com/itsukison/CueMeFinal-sub003/config"
	"github.com/itsukison/CueMeFinal-sub003/hotkey"
	"github.com/itsukison/CueMeFinal-sub003/internal/types"
	"github.com/itsukison/CueMeFinal-sub003/langdetect"
	"github.com/itsukison/CueMeFinal-sub003/llm"
	"github.com/itsukison/CueMeFinal-sub003/permissions"
	"github.com/itsukison/CueMeFinal-sub003/pipeline"
	"github.com/itsukison/CueMeFinal-sub003/question"
	"github.com/itsukison/CueMeFinal-sub003/supervisor"
	"github.com/itsukison/CueMeFinal-sub003/transcribe"

	"github.com/wailsapp/wails/v3/pkg/application"
)

// Service provides application functionality bound to Wails.
// This struct focuses on orchestration; business logic lives in sub-components.
type Service struct {
	cfg    *config.Config
	cache  *cache.Cache
	hotkey *hotkey.Manager

	// UI references - set via Init
	app    *application.App
	window application.Window

	sup   *supervisor.Supervisor
	perms *permissions.Tracker

	segmenter *pipeline.Segmenter
	coord     *pipeline.Coordinator
	batcher   *question.Batcher
	detector  *question.Detector
	answers   *question.AnswerService

	helper   *HelperAdapter
	mic      *MicAdapter
	realtime *RealtimeAdapter

	// The LLM-backed stages are rebuilt from config on each listening
	// start; these indirections let the detector outlive them.
	transcriber *swappableTranscriber
	classifier  *swappableClassifier
	answerer    *swappableAnswerer

	listenCancel context.CancelFunc

	// Version info (set by caller)
	version string
}

// New creates a new Service. Call Init() after Wails app is created.
func New(version string) *Service {
	return &Service{version: version}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init initializes the service with app and window references.
// Must be called after Wails application is created.
func (s *Service) Init(app *application.App, window application.Window) {
	s.app = app
	s.window = window

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		cfg = config.Default()
	}
	s.cfg = cfg

	s.setupCache()
	s.setupSupervisor()
	s.setupPipeline()
	s.setupHotkey()
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	if s.hotkey != nil {
		s.hotkey.Stop()
	}
	if err := s.StopListening(); err != nil {
		slog.Error("stop listening", "error", err)
	}
	if s.sup != nil {
		s.sup.EmergencyCleanup()
		s.sup.Stop()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Error("close cache", "error", err)
		}
	}
}

func (s *Service) setupCache() {
	configDir, err := os.UserConfigDir()
	if err != nil {
		slog.Error("get config dir for cache", "error", err)
		return
	}

	cachePath := filepath.Join(configDir, "cueme", "cache")
	c, err := cache.New(cachePath)
	if err != nil {
		slog.Error("init cache", "error", err)
		return
	}
	s.cache = c
	slog.Info("cache initialized", "path", cachePath)
}

func (s *Service) setupPipeline() {
	audio := s.cfg.Audio
	s.segmenter = pipeline.NewSegmenter(pipeline.SegmenterConfig{
		SampleRate:       audio.SampleRate,
		SilenceThreshold: float32(audio.SilenceThreshold),
		MinDuration:      time.Duration(audio.MinDurationMs) * time.Millisecond,
		MaxDuration:      time.Duration(audio.MaxDurationMs) * time.Millisecond,
		SilenceDuration:  time.Duration(audio.SilenceDurationMs) * time.Millisecond,
	})
	s.coord = pipeline.NewCoordinator(s.segmenter)
	s.coord.OnStateChange(func(state pipeline.StreamState) {
		s.emit(EventStateChanged, state)
	})

	s.batcher = question.NewBatcher(question.BatcherConfig{
		Interval: s.cfg.BatchInterval(),
		MaxSize:  s.cfg.Batch.MaxSize,
	})
	s.batcher.OnBatch(func(batch []question.DetectedQuestion) {
		s.emit(EventBatchProcessed, batch)
	})

	s.transcriber = &swappableTranscriber{}
	s.classifier = &swappableClassifier{}
	s.answerer = &swappableAnswerer{}

	s.detector = question.NewDetector(s.transcriber, s.classifier, langdetect.Tagger{}, s.batcher)
	s.detector.SetSampleRate(audio.SampleRate)
	s.detector.SetProcessingHook(s.coord.SetProcessing)
	s.detector.OnQuestion(func(q question.DetectedQuestion) {
		s.emit(EventQuestionDetected, q)
	})

	var store question.AnswerStore
	if s.cache != nil {
		store = s.cache
	}
	s.answers = question.NewAnswerService(s.answerer, store)
	s.answers.OnAnswer(func(id string, answer question.CachedAnswer, fromCache bool) {
		s.emit(EventAnswerComplete, types.AnswerResult{
			QuestionID: id,
			Text:       answer.Response,
			Timestamp:  answer.Timestamp,
			FromCache:  fromCache,
		})
	})

	s.perms = permissions.NewTracker()
	s.perms.OnChange(func(snap permissions.Snapshot) {
		s.emit(EventPermissionChanged, snap)
	})

	s.helper = NewHelperAdapter(s.cfg.HelperPath, s.sup, s.coord, s.perms, s.emit)
	s.mic = NewMicAdapter()
	s.realtime = NewRealtimeAdapter(s.detector, s.emit)
}

func (s *Service) setupSupervisor() {
	s.sup = supervisor.New(supervisor.Config{NamePattern: helperBinaryName})
	s.sup.OnEvent(func(ev supervisor.Event) {
		slog.Info("supervisor event", "kind", ev.Kind,
			"kept", ev.KeptPid, "terminated", ev.Terminated, "error", ev.Err)
	})
	s.sup.Start(context.Background())
}

func (s *Service) setupHotkey() {
	s.hotkey = hotkey.NewManager(
		func() {
			if err := s.ToggleListening(); err != nil {
				slog.Error("toggle listening", "error", err)
			}
		},
		func() { s.ClearQuestions() },
	)

	s.hotkey.SetStatusCallback(func(granted bool) {
		if granted {
			slog.Info("accessibility permission granted")
		} else {
			slog.Warn("accessibility permission denied")
		}
	})

	if err := s.hotkey.Start(); err != nil {
		slog.Error("start hotkey", "error", err)
	}
}

// emit is a safe wrapper around app.Event.Emit
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Listening Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// StartListening starts both capture channels and the question pipeline.
func (s *Service) StartListening() error {
	if s.coord.State().IsListening {
		return nil
	}

	if err := s.configureModels(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.listenCancel = cancel

	s.coord.Start(ctx)
	go s.consumeChunks(ctx)

	if err := s.helper.Start(ctx); err != nil {
		slog.Warn("system audio unavailable", "error", err)
		s.emit(EventStreamError, StreamError{Source: "helper", Message: err.Error()})
	}

	rate := s.cfg.Audio.SampleRate
	micSink := s.coord.PushMicSamples
	speechCfg := s.cfg.GetSpeechConfig()
	useRealtime := speechCfg != nil && speechCfg.UseRealtime

	// With realtime enabled the destination is unknown until the
	// handshake resolves, so capture starts buffer-only and the audio
	// recorded meanwhile is replayed into whichever sink wins.
	if useRealtime {
		micSink = nil
	}

	started := time.Now()
	if err := s.mic.Start(rate, micSink); err != nil {
		slog.Warn("microphone unavailable", "error", err)
		s.emit(EventStreamError, StreamError{Source: "microphone", Message: err.Error()})
	} else if useRealtime {
		sink := s.coord.PushMicSamples
		if err := s.startRealtime(ctx, speechCfg); err != nil {
			slog.Warn("realtime transcription unavailable, using local segmentation", "error", err)
		} else {
			sink = func(samples []float32) { s.realtime.Push(samples, rate) }
		}
		// Replay before swapping so samples stay ordered: capture
		// buffers keep accumulating in the device until the sink is set.
		if buffered := s.mic.TrailingAudio(time.Since(started) + time.Second); len(buffered) > 0 {
			sink(buffered)
		}
		s.mic.SetSink(sink)
	}

	slog.Info("listening started")
	return nil
}

// StopListening stops capture and flushes partial utterances.
func (s *Service) StopListening() error {
	if s.coord == nil || !s.coord.State().IsListening {
		return nil
	}

	if err := s.mic.Stop(); err != nil {
		slog.Warn("stop microphone", "error", err)
	}
	if err := s.realtime.Stop(); err != nil {
		slog.Warn("stop realtime stream", "error", err)
	}
	if err := s.helper.Stop(); err != nil {
		slog.Warn("stop capture helper", "error", err)
	}

	s.coord.Stop()
	s.drainChunks()

	if s.listenCancel != nil {
		s.listenCancel()
		s.listenCancel = nil
	}

	slog.Info("listening stopped")
	return nil
}

// ToggleListening flips the listening state, used by the hotkey.
func (s *Service) ToggleListening() error {
	if s.coord.State().IsListening {
		return s.StopListening()
	}
	return s.StartListening()
}

// configureModels rebuilds the LLM-backed pipeline stages from config.
func (s *Service) configureModels() error {
	profile := s.cfg.GetAnswerProfile()
	if profile == nil {
		return fmt.Errorf("no answer profile configured")
	}
	cred := s.cfg.GetCredential(profile.CredentialID)
	if cred == nil {
		return fmt.Errorf("credential not found: %s", profile.CredentialID)
	}

	completer := llm.NewCompleter(cred.Type, cred.APIKey, cred.BaseURL, profile.Model, llm.Options{
		MaxTokens:   profile.MaxTokens,
		Temperature: profile.Temperature,
	})
	s.classifier.swap(llm.NewClassifier(completer))
	s.answerer.swap(llm.NewAnswerer(completer))

	speechCfg := s.cfg.GetSpeechConfig()
	if speechCfg == nil || speechCfg.CredentialID == "" {
		return fmt.Errorf("no speech credential configured")
	}
	speechCred := s.cfg.GetCredential(speechCfg.CredentialID)
	if speechCred == nil {
		return fmt.Errorf("speech credential not found: %s", speechCfg.CredentialID)
	}

	whisper, err := transcribe.NewWhisper(transcribe.WhisperConfig{
		APIKey:  speechCred.APIKey,
		BaseURL: speechCred.BaseURL,
		Model:   speechCfg.Model,
	})
	if err != nil {
		return fmt.Errorf("configure transcription: %w", err)
	}
	s.transcriber.swap(transcribe.NewChunkTranscriber(whisper, speechCfg.Language))
	return nil
}

func (s *Service) startRealtime(ctx context.Context, speechCfg *types.SpeechConfig) error {
	cred := s.cfg.GetCredential(speechCfg.CredentialID)
	if cred == nil {
		return fmt.Errorf("speech credential not found: %s", speechCfg.CredentialID)
	}
	return s.realtime.Start(ctx, cred.APIKey, speechCfg.Language)
}

// consumeChunks drives emitted utterances through the detector.
func (s *Service) consumeChunks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-s.coord.Chunks():
			if err := s.detector.Process(ctx, &chunk); err != nil {
				slog.Warn("process utterance", "id", chunk.ID, "error", err)
			}
		}
	}
}

// drainChunks processes utterances flushed by Stop after the consume
// loop's context ended.
func (s *Service) drainChunks() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		select {
		case chunk := <-s.coord.Chunks():
			if err := s.detector.Process(ctx, &chunk); err != nil {
				slog.Warn("process trailing utterance", "id", chunk.ID, "error", err)
			}
		default:
			return
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Questions & Answers
// ─────────────────────────────────────────────────────────────────────────────

// GetQuestions returns the questions detected since the last clear.
func (s *Service) GetQuestions() []question.DetectedQuestion {
	return s.detector.Buffer()
}

// ClearQuestions empties the question buffer and pending batch.
func (s *Service) ClearQuestions() {
	s.detector.Clear()
	s.answers.Clear()
}

// RefineQuestion records a refined wording for a buffered question.
func (s *Service) RefineQuestion(id, refinedText string) {
	s.detector.Refine(id, refinedText)
}

// AnswerQuestion resolves an answer for a buffered question in the
// background. Partial text streams as events; completion arrives as an
// event whether the answer was fresh or cached.
func (s *Service) AnswerQuestion(id string) error {
	var target *question.DetectedQuestion
	for _, q := range s.detector.Buffer() {
		if q.ID == id {
			q := q
			target = &q
			break
		}
	}
	if target == nil {
		return fmt.Errorf("question not found: %s", id)
	}

	go func(q question.DetectedQuestion) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		_, err := s.answers.Answer(ctx, q, func(delta string) {
			s.emit(EventAnswerPartial, types.AnswerPartial{QuestionID: q.ID, Delta: delta})
		})
		if err != nil {
			slog.Error("answer question", "id", q.ID, "error", err)
			s.emit(EventStreamError, StreamError{Source: "answer", Message: err.Error()})
		}
	}(*target)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Permissions
// ─────────────────────────────────────────────────────────────────────────────

// GetPermissionStatus returns the tracked capture permission state.
func (s *Service) GetPermissionStatus() permissions.Snapshot {
	return s.perms.Snapshot()
}

// RequestCapturePermissions asks the helper to prompt for its permissions
// and records microphone permission from the capture device.
func (s *Service) RequestCapturePermissions() permissions.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.helper.RequestPermissions(ctx); err != nil {
		slog.Warn("helper permission request", "error", err)
	}
	s.perms.SetGranted(permissions.KindMicrophone, s.mic.RequestPermission())
	return s.perms.Snapshot()
}

// ─────────────────────────────────────────────────────────────────────────────
// Window
// ─────────────────────────────────────────────────────────────────────────────

// ShowWindow brings the main window to the front.
func (s *Service) ShowWindow() {
	if s.window == nil {
		return
	}
	s.window.Show()
	s.window.Focus()
}

// ─────────────────────────────────────────────────────────────────────────────
// API Credential Management
// ─────────────────────────────────────────────────────────────────────────────

// GetCredentials returns all API credentials.
func (s *Service) GetCredentials() []types.APICredential {
	return s.cfg.GetCredentials()
}

// AddCredential adds a new API credential.
func (s *Service) AddCredential(cred types.APICredential) error {
	return s.cfg.AddCredential(cred)
}

// UpdateCredential updates an existing credential.
func (s *Service) UpdateCredential(id string, cred types.APICredential) error {
	return s.cfg.UpdateCredential(id, cred)
}

// RemoveCredential removes a credential by ID.
func (s *Service) RemoveCredential(id string) error {
	return s.cfg.RemoveCredential(id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Speech & Answer Configuration
// ─────────────────────────────────────────────────────────────────────────────

// GetSpeechConfig returns the speech service configuration.
func (s *Service) GetSpeechConfig() *types.SpeechConfig {
	return s.cfg.GetSpeechConfig()
}

// SetSpeechConfig sets the speech service configuration.
func (s *Service) SetSpeechConfig(cfg types.SpeechConfig) error {
	return s.cfg.SetSpeechConfig(cfg)
}

// GetAnswerProfile returns the answer model settings.
func (s *Service) GetAnswerProfile() *config.AnswerProfile {
	return s.cfg.GetAnswerProfile()
}

// SetAnswerProfile sets the answer model settings.
func (s *Service) SetAnswerProfile(p config.AnswerProfile) error {
	return s.cfg.SetAnswerProfile(p)
}

// DetectLanguage detects the language of the given text.
func (s *Service) DetectLanguage(text string) types.DetectResult {
	code, name := langdetect.Detect(text)
	return types.DetectResult{Code: code, Name: name}
}
