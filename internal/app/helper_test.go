package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/itsukison/CueMeFinal-sub003/captureproto"
	"github.com/itsukison/CueMeFinal-sub003/permissions"
	"github.com/itsukison/CueMeFinal-sub003/pipeline"
	"github.com/itsukison/CueMeFinal-sub003/question"
)

type emitRecorder struct {
	names []string
	data  []any
}

func (e *emitRecorder) emit(name string, data any) {
	e.names = append(e.names, name)
	e.data = append(e.data, data)
}

func testHelper(t *testing.T) (*HelperAdapter, *pipeline.Coordinator, *permissions.Tracker, *emitRecorder) {
	t.Helper()
	seg := pipeline.NewSegmenter(pipeline.DefaultSegmenterConfig())
	coord := pipeline.NewCoordinator(seg)
	perms := permissions.NewTracker()
	rec := &emitRecorder{}
	return NewHelperAdapter("", nil, coord, perms, rec.emit), coord, perms, rec
}

func TestRoutePermissionUpdatesTracker(t *testing.T) {
	h, _, perms, _ := testHelper(t)

	h.route(captureproto.NewPermission("system-audio", true))
	h.route(captureproto.NewPermission("screen-capture", false))

	if got := perms.Status(permissions.KindSystemAudio); got != permissions.StatusGranted {
		t.Errorf("system-audio = %v, want granted", got)
	}
	if got := perms.Status(permissions.KindScreenCapture); got != permissions.StatusDenied {
		t.Errorf("screen-capture = %v, want denied", got)
	}
}

func TestRouteErrorEmitsStreamError(t *testing.T) {
	h, _, _, rec := testHelper(t)

	h.route(captureproto.NewError("device lost"))

	if len(rec.names) != 1 || rec.names[0] != EventStreamError {
		t.Fatalf("events = %v, want one %s", rec.names, EventStreamError)
	}
	se, ok := rec.data[0].(StreamError)
	if !ok || se.Source != "helper" || se.Message != "device lost" {
		t.Errorf("payload = %+v", rec.data[0])
	}
}

func TestRouteAudioReachesSegmenter(t *testing.T) {
	h, coord, _, _ := testHelper(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord.Start(ctx)
	defer coord.Stop()

	// A long loud buffer trips the segmenter's hard cap immediately.
	cfg := pipeline.DefaultSegmenterConfig()
	n := cfg.SampleRate * int(cfg.MaxDuration/time.Second)
	samples := make([]float32, n+cfg.SampleRate)
	for i := range samples {
		samples[i] = 0.5
	}
	h.route(captureproto.NewAudio(samples, cfg.SampleRate, 1, 1000))

	select {
	case chunk := <-coord.Chunks():
		if chunk.Source != pipeline.SourceSystem {
			t.Errorf("Source = %v, want system", chunk.Source)
		}
		if !chunk.MaxDurationHit {
			t.Error("MaxDurationHit = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk emitted")
	}
}

func TestReadLoopRoutesUntilEOF(t *testing.T) {
	h, _, perms, rec := testHelper(t)

	var buf bytes.Buffer
	w := captureproto.NewWriter(&buf)
	for _, m := range []*captureproto.Message{
		captureproto.NewStatus("STREAMING_STARTED"),
		captureproto.NewPermission("microphone", true),
		captureproto.NewError("glitch"),
	} {
		if err := w.Write(m); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	// Garbage lines are skipped, not fatal.
	buf.WriteString("not json\n")

	done := make(chan struct{})
	h.done = done
	h.readLoop(&buf, done)

	select {
	case <-done:
	default:
		t.Fatal("readLoop did not close done")
	}
	if got := perms.Status(permissions.KindMicrophone); got != permissions.StatusGranted {
		t.Errorf("microphone = %v, want granted", got)
	}
	if len(rec.names) != 1 || rec.names[0] != EventStreamError {
		t.Errorf("events = %v, want one %s", rec.names, EventStreamError)
	}
}

func TestSwappableStagesReportUnconfigured(t *testing.T) {
	ctx := context.Background()

	var tr swappableTranscriber
	if _, err := tr.Transcribe(ctx, nil, 24000); err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("Transcribe err = %v", err)
	}
	var cl swappableClassifier
	if _, _, err := cl.Classify(ctx, "hi"); err == nil {
		t.Error("Classify succeeded while unconfigured")
	}
	var an swappableAnswerer
	if _, err := an.Answer(ctx, "hi", nil); err == nil {
		t.Error("Answer succeeded while unconfigured")
	}
}

type staticClassifier struct{}

func (staticClassifier) Classify(context.Context, string) (bool, float64, error) {
	return true, 0.9, nil
}

func TestSwappableStageDelegatesAfterSwap(t *testing.T) {
	var cl swappableClassifier
	cl.swap(staticClassifier{})

	ok, conf, err := cl.Classify(context.Background(), "is this working?")
	if err != nil || !ok || conf != 0.9 {
		t.Errorf("Classify = %v %v %v", ok, conf, err)
	}
}

var _ question.Transcriber = (*swappableTranscriber)(nil)
var _ question.Classifier = (*swappableClassifier)(nil)
var _ question.Answerer = (*swappableAnswerer)(nil)
