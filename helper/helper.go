// Package helper implements the native audio-capture helper process: a
// line-delimited JSON protocol over stdio, a continuous system-audio
// streaming mode, and a selftest tone generator. The cmd/audiohelper
// binary is a thin wrapper around Run.
package helper

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/itsukison/CueMeFinal-sub003/captureproto"
)

const (
	// DefaultSampleRate matches what the transcription backend expects.
	DefaultSampleRate = 24000

	// enumerateTimeout bounds content/display enumeration for the
	// capability probe.
	enumerateTimeout = 5 * time.Second

	// streamStartTimeout bounds how long stream start may block before
	// an error message unblocks the caller.
	streamStartTimeout = 3 * time.Second
)

// ErrUnknownCommand is returned for a command the helper does not accept.
var ErrUnknownCommand = errors.New("helper: unknown command")

// Source produces continuous float32 sample buffers. Implementations are
// platform capture backends or the selftest tone generator.
type Source interface {
	// Start begins delivering buffers to the callback until Stop.
	Start(sampleRate int, callback func(samples []float32)) error
	// Stop halts delivery. Safe to call more than once.
	Stop() error
}

// Prober answers the capability probe: can this platform enumerate
// shareable content, and which permissions are granted.
type Prober interface {
	// Probe enumerates capturable content. It should respect the
	// given deadline; the helper enforces it regardless.
	Probe() error
	// Permissions reports permission kinds and their granted state.
	Permissions() map[string]bool
}

// Helper runs the capture-helper protocol over the given streams.
type Helper struct {
	out    *captureproto.Writer
	in     io.Reader
	source Source
	probe  Prober

	sampleRate int
	bufFrames  int

	// Streaming shutdown: every stop path funnels through release so
	// exactly one release unblocks the single streaming waiter.
	releaseOnce sync.Once
	done        chan struct{}
}

// Config holds helper construction parameters.
type Config struct {
	Out        io.Writer
	In         io.Reader
	Source     Source
	Prober     Prober
	SampleRate int
	// BufferFrames is the frame count per emitted audio message.
	BufferFrames int
}

// New creates a Helper. Source and Prober default to the platform
// implementations; In/Out default to the process stdio in cmd/audiohelper.
func New(cfg Config) *Helper {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.BufferFrames == 0 {
		cfg.BufferFrames = cfg.SampleRate / 10 // 100 ms buffers
	}
	return &Helper{
		out:        captureproto.NewWriter(cfg.Out),
		in:         cfg.In,
		source:     cfg.Source,
		probe:      cfg.Prober,
		sampleRate: cfg.SampleRate,
		bufFrames:  cfg.BufferFrames,
		done:       make(chan struct{}),
	}
}

// Run dispatches a single helper command. For status, permissions and
// selftest the helper exits after responding; start-stream keeps the
// process alive until interrupted.
func (h *Helper) Run(command string) error {
	switch command {
	case captureproto.CmdStatus:
		return h.runStatus()
	case captureproto.CmdPermissions:
		return h.runPermissions()
	case captureproto.CmdSelftest:
		return h.runSelftest()
	case captureproto.CmdStartStream:
		return h.runStream()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

// Interrupt requests streaming shutdown. Safe from any goroutine and safe
// to call repeatedly; wired to SIGINT/SIGTERM by cmd/audiohelper.
func (h *Helper) Interrupt() {
	h.releaseOnce.Do(func() { close(h.done) })
}

// runStatus probes capture capability with a hard enumeration deadline.
func (h *Helper) runStatus() error {
	if h.probe == nil {
		return h.out.Write(captureproto.NewError("no capture backend on this platform"))
	}

	result := make(chan error, 1)
	go func() { result <- h.probe.Probe() }()

	select {
	case err := <-result:
		if err != nil {
			return h.out.Write(captureproto.NewError(fmt.Sprintf("content enumeration failed: %v", err)))
		}
		return h.out.Write(captureproto.NewStatus("CAPTURE_READY"))
	case <-time.After(enumerateTimeout):
		return h.out.Write(captureproto.NewError("content enumeration timed out after 5s"))
	}
}

// runPermissions reports each permission kind the platform knows about.
// Querying may trigger the OS permission prompt; that is the point.
func (h *Helper) runPermissions() error {
	if h.probe == nil {
		return h.out.Write(captureproto.NewError("no capture backend on this platform"))
	}
	for kind, granted := range h.probe.Permissions() {
		if err := h.out.Write(captureproto.NewPermission(kind, granted)); err != nil {
			return err
		}
	}
	return nil
}

// runSelftest streams a short synthetic tone without touching OS
// permissions, then exits.
func (h *Helper) runSelftest() error {
	tone := NewToneSource(ToneFrequency, h.bufFrames)
	emitted := 0

	err := tone.Start(h.sampleRate, func(samples []float32) {
		msg := captureproto.NewAudio(samples, h.sampleRate, 1, time.Now().UnixMilli())
		msg.Selftest = true
		if werr := h.out.Write(msg); werr != nil {
			slog.Error("write selftest audio", "error", werr)
		}
		emitted++
	})
	if err != nil {
		return h.out.Write(captureproto.NewError(fmt.Sprintf("selftest start failed: %v", err)))
	}

	time.Sleep(500 * time.Millisecond)
	_ = tone.Stop()

	return h.out.Write(captureproto.NewStatus(fmt.Sprintf("SELFTEST_COMPLETE buffers=%d", emitted)))
}

// runStream starts continuous capture and blocks until a stop path fires:
// a stop/quit control line, Interrupt, or source failure. All paths
// converge on the same one-shot release, and the final terminal status is
// emitted exactly once.
func (h *Helper) runStream() error {
	if h.source == nil {
		return h.out.Write(captureproto.NewError("no capture backend on this platform"))
	}

	started := make(chan error, 1)
	go func() {
		started <- h.source.Start(h.sampleRate, func(samples []float32) {
			msg := captureproto.NewAudio(samples, h.sampleRate, 1, time.Now().UnixMilli())
			if err := h.out.Write(msg); err != nil {
				slog.Error("write audio message", "error", err)
			}
		})
	}()

	select {
	case err := <-started:
		if err != nil {
			return h.out.Write(captureproto.NewError(fmt.Sprintf("stream start failed: %v", err)))
		}
	case <-time.After(streamStartTimeout):
		// Unblock the caller; the late start result is discarded.
		return h.out.Write(captureproto.NewError("stream start timed out after 3s"))
	}

	if err := h.out.Write(captureproto.NewStatus("STREAMING_STARTED")); err != nil {
		slog.Error("write streaming-started status", "error", err)
	}

	go h.watchStdin()

	// Keep the process alive until exactly one release fires.
	<-h.done

	if err := h.source.Stop(); err != nil {
		slog.Error("stop capture source", "error", err)
	}
	return h.out.Write(captureproto.NewStatus(captureproto.StatusStreamingStopped))
}

// watchStdin converts stop/quit control lines into the shared release.
// Stdin closing also releases: a dead parent must not strand the helper.
func (h *Helper) watchStdin() {
	if h.in == nil {
		return
	}
	sc := bufio.NewScanner(h.in)
	for sc.Scan() {
		switch strings.TrimSpace(sc.Text()) {
		case captureproto.ControlStop, captureproto.ControlQuit:
			h.Interrupt()
			return
		}
	}
	h.Interrupt()
}
