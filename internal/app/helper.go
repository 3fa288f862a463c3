package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/itsukison/CueMeFinal-sub003/captureproto"
	"github.com/itsukison/CueMeFinal-sub003/permissions"
	"github.com/itsukison/CueMeFinal-sub003/pipeline"
	"github.com/itsukison/CueMeFinal-sub003/supervisor"
)

// helperBinaryName is the capture helper executable, shipped next to the
// application binary unless the config overrides its path.
const helperBinaryName = "audiohelper"

// helperStopTimeout is how long a stdin "stop" gets before escalating to
// a signal.
const helperStopTimeout = 2 * time.Second

// HelperAdapter owns the capture helper subprocess: launch, stdout
// protocol routing, registration with the supervisor, and shutdown.
type HelperAdapter struct {
	path  string
	sup   *supervisor.Supervisor
	coord *pipeline.Coordinator
	perms *permissions.Tracker
	emit  func(name string, data any)

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
}

// NewHelperAdapter wires the adapter to its collaborators. path may be
// empty, in which case the helper is expected next to the executable.
func NewHelperAdapter(path string, sup *supervisor.Supervisor, coord *pipeline.Coordinator, perms *permissions.Tracker, emit func(name string, data any)) *HelperAdapter {
	return &HelperAdapter{
		path:  path,
		sup:   sup,
		coord: coord,
		perms: perms,
		emit:  emit,
	}
}

func (h *HelperAdapter) binaryPath() (string, error) {
	if h.path != "" {
		return h.path, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), helperBinaryName), nil
}

// Start launches the helper in streaming mode. No-op if already running.
func (h *HelperAdapter) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil {
		return nil
	}

	path, err := h.binaryPath()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, path, captureproto.CmdStartStream)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("helper stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start helper %s: %w", path, err)
	}

	h.cmd = cmd
	h.stdin = stdin
	h.done = make(chan struct{})
	h.sup.Register(int32(cmd.Process.Pid))
	slog.Info("capture helper started", "pid", cmd.Process.Pid, "path", path)

	go h.readLoop(stdout, h.done)
	return nil
}

// readLoop routes helper messages until the stream closes, then reaps
// the process.
func (h *HelperAdapter) readLoop(r io.Reader, done chan struct{}) {
	scanner := captureproto.NewScanner(r)
	for {
		msg, err := scanner.Next()
		if err != nil {
			if err != io.EOF {
				slog.Warn("helper stream read failed", "error", err)
			}
			break
		}
		h.route(msg)
	}

	h.mu.Lock()
	cmd := h.cmd
	h.cmd = nil
	h.stdin = nil
	h.mu.Unlock()

	if cmd != nil {
		if err := cmd.Wait(); err != nil {
			slog.Warn("helper exited", "error", err)
		}
		h.sup.Unregister(int32(cmd.Process.Pid))
	}
	close(done)
}

// route dispatches one protocol message. Transport-level oddities are
// logged, never fatal.
func (h *HelperAdapter) route(msg *captureproto.Message) {
	switch msg.Type {
	case captureproto.TypeAudio:
		h.coord.PushSystemMessage(msg)
	case captureproto.TypePermission:
		h.perms.SetGranted(permissions.Kind(msg.Permission), msg.Granted)
	case captureproto.TypeStatus:
		slog.Info("helper status", "message", msg.Message)
	case captureproto.TypeError:
		slog.Error("helper error", "message", msg.Message)
		if h.emit != nil {
			h.emit(EventStreamError, StreamError{Source: "helper", Message: msg.Message})
		}
	default:
		slog.Debug("unhandled helper message", "type", msg.Type)
	}
}

// Stop asks the helper to exit via stdin and escalates through an
// interrupt to the supervisor's forced termination if it lingers.
func (h *HelperAdapter) Stop() error {
	h.mu.Lock()
	cmd := h.cmd
	stdin := h.stdin
	done := h.done
	h.mu.Unlock()
	if cmd == nil {
		return nil
	}
	pid := int32(cmd.Process.Pid)

	if stdin != nil {
		if _, err := io.WriteString(stdin, captureproto.ControlStop+"\n"); err != nil {
			slog.Debug("helper stop write failed", "error", err)
		}
	}

	select {
	case <-done:
		return nil
	case <-time.After(helperStopTimeout):
	}

	slog.Warn("helper ignored stop, signaling", "pid", pid)
	_ = cmd.Process.Signal(os.Interrupt)

	select {
	case <-done:
		return nil
	case <-time.After(helperStopTimeout):
	}

	// Last resort: the supervisor's escalation path.
	h.sup.EmergencyCleanup()
	return fmt.Errorf("helper pid %d did not exit cleanly", pid)
}

// Running reports whether the helper subprocess is alive.
func (h *HelperAdapter) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cmd != nil
}

// Probe runs the helper's status command once to check capture
// availability without starting a stream.
func (h *HelperAdapter) Probe(ctx context.Context) error {
	path, err := h.binaryPath()
	if err != nil {
		return err
	}
	out, err := exec.CommandContext(ctx, path, captureproto.CmdStatus).Output()
	if err != nil {
		return fmt.Errorf("helper status probe: %w", err)
	}
	slog.Debug("helper probe", "output", string(out))
	return nil
}

// RequestPermissions runs the helper's permission command, routing the
// results into the tracker.
func (h *HelperAdapter) RequestPermissions(ctx context.Context) error {
	path, err := h.binaryPath()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, path, captureproto.CmdPermissions)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("helper stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start helper: %w", err)
	}

	scanner := captureproto.NewScanner(stdout)
	for {
		msg, err := scanner.Next()
		if err != nil {
			break
		}
		h.route(msg)
	}
	return cmd.Wait()
}
