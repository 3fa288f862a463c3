// Package hotkey registers global keyboard shortcuts for hands-free
// control while the window is hidden behind the meeting.
package hotkey

import (
	"fmt"
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// Default shortcuts. Chosen to avoid common editor and OS bindings.
var (
	toggleListeningKeys = []string{"ctrl", "shift", "l"}
	clearQuestionsKeys  = []string{"ctrl", "shift", "k"}
)

// Manager owns the global event hook. One instance per process; the
// underlying hook library is a singleton.
type Manager struct {
	onToggleListening func()
	onClearQuestions  func()

	mu       sync.Mutex
	onStatus func(granted bool)
	running  bool
}

// NewManager creates a manager with the two capture shortcuts.
func NewManager(toggleListening, clearQuestions func()) *Manager {
	return &Manager{
		onToggleListening: toggleListening,
		onClearQuestions:  clearQuestions,
	}
}

// SetStatusCallback registers a listener for hook availability. On macOS
// the hook silently receives nothing without accessibility permission,
// so the status is best-effort.
func (m *Manager) SetStatusCallback(fn func(granted bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = fn
}

// Start installs the shortcuts and begins processing events. Idempotent.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	status := m.onStatus
	m.mu.Unlock()

	hook.Register(hook.KeyDown, toggleListeningKeys, func(hook.Event) {
		slog.Debug("hotkey: toggle listening")
		if m.onToggleListening != nil {
			m.onToggleListening()
		}
	})
	hook.Register(hook.KeyDown, clearQuestionsKeys, func(hook.Event) {
		slog.Debug("hotkey: clear questions")
		if m.onClearQuestions != nil {
			m.onClearQuestions()
		}
	})

	events := hook.Start()
	if events == nil {
		if status != nil {
			status(false)
		}
		return fmt.Errorf("start global hook")
	}
	if status != nil {
		status(true)
	}

	go func() {
		<-hook.Process(events)
		slog.Debug("hotkey processing ended")
	}()

	slog.Info("global shortcuts registered",
		"toggleListening", toggleListeningKeys, "clearQuestions", clearQuestionsKeys)
	return nil
}

// Stop removes the hook. Safe to call when not running.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	hook.End()
}
