// Package permissions tracks OS capture permission state per kind and
// derives the conditions the UI needs to route users to the right remedy.
package permissions

import (
	"log/slog"
	"sync"
	"time"
)

// Status is the platform permission state for one kind.
type Status string

const (
	StatusGranted       Status = "granted"
	StatusDenied        Status = "denied"
	StatusRestricted    Status = "restricted"
	StatusNotDetermined Status = "not-determined"
	StatusUnknown       Status = "unknown"
)

// Kind names one tracked permission.
type Kind string

const (
	KindMicrophone    Kind = "microphone"
	KindScreenCapture Kind = "screen-capture"
	KindSystemAudio   Kind = "system-audio"
)

// Snapshot is the full permission surface handed to callers.
type Snapshot struct {
	Statuses map[Kind]Status `json:"statuses"`

	// WrongPermission flags the case where screen capture was granted but
	// system audio was not. The user approved a visually similar prompt
	// for the wrong capability, so "open settings and grant audio" is the
	// fix, not "grant capture".
	WrongPermission bool `json:"wrongPermission"`

	UpdatedAt int64 `json:"updatedAt"` // ms since epoch
}

// Tracker holds the latest status per kind. Single writer per source;
// readers get snapshots.
type Tracker struct {
	mu       sync.Mutex
	statuses map[Kind]Status

	onChange []func(Snapshot)
}

// NewTracker starts every kind at not-determined.
func NewTracker() *Tracker {
	return &Tracker{
		statuses: map[Kind]Status{
			KindMicrophone:    StatusNotDetermined,
			KindScreenCapture: StatusNotDetermined,
			KindSystemAudio:   StatusNotDetermined,
		},
	}
}

// Set records the status for one kind and notifies listeners on change.
func (t *Tracker) Set(kind Kind, status Status) {
	t.mu.Lock()
	if t.statuses[kind] == status {
		t.mu.Unlock()
		return
	}
	t.statuses[kind] = status
	snap := t.snapshotLocked()
	listeners := t.onChange
	t.mu.Unlock()

	slog.Info("permission changed", "kind", kind, "status", status,
		"wrongPermission", snap.WrongPermission)
	for _, fn := range listeners {
		fn(snap)
	}
}

// SetGranted maps a boolean probe result onto the status enum. False maps
// to denied, not to not-determined, since the probe did run.
func (t *Tracker) SetGranted(kind Kind, granted bool) {
	if granted {
		t.Set(kind, StatusGranted)
	} else {
		t.Set(kind, StatusDenied)
	}
}

// Status returns the current state for one kind.
func (t *Tracker) Status(kind Kind) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.statuses[kind]; ok {
		return s
	}
	return StatusUnknown
}

// Snapshot returns the full surface, never a partially-updated view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// WrongPermission reports the derived conflict on its own.
func (t *Tracker) WrongPermission() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wrongPermissionLocked()
}

// OnChange registers a snapshot listener. The returned cancel func stops
// delivery before it returns.
func (t *Tracker) OnChange(fn func(Snapshot)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
	idx := len(t.onChange) - 1
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if idx < len(t.onChange) {
			t.onChange[idx] = func(Snapshot) {}
		}
	}
}

func (t *Tracker) snapshotLocked() Snapshot {
	statuses := make(map[Kind]Status, len(t.statuses))
	for k, v := range t.statuses {
		statuses[k] = v
	}
	return Snapshot{
		Statuses:        statuses,
		WrongPermission: t.wrongPermissionLocked(),
		UpdatedAt:       time.Now().UnixMilli(),
	}
}

func (t *Tracker) wrongPermissionLocked() bool {
	return t.statuses[KindScreenCapture] == StatusGranted &&
		t.statuses[KindSystemAudio] != StatusGranted
}
