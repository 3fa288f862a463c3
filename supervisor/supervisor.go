// Package supervisor enforces the single-active-capture-process invariant:
// at most one native audio helper runs system-wide. It reaps stale helpers
// left by prior runs and resolves conflicts on a fixed poll interval.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPollInterval is how often the conflict check runs.
	DefaultPollInterval = 2 * time.Second

	// DefaultGracePeriod is how long a terminated process gets to exit
	// before the kill escalates.
	DefaultGracePeriod = 500 * time.Millisecond
)

// Event kinds emitted by the supervisor.
const (
	EventCleanupCompleted  = "cleanup-completed"
	EventCleanupIncomplete = "cleanup-incomplete"
	EventCleanupError      = "cleanup-error"
	EventConflictResolved  = "conflict-resolved"
)

// Event describes a supervision lifecycle occurrence.
type Event struct {
	Kind       string
	KeptPid    int32
	Terminated []int32
	Err        error
}

// ProcessInfo identifies one OS process.
type ProcessInfo struct {
	Pid  int32
	Name string
}

// System abstracts process enumeration and signaling so conflict logic is
// testable without real processes. The default is the gopsutil-backed
// implementation from NewOSSystem.
type System interface {
	// Processes enumerates running processes.
	Processes() ([]ProcessInfo, error)
	// Terminate sends the graceful termination signal.
	Terminate(pid int32) error
	// Kill sends the forceful kill signal.
	Kill(pid int32) error
	// Alive reports whether the process still exists.
	Alive(pid int32) (bool, error)
}

// Supervisor owns the registered capture process and the poll-and-resolve
// cycle. All registration mutation goes through it.
type Supervisor struct {
	system      System
	namePattern string
	interval    time.Duration
	grace       time.Duration

	mu         sync.Mutex
	registered int32 // 0 = none
	running    bool
	cancel     context.CancelFunc

	// resolveMu serializes conflict-resolution passes; no two passes
	// run concurrently even if a poll overruns.
	resolveMu sync.Mutex

	subMu  sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

// Config holds supervisor construction parameters.
type Config struct {
	// NamePattern matches helper process names, case-insensitive
	// substring (e.g. "audiohelper").
	NamePattern string
	System      System
	Interval    time.Duration
	GracePeriod time.Duration
}

// New creates a Supervisor. A nil System defaults to the OS-backed one.
func New(cfg Config) *Supervisor {
	if cfg.System == nil {
		cfg.System = NewOSSystem()
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	return &Supervisor{
		system:      cfg.System,
		namePattern: strings.ToLower(cfg.NamePattern),
		interval:    cfg.Interval,
		grace:       cfg.GracePeriod,
		subs:        make(map[int]func(Event)),
	}
}

// OnEvent registers a listener and returns its cancel function. After
// cancel returns, the listener receives no further events.
func (s *Supervisor) OnEvent(fn func(Event)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Supervisor) emit(ev Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subs {
		fn(ev)
	}
}

// Start begins supervision: an immediate stale-process sweep, then
// periodic conflict checks. Idempotent.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.sweepStale()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.resolveConflicts()
			}
		}
	}()
}

// Stop halts the poll loop. The registration is left as is.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
}

// Register makes pid the authoritative capture process. A different prior
// registration is terminated first.
func (s *Supervisor) Register(pid int32) {
	s.mu.Lock()
	prior := s.registered
	s.registered = pid
	s.mu.Unlock()

	if prior != 0 && prior != pid {
		slog.Info("terminating previously registered capture process", "prior", prior, "new", pid)
		if err := s.terminate(prior); err != nil {
			slog.Error("terminate prior capture process", "pid", prior, "error", err)
		}
	}
}

// Unregister clears the registration only if pid matches the current one.
func (s *Supervisor) Unregister(pid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registered == pid {
		s.registered = 0
	}
}

// Registered returns the currently registered pid, 0 if none.
func (s *Supervisor) Registered() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

// EmergencyCleanup terminates every matching process unconditionally and
// clears the registration.
func (s *Supervisor) EmergencyCleanup() {
	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	matches, err := s.matchingProcesses()
	if err != nil {
		s.emit(Event{Kind: EventCleanupError, Err: err})
		return
	}

	var terminated []int32
	for _, p := range matches {
		if err := s.terminate(p.Pid); err != nil {
			slog.Error("emergency terminate", "pid", p.Pid, "error", err)
			continue
		}
		terminated = append(terminated, p.Pid)
	}

	s.mu.Lock()
	s.registered = 0
	s.mu.Unlock()

	s.emit(Event{Kind: EventCleanupCompleted, Terminated: terminated})
}

// sweepStale reaps helpers left behind by a prior run (e.g. after a
// crash). Nothing is registered yet, so every match is stale.
func (s *Supervisor) sweepStale() {
	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	matches, err := s.matchingProcesses()
	if err != nil {
		slog.Error("stale process sweep", "error", err)
		s.emit(Event{Kind: EventCleanupError, Err: err})
		return
	}
	if len(matches) == 0 {
		s.emit(Event{Kind: EventCleanupCompleted})
		return
	}

	var terminated, remaining []int32
	for _, p := range matches {
		if err := s.terminate(p.Pid); err != nil {
			slog.Error("terminate stale process", "pid", p.Pid, "error", err)
			remaining = append(remaining, p.Pid)
			continue
		}
		terminated = append(terminated, p.Pid)
	}

	if len(remaining) > 0 {
		s.emit(Event{Kind: EventCleanupIncomplete, Terminated: terminated})
		return
	}
	slog.Info("stale capture processes reaped", "count", len(terminated))
	s.emit(Event{Kind: EventCleanupCompleted, Terminated: terminated})
}

// resolveConflicts enforces the single-process invariant for one poll
// cycle. The highest pid is treated as most recently started and kept.
func (s *Supervisor) resolveConflicts() {
	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	matches, err := s.matchingProcesses()
	if err != nil {
		// Next poll cycle retries; never crash the supervisor.
		slog.Error("conflict check enumeration", "error", err)
		return
	}
	if len(matches) <= 1 {
		return
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Pid > matches[j].Pid })
	kept := matches[0].Pid

	var terminated []int32
	for _, p := range matches[1:] {
		if err := s.terminate(p.Pid); err != nil {
			slog.Error("terminate conflicting process", "pid", p.Pid, "error", err)
			continue
		}
		terminated = append(terminated, p.Pid)
	}

	s.mu.Lock()
	s.registered = kept
	s.mu.Unlock()

	slog.Warn("capture process conflict resolved", "kept", kept, "terminated", terminated)
	s.emit(Event{Kind: EventConflictResolved, KeptPid: kept, Terminated: terminated})
}

// terminate sends the graceful signal, waits out the grace period, and
// escalates to a forced kill only if the process is still alive. An
// already-absent process is success at either check.
func (s *Supervisor) terminate(pid int32) error {
	alive, err := s.system.Alive(pid)
	if err != nil {
		return fmt.Errorf("check process %d: %w", pid, err)
	}
	if !alive {
		return nil
	}

	if err := s.system.Terminate(pid); err != nil {
		// The process may have exited between the check and the signal.
		if alive, aerr := s.system.Alive(pid); aerr == nil && !alive {
			return nil
		}
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}

	time.Sleep(s.grace)

	alive, err = s.system.Alive(pid)
	if err != nil {
		return fmt.Errorf("recheck process %d: %w", pid, err)
	}
	if !alive {
		return nil
	}

	if err := s.system.Kill(pid); err != nil {
		if alive, aerr := s.system.Alive(pid); aerr == nil && !alive {
			return nil
		}
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}

// matchingProcesses enumerates processes whose name contains the pattern.
func (s *Supervisor) matchingProcesses() ([]ProcessInfo, error) {
	if s.namePattern == "" {
		return nil, nil
	}
	procs, err := s.system.Processes()
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}
	var matches []ProcessInfo
	for _, p := range procs {
		if strings.Contains(strings.ToLower(p.Name), s.namePattern) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}
