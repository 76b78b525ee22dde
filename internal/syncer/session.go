package syncer

import (
	"sync"
)

// Status is the connection indicator shown to the user.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusSyncing
	StatusError
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnected:
		return "CONNECTED"
	case StatusSyncing:
		return "SYNCING"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Phase is the position of the load coordinator in its state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSyncing
	PhaseReadyLocal
	PhaseReadySynced
	PhaseReadyError
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseSyncing:
		return "SYNCING"
	case PhaseReadyLocal:
		return "READY_LOCAL"
	case PhaseReadySynced:
		return "READY_SYNCED"
	case PhaseReadyError:
		return "READY_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Ready reports whether the load attempt has finished.
func (p Phase) Ready() bool {
	return p >= PhaseReadyLocal
}

// State is a point-in-time copy of a Session.
type State struct {
	Configured bool
	Loaded     bool
	Status     Status
	Phase      Phase
	LastError  error
}

// Session is the sync status shared by the coordinator and the bridge.
// It is safe for concurrent use.
type Session struct {
	mu         sync.RWMutex
	configured bool
	loaded     bool
	status     Status
	phase      Phase
	lastErr    error

	lisMu     sync.Mutex
	listeners map[int]func(State)
	nextLis   int
}

// NewSession returns a session in phase INIT with status DISCONNECTED.
func NewSession() *Session {
	return &Session{listeners: make(map[int]func(State))}
}

// IsConfigured reports whether the coordinator found a usable endpoint.
func (s *Session) IsConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configured
}

// IsLoaded reports whether the coordinator has finished its attempt,
// whatever the outcome.
func (s *Session) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Phase returns the coordinator phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// LastError returns the error behind the most recent ERROR status.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// State returns a copy of the whole session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	return State{
		Configured: s.configured,
		Loaded:     s.loaded,
		Status:     s.status,
		Phase:      s.phase,
		LastError:  s.lastErr,
	}
}

// OnChange registers fn for every state change. The returned function
// removes it and may be called more than once.
func (s *Session) OnChange(fn func(State)) func() {
	s.lisMu.Lock()
	id := s.nextLis
	s.nextLis++
	s.listeners[id] = fn
	s.lisMu.Unlock()

	return func() {
		s.lisMu.Lock()
		delete(s.listeners, id)
		s.lisMu.Unlock()
	}
}

// beginLoad records the start of a load attempt.
func (s *Session) beginLoad(configured bool) {
	s.update(func() {
		s.configured = configured
		if configured {
			s.phase = PhaseSyncing
			s.status = StatusSyncing
		}
	})
}

// beginRefresh records a refresh against the remote store, which may have
// been configured after load.
func (s *Session) beginRefresh(configured bool) {
	s.update(func() {
		s.configured = configured
		if configured {
			s.status = StatusSyncing
		} else {
			s.status = StatusDisconnected
		}
	})
}

// finishLoad ends the load attempt. The session counts as loaded from
// here on regardless of phase.
func (s *Session) finishLoad(phase Phase, status Status, err error) {
	s.update(func() {
		s.loaded = true
		s.phase = phase
		s.status = status
		s.lastErr = err
	})
}

// setStatus records a status change after load. err is kept only for
// StatusError.
func (s *Session) setStatus(status Status, err error) {
	s.update(func() {
		s.status = status
		if status == StatusError {
			s.lastErr = err
		}
	})
}

func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	state := s.stateLocked()
	s.mu.Unlock()

	s.lisMu.Lock()
	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.lisMu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}
