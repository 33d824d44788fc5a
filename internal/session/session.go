package session

import (
	"sync"
)

// Session is one PTY-attached child process plus its bookkeeping:
// status, listener sets, and (for variant A) its write queue. The PTY
// never reaches back into the Session — cancellation handles returned
// by onOutput/onExit are the only thing a caller holds onto.
type Session struct {
	// Immutable after construction.
	id        string
	variant   Variant
	profileID string
	pty       *ptyChild

	// registryMu/closingSetRef point at the owning Registry's ClosingSet
	// so write() can honor membership without a back-reference to the
	// Registry itself. Both are nil for a Session built outside a
	// Registry (unit tests may do this directly).
	registryMu    *sync.Mutex
	closingSetRef map[string]struct{}

	mu             sync.Mutex
	status         Status
	submitWithTab  bool
	closing        bool
	lifecycleState string

	fan   *fanout
	queue *writeQueue
}

// newSession constructs a Session in its initial Running state, wrapping
// an already-spawned ptyChild. Construction itself cannot fail; spawn
// failures are handled by the Registry before this is ever called.
func newSession(id string, v Variant, profileID string, child *ptyChild, submitWithTab bool) *Session {
	s := &Session{
		id:             id,
		variant:        v,
		profileID:      profileID,
		pty:            child,
		submitWithTab:  submitWithTab,
		lifecycleState: stateRunning,
		fan:            newFanout(v),
		queue:          &writeQueue{},
	}
	s.status = Status{Running: true, PID: child.pid()}
	go s.readLoop()
	return s
}

// readLoop drains the PTY master, fans output out to subscribers, and
// observes process exit exactly once.
func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.pty.read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			if hint := s.fan.deliver(chunk); hint {
				s.mu.Lock()
				s.submitWithTab = true
				s.mu.Unlock()
			}
		}
		if err != nil {
			break
		}
	}

	exitCode, sig := s.pty.wait()

	s.mu.Lock()
	s.status.Running = false
	s.status.ExitCode = exitCode
	s.status.Signal = sig
	if s.lifecycleState != stateForgotten {
		s.lifecycleState = stateExited
	}
	snapshot := s.status
	s.mu.Unlock()

	s.pty.closeMaster()
	s.fan.fireExit(snapshot)
}

// GetStatus returns a snapshot of the session's process status.
func (s *Session) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnOutput registers fn for every subsequent output chunk and returns a
// cancellation handle.
func (s *Session) OnOutput(fn func([]byte)) func() {
	return s.fan.onOutput(fn)
}

// OnExit registers fn to fire exactly once after the process exits.
func (s *Session) OnExit(fn func(Status)) func() {
	return s.fan.onExit(fn)
}

// Write enqueues (variant A) or synchronously passes through (otherwise)
// a string to the PTY, per the Write Serializer's two regimes.
func (s *Session) Write(data string) {
	s.write(data)
}

// Resize passes new PTY dimensions through. Errors are swallowed; there
// is no remediation available to a caller resizing a dead session.
func (s *Session) Resize(cols, rows uint16) {
	_ = s.pty.resize(cols, rows)
}

// Interrupt delivers ^C/SIGINT: signalOnly skips the ^C byte and
// sends SIGINT immediately instead of after the fallback delay.
func (s *Session) Interrupt(signalOnly bool) {
	s.interrupt(signalOnly)
}

// Stop is equivalent to Interrupt(false).
func (s *Session) Stop() {
	s.stop()
}

// Kill sends SIGKILL to the child pid.
func (s *Session) Kill() {
	s.kill()
}

// Close runs the graceful-interrupt -> grace-period -> hard-kill
// sequence and unconditionally forgets the session.
func (s *Session) Close(force bool, graceMs int) CloseResult {
	return s.close(force, graceMs)
}

// Forget clears listeners and ensures the process is dead, idempotently.
func (s *Session) Forget() {
	s.forget()
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// Variant returns the session's tool variant.
func (s *Session) Variant() Variant { return s.variant }

// ProfileID returns the caller-supplied profile id, passed through
// verbatim at creation.
func (s *Session) ProfileID() string { return s.profileID }
