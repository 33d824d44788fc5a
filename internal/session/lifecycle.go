package session

import (
	"syscall"
	"time"
)

// control-C as delivered over the PTY when a session is interrupted in
// "not signal-only" mode.
const ctrlC = 0x03

// interrupt fallback delay: the child usually reacts to ^C on its own;
// the SIGINT is a safety net for processes that disabled ISIG.
const interruptSignalDelay = 80 * time.Millisecond

const (
	defaultGraceMs = 1400
	minGraceMs     = 100
	maxGraceMs     = 10_000
	postKillWaitMs = 900
	pollCadenceMs  = 40
)

// CloseResult reports what close() observed.
type CloseResult struct {
	Existed    bool
	WasRunning bool
}

// interrupt delivers ^C/SIGINT to the session's child process. When
// signalOnly is false it first writes ^C to the PTY (swallowing write
// errors) and schedules SIGINT ~80ms later; when signalOnly is true the
// SIGINT is sent immediately and no PTY byte is written.
func (s *Session) interrupt(signalOnly bool) {
	s.mu.Lock()
	running := s.status.Running
	s.mu.Unlock()
	if !running {
		return
	}

	if !signalOnly {
		s.pty.write([]byte{ctrlC})
		time.AfterFunc(interruptSignalDelay, func() {
			s.pty.killSignal(syscall.SIGINT)
		})
		return
	}

	s.pty.killSignal(syscall.SIGINT)
}

// stop is equivalent to interrupt: no reliable cross-platform SIGTERM-
// through-PTY path is assumed.
func (s *Session) stop() {
	s.interrupt(false)
}

// kill delivers SIGKILL directly to the child pid, swallowing errors.
func (s *Session) kill() {
	s.pty.killSignal(syscall.SIGKILL)
}

// close runs the graceful-interrupt -> grace-period -> hard-kill
// shutdown sequence and unconditionally forgets the session afterward.
// It never panics and always returns a result, even for an id that was
// concurrently forgotten by another caller.
func (s *Session) close(force bool, graceMs int) CloseResult {
	graceMs = normalizeGraceMs(graceMs)

	s.mu.Lock()
	s.closing = true
	if s.lifecycleState == stateRunning {
		s.lifecycleState = stateClosing
	}
	wasRunning := s.status.Running
	s.mu.Unlock()

	if wasRunning {
		s.interrupt(true)
		waitForExit(s, time.Duration(graceMs)*time.Millisecond)
	}

	s.mu.Lock()
	stillRunning := s.status.Running
	s.mu.Unlock()

	if stillRunning && force {
		s.kill()
		waitForExit(s, postKillWaitMs*time.Millisecond)
	}

	s.forget()

	s.mu.Lock()
	s.closing = false
	s.mu.Unlock()

	return CloseResult{Existed: true, WasRunning: wasRunning}
}

// forget clears listener sets, attempts a final PTY kill, and marks the
// session Forgotten. It is idempotent.
func (s *Session) forget() {
	s.mu.Lock()
	if s.lifecycleState == stateForgotten {
		s.mu.Unlock()
		return
	}
	pid := s.status.PID
	running := s.status.Running
	s.mu.Unlock()

	s.pty.killSignal(syscall.SIGKILL)
	s.pty.closeMaster()

	if running && pid > 0 {
		syscall.Kill(pid, syscall.SIGKILL)
	}

	s.fan.clear()

	s.mu.Lock()
	s.lifecycleState = stateForgotten
	s.mu.Unlock()
}

func normalizeGraceMs(graceMs int) int {
	if graceMs <= 0 {
		return defaultGraceMs
	}
	if graceMs < minGraceMs {
		return minGraceMs
	}
	if graceMs > maxGraceMs {
		return maxGraceMs
	}
	return graceMs
}

// waitForExit polls status.Running at a ~40ms cadence until it
// goes false or the budget elapses.
func waitForExit(s *Session, budget time.Duration) {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		running := s.status.Running
		s.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(pollCadenceMs * time.Millisecond)
	}
}
