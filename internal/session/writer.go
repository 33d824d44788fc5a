package session

import (
	"strings"
	"sync"
	"time"
)

// Inter-step delays in the variant-A submit sequence. Named so tests can
// reach in and zero them via a package-level override rather than
// sleeping for real.
var (
	submitTextDelay = 15 * time.Millisecond
	submitTabDelay  = 20 * time.Millisecond
	submitCRDelay   = 25 * time.Millisecond
)

// writeQueue is the per-session FIFO used only by variant-A sessions.
// At most one drainer runs at a time (guarded by draining); new writes
// that arrive mid-drain are appended and cause the drainer to re-arm
// itself once it finishes the current pass.
type writeQueue struct {
	mu       sync.Mutex
	items    []string
	draining bool
}

// write is the Write Serializer's single entry point. For non-A variants
// it is a synchronous, failure-swallowing pass-through; for variant A it
// enqueues and (if needed) starts the cooperative drainer.
func (s *Session) write(data string) {
	s.mu.Lock()
	closing := s.closing
	running := s.status.Running
	variant := s.variant
	mu := s.registryMu
	closingSet := s.closingSetRef
	id := s.id
	s.mu.Unlock()

	if closing || isClosingMember(mu, closingSet, id) {
		return // silent drop: descriptor is gone or going
	}
	if !running {
		return
	}

	if variant != VariantA {
		s.pty.write([]byte(data))
		return
	}

	s.queue.mu.Lock()
	s.queue.items = append(s.queue.items, data)
	alreadyDraining := s.queue.draining
	if !alreadyDraining {
		s.queue.draining = true
	}
	s.queue.mu.Unlock()

	if !alreadyDraining {
		go s.drain()
	}
}

// isClosingMember is a small helper so write() can check ClosingSet
// membership without importing registry.go's lock ordering concerns
// into Session directly; mu/set are supplied by the owning Registry at
// session construction time and may be nil for a Session created
// outside a Registry (e.g. in unit tests).
func isClosingMember(mu *sync.Mutex, set map[string]struct{}, id string) bool {
	if mu == nil || set == nil {
		return false
	}
	mu.Lock()
	defer mu.Unlock()
	_, ok := set[id]
	return ok
}

// drain processes the variant-A queue in FIFO order until it is empty,
// then re-checks for new arrivals before giving up the draining flag —
// closing the race where an item is enqueued between the last pop and
// the flag reset.
func (s *Session) drain() {
	for {
		s.queue.mu.Lock()
		if len(s.queue.items) == 0 {
			s.queue.draining = false
			s.queue.mu.Unlock()
			return
		}
		item := s.queue.items[0]
		s.queue.items = s.queue.items[1:]
		s.queue.mu.Unlock()

		if !s.drainOne(item) {
			// Session became non-running or entered ClosingSet mid-drain:
			// clear the remainder of the queue and stop.
			s.queue.mu.Lock()
			s.queue.items = nil
			s.queue.draining = false
			s.queue.mu.Unlock()
			return
		}
	}
}

// drainOne emits one queued string's submit sequence, recursively
// splitting on CR so a synthetic TAB/CR/LF always brackets its own
// call's text and never interleaves with another call's bytes. It
// returns false if the drainer should abort (session gone, or a write
// failed).
func (s *Session) drainOne(data string) bool {
	if s.sessionGone() {
		return false
	}

	crIdx := strings.IndexByte(data, '\r')
	if crIdx == -1 {
		if data == "" {
			return true
		}
		_, err := s.pty.write([]byte(data))
		return err == nil
	}

	prefix := data[:crIdx]
	rest := data[crIdx+1:]
	skipLF := strings.HasPrefix(rest, "\n")
	if skipLF {
		rest = rest[1:]
	}

	if prefix != "" {
		if _, err := s.pty.write([]byte(prefix)); err != nil {
			return false
		}
	}
	sleep(submitTextDelay)

	if !s.emitSubmitSequence(skipLF) {
		return false
	}

	if rest == "" {
		return true
	}
	return s.drainOne(rest)
}

// emitSubmitSequence writes the synthetic TAB (if submitWithTab is set)
// / CR / LF triplet, skipping the LF when the original text already
// supplied a CRLF (skipLF).
func (s *Session) emitSubmitSequence(skipLF bool) bool {
	if s.sessionGone() {
		return false
	}

	s.mu.Lock()
	tab := s.submitWithTab
	s.mu.Unlock()

	if tab {
		if _, err := s.pty.write([]byte{'\t'}); err != nil {
			return false
		}
		sleep(submitTabDelay)
	}

	if _, err := s.pty.write([]byte{'\r'}); err != nil {
		return false
	}
	sleep(submitCRDelay)

	if skipLF {
		return true
	}

	if _, err := s.pty.write([]byte{'\n'}); err != nil {
		return false
	}
	return true
}

// sessionGone reports whether the drainer should abort: non-running or
// in ClosingSet.
func (s *Session) sessionGone() bool {
	s.mu.Lock()
	running := s.status.Running
	closing := s.closing
	mu := s.registryMu
	set := s.closingSetRef
	id := s.id
	s.mu.Unlock()
	return !running || closing || isClosingMember(mu, set, id)
}

// sleep is a var so tests can stub it out to make drains instantaneous.
var sleep = time.Sleep
