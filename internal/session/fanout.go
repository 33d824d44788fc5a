package session

import (
	"strings"
	"sync"
)

// submitHint is the literal (case-insensitive) substring variant A emits
// once its TUI wants input submitted with a leading TAB.
const submitHint = "tab to queue message"

// fanout multicasts PTY output chunks to a set of subscribers in a fixed
// (but unspecified) order, swallowing any listener panic so one bad
// subscriber never starves the others. It also owns the variant-A
// submit-hint detector, the only place a session self-mutates based on
// its own output.
type fanout struct {
	mu          sync.Mutex
	nextID      int
	outputSubs  map[int]func([]byte)
	exitSubs    map[int]func(Status)
	exitFired   bool
	detectHints bool // true only for variant-A sessions
}

func newFanout(variant Variant) *fanout {
	return &fanout{
		outputSubs:  make(map[int]func([]byte)),
		exitSubs:    make(map[int]func(Status)),
		detectHints: variant == VariantA,
	}
}

// onOutput registers fn and returns a cancellation handle. Calling the
// handle after teardown is a no-op.
func (f *fanout) onOutput(fn func([]byte)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.outputSubs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.outputSubs, id)
		f.mu.Unlock()
	}
}

// onExit registers fn to be invoked exactly once after the session's
// status transitions to non-running.
func (f *fanout) onExit(fn func(Status)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.exitSubs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.exitSubs, id)
		f.mu.Unlock()
	}
}

// deliver fans chunk out to every registered output listener. It returns
// true the first time chunk contains the submit hint for a variant-A
// session, so the caller can flip submitWithTab.
func (f *fanout) deliver(chunk []byte) (hintSeen bool) {
	f.mu.Lock()
	subs := make([]func([]byte), 0, len(f.outputSubs))
	for _, fn := range f.outputSubs {
		subs = append(subs, fn)
	}
	detect := f.detectHints
	f.mu.Unlock()

	if detect && strings.Contains(strings.ToLower(string(chunk)), submitHint) {
		hintSeen = true
	}

	for _, fn := range subs {
		callListener(fn, chunk)
	}
	return hintSeen
}

// fireExit invokes every exit listener exactly once with status.
func (f *fanout) fireExit(status Status) {
	f.mu.Lock()
	if f.exitFired {
		f.mu.Unlock()
		return
	}
	f.exitFired = true
	subs := make([]func(Status), 0, len(f.exitSubs))
	for _, fn := range f.exitSubs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		callExitListener(fn, status)
	}
}

// clear removes every subscriber (used by forget/dispose).
func (f *fanout) clear() {
	f.mu.Lock()
	f.outputSubs = make(map[int]func([]byte))
	f.exitSubs = make(map[int]func(Status))
	f.mu.Unlock()
}

// callListener swallows a panicking listener so the fan-out keeps
// delivering to the rest of the subscribers.
func callListener(fn func([]byte), chunk []byte) {
	defer func() { _ = recover() }()
	fn(chunk)
}

func callExitListener(fn func(Status), status Status) {
	defer func() { _ = recover() }()
	fn(status)
}
