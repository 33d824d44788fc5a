package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteQueueSubmitSequenceOrder(t *testing.T) {
	old := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = old }()

	r := NewRegistry(catTools(), "", true)
	id, err := r.CreateSession(CreateOptions{Variant: VariantA})
	require.NoError(t, err)
	defer r.Close(id, true, 200)

	s, err := r.mustGet(id)
	require.NoError(t, err)

	// submitWithTab starts true (defaultSubmitA=true); force it off so the
	// recorded bytes are exactly text + CR + LF.
	s.mu.Lock()
	s.submitWithTab = false
	s.mu.Unlock()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	cancel := s.OnOutput(func(chunk []byte) {
		mu.Lock()
		got = append(got, chunk...)
		n := len(got)
		mu.Unlock()
		if n >= len("hello\r\n") {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	s.Write("hello\r")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("did not observe echoed submit sequence in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello\r\n", string(got))
}

func TestWriteQueuePlainTextWithoutCRDoesNotSubmit(t *testing.T) {
	old := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = old }()

	r := NewRegistry(catTools(), "", true)
	id, err := r.CreateSession(CreateOptions{Variant: VariantA})
	require.NoError(t, err)
	defer r.Close(id, true, 200)

	s, err := r.mustGet(id)
	require.NoError(t, err)

	var mu sync.Mutex
	var got strings.Builder
	done := make(chan struct{})
	cancel := s.OnOutput(func(chunk []byte) {
		mu.Lock()
		got.Write(chunk)
		s := got.String()
		mu.Unlock()
		if strings.Contains(s, "partial") {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	s.Write("partial")

	select {
	case <-done:
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("did not observe echoed text in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "partial", got.String())
}

func TestWriteQueueSkipsLFWhenCRLFAlreadyPresent(t *testing.T) {
	old := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = old }()

	s := newSession("t1", VariantA, "", newCatChild(t), false)
	defer s.Forget()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	cancel := s.OnOutput(func(chunk []byte) {
		mu.Lock()
		got = append(got, chunk...)
		n := len(got)
		mu.Unlock()
		if n >= len("hi\r\n") {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	s.Write("hi\r\n")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("did not observe echoed output in time")
	}

	mu.Lock()
	defer mu.Unlock()
	// Exactly one CRLF: the drainer must not insert a second LF after its
	// own synthetic CR when the input already supplied CRLF.
	assert.Equal(t, "hi\r\n", string(got))
}

func TestWriteDoesNotReachPTYWhileClosing(t *testing.T) {
	r := NewRegistry(catTools(), "", true)
	id, err := r.CreateSession(CreateOptions{Variant: VariantA})
	require.NoError(t, err)

	s, err := r.mustGet(id)
	require.NoError(t, err)

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	var gotAny bool
	cancel := s.OnOutput(func([]byte) { gotAny = true })
	defer cancel()

	s.Write("should not be written\r")
	time.Sleep(100 * time.Millisecond)
	assert.False(t, gotAny)

	s.mu.Lock()
	s.closing = false
	s.mu.Unlock()
	s.Forget()
}

// newCatChild spawns a bare `cat` PTY child for tests that need a Session
// built outside a Registry (no ClosingSet/registryMu wiring).
func newCatChild(t *testing.T) *ptyChild {
	t.Helper()
	child, err := spawnPTYChild("cat", nil, "", nil)
	require.NoError(t, err)
	return child
}
